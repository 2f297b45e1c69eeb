package vectorstore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/semantica-dev/codectx/pkg/types"
)

// SQLiteStore implements Store on a single SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// openDatabase opens SQLite with the pragmas the store depends on.
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// WAL keeps readers unblocked while an indexing run writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return db, nil
}

// NewSQLiteStore opens (creating if needed) the store at dbPath and applies
// migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, path, language, kind, name, start_line, end_line, digest, content, vector, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			path = excluded.path,
			language = excluded.language,
			kind = excluded.kind,
			name = excluded.name,
			start_line = excluded.start_line,
			end_line = excluded.end_line,
			digest = excluded.digest,
			content = excluded.content,
			vector = excluded.vector,
			updated_at = CURRENT_TIMESTAMP`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range entries {
		content := e.Content
		if len(content) > MaxStoredContent {
			content = content[:MaxStoredContent]
		}
		if _, err := stmt.ExecContext(ctx,
			e.ID, e.Path, string(e.Language), string(e.Kind), e.Name,
			e.StartLine, e.EndLine, e.Digest, content, serializeVector(e.Vector)); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM chunks WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("prepare delete: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("delete chunk %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteByFile(ctx context.Context, path string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE path = ?`, path); err != nil {
		return fmt.Errorf("delete chunks for %s: %w", path, err)
	}
	return nil
}

func (s *SQLiteStore) Query(ctx context.Context, vector []float32, topK int, filters *Filters) ([]Match, error) {
	if topK <= 0 {
		return []Match{}, nil
	}

	query := `SELECT id, path, language, kind, name, start_line, end_line, digest, content, vector FROM chunks`
	var conds []string
	var args []interface{}
	if filters != nil {
		if filters.PathPrefix != "" {
			conds = append(conds, `substr(path, 1, length(?)) = ?`)
			args = append(args, filters.PathPrefix, filters.PathPrefix)
		}
		if filters.Language != "" {
			conds = append(conds, `language = ?`)
			args = append(args, string(filters.Language))
		}
		if filters.Kind != "" {
			conds = append(conds, `kind = ?`)
			args = append(args, string(filters.Kind))
		}
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var matches []Match
	for rows.Next() {
		var e Entry
		var lang, kind string
		var blob []byte
		if err := rows.Scan(&e.ID, &e.Path, &lang, &kind, &e.Name,
			&e.StartLine, &e.EndLine, &e.Digest, &e.Content, &blob); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		e.Language = types.Language(lang)
		e.Kind = types.ChunkKind(kind)

		stored, err := deserializeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", e.ID, err)
		}
		if len(stored) != len(vector) {
			return nil, fmt.Errorf("%w: stored %d, query %d", ErrDimensionMismatch, len(stored), len(vector))
		}
		e.Vector = stored

		matches = append(matches, Match{Entry: e, Score: cosineSimilarity(vector, stored)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return count, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
