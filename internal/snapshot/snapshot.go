package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/semantica-dev/codectx/internal/merkle"
)

// FileName is the snapshot file kept inside the index directory.
const FileName = "snapshot.json"

// ChunkRef records one committed chunk's identity and text digest. The
// indexer diffs freshly extracted chunks against these refs without touching
// the vector store.
type ChunkRef struct {
	ID     string `json:"id"`
	Digest string `json:"digest"`
}

// Snapshot is the committed baseline of one successful indexing run.
type Snapshot struct {
	// Files maps relative path -> hex content digest (merkle leaves).
	Files map[string]string `json:"files"`

	// Dirs maps relative directory path -> hex combination digest,
	// enabling subtree pruning in the next run's diff.
	Dirs map[string]string `json:"dirs"`

	// Chunks maps relative path -> committed chunk refs for that file.
	Chunks map[string][]ChunkRef `json:"chunks"`

	LastFullIndex        time.Time `json:"last_full_index"`
	LastIncrementalIndex time.Time `json:"last_incremental_index"`
	FileCount            int       `json:"file_count"`
	ChunkCount           int       `json:"chunk_count"`
	LastError            string    `json:"last_error,omitempty"`
}

// Empty returns a fresh snapshot with initialized maps.
func Empty() *Snapshot {
	return &Snapshot{
		Files:  make(map[string]string),
		Dirs:   make(map[string]string),
		Chunks: make(map[string][]ChunkRef),
	}
}

// Baseline converts the persisted digests back into the merkle diff input.
// Entries that fail to parse are dropped, which at worst re-indexes the
// affected path.
func (s *Snapshot) Baseline() merkle.Baseline {
	b := merkle.Baseline{
		Files: make(map[string]merkle.Digest, len(s.Files)),
		Dirs:  make(map[string]merkle.Digest, len(s.Dirs)),
	}
	for path, hex := range s.Files {
		if d, ok := merkle.ParseDigest(hex); ok {
			b.Files[path] = d
		}
	}
	for path, hex := range s.Dirs {
		if d, ok := merkle.ParseDigest(hex); ok {
			b.Dirs[path] = d
		}
	}
	return b
}

// SetTree replaces the merkle baseline with a freshly computed tree.
func (s *Snapshot) SetTree(tree *merkle.Tree) {
	s.Files = make(map[string]string)
	s.Dirs = make(map[string]string)
	for path, d := range tree.Flatten() {
		s.Files[path] = d.String()
	}
	for path, d := range tree.FlattenDirs() {
		s.Dirs[path] = d.String()
	}
}

// RefreshCounts recomputes the bookkeeping counters from the maps.
func (s *Snapshot) RefreshCounts() {
	s.FileCount = len(s.Files)
	total := 0
	for _, refs := range s.Chunks {
		total += len(refs)
	}
	s.ChunkCount = total
}

// Store reads and writes snapshots under a single index directory.
type Store struct {
	dir string
}

// NewStore creates a snapshot store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Path returns the snapshot file location.
func (st *Store) Path() string {
	return filepath.Join(st.dir, FileName)
}

// Load reads the committed snapshot. A missing file yields an empty
// snapshot, which makes the next run a full index.
func (st *Store) Load() (*Snapshot, error) {
	data, err := os.ReadFile(st.Path())
	if os.IsNotExist(err) {
		return Empty(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if s.Files == nil {
		s.Files = make(map[string]string)
	}
	if s.Dirs == nil {
		s.Dirs = make(map[string]string)
	}
	if s.Chunks == nil {
		s.Chunks = make(map[string][]ChunkRef)
	}
	return &s, nil
}

// Commit atomically replaces the committed snapshot: the new state is
// written to a temp file in the same directory and renamed over the old one,
// so a crash mid-write can never leave a torn snapshot.
func (st *Store) Commit(s *Snapshot) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(st.dir, FileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close snapshot: %w", err)
	}

	if err := os.Rename(tmpName, st.Path()); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}
