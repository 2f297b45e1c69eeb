package indexer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/semantica-dev/codectx/internal/chunker"
	"github.com/semantica-dev/codectx/internal/embedder"
	"github.com/semantica-dev/codectx/internal/merkle"
	"github.com/semantica-dev/codectx/internal/parser"
	"github.com/semantica-dev/codectx/internal/snapshot"
	"github.com/semantica-dev/codectx/internal/vectorstore"
	"github.com/semantica-dev/codectx/pkg/types"
)

// Phase is the externally visible state of the indexing pipeline.
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseComputingDiff Phase = "computing_diff"
	PhaseParsing       Phase = "parsing"
	PhaseEmbedding     Phase = "embedding"
	PhaseUpserting     Phase = "upserting"
	PhaseCommitting    Phase = "committing"
	PhaseFailed        Phase = "failed"
)

// ErrRunActive is returned when a run is requested while one is in flight.
var ErrRunActive = errors.New("indexing run already active")

// Config contains configuration for the indexer.
type Config struct {
	Root      string       // Repository root to index
	Rules     merkle.Rules // File inclusion rules
	Workers   int          // Concurrent parse workers (default: runtime.NumCPU())
	BatchSize int          // Texts per embedding batch (default: embedder.MaxBatchSize)
}

// Result summarizes one completed run.
type Result struct {
	Full           bool
	FilesChanged   int
	FilesDeleted   int
	ChunksEmbedded int
	ChunksReused   int
	ChunksDeleted  int
	Degraded       bool
	DeferredFiles  []string
	Duration       time.Duration
}

// Status is a point-in-time view served without blocking a running index.
type Status struct {
	Phase                Phase
	LastFullIndex        time.Time
	LastIncrementalIndex time.Time
	FileCount            int
	ChunkCount           int
	LastError            string
}

// Indexer coordinates the pipeline: diff -> parse -> chunk -> embed -> upsert.
type Indexer struct {
	cfg       Config
	parser    *parser.Parser
	chunker   *chunker.Chunker
	embedder  embedder.Embedder
	store     vectorstore.Store
	snapshots *snapshot.Store

	lock   RunLock
	phase  atomic.Value // Phase
	runErr atomic.Value // string, error of the last run when it failed outright
}

// New creates an Indexer over the given collaborators.
func New(cfg Config, emb embedder.Embedder, store vectorstore.Store, snapshots *snapshot.Store) *Indexer {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > embedder.MaxBatchSize {
		cfg.BatchSize = embedder.MaxBatchSize
	}

	idx := &Indexer{
		cfg:       cfg,
		parser:    parser.New(),
		chunker:   chunker.New(),
		embedder:  emb,
		store:     store,
		snapshots: snapshots,
	}
	idx.phase.Store(PhaseIdle)
	return idx
}

// Phase returns the current pipeline phase without blocking.
func (idx *Indexer) Phase() Phase {
	return idx.phase.Load().(Phase)
}

// Status reports the committed snapshot's bookkeeping plus the live phase.
// A run that failed before committing leaves nothing in the snapshot, so its
// error is tracked in memory and takes precedence here.
func (idx *Indexer) Status() (Status, error) {
	snap, err := idx.snapshots.Load()
	if err != nil {
		return Status{}, fmt.Errorf("load snapshot: %w", err)
	}
	lastError := snap.LastError
	if msg, ok := idx.runErr.Load().(string); ok && msg != "" {
		lastError = msg
	}
	return Status{
		Phase:                idx.Phase(),
		LastFullIndex:        snap.LastFullIndex,
		LastIncrementalIndex: snap.LastIncrementalIndex,
		FileCount:            snap.FileCount,
		ChunkCount:           snap.ChunkCount,
		LastError:            lastError,
	}, nil
}

// RunFull re-indexes every current file regardless of the snapshot. Stale
// entries for files that no longer exist are still removed.
func (idx *Indexer) RunFull(ctx context.Context) (*Result, error) {
	return idx.runLocked(ctx, true)
}

// RunIncremental indexes only what changed since the last committed
// snapshot. With no snapshot on disk this degenerates to a full index.
func (idx *Indexer) RunIncremental(ctx context.Context) (*Result, error) {
	return idx.runLocked(ctx, false)
}

// StartFull launches a full run on a background goroutine. Lock acquisition
// is synchronous, so a true return means this call owns the run; false means
// another run is already active. done, when non-nil, receives the outcome.
func (idx *Indexer) StartFull(ctx context.Context, done func(*Result, error)) bool {
	if !idx.lock.TryAcquire() {
		return false
	}
	go func() {
		result, err := idx.runAcquired(ctx, true)
		if done != nil {
			done(result, err)
		}
	}()
	return true
}

func (idx *Indexer) runLocked(ctx context.Context, full bool) (*Result, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrRunActive
	}
	return idx.runAcquired(ctx, full)
}

// runAcquired executes a run with the lock already held and releases it.
func (idx *Indexer) runAcquired(ctx context.Context, full bool) (*Result, error) {
	defer idx.lock.Release()

	result, err := idx.run(ctx, full)
	if err != nil {
		idx.runErr.Store(err.Error())
		idx.phase.Store(PhaseFailed)
		return nil, err
	}
	idx.runErr.Store("")
	idx.phase.Store(PhaseIdle)
	return result, nil
}

// fileChunks is the parse output for one changed file.
type fileChunks struct {
	path   string
	chunks []types.CodeChunk
	absent bool // File vanished between tree walk and read
}

func (idx *Indexer) run(ctx context.Context, full bool) (*Result, error) {
	start := time.Now()
	result := &Result{Full: full}

	prev, err := idx.snapshots.Load()
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	idx.phase.Store(PhaseComputingDiff)
	tree, err := merkle.ComputeTree(idx.cfg.Root, idx.cfg.Rules)
	if err != nil {
		return nil, fmt.Errorf("compute tree: %w", err)
	}
	current := tree.Flatten()

	var changed, deleted []string
	if full {
		for path := range current {
			changed = append(changed, path)
		}
		for path := range prev.Files {
			if _, ok := current[path]; !ok {
				deleted = append(deleted, path)
			}
		}
		sort.Strings(changed)
		sort.Strings(deleted)
	} else {
		diff := merkle.Diff(prev.Baseline(), tree)
		changed = append(diff.Added, diff.Modified...)
		sort.Strings(changed)
		deleted = diff.Deleted
	}
	result.FilesChanged = len(changed)
	result.FilesDeleted = len(deleted)

	if len(changed) == 0 && len(deleted) == 0 {
		// Nothing to do: no embedder calls, no store mutations. Only
		// the snapshot timestamps move.
		idx.phase.Store(PhaseCommitting)
		prev.SetTree(tree)
		if err := idx.commitSnapshot(prev, full, ""); err != nil {
			return nil, err
		}
		result.Duration = time.Since(start)
		return result, nil
	}

	for _, path := range deleted {
		if err := idx.store.DeleteByFile(ctx, path); err != nil {
			return nil, fmt.Errorf("delete chunks for %s: %w", path, err)
		}
		result.ChunksDeleted += len(prev.Chunks[path])
	}

	idx.phase.Store(PhaseParsing)
	parsed, err := idx.parseFiles(ctx, changed)
	if err != nil {
		return nil, err
	}

	// Chunk-level diff against the committed refs, no store round-trip.
	// Full runs skip the reuse path and re-embed everything current.
	var toEmbed []types.CodeChunk
	carried := make(map[string][]snapshot.ChunkRef)
	var staleIDs []string
	absent := make(map[string]bool)

	for _, fc := range parsed {
		if fc.absent {
			absent[fc.path] = true
			staleIDs = append(staleIDs, refIDs(prev.Chunks[fc.path])...)
			continue
		}

		prevRefs := make(map[string]string, len(prev.Chunks[fc.path]))
		for _, ref := range prev.Chunks[fc.path] {
			prevRefs[ref.ID] = ref.Digest
		}

		newIDs := make(map[string]bool, len(fc.chunks))
		for _, ch := range fc.chunks {
			newIDs[ch.ID] = true
			if !full && prevRefs[ch.ID] == ch.Digest {
				carried[fc.path] = append(carried[fc.path], snapshot.ChunkRef{ID: ch.ID, Digest: ch.Digest})
				result.ChunksReused++
				continue
			}
			toEmbed = append(toEmbed, ch)
		}
		for id := range prevRefs {
			if !newIDs[id] {
				staleIDs = append(staleIDs, id)
			}
		}
	}

	if len(staleIDs) > 0 {
		sort.Strings(staleIDs)
		if err := idx.store.DeleteByIDs(ctx, staleIDs); err != nil {
			return nil, fmt.Errorf("delete stale chunks: %w", err)
		}
		result.ChunksDeleted += len(staleIDs)
	}

	idx.phase.Store(PhaseEmbedding)
	embedded, deferred, err := idx.embedChunks(ctx, toEmbed)
	if err != nil {
		return nil, err
	}
	result.ChunksEmbedded = len(embedded)

	idx.phase.Store(PhaseUpserting)
	if err := idx.upsert(ctx, embedded); err != nil {
		return nil, err
	}

	// Succeeded chunk refs per file, merged with the carried ones.
	nextRefs := make(map[string][]snapshot.ChunkRef, len(parsed))
	for path, refs := range carried {
		nextRefs[path] = refs
	}
	for _, e := range embedded {
		nextRefs[e.chunk.Path] = append(nextRefs[e.chunk.Path], snapshot.ChunkRef{
			ID:     e.chunk.ID,
			Digest: e.chunk.Digest,
		})
	}

	var lastError string
	if deferred != nil {
		result.Degraded = true
		result.DeferredFiles = deferredPaths(deferred.chunks)
		lastError = fmt.Sprintf("embedding deferred for %d file(s): %s: %v",
			len(result.DeferredFiles), strings.Join(result.DeferredFiles, ", "), deferred.cause)
		log.Printf("index run degraded: %s", lastError)
	}

	// Deferred files are dropped from the committed baseline so the next
	// run re-parses them and embeds only their missing chunks.
	dropFiles := make(map[string]bool, len(result.DeferredFiles)+len(absent))
	for _, path := range result.DeferredFiles {
		dropFiles[path] = true
	}
	for path := range absent {
		dropFiles[path] = true
	}

	idx.phase.Store(PhaseCommitting)
	next := snapshot.Empty()
	next.LastFullIndex = prev.LastFullIndex
	next.LastIncrementalIndex = prev.LastIncrementalIndex
	next.SetTree(tree)

	// Unchanged files still present keep their committed refs. In a full
	// run every current file is in the changed set, so nothing carries.
	changedSet := make(map[string]bool, len(changed))
	for _, path := range changed {
		changedSet[path] = true
	}
	for path, refs := range prev.Chunks {
		if changedSet[path] {
			continue
		}
		if _, ok := current[path]; ok {
			next.Chunks[path] = refs
		}
	}
	for path, refs := range nextRefs {
		sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
		next.Chunks[path] = refs
	}
	// Every ancestor directory digest goes with the file. A dropped file
	// whose directories still match the baseline would be pruned by the
	// next diff and never revisited.
	for path := range dropFiles {
		delete(next.Files, path)
		for _, dir := range ancestorDirs(path) {
			delete(next.Dirs, dir)
		}
	}
	for path := range absent {
		delete(next.Chunks, path)
	}

	if err := idx.commitSnapshot(next, full, lastError); err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	return result, nil
}

// commitSnapshot stamps timestamps and counters before the atomic write.
func (idx *Indexer) commitSnapshot(s *snapshot.Snapshot, full bool, lastError string) error {
	now := time.Now().UTC()
	if full {
		s.LastFullIndex = now
	}
	s.LastIncrementalIndex = now
	s.LastError = lastError
	s.RefreshCounts()
	if err := idx.snapshots.Commit(s); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// parseFiles reads, parses, and chunks the changed files concurrently.
func (idx *Indexer) parseFiles(ctx context.Context, paths []string) ([]fileChunks, error) {
	results := make([]fileChunks, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.cfg.Workers)
	for i, relPath := range paths {
		g.Go(func() error {
			content, err := os.ReadFile(filepath.Join(idx.cfg.Root, filepath.FromSlash(relPath)))
			if err != nil {
				// The file changed underneath the tree walk. Leave it
				// for the next cycle.
				log.Printf("skip %s: %v", relPath, err)
				results[i] = fileChunks{path: relPath, absent: true}
				return nil
			}

			parsed, err := idx.parser.Parse(gctx, relPath, content)
			if err != nil {
				return fmt.Errorf("parse %s: %w", relPath, err)
			}
			results[i] = fileChunks{
				path:   relPath,
				chunks: idx.chunker.ChunkFile(relPath, content, parsed),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// embeddedChunk pairs a chunk with its vector.
type embeddedChunk struct {
	chunk  types.CodeChunk
	vector []float32
}

// deferral collects the chunks whose batches failed during a run, along
// with the first failure so the committed error names the cause.
type deferral struct {
	chunks []types.CodeChunk
	cause  error
}

// embedChunks embeds in batches. A batch that fails after the provider's
// retries defers its chunks to the next run instead of failing the run.
func (idx *Indexer) embedChunks(ctx context.Context, chunks []types.CodeChunk) ([]embeddedChunk, *deferral, error) {
	if len(chunks) == 0 {
		return nil, nil, nil
	}

	var embedded []embeddedChunk
	var deferred *deferral

	for offset := 0; offset < len(chunks); offset += idx.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		end := offset + idx.cfg.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[offset:end]

		texts := make([]string, len(batch))
		for i := range batch {
			texts[i] = batch[i].EmbeddingText()
		}

		vectors, err := idx.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, nil, err
			}
			log.Printf("embedding batch of %d failed, deferring: %v", len(batch), err)
			if deferred == nil {
				deferred = &deferral{cause: err}
			}
			deferred.chunks = append(deferred.chunks, batch...)
			continue
		}

		for i := range batch {
			embedded = append(embedded, embeddedChunk{chunk: batch[i], vector: vectors[i]})
		}
	}

	return embedded, deferred, nil
}

func (idx *Indexer) upsert(ctx context.Context, embedded []embeddedChunk) error {
	if len(embedded) == 0 {
		return nil
	}

	entries := make([]vectorstore.Entry, 0, len(embedded))
	for _, e := range embedded {
		entries = append(entries, vectorstore.Entry{
			ID:        e.chunk.ID,
			Path:      e.chunk.Path,
			Language:  e.chunk.Language,
			Kind:      e.chunk.Kind,
			Name:      e.chunk.Name,
			StartLine: e.chunk.StartLine,
			EndLine:   e.chunk.EndLine,
			Digest:    e.chunk.Digest,
			Content:   e.chunk.Text,
			Vector:    e.vector,
		})
	}

	for offset := 0; offset < len(entries); offset += idx.cfg.BatchSize {
		end := offset + idx.cfg.BatchSize
		if end > len(entries) {
			end = len(entries)
		}
		if err := idx.store.Upsert(ctx, entries[offset:end]); err != nil {
			return fmt.Errorf("upsert batch: %w", err)
		}
	}
	return nil
}

// ancestorDirs lists every directory above relPath, nearest first, ending
// with the tree root ".".
func ancestorDirs(relPath string) []string {
	var dirs []string
	for {
		i := strings.LastIndex(relPath, "/")
		if i < 0 {
			break
		}
		relPath = relPath[:i]
		dirs = append(dirs, relPath)
	}
	return append(dirs, ".")
}

func refIDs(refs []snapshot.ChunkRef) []string {
	ids := make([]string, len(refs))
	for i, ref := range refs {
		ids[i] = ref.ID
	}
	return ids
}

func deferredPaths(chunks []types.CodeChunk) []string {
	seen := make(map[string]bool)
	var paths []string
	for _, ch := range chunks {
		if !seen[ch.Path] {
			seen[ch.Path] = true
			paths = append(paths, ch.Path)
		}
	}
	sort.Strings(paths)
	return paths
}
