package indexer

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semantica-dev/codectx/internal/embedder"
	"github.com/semantica-dev/codectx/internal/merkle"
	"github.com/semantica-dev/codectx/internal/snapshot"
	"github.com/semantica-dev/codectx/internal/vectorstore"
)

// fakeEmbedder produces deterministic vectors and records every batch. It
// can be told to fail the next N batches with a transient error.
type fakeEmbedder struct {
	mu       sync.Mutex
	batches  [][]string
	failNext int
}

func (f *fakeEmbedder) vector(text string) []float32 {
	sum := sha256.Sum256([]byte(text))
	v := make([]float32, 8)
	for i := range v {
		v[i] = float32(sum[i]) / 255.0
	}
	return v
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return nil, fmt.Errorf("%w: provider unavailable", embedder.ErrTransient)
	}
	f.batches = append(f.batches, append([]string(nil), texts...))
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vector(t)
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int   { return 8 }
func (f *fakeEmbedder) Provider() string { return "fake" }
func (f *fakeEmbedder) Model() string    { return "fake-model" }
func (f *fakeEmbedder) Close() error     { return nil }

func (f *fakeEmbedder) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func (f *fakeEmbedder) textCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

// countingStore wraps a Store and counts mutating calls.
type countingStore struct {
	vectorstore.Store
	mu        sync.Mutex
	upserts   int
	deletions int
}

func (c *countingStore) Upsert(ctx context.Context, entries []vectorstore.Entry) error {
	c.mu.Lock()
	c.upserts += len(entries)
	c.mu.Unlock()
	return c.Store.Upsert(ctx, entries)
}

func (c *countingStore) DeleteByIDs(ctx context.Context, ids []string) error {
	c.mu.Lock()
	c.deletions += len(ids)
	c.mu.Unlock()
	return c.Store.DeleteByIDs(ctx, ids)
}

func (c *countingStore) DeleteByFile(ctx context.Context, path string) error {
	c.mu.Lock()
	c.deletions++
	c.mu.Unlock()
	return c.Store.DeleteByFile(ctx, path)
}

type testEnv struct {
	root     string
	idx      *Indexer
	embedder *fakeEmbedder
	store    *countingStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()

	sqlStore, err := vectorstore.NewSQLiteStore(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlStore.Close() })
	store := &countingStore{Store: sqlStore}

	snapshots, err := snapshot.NewStore(filepath.Join(t.TempDir(), "state"))
	require.NoError(t, err)

	emb := &fakeEmbedder{}
	idx := New(Config{Root: root, Rules: merkle.DefaultRules(), Workers: 2}, emb, store, snapshots)

	return &testEnv{root: root, idx: idx, embedder: emb, store: store}
}

func (e *testEnv) write(t *testing.T, relPath, content string) {
	t.Helper()
	full := filepath.Join(e.root, filepath.FromSlash(relPath))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func (e *testEnv) remove(t *testing.T, relPath string) {
	t.Helper()
	require.NoError(t, os.Remove(filepath.Join(e.root, filepath.FromSlash(relPath))))
}

func TestFullIndexEmbedsAllChunks(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "a.py", "def f():\n    return 1\n")
	env.write(t, "b.py", "class C:\n    def m(self):\n        return 2\n")

	result, err := env.idx.RunFull(context.Background())
	require.NoError(t, err)

	// One chunk for f, one for C.m; the class is a scope, not a chunk.
	assert.Equal(t, 2, result.ChunksEmbedded)
	assert.Equal(t, 2, result.FilesChanged)
	assert.False(t, result.Degraded)

	count, err := env.store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	status, err := env.idx.Status()
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, status.Phase)
	assert.False(t, status.LastFullIndex.IsZero())
	assert.Equal(t, 2, status.FileCount)
	assert.Equal(t, 2, status.ChunkCount)
	assert.Empty(t, status.LastError)
}

func TestIncrementalNoChangesDoesNothing(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "a.py", "def f():\n    return 1\n")

	_, err := env.idx.RunFull(context.Background())
	require.NoError(t, err)

	embedsBefore := env.embedder.textCount()
	upsertsBefore := env.store.upserts

	result, err := env.idx.RunIncremental(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, result.FilesChanged)
	assert.Equal(t, 0, result.ChunksEmbedded)
	assert.Equal(t, embedsBefore, env.embedder.textCount())
	assert.Equal(t, upsertsBefore, env.store.upserts)
	assert.Equal(t, 0, env.store.deletions)

	// Empty run still refreshes the incremental timestamp.
	status, err := env.idx.Status()
	require.NoError(t, err)
	assert.False(t, status.LastIncrementalIndex.IsZero())
}

func TestIncrementalReembedsOnlyChangedChunk(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "a.py", "def f():\n    return 1\n\ndef g():\n    return 2\n")

	_, err := env.idx.RunFull(context.Background())
	require.NoError(t, err)

	// Edit only f. g's chunk text is untouched.
	env.write(t, "a.py", "def f():\n    return 100\n\ndef g():\n    return 2\n")

	embedsBefore := env.embedder.textCount()
	result, err := env.idx.RunIncremental(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.FilesChanged)
	assert.Equal(t, 1, result.ChunksEmbedded)
	assert.Equal(t, 1, result.ChunksReused)
	assert.Equal(t, embedsBefore+1, env.embedder.textCount())
}

func TestIncrementalFirstRunIndexesEverything(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "a.py", "def f():\n    return 1\n")

	// No snapshot on disk: incremental degenerates to a full pass.
	result, err := env.idx.RunIncremental(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesChanged)
	assert.Equal(t, 1, result.ChunksEmbedded)
}

func TestDeletedFileRemovedFromStore(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "a.py", "def f():\n    return 1\n")
	env.write(t, "b.py", "def g():\n    return 2\n")

	_, err := env.idx.RunFull(context.Background())
	require.NoError(t, err)

	env.remove(t, "b.py")

	result, err := env.idx.RunIncremental(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesDeleted)

	count, err := env.store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	status, err := env.idx.Status()
	require.NoError(t, err)
	assert.Equal(t, 1, status.FileCount)
	assert.Equal(t, 1, status.ChunkCount)
}

func TestRemovedDeclarationDeletesItsChunk(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "a.py", "def f():\n    return 1\n\ndef g():\n    return 2\n")

	_, err := env.idx.RunFull(context.Background())
	require.NoError(t, err)

	env.write(t, "a.py", "def f():\n    return 1\n")

	result, err := env.idx.RunIncremental(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.ChunksDeleted)
	assert.Equal(t, 0, result.ChunksEmbedded)
	assert.Equal(t, 1, result.ChunksReused)

	count, err := env.store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestFailedBatchDefersAndConverges(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "a.py", "def f():\n    return 1\n")

	env.embedder.failNext = 1
	result, err := env.idx.RunFull(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Degraded)
	assert.Equal(t, []string{"a.py"}, result.DeferredFiles)
	assert.Equal(t, 0, result.ChunksEmbedded)

	status, err := env.idx.Status()
	require.NoError(t, err)
	assert.Contains(t, status.LastError, "a.py")

	// Provider recovered: the next incremental run picks the file back up.
	next, err := env.idx.RunIncremental(context.Background())
	require.NoError(t, err)
	assert.False(t, next.Degraded)
	assert.Equal(t, 1, next.ChunksEmbedded)

	count, err := env.store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	status, err = env.idx.Status()
	require.NoError(t, err)
	assert.Empty(t, status.LastError)
}

func TestFailedBatchKeepsSucceededChunks(t *testing.T) {
	env := newTestEnv(t)
	// Two files, batch size 1, second batch fails.
	env.write(t, "a.py", "def f():\n    return 1\n")
	env.write(t, "b.py", "def g():\n    return 2\n")
	env.idx.cfg.BatchSize = 1

	env.embedder.failNext = 0
	_, err := env.idx.RunFull(context.Background())
	require.NoError(t, err)

	// Modify both; make exactly one of the two re-embed batches fail.
	env.write(t, "a.py", "def f():\n    return 10\n")
	env.write(t, "b.py", "def g():\n    return 20\n")
	env.embedder.failNext = 1

	result, err := env.idx.RunIncremental(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Degraded)
	assert.Equal(t, 1, result.ChunksEmbedded)
	require.Len(t, result.DeferredFiles, 1)

	// Next run re-embeds only the deferred file's chunk.
	embedsBefore := env.embedder.textCount()
	next, err := env.idx.RunIncremental(context.Background())
	require.NoError(t, err)
	assert.False(t, next.Degraded)
	assert.Equal(t, 1, next.ChunksEmbedded)
	assert.Equal(t, embedsBefore+1, env.embedder.textCount())
}

func TestDeferredNestedFileRetriedNextRun(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "pkg/a.py", "def f():\n    return 1\n")

	env.embedder.failNext = 1
	result, err := env.idx.RunFull(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Degraded)
	assert.Equal(t, []string{"pkg/a.py"}, result.DeferredFiles)

	status, err := env.idx.Status()
	require.NoError(t, err)
	assert.Contains(t, status.LastError, "pkg/a.py")
	assert.Contains(t, status.LastError, "provider unavailable")

	// The file's directory digests were committed by the degraded run. The
	// diff must still descend into pkg/ and pick the file back up.
	next, err := env.idx.RunIncremental(context.Background())
	require.NoError(t, err)
	assert.False(t, next.Degraded)
	assert.Equal(t, 1, next.ChunksEmbedded)

	count, err := env.store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	status, err = env.idx.Status()
	require.NoError(t, err)
	assert.Empty(t, status.LastError)
}

// faultyStore fails a set number of upserts, then recovers.
type faultyStore struct {
	vectorstore.Store
	mu          sync.Mutex
	failUpserts int
}

func (f *faultyStore) Upsert(ctx context.Context, entries []vectorstore.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpserts > 0 {
		f.failUpserts--
		return fmt.Errorf("disk full")
	}
	return f.Store.Upsert(ctx, entries)
}

func TestFatalRunErrorSurfacedInStatus(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "a.py", "def f():\n    return 1\n")
	env.idx.store = &faultyStore{Store: env.store, failUpserts: 1}

	_, err := env.idx.RunFull(context.Background())
	require.Error(t, err)
	assert.Equal(t, PhaseFailed, env.idx.Phase())

	// The run died before committing, so the snapshot carries no error.
	// Status must still report it.
	status, err := env.idx.Status()
	require.NoError(t, err)
	assert.Contains(t, status.LastError, "disk full")

	_, err = env.idx.RunFull(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, env.idx.Phase())

	status, err = env.idx.Status()
	require.NoError(t, err)
	assert.Empty(t, status.LastError)
}

func TestStartFullReservesRunLockSynchronously(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "a.py", "def f():\n    return 1\n")

	require.True(t, env.idx.lock.TryAcquire())
	assert.False(t, env.idx.StartFull(context.Background(), nil))
	env.idx.lock.Release()

	done := make(chan *Result, 1)
	require.True(t, env.idx.StartFull(context.Background(), func(r *Result, err error) {
		require.NoError(t, err)
		done <- r
	}))

	select {
	case r := <-done:
		assert.Equal(t, 1, r.ChunksEmbedded)
	case <-time.After(5 * time.Second):
		t.Fatal("background run did not finish")
	}
	assert.Equal(t, PhaseIdle, env.idx.Phase())
}

func TestRunLockRejectsConcurrentRun(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "a.py", "def f():\n    return 1\n")

	require.True(t, env.idx.lock.TryAcquire())
	defer env.idx.lock.Release()

	_, err := env.idx.RunFull(context.Background())
	assert.ErrorIs(t, err, ErrRunActive)
}

func TestFullIndexReembedsUnchangedFiles(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "a.py", "def f():\n    return 1\n")

	_, err := env.idx.RunFull(context.Background())
	require.NoError(t, err)

	result, err := env.idx.RunFull(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.ChunksEmbedded)
	assert.Equal(t, 0, result.ChunksReused)
}

func TestGenericFileIndexedAsModule(t *testing.T) {
	env := newTestEnv(t)
	rules := merkle.DefaultRules()
	rules.IncludeExtensions = append(rules.IncludeExtensions, ".txt")
	env.idx.cfg.Rules = rules

	env.write(t, "notes.txt", "some plain text notes\n")

	result, err := env.idx.RunFull(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.ChunksEmbedded)

	matches, err := env.store.Query(context.Background(), env.embedder.vector("x"), 10,
		&vectorstore.Filters{PathPrefix: "notes.txt"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "notes.txt", matches[0].Entry.Path)
	assert.Equal(t, "notes.txt:notes.txt", matches[0].Entry.ID)
}
