package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/document"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/search/cache"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/tasks"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

type fixture struct {
	svc     *Service
	store   *storage.LocalStore
	index   *index.Index
	runner  *tasks.Runner
	catalog *catalog.Memory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ix, err := index.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ix.Close() })

	c, err := cache.NewLocal(64)
	require.NoError(t, err)

	cat := catalog.NewMemory()
	indexer := NewIndexer(ix, cat, c, nil)
	runner := tasks.NewRunner(config.TasksConfig{Workers: 4}, indexer.Apply)
	t.Cleanup(func() { _ = runner.Close(context.Background()) })

	svc := New(Deps{
		Store:     store,
		Index:     ix,
		Scheduler: runner,
		Catalog:   cat,
		Cache:     c,
	}, Options{AllowedExtensions: []string{"txt", "text"}, DefaultLimit: 10, MaxResults: 50})

	return &fixture{svc: svc, store: store, index: ix, runner: runner, catalog: cat}
}

func (f *fixture) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.runner.Wait(ctx))
}

func (f *fixture) searchKeys(t *testing.T, q string) []string {
	t.Helper()
	resp, err := f.svc.Search(context.Background(), q, 0)
	require.NoError(t, err)
	keys := make([]string, 0, len(resp.Results))
	for _, h := range resp.Results {
		keys = append(keys, h.Key)
	}
	return keys
}

func TestUpload_ThenSearch(t *testing.T) {
	// Given a stored and indexed text document
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.Upload(ctx, "notes.txt", []byte("alpha beta\n  gamma  \n"))
	require.NoError(t, err)
	assert.Equal(t, UploadOK, res.Status)
	assert.Equal(t, "notes.txt", res.Key)
	assert.False(t, res.Replaced)
	f.settle(t)

	// Then its words are searchable and others are not
	assert.Equal(t, []string{"notes.txt"}, f.searchKeys(t, "beta"))
	assert.Equal(t, []string{"notes.txt"}, f.searchKeys(t, "GAMMA"))
	assert.Empty(t, f.searchKeys(t, "delta"))

	// And the stored bytes are returned unchanged
	got, err := f.svc.Retrieve(ctx, "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "alpha beta\n  gamma  \n", string(got))
}

func TestUpload_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		filename string
		reason   document.Reason
	}{
		{"a.pdf", document.ReasonUnsupportedFormat},
		{"README", document.ReasonUnsupportedFormat},
		{"notes.TXT", document.ReasonUnsupportedFormat},
		{"", document.ReasonEmptyFilename},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			res, err := f.svc.Upload(ctx, tt.filename, []byte("data"))
			require.NoError(t, err)
			assert.Equal(t, UploadRejected, res.Status)
			assert.Equal(t, tt.reason, res.Reason)
		})
	}

	f.settle(t)
	keys, err := f.store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, err = f.svc.Retrieve(ctx, "a.pdf")
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
}

func TestUpload_ReplaceReindexes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Upload(ctx, "x.txt", []byte("one"))
	require.NoError(t, err)
	res, err := f.svc.Upload(ctx, "x.txt", []byte("two"))
	require.NoError(t, err)
	assert.True(t, res.Replaced)
	f.settle(t)

	assert.Empty(t, f.searchKeys(t, "one"))
	assert.Equal(t, []string{"x.txt"}, f.searchKeys(t, "two"))

	got, err := f.svc.Retrieve(ctx, "x.txt")
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Upload(ctx, "gone.txt", []byte("ephemeral words"))
	require.NoError(t, err)
	f.settle(t)
	require.Equal(t, []string{"gone.txt"}, f.searchKeys(t, "ephemeral"))

	// deleting twice is not an error
	require.NoError(t, f.svc.Delete(ctx, "gone.txt"))
	require.NoError(t, f.svc.Delete(ctx, "gone.txt"))
	f.settle(t)

	_, err = f.svc.Retrieve(ctx, "gone.txt")
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
	assert.Empty(t, f.searchKeys(t, "ephemeral"))

	_, err = f.svc.Status(ctx, "gone.txt")
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)

	// keys that could never be stored are a no-op too
	assert.NoError(t, f.svc.Delete(ctx, "../etc/passwd"))
}

func TestUploadAndDeleteInterleaved(t *testing.T) {
	// Given an upload immediately followed by a delete of the same key
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		_, err := f.svc.Upload(ctx, "flap.txt", []byte("flapping content"))
		require.NoError(t, err)
		require.NoError(t, f.svc.Delete(ctx, "flap.txt"))
	}
	f.settle(t)

	// Then the last operation wins in the index as well as the store
	assert.Empty(t, f.searchKeys(t, "flapping"))
	keys, err := f.index.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestSearch_Limits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Search(ctx, "anything", -1)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	resp, err := f.svc.Search(ctx, "   ", 0)
	require.NoError(t, err)
	assert.Zero(t, resp.TotalHits)
	assert.NotNil(t, resp.Results)

	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		_, err := f.svc.Upload(ctx, name, []byte("shared term"))
		require.NoError(t, err)
	}
	f.settle(t)

	resp, err = f.svc.Search(ctx, "shared", 2)
	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)
	assert.Equal(t, uint64(3), resp.TotalHits)
}

func TestSearch_CacheInvalidatedByIndexChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Upload(ctx, "first.txt", []byte("cached words"))
	require.NoError(t, err)
	f.settle(t)

	resp, err := f.svc.Search(ctx, "cached", 0)
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)

	resp, err = f.svc.Search(ctx, "cached", 0)
	require.NoError(t, err)
	assert.True(t, resp.CacheHit)
	assert.Len(t, resp.Results, 1)

	_, err = f.svc.Upload(ctx, "second.txt", []byte("more cached words"))
	require.NoError(t, err)
	f.settle(t)

	resp, err = f.svc.Search(ctx, "cached", 0)
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)
	assert.Len(t, resp.Results, 2)

	stats := f.svc.CacheStats()
	assert.Equal(t, "local", stats.Backend)
	assert.Equal(t, int64(1), stats.Hits)
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Upload(ctx, "tracked.txt", []byte("tracked"))
	require.NoError(t, err)
	f.settle(t)

	e, err := f.svc.Status(ctx, "tracked.txt")
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusIndexed, e.Status)
	assert.Equal(t, int64(len("tracked")), e.Size)
	assert.NotNil(t, e.IndexedAt)
}

type failingScheduler struct{}

func (failingScheduler) Schedule(ctx context.Context, t tasks.Task) error {
	return tasks.ErrQueueFull
}

func TestUpload_ScheduleFailureStillStores(t *testing.T) {
	// Given a scheduler that refuses every task
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()
	ix, err := index.Open("")
	require.NoError(t, err)
	defer ix.Close()
	cat := catalog.NewMemory()
	svc := New(Deps{Store: store, Index: ix, Scheduler: failingScheduler{}, Catalog: cat},
		Options{AllowedExtensions: []string{"txt"}})

	// When a document is uploaded
	ctx := context.Background()
	res, err := svc.Upload(ctx, "kept.txt", []byte("kept"))

	// Then the upload succeeds and the catalog records the failure
	require.NoError(t, err)
	assert.Equal(t, UploadOK, res.Status)
	got, err := svc.Retrieve(ctx, "kept.txt")
	require.NoError(t, err)
	assert.Equal(t, "kept", string(got))

	e, err := svc.Status(ctx, "kept.txt")
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusFailed, e.Status)
	assert.Contains(t, e.Error, "queue is full")

	// And delete still removes the bytes
	require.NoError(t, svc.Delete(ctx, "kept.txt"))
	_, err = svc.Retrieve(ctx, "kept.txt")
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
}

func TestReconcile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Given a stored file the index never saw and an index entry with no file
	require.NoError(t, f.store.Put(ctx, "orphan.txt", []byte("orphaned text")))
	require.NoError(t, f.index.AddOrReplace(ctx, "ghost.txt", "ghostly text"))

	// When reconciling
	report, err := f.svc.Reconcile(ctx)
	require.NoError(t, err)
	f.settle(t)

	// Then both sides agree again
	assert.Equal(t, []string{"orphan.txt"}, report.Reindexed)
	assert.Equal(t, []string{"ghost.txt"}, report.Removed)
	assert.Empty(t, report.Failed)
	assert.Equal(t, []string{"orphan.txt"}, f.searchKeys(t, "text"))

	e, err := f.svc.Status(ctx, "orphan.txt")
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusIndexed, e.Status)

	// And a second pass has nothing to do
	report, err = f.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Reindexed)
	assert.Empty(t, report.Removed)
}

type flakyIndex struct {
	SearchIndex
	err error
}

func (f flakyIndex) AddOrReplace(ctx context.Context, key, text string) error { return f.err }

func TestIndexer_FailureMarksCatalog(t *testing.T) {
	ix, err := index.Open("")
	require.NoError(t, err)
	defer ix.Close()
	cat := catalog.NewMemory()
	ctx := context.Background()
	require.NoError(t, cat.MarkStored(ctx, "bad.txt", 3))

	indexer := NewIndexer(flakyIndex{SearchIndex: ix, err: errors.New("disk full")}, cat, nil, nil)
	err = indexer.Apply(ctx, tasks.IndexTask("bad.txt", []byte("bad")))
	require.Error(t, err)

	e, err := cat.Get(ctx, "bad.txt")
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusFailed, e.Status)
	assert.Equal(t, "disk full", e.Error)

	assert.Error(t, indexer.Apply(ctx, tasks.Task{Op: "merge", Key: "bad.txt"}))
}

func TestKeyLocks_SameKeySameStripe(t *testing.T) {
	var l keyLocks
	unlock := l.Lock("a.txt")
	acquired := make(chan struct{})
	go func() {
		u := l.Lock("a.txt")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first was held")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired")
	}
}
