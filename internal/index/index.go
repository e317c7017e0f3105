// Package index maintains the full-text search index over document content.
// It wraps a bleve index: one bleve document per document key, replaced
// wholesale on every re-index and removed on delete.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("search index is closed")

// Hit is one matching document.
type Hit struct {
	Key   string  `json:"key"`
	Score float64 `json:"score"`
}

// Result is the ranked answer to a query, best match first.
type Result struct {
	Query     string        `json:"query"`
	TotalHits uint64        `json:"total_hits"`
	Hits      []Hit         `json:"results"`
	Took      time.Duration `json:"-"`
}

// Keys returns the hit keys in rank order.
func (r *Result) Keys() []string {
	keys := make([]string, len(r.Hits))
	for i, h := range r.Hits {
		keys[i] = h.Key
	}
	return keys
}

// Index is safe for concurrent use. Each mutation is committed as its own
// bleve batch, so concurrent writers on the same key resolve to whichever
// batch commits last.
type Index struct {
	mu       sync.RWMutex
	bleve    bleve.Index
	analyzer analysis.Analyzer
	dir      string
	closed   bool
	logger   *slog.Logger
}

// Open opens the index stored in dir, creating it if it does not exist. An
// index whose metadata is missing or corrupt is cleared and recreated empty;
// a reconcile pass repopulates it from the document store. An empty dir
// gives an in-memory index.
func Open(dir string) (*Index, error) {
	logger := slog.Default().With("component", "search-index")
	im, err := newMapping()
	if err != nil {
		return nil, err
	}

	var idx bleve.Index
	if dir == "" {
		idx, err = bleve.NewMemOnly(im)
	} else {
		idx, err = bleve.Open(dir)
		switch {
		case errors.Is(err, bleve.ErrorIndexPathDoesNotExist):
			idx, err = bleve.New(dir, im)
		case errors.Is(err, bleve.ErrorIndexMetaMissing), errors.Is(err, bleve.ErrorIndexMetaCorrupt):
			logger.Warn("search index unreadable, recreating", "dir", dir, "error", err)
			if rmErr := os.RemoveAll(dir); rmErr != nil {
				return nil, fmt.Errorf("clearing corrupt index %s: %w (original error: %v)", dir, rmErr, err)
			}
			idx, err = bleve.New(dir, im)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("opening search index %q: %w", dir, err)
	}

	analyzer := idx.Mapping().AnalyzerNamed(AnalyzerName)
	if analyzer == nil {
		idx.Close()
		return nil, fmt.Errorf("search index %q has no %s analyzer", dir, AnalyzerName)
	}
	return &Index{
		bleve:    idx,
		analyzer: analyzer,
		dir:      dir,
		logger:   logger,
	}, nil
}

// AddOrReplace indexes text under key, replacing any previous entry.
func (ix *Index) AddOrReplace(ctx context.Context, key, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.closed {
		return ErrClosed
	}

	batch := ix.bleve.NewBatch()
	if err := batch.Index(key, map[string]interface{}{
		fieldKey:     key,
		fieldContent: text,
	}); err != nil {
		return fmt.Errorf("preparing index entry %s: %w", key, err)
	}
	if err := ix.bleve.Batch(batch); err != nil {
		return fmt.Errorf("committing index entry %s: %w", key, err)
	}
	ix.logger.Debug("document indexed", "key", key, "bytes", len(text))
	return nil
}

// Delete removes the entry for key. Deleting an absent key succeeds.
func (ix *Index) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.closed {
		return ErrClosed
	}

	batch := ix.bleve.NewBatch()
	batch.Delete(key)
	if err := ix.bleve.Batch(batch); err != nil {
		return fmt.Errorf("deleting index entry %s: %w", key, err)
	}
	ix.logger.Debug("document removed from index", "key", key)
	return nil
}

// Search runs a free-text query and returns at most limit hits ordered by
// descending score, ties broken by key. Queries with no usable terms yield
// an empty result rather than an error.
func (ix *Index) Search(ctx context.Context, text string, limit int) (*Result, error) {
	start := time.Now()
	result := &Result{Query: text, Hits: []Hit{}}

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.closed {
		return nil, ErrClosed
	}

	q := ix.buildQuery(ParseQuery(text))
	if q == nil || limit <= 0 {
		result.Took = time.Since(start)
		return result, nil
	}

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.SortBy([]string{"-_score", "_id"})
	res, err := ix.bleve.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", text, err)
	}

	result.TotalHits = res.Total
	for _, hit := range res.Hits {
		result.Hits = append(result.Hits, Hit{Key: hit.ID, Score: hit.Score})
	}
	result.Took = time.Since(start)
	return result, nil
}

// Keys lists every indexed key in lexical order.
func (ix *Index) Keys(ctx context.Context) ([]string, error) {
	const pageSize = 1000

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.closed {
		return nil, ErrClosed
	}

	var keys []string
	for from := 0; ; from += pageSize {
		req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), pageSize, from, false)
		req.SortBy([]string{"_id"})
		res, err := ix.bleve.SearchInContext(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("listing index keys: %w", err)
		}
		for _, hit := range res.Hits {
			keys = append(keys, hit.ID)
		}
		if len(res.Hits) < pageSize {
			return keys, nil
		}
	}
}

// DocCount reports how many documents are indexed.
func (ix *Index) DocCount() (uint64, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.closed {
		return 0, ErrClosed
	}
	return ix.bleve.DocCount()
}

// Ping reports whether the index can still answer queries.
func (ix *Index) Ping(ctx context.Context) error {
	_, err := ix.DocCount()
	return err
}

// Close flushes and closes the index. It waits for in-flight operations and
// is safe to call more than once.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return nil
	}
	ix.closed = true
	if err := ix.bleve.Close(); err != nil {
		return fmt.Errorf("closing search index: %w", err)
	}
	ix.logger.Info("search index closed", "dir", ix.dir)
	return nil
}
