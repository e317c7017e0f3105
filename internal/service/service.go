// Package service implements the document lifecycle: upload, retrieve,
// delete and search. Uploads and deletes change the store synchronously and
// hand index changes to a task scheduler; Indexer applies those tasks.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/document"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/search/cache"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/tasks"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/tracing"
)

// SearchIndex is the part of *index.Index the service depends on.
type SearchIndex interface {
	AddOrReplace(ctx context.Context, key, text string) error
	Delete(ctx context.Context, key string) error
	Search(ctx context.Context, text string, limit int) (*index.Result, error)
	Keys(ctx context.Context) ([]string, error)
	DocCount() (uint64, error)
}

type UploadStatus string

const (
	UploadOK       UploadStatus = "ok"
	UploadRejected UploadStatus = "rejected"
)

// UploadResult is the outcome of an upload that did not fail on I/O.
type UploadResult struct {
	Status   UploadStatus    `json:"status"`
	Key      string          `json:"key,omitempty"`
	Reason   document.Reason `json:"reason,omitempty"`
	Replaced bool            `json:"replaced"`
}

type SearchResponse struct {
	Query     string      `json:"query"`
	TotalHits uint64      `json:"total_hits"`
	CacheHit  bool        `json:"cache_hit"`
	Results   []index.Hit `json:"results"`
}

type ReconcileReport struct {
	Stored    int      `json:"stored"`
	Indexed   int      `json:"indexed"`
	Reindexed []string `json:"reindexed"`
	Removed   []string `json:"removed"`
	Failed    []string `json:"failed"`
}

type Deps struct {
	Store     storage.Store
	Index     SearchIndex
	Scheduler tasks.Scheduler
	Catalog   catalog.Catalog
	Cache     cache.Cache
	Metrics   *metrics.Metrics
}

type Options struct {
	AllowedExtensions []string
	DefaultLimit      int
	MaxResults        int
}

type Service struct {
	store        storage.Store
	index        SearchIndex
	scheduler    tasks.Scheduler
	catalog      catalog.Catalog
	cache        cache.Cache
	metrics      *metrics.Metrics
	locks        *keyLocks
	allowed      document.Extensions
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

func New(deps Deps, opts Options) *Service {
	if deps.Cache == nil {
		deps.Cache = &cache.Nop{}
	}
	if deps.Catalog == nil {
		deps.Catalog = catalog.NewMemory()
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 10
	}
	if opts.MaxResults < opts.DefaultLimit {
		opts.MaxResults = opts.DefaultLimit
	}
	return &Service{
		store:        deps.Store,
		index:        deps.Index,
		scheduler:    deps.Scheduler,
		catalog:      deps.Catalog,
		cache:        deps.Cache,
		metrics:      deps.Metrics,
		locks:        &keyLocks{},
		allowed:      document.NewExtensions(opts.AllowedExtensions...),
		defaultLimit: opts.DefaultLimit,
		maxResults:   opts.MaxResults,
		logger:       slog.Default().With("component", "document-service"),
	}
}

// Upload validates filename, stores content under the derived key and
// schedules indexing. It returns once the bytes are stored; a rejected
// upload is reported in the result, not as an error.
func (s *Service) Upload(ctx context.Context, filename string, content []byte) (*UploadResult, error) {
	log := logger.FromContext(ctx)

	key, reason := document.KeyFor(filename, s.allowed)
	if reason != "" {
		s.metrics.ObserveUpload("rejected")
		log.Info("upload rejected", "filename", filename, "reason", reason)
		return &UploadResult{Status: UploadRejected, Reason: reason}, nil
	}

	ctx, span := tracing.Start(ctx, "upload")
	defer span.End()
	span.SetAttr("key", key)

	unlock := s.locks.Lock(key)
	defer unlock()

	replaced, err := s.store.Exists(ctx, key)
	if err != nil {
		log.Warn("could not check for existing document", "key", key, "error", err)
	}
	_, put := tracing.Start(ctx, "store.put")
	err = s.store.Put(ctx, key, content)
	put.End()
	if err != nil {
		s.metrics.ObserveUpload("error")
		return nil, fmt.Errorf("%w: storing %s: %w", apperrors.ErrStorage, key, err)
	}
	if err := s.catalog.MarkStored(ctx, key, int64(len(content))); err != nil {
		log.Warn("catalog update failed", "key", key, "error", err)
	}
	s.schedule(ctx, tasks.IndexTask(key, content))

	s.metrics.ObserveUpload("ok")
	log.Info("document stored", "key", key, "size", len(content), "replaced", replaced)
	return &UploadResult{Status: UploadOK, Key: key, Replaced: replaced}, nil
}

// Retrieve returns the stored bytes for key.
func (s *Service) Retrieve(ctx context.Context, key string) ([]byte, error) {
	content, err := s.store.Get(ctx, key)
	switch {
	case err == nil:
		return content, nil
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrInvalidKey):
		return nil, fmt.Errorf("%w: %s", apperrors.ErrDocumentNotFound, key)
	default:
		return nil, fmt.Errorf("%w: reading %s: %w", apperrors.ErrStorage, key, err)
	}
}

// Delete schedules removal of key's index entry and removes its bytes.
// Deleting an absent key succeeds.
func (s *Service) Delete(ctx context.Context, key string) error {
	log := logger.FromContext(ctx)
	if err := storage.ValidateKey(key); err != nil {
		s.metrics.ObserveDelete("absent")
		log.Info("delete of invalid key ignored", "key", key)
		return nil
	}

	unlock := s.locks.Lock(key)
	defer unlock()

	s.schedule(ctx, tasks.DeleteTask(key))

	err := s.store.Remove(ctx, key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.metrics.ObserveDelete("absent")
		log.Info("delete of absent document", "key", key)
	case err != nil:
		s.metrics.ObserveDelete("error")
		return fmt.Errorf("%w: removing %s: %w", apperrors.ErrStorage, key, err)
	default:
		s.metrics.ObserveDelete("ok")
		log.Info("document removed", "key", key)
	}
	if err := s.catalog.Remove(ctx, key); err != nil {
		log.Warn("catalog removal failed", "key", key, "error", err)
	}
	return nil
}

// schedule hands t to the scheduler. Failure to schedule never fails the
// caller's request: the document change stands and the index stays stale
// until the next reconcile.
func (s *Service) schedule(ctx context.Context, t tasks.Task) {
	_, span := tracing.Start(ctx, "schedule")
	err := s.scheduler.Schedule(context.WithoutCancel(ctx), t)
	span.End()
	if err == nil {
		s.metrics.ObserveTask(string(t.Op), "scheduled")
		return
	}
	s.metrics.ObserveTask(string(t.Op), "schedule_failed")
	logger.FromContext(ctx).Error("index task could not be scheduled",
		"op", t.Op,
		"key", t.Key,
		"error", err,
	)
	if t.Op == tasks.OpIndex {
		cause := fmt.Errorf("%w: %w", apperrors.ErrTaskScheduling, err)
		if err := s.catalog.MarkFailed(ctx, t.Key, cause); err != nil {
			logger.FromContext(ctx).Warn("catalog update failed", "key", t.Key, "error", err)
		}
	}
}

// Search answers a free-text query. limit 0 means the default; larger
// limits are capped.
func (s *Service) Search(ctx context.Context, query string, limit int) (*SearchResponse, error) {
	if limit < 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, 400, "limit must not be negative, got %d", limit)
	}
	if limit == 0 {
		limit = s.defaultLimit
	}
	limit = min(limit, s.maxResults)

	resp := &SearchResponse{Query: query, Results: []index.Hit{}}
	if strings.TrimSpace(query) == "" {
		return resp, nil
	}

	ctx, span := tracing.Start(ctx, "search")
	defer span.End()

	start := time.Now()
	res, hit, err := s.cache.GetOrCompute(ctx, query, limit, func(ctx context.Context) (*index.Result, error) {
		_, q := tracing.Start(ctx, "index.search")
		defer q.End()
		return s.index.Search(ctx, query, limit)
	})
	span.SetAttr("cache_hit", hit)
	s.metrics.ObserveCache(hit)
	if err != nil {
		s.metrics.ObserveSearch(false, 0, time.Since(start), err)
		return nil, fmt.Errorf("%w: %w", apperrors.ErrIndex, err)
	}
	s.metrics.ObserveSearch(hit, len(res.Hits), time.Since(start), nil)

	resp.TotalHits = res.TotalHits
	resp.CacheHit = hit
	if res.Hits != nil {
		resp.Results = res.Hits
	}
	logger.FromContext(ctx).Debug("search served",
		"query", query,
		"hits", len(resp.Results),
		"cache_hit", hit,
		"took", time.Since(start),
	)
	return resp, nil
}

// Status reports the catalog entry for key.
func (s *Service) Status(ctx context.Context, key string) (*catalog.Entry, error) {
	e, err := s.catalog.Get(ctx, key)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrDocumentNotFound, key)
	}
	return e, err
}

// CacheStats reports result cache counters.
func (s *Service) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// Reconcile compares the store with the index and schedules tasks to close
// the gap: stored documents missing from the index are re-indexed and index
// entries without a stored document are deleted.
func (s *Service) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	stored, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: listing documents: %w", apperrors.ErrStorage, err)
	}
	indexed, err := s.index.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: listing index keys: %w", apperrors.ErrIndex, err)
	}

	report := &ReconcileReport{
		Stored:    len(stored),
		Indexed:   len(indexed),
		Reindexed: []string{},
		Removed:   []string{},
		Failed:    []string{},
	}
	inStore := make(map[string]struct{}, len(stored))
	for _, k := range stored {
		inStore[k] = struct{}{}
	}
	inIndex := make(map[string]struct{}, len(indexed))
	for _, k := range indexed {
		inIndex[k] = struct{}{}
	}

	for _, key := range stored {
		if _, ok := inIndex[key]; ok {
			continue
		}
		if err := s.reindex(ctx, key); err != nil {
			s.logger.Warn("reconcile could not re-index document", "key", key, "error", err)
			report.Failed = append(report.Failed, key)
			continue
		}
		report.Reindexed = append(report.Reindexed, key)
	}
	for _, key := range indexed {
		if _, ok := inStore[key]; ok {
			continue
		}
		if err := s.unindex(ctx, key); err != nil {
			s.logger.Warn("reconcile could not remove index entry", "key", key, "error", err)
			report.Failed = append(report.Failed, key)
			continue
		}
		report.Removed = append(report.Removed, key)
	}

	s.logger.Info("reconcile finished",
		"stored", report.Stored,
		"indexed", report.Indexed,
		"reindexed", len(report.Reindexed),
		"removed", len(report.Removed),
		"failed", len(report.Failed),
	)
	return report, nil
}

func (s *Service) reindex(ctx context.Context, key string) error {
	unlock := s.locks.Lock(key)
	defer unlock()

	content, err := s.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := s.catalog.MarkStored(ctx, key, int64(len(content))); err != nil {
		s.logger.Warn("catalog update failed", "key", key, "error", err)
	}
	return s.scheduler.Schedule(ctx, tasks.IndexTask(key, content))
}

func (s *Service) unindex(ctx context.Context, key string) error {
	unlock := s.locks.Lock(key)
	defer unlock()

	exists, err := s.store.Exists(ctx, key)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return s.scheduler.Schedule(ctx, tasks.DeleteTask(key))
}
