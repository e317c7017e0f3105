package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/document"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/search/cache"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/tasks"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/tracing"
)

// Indexer applies index tasks. Its Apply method is the tasks.Handler used by
// both the in-process runner and the Kafka consumer.
type Indexer struct {
	index   SearchIndex
	catalog catalog.Catalog
	cache   cache.Cache
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewIndexer(ix SearchIndex, cat catalog.Catalog, c cache.Cache, m *metrics.Metrics) *Indexer {
	if c == nil {
		c = &cache.Nop{}
	}
	if cat == nil {
		cat = catalog.NewMemory()
	}
	return &Indexer{
		index:   ix,
		catalog: cat,
		cache:   c,
		metrics: m,
		logger:  slog.Default().With("component", "indexer"),
	}
}

func (i *Indexer) Apply(ctx context.Context, t tasks.Task) error {
	ctx, span := tracing.Start(ctx, "index-task")
	defer span.End()
	span.SetAttr("op", t.Op)
	span.SetAttr("key", t.Key)

	start := time.Now()
	op := string(t.Op)

	var err error
	switch t.Op {
	case tasks.OpIndex:
		err = i.index.AddOrReplace(ctx, t.Key, document.IndexText(t.Content))
	case tasks.OpDelete:
		err = i.index.Delete(ctx, t.Key)
	default:
		err = fmt.Errorf("unknown task op %q", t.Op)
	}
	i.metrics.ObserveTaskDuration(op, time.Since(start))

	if err != nil {
		i.metrics.ObserveTask(op, "failed")
		if t.Op == tasks.OpIndex {
			if cerr := i.catalog.MarkFailed(ctx, t.Key, err); cerr != nil {
				i.logger.Warn("catalog update failed", "key", t.Key, "error", cerr)
			}
		}
		return err
	}

	if t.Op == tasks.OpIndex {
		if cerr := i.catalog.MarkIndexed(ctx, t.Key); cerr != nil {
			i.logger.Warn("catalog update failed", "key", t.Key, "error", cerr)
		}
	}
	if cerr := i.cache.Invalidate(ctx); cerr != nil {
		i.logger.Warn("search cache invalidation failed", "error", cerr)
	}
	i.metrics.ObserveTask(op, "applied")
	if n, cerr := i.index.DocCount(); cerr == nil {
		i.metrics.SetIndexedDocuments(n)
	}

	i.logger.Debug("index task applied",
		"op", t.Op,
		"key", t.Key,
		"took", time.Since(start),
	)
	return nil
}
