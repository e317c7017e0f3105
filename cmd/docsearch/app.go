package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/search/cache"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/service"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/tasks"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
)

// app owns every long-lived component of a docsearch process.
type app struct {
	cfg     *config.Config
	metrics *metrics.Metrics

	store   storage.Store
	index   *index.Index
	catalog catalog.Catalog
	cache   cache.Cache
	redis   *pkgredis.Client

	runner   *tasks.Runner
	producer *kafka.Producer
	consumer *kafka.Consumer

	svc     *service.Service
	checker *health.Checker
}

var startupRetry = resilience.RetryConfig{
	MaxAttempts:  5,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     5 * time.Second,
	Multiplier:   2,
	Retryable:    retryableAtStartup,
}

// retryableAtStartup separates a dependency that is still coming up from a
// misconfiguration that no amount of waiting fixes.
func retryableAtStartup(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, storage.ErrDirLocked), errors.Is(err, storage.ErrUnknownBackend):
		return false
	case errors.Is(err, catalog.ErrUnknownBackend):
		return false
	}
	return true
}

// newApp builds the component graph. On error everything opened so far is
// closed again.
func newApp(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (a *app, err error) {
	a = &app{cfg: cfg, metrics: m, checker: health.NewChecker()}
	defer func() {
		if err != nil {
			a.close(context.Background())
			a = nil
		}
	}()

	err = resilience.Retry(ctx, "store-open", startupRetry, func(ctx context.Context) error {
		var serr error
		a.store, serr = storage.New(ctx, cfg.Storage, storage.WithBreakerStateHook(func(name string, from, to resilience.State) {
			m.SetCircuitState(name, int(to))
		}))
		return serr
	})
	if err != nil {
		return a, fmt.Errorf("opening document store: %w", err)
	}
	slog.Info("document store ready", "backend", cfg.Storage.Backend)

	a.index, err = index.Open(cfg.Index.Dir)
	if err != nil {
		return a, fmt.Errorf("opening search index: %w", err)
	}
	if n, err := a.index.DocCount(); err == nil {
		m.SetIndexedDocuments(n)
		slog.Info("search index ready", "dir", cfg.Index.Dir, "documents", n)
	}

	err = resilience.Retry(ctx, "catalog-connect", startupRetry, func(ctx context.Context) error {
		var cerr error
		a.catalog, cerr = catalog.New(ctx, cfg)
		return cerr
	})
	if err != nil {
		return a, fmt.Errorf("opening catalog: %w", err)
	}
	slog.Info("catalog ready", "backend", cfg.Catalog.Backend)

	a.cache = a.openCache(ctx)

	indexer := service.NewIndexer(a.index, a.catalog, a.cache, m)
	var scheduler tasks.Scheduler
	switch cfg.Tasks.Backend {
	case config.TasksKafka:
		topic := cfg.Kafka.Topics.IndexTasks
		a.producer = kafka.NewProducer(cfg.Kafka, topic)
		a.consumer = kafka.NewConsumer(cfg.Kafka, topic, tasks.HandleMessage(indexer.Apply))
		scheduler = tasks.NewKafkaScheduler(a.producer, cfg.Tasks.PublishTimeout)
		slog.Info("index tasks routed through kafka", "topic", topic, "brokers", cfg.Kafka.Brokers)
	default:
		a.runner = tasks.NewRunner(cfg.Tasks, indexer.Apply, tasks.WithPendingHook(m.SetPending))
		scheduler = a.runner
		slog.Info("index tasks run in process", "workers", cfg.Tasks.Workers, "queue_size", cfg.Tasks.QueueSize)
	}

	a.svc = service.New(service.Deps{
		Store:     a.store,
		Index:     a.index,
		Scheduler: scheduler,
		Catalog:   a.catalog,
		Cache:     a.cache,
		Metrics:   m,
	}, service.Options{
		AllowedExtensions: cfg.Storage.AllowedExtensions,
		DefaultLimit:      cfg.Index.DefaultLimit,
		MaxResults:        cfg.Index.MaxResults,
	})

	a.checker.Register("store", health.PingCheck(a.store.Ping))
	a.checker.Register("index", health.PingCheck(a.index.Ping))
	a.checker.Register("catalog", health.PingCheck(a.catalog.Ping))
	a.checker.Register("cache", func(ctx context.Context) health.ComponentHealth {
		if a.redis == nil {
			return health.ComponentHealth{Status: health.StatusUp, Message: a.cache.Stats().Backend}
		}
		if err := a.redis.Ping(ctx); err != nil {
			// searches still work uncached
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: "redis"}
	})
	if a.runner != nil {
		a.checker.Register("tasks", func(ctx context.Context) health.ComponentHealth {
			return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d pending", a.runner.Pending())}
		})
	}
	return a, nil
}

// openCache prefers Redis when enabled and falls back to the in-process LRU
// when Redis cannot be reached.
func (a *app) openCache(ctx context.Context) cache.Cache {
	if a.cfg.Redis.Enabled {
		var client *pkgredis.Client
		err := resilience.Retry(ctx, "redis-connect", startupRetry, func(ctx context.Context) error {
			var rerr error
			client, rerr = pkgredis.NewClient(ctx, a.cfg.Redis)
			return rerr
		})
		if err == nil {
			a.redis = client
			slog.Info("search cache enabled", "backend", "redis", "addr", a.cfg.Redis.Addr, "ttl", a.cfg.Redis.CacheTTL)
			return cache.NewRedis(client, a.cfg.Redis.CacheTTL)
		}
		slog.Warn("redis unavailable, using in-process search cache", "error", err)
	}
	if a.cfg.Cache.LocalSize <= 0 {
		slog.Info("search cache disabled")
		return &cache.Nop{}
	}
	c, err := cache.NewLocal(a.cfg.Cache.LocalSize)
	if err != nil {
		slog.Warn("in-process cache unavailable, search caching disabled", "error", err)
		return &cache.Nop{}
	}
	slog.Info("search cache enabled", "backend", "local", "size", a.cfg.Cache.LocalSize)
	return c
}

// close releases components in dependency order: pending index tasks are
// drained before the index is flushed and the stores are closed.
func (a *app) close(ctx context.Context) {
	var errs []error
	if a.runner != nil {
		if err := a.runner.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("task runner: %w", err))
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("kafka consumer: %w", err))
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("kafka producer: %w", err))
		}
	}
	if a.index != nil {
		if err := a.index.Close(); err != nil {
			errs = append(errs, fmt.Errorf("index: %w", err))
		}
	}
	if a.catalog != nil {
		if err := a.catalog.Close(); err != nil {
			errs = append(errs, fmt.Errorf("catalog: %w", err))
		}
	}
	if a.cache != nil {
		// closes the redis client too
		if err := a.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("cache: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		slog.Error("shutdown finished with errors", "error", err)
		return
	}
	slog.Info("all components closed")
}
