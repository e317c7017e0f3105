package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
)

// Option configures an ObjectStore.
type Option func(*resilience.CircuitBreakerConfig)

// WithBreakerStateHook reports circuit breaker transitions, e.g. to a gauge.
func WithBreakerStateHook(fn func(name string, from, to resilience.State)) Option {
	return func(cfg *resilience.CircuitBreakerConfig) {
		cfg.OnStateChange = fn
	}
}

// ObjectStore keeps documents as objects under a prefix in an S3-compatible
// bucket. Every request passes through a circuit breaker so an unreachable
// endpoint fails fast instead of tying up request goroutines.
type ObjectStore struct {
	client  *minio.Client
	bucket  string
	prefix  string
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

// NewObjectStore connects to the endpoint and creates the bucket if it does
// not exist yet.
func NewObjectStore(ctx context.Context, cfg config.MinioConfig, opts ...Option) (*ObjectStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("checking bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("creating bucket %s: %w", cfg.Bucket, err)
		}
	}
	return newObjectStore(client, cfg.Bucket, cfg.Prefix, opts...), nil
}

func newObjectStore(client *minio.Client, bucket, prefix string, opts ...Option) *ObjectStore {
	cbCfg := resilience.CircuitBreakerConfig{
		IsFailure: func(err error) bool {
			return !errors.Is(err, ErrNotFound) && !errors.Is(err, context.Canceled)
		},
	}
	for _, opt := range opts {
		opt(&cbCfg)
	}
	return &ObjectStore{
		client:  client,
		bucket:  bucket,
		prefix:  prefix,
		breaker: resilience.NewCircuitBreaker("object-store", cbCfg),
		logger:  slog.Default().With("component", "object-store", "bucket", bucket),
	}
}

func (s *ObjectStore) objectName(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return path.Join(s.prefix, key), nil
}

// Put uploads content as a single object; S3 PUTs replace the object
// atomically.
func (s *ObjectStore) Put(ctx context.Context, key string, content []byte) error {
	name, err := s.objectName(key)
	if err != nil {
		return err
	}
	return s.breaker.Execute(func() error {
		_, err := s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(content), int64(len(content)),
			minio.PutObjectOptions{ContentType: "text/plain; charset=utf-8"})
		if err != nil {
			return fmt.Errorf("putting %s: %w", key, err)
		}
		return nil
	})
}

func (s *ObjectStore) Get(ctx context.Context, key string) ([]byte, error) {
	name, err := s.objectName(key)
	if err != nil {
		return nil, err
	}
	var data []byte
	err = s.breaker.Execute(func() error {
		obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
		if err != nil {
			return s.mapError(key, err)
		}
		defer obj.Close()
		data, err = io.ReadAll(obj)
		if err != nil {
			return s.mapError(key, err)
		}
		return nil
	})
	return data, err
}

// Remove deletes the object. S3 deletes are idempotent, so the object is
// stat'ed first to report ErrNotFound like the local backend does.
func (s *ObjectStore) Remove(ctx context.Context, key string) error {
	name, err := s.objectName(key)
	if err != nil {
		return err
	}
	return s.breaker.Execute(func() error {
		if _, err := s.client.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{}); err != nil {
			return s.mapError(key, err)
		}
		if err := s.client.RemoveObject(ctx, s.bucket, name, minio.RemoveObjectOptions{}); err != nil {
			return s.mapError(key, err)
		}
		return nil
	})
}

func (s *ObjectStore) Exists(ctx context.Context, key string) (bool, error) {
	name, err := s.objectName(key)
	if err != nil {
		return false, err
	}
	err = s.breaker.Execute(func() error {
		_, err := s.client.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{})
		if err != nil {
			return s.mapError(key, err)
		}
		return nil
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (s *ObjectStore) List(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.breaker.Execute(func() error {
		listPrefix := s.prefix
		if listPrefix != "" && !strings.HasSuffix(listPrefix, "/") {
			listPrefix += "/"
		}
		for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
			Prefix:    listPrefix,
			Recursive: false,
		}) {
			if obj.Err != nil {
				return fmt.Errorf("listing bucket %s: %w", s.bucket, obj.Err)
			}
			key := strings.TrimPrefix(obj.Key, listPrefix)
			if ValidateKey(key) == nil {
				keys = append(keys, key)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *ObjectStore) Ping(ctx context.Context) error {
	if state := s.breaker.GetState(); state == resilience.StateOpen {
		return fmt.Errorf("%w: object-store", resilience.ErrCircuitOpen)
	}
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("checking bucket %s: %w", s.bucket, err)
	}
	if !ok {
		return fmt.Errorf("bucket %s does not exist", s.bucket)
	}
	return nil
}

func (s *ObjectStore) Close() error {
	return nil
}

func (s *ObjectStore) mapError(key string, err error) error {
	if isNoSuchKey(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	s.logger.Warn("object store request failed", "key", key, "error", err)
	return fmt.Errorf("object %s: %w", key, err)
}

func isNoSuchKey(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return true
	}
	return false
}
