// Package registry decides which bucket backs each template and remembers
// every bucket tfapi has created or adopted, so the sweeper can find them
// again.
//
// Buckets are named deterministically from (template, environment); see
// BucketName. The mapping and the tracked set live in a Store, which is
// either process-local (MemoryStore) or an SQLite file (SQLiteStore).
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/SpiceLabsHQ/tfapi/internal/blobstore"
	"github.com/SpiceLabsHQ/tfapi/internal/identity"
	"github.com/SpiceLabsHQ/tfapi/internal/metrics"
	"github.com/SpiceLabsHQ/tfapi/internal/tags"
)

// BucketAPI is the subset of blobstore.Client the registry needs.
type BucketAPI interface {
	BucketExists(ctx context.Context, name string) (bool, error)
	CreateBucket(ctx context.Context, name string) error
	TagBucket(ctx context.Context, name string, tags []s3types.Tag) error
}

var _ BucketAPI = (*blobstore.Client)(nil)

// Registry resolves and tracks state buckets.
type Registry struct {
	buckets BucketAPI
	store   Store
	owner   *identity.Owner
	log     *zap.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	current string
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// WithMetrics publishes the tracked bucket count.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithOwner records the caller identity in the tags of created buckets.
func WithOwner(o *identity.Owner) Option {
	return func(r *Registry) { r.owner = o }
}

// New creates a Registry. A nil store selects a fresh MemoryStore.
func New(buckets BucketAPI, store Store, opts ...Option) *Registry {
	if store == nil {
		store = NewMemoryStore()
	}
	r := &Registry{
		buckets: buckets,
		store:   store,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetOrCreate returns the bucket backing template in environment,
// creating it if needed.
//
// An existing mapping is trusted only after a HeadBucket probe; a mapping
// whose bucket has disappeared is dropped and the deterministic name is
// resolved afresh. Probe failures other than not-found are returned.
func (r *Registry) GetOrCreate(ctx context.Context, template, environment string) (string, error) {
	m, ok, err := r.store.GetMapping(ctx, template)
	if err != nil {
		return "", err
	}
	if ok {
		exists, err := r.buckets.BucketExists(ctx, m.Bucket)
		if err != nil {
			return "", err
		}
		if exists && m.Environment == environment {
			r.setCurrent(m.Bucket)
			return m.Bucket, nil
		}
		if !exists {
			r.log.Warn("mapped bucket is gone, dropping mapping",
				zap.String("template", template), zap.String("bucket", m.Bucket))
			if err := r.store.DeleteMapping(ctx, template); err != nil {
				return "", err
			}
		}
	}

	name := BucketName(template, environment)
	exists, err := r.buckets.BucketExists(ctx, name)
	if err != nil {
		return "", err
	}
	if !exists {
		if err := r.buckets.CreateBucket(ctx, name); err != nil {
			return "", err
		}
		r.log.Info("created state bucket",
			zap.String("template", template), zap.String("environment", environment), zap.String("bucket", name))
		r.tag(ctx, name, template, environment)
	}

	if err := r.record(ctx, template, environment, name); err != nil {
		return "", err
	}
	return name, nil
}

// Adopt points template at a bucket discovered elsewhere (typically one the
// terraform run itself provisioned). Only buckets carrying a managed name
// prefix join the tracked set; any other bucket belongs to the project and
// is mapped but never swept.
func (r *Registry) Adopt(ctx context.Context, template, environment, bucket string) error {
	if !IsManagedName(bucket) {
		if err := r.putMapping(ctx, template, environment, bucket); err != nil {
			return err
		}
		r.setCurrent(bucket)
		r.log.Warn("adopted unmanaged bucket, not tracking it for cleanup",
			zap.String("template", template), zap.String("environment", environment), zap.String("bucket", bucket))
		return nil
	}
	if err := r.record(ctx, template, environment, bucket); err != nil {
		return err
	}
	r.log.Info("adopted bucket",
		zap.String("template", template), zap.String("environment", environment), zap.String("bucket", bucket))
	return nil
}

// Lookup returns the current mapping for template without probing S3.
func (r *Registry) Lookup(ctx context.Context, template string) (Mapping, bool, error) {
	return r.store.GetMapping(ctx, template)
}

// Forget drops template's mapping. The bucket stays tracked.
func (r *Registry) Forget(ctx context.Context, template string) error {
	return r.store.DeleteMapping(ctx, template)
}

// Untrack removes bucket from the tracked set along with every mapping
// that points at it. Called once the bucket has been deleted.
func (r *Registry) Untrack(ctx context.Context, bucket string) error {
	if err := r.store.RemoveBucket(ctx, bucket); err != nil {
		return err
	}
	if err := r.store.DeleteMappingsForBucket(ctx, bucket); err != nil {
		return err
	}
	r.mu.Lock()
	if r.current == bucket {
		r.current = ""
	}
	r.mu.Unlock()
	r.publish(ctx)
	return nil
}

// Tracked returns every bucket created or adopted under a managed name and
// not yet untracked.
func (r *Registry) Tracked(ctx context.Context) ([]string, error) {
	return r.store.Buckets(ctx)
}

// Mappings returns every template mapping ordered by template.
func (r *Registry) Mappings(ctx context.Context) ([]Mapping, error) {
	return r.store.Mappings(ctx)
}

// Current returns the bucket most recently resolved or adopted, or "".
func (r *Registry) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Sync refreshes the tracked bucket gauge from the store. Call it once
// after opening a persistent store.
func (r *Registry) Sync(ctx context.Context) {
	r.publish(ctx)
}

func (r *Registry) putMapping(ctx context.Context, template, environment, bucket string) error {
	return r.store.PutMapping(ctx, Mapping{
		Template:    template,
		Environment: environment,
		Bucket:      bucket,
		UpdatedAt:   time.Now().UTC(),
	})
}

func (r *Registry) record(ctx context.Context, template, environment, bucket string) error {
	if err := r.putMapping(ctx, template, environment, bucket); err != nil {
		return err
	}
	if err := r.store.AddBucket(ctx, bucket); err != nil {
		return err
	}
	r.setCurrent(bucket)
	r.publish(ctx)
	return nil
}

func (r *Registry) setCurrent(bucket string) {
	r.mu.Lock()
	r.current = bucket
	r.mu.Unlock()
}

// tag labels a freshly created bucket. A tagging failure leaves an
// untagged but usable bucket, so it is only logged.
func (r *Registry) tag(ctx context.Context, bucket, template, environment string) {
	b := tags.NewTagBuilder(template, environment)
	if r.owner != nil {
		b.WithOwner(r.owner.Name, r.owner.ARN)
	}
	if err := r.buckets.TagBucket(ctx, bucket, b.Build()); err != nil {
		r.log.Warn("tag bucket failed", zap.String("bucket", bucket), zap.Error(err))
	}
}

func (r *Registry) publish(ctx context.Context) {
	if r.metrics == nil {
		return
	}
	names, err := r.store.Buckets(ctx)
	if err != nil {
		r.log.Warn("count tracked buckets", zap.Error(err))
		return
	}
	r.metrics.SetTrackedBuckets(len(names))
}

// Backend names the store kind for startup logs.
func (r *Registry) Backend() string {
	switch r.store.(type) {
	case *SQLiteStore:
		return "sqlite"
	case *MemoryStore:
		return "memory"
	default:
		return fmt.Sprintf("%T", r.store)
	}
}
