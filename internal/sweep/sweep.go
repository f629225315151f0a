// Package sweep finds the state buckets tfapi is responsible for and
// deletes them: every object first, then the bucket itself.
//
// A sweep never fails as a whole once discovery has succeeded. Per-bucket
// failures are recorded in the Summary and the sweep moves on.
package sweep

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/SpiceLabsHQ/tfapi/internal/blobstore"
	"github.com/SpiceLabsHQ/tfapi/internal/metrics"
	"github.com/SpiceLabsHQ/tfapi/internal/registry"
)

// DefaultConcurrency is the number of buckets emptied in parallel.
const DefaultConcurrency = 4

// BucketAPI is the subset of blobstore.Client the sweeper needs.
type BucketAPI interface {
	ListBuckets(ctx context.Context) ([]string, error)
	ListObjects(ctx context.Context, bucket, prefix, delimiter string) (*blobstore.Listing, error)
	DeleteObject(ctx context.Context, bucket, key string) error
	DeleteBucket(ctx context.Context, name string) error
}

// Tracker is the subset of registry.Registry the sweeper needs.
type Tracker interface {
	Tracked(ctx context.Context) ([]string, error)
	Untrack(ctx context.Context, bucket string) error
}

var (
	_ BucketAPI = (*blobstore.Client)(nil)
	_ Tracker   = (*registry.Registry)(nil)
)

// BucketResult is the outcome for one bucket.
type BucketResult struct {
	Name           string `json:"name"`
	ObjectsDeleted int    `json:"objectsDeleted"`
	Deleted        bool   `json:"deleted"`
	Error          string `json:"error,omitempty"`
}

// Summary reports a sweep. Success is false only when discovery failed.
type Summary struct {
	Success bool           `json:"success"`
	Total   int            `json:"total"`
	Deleted int            `json:"deleted"`
	Buckets []BucketResult `json:"buckets"`
	Error   string         `json:"error,omitempty"`
}

// Sweeper deletes candidate buckets.
type Sweeper struct {
	buckets     BucketAPI
	tracker     Tracker
	concurrency int
	log         *zap.Logger
	metrics     *metrics.Metrics

	// mu serializes sweeps; overlapping sweeps would race on the same buckets.
	mu sync.Mutex
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithConcurrency bounds how many buckets are processed at once.
func WithConcurrency(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Sweeper) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics counts deleted buckets.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) { s.metrics = m }
}

// New creates a Sweeper.
func New(buckets BucketAPI, tracker Tracker, opts ...Option) *Sweeper {
	s := &Sweeper{
		buckets:     buckets,
		tracker:     tracker,
		concurrency: DefaultConcurrency,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FindCandidates lists every bucket in the account whose name follows a
// tfapi naming convention and unions it with the tracked set. The result
// is sorted and free of duplicates.
//
// A failure to list the account's buckets is returned. A failure to read
// the tracked set is logged and the name scan alone is used.
func (s *Sweeper) FindCandidates(ctx context.Context) ([]string, error) {
	all, err := s.buckets.ListBuckets(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	for _, name := range all {
		if registry.IsManagedName(name) {
			seen[name] = struct{}{}
		}
	}

	if s.tracker != nil {
		tracked, err := s.tracker.Tracked(ctx)
		if err != nil {
			s.log.Warn("read tracked buckets failed, using name scan only", zap.Error(err))
		}
		for _, name := range tracked {
			seen[name] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// CleanupAll discovers candidates and deletes them.
func (s *Sweeper) CleanupAll(ctx context.Context) *Summary {
	candidates, err := s.FindCandidates(ctx)
	if err != nil {
		s.log.Error("bucket discovery failed", zap.Error(err))
		return &Summary{Success: false, Buckets: []BucketResult{}, Error: err.Error()}
	}
	return s.CleanupBuckets(ctx, candidates)
}

// CleanupBuckets deletes the named buckets.
func (s *Sweeper) CleanupBuckets(ctx context.Context, names []string) *Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]BucketResult, len(names))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, name := range names {
		g.Go(func() error {
			results[i] = s.cleanupBucket(ctx, name)
			return nil
		})
	}
	_ = g.Wait()

	summary := &Summary{Success: true, Total: len(names), Buckets: results}
	for _, r := range results {
		if r.Deleted {
			summary.Deleted++
		}
	}
	s.metrics.AddSweepDeleted(summary.Deleted)
	s.log.Info("cleanup sweep finished",
		zap.Int("total", summary.Total), zap.Int("deleted", summary.Deleted))
	return summary
}

func (s *Sweeper) cleanupBucket(ctx context.Context, name string) BucketResult {
	res := BucketResult{Name: name}
	log := s.log.With(zap.String("bucket", name))

	listing, err := s.buckets.ListObjects(ctx, name, "", "")
	if err != nil {
		if blobstore.IsNotFound(err) {
			log.Info("bucket already gone")
			res.Deleted = true
			s.untrack(ctx, name)
			return res
		}
		log.Warn("list objects failed", zap.Error(err))
		res.Error = err.Error()
		return res
	}

	for _, obj := range listing.Objects {
		if err := s.buckets.DeleteObject(ctx, name, obj.Key); err != nil {
			log.Warn("delete object failed", zap.String("key", obj.Key), zap.Error(err))
			continue
		}
		res.ObjectsDeleted++
	}

	if err := s.buckets.DeleteBucket(ctx, name); err != nil {
		log.Warn("delete bucket failed", zap.Error(err))
		res.Error = err.Error()
		return res
	}
	res.Deleted = true
	log.Info("deleted bucket", zap.Int("objects", res.ObjectsDeleted))
	s.untrack(ctx, name)
	return res
}

func (s *Sweeper) untrack(ctx context.Context, name string) {
	if s.tracker == nil {
		return
	}
	if err := s.tracker.Untrack(ctx, name); err != nil {
		s.log.Warn("untrack bucket failed", zap.String("bucket", name), zap.Error(err))
	}
}
