package registry

import (
	"context"
	"errors"
	"testing"

	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SpiceLabsHQ/tfapi/internal/aws/awstest"
	"github.com/SpiceLabsHQ/tfapi/internal/blobstore"
	"github.com/SpiceLabsHQ/tfapi/internal/identity"
	"github.com/SpiceLabsHQ/tfapi/internal/metrics"
	"github.com/SpiceLabsHQ/tfapi/internal/tags"
)

func newRegistry(t *testing.T, opts ...Option) (*Registry, *awstest.FakeS3) {
	t.Helper()
	fake := awstest.NewFakeS3()
	return New(blobstore.New(fake, "us-east-1"), NewMemoryStore(), opts...), fake
}

func TestGetOrCreate_CreatesAndTracks(t *testing.T) {
	owner := &identity.Owner{Name: "ryan", ARN: "arn:aws:iam::123456789012:user/ryan"}
	r, fake := newRegistry(t, WithOwner(owner))
	ctx := context.Background()

	name, err := r.GetOrCreate(ctx, "webapp", "dev")
	require.NoError(t, err)
	assert.Equal(t, BucketName("webapp", "dev"), name)
	assert.True(t, fake.HasBucket(name))
	assert.Equal(t, name, r.Current())

	tracked, err := r.Tracked(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{name}, tracked)

	m, ok, err := r.Lookup(ctx, "webapp")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, name, m.Bucket)

	got, _ := tags.Lookup(fake.Tags(name), tags.TagOwner)
	assert.Equal(t, "ryan", got)
	got, _ = tags.Lookup(fake.Tags(name), tags.TagTemplate)
	assert.Equal(t, "webapp", got)
}

func TestGetOrCreate_ReusesMappedBucket(t *testing.T) {
	r, fake := newRegistry(t)
	ctx := context.Background()

	first, err := r.GetOrCreate(ctx, "webapp", "dev")
	require.NoError(t, err)
	second, err := r.GetOrCreate(ctx, "webapp", "dev")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, fake.CallCount("CreateBucket"))
}

func TestGetOrCreate_ExistingDeterministicBucketNotRecreated(t *testing.T) {
	r, fake := newRegistry(t)
	name := BucketName("webapp", "dev")
	fake.AddBucket(name)

	got, err := r.GetOrCreate(context.Background(), "webapp", "dev")
	require.NoError(t, err)
	assert.Equal(t, name, got)
	assert.Zero(t, fake.CallCount("CreateBucket"))
}

func TestGetOrCreate_StaleMappingDropped(t *testing.T) {
	r, fake := newRegistry(t)
	ctx := context.Background()
	require.NoError(t, r.Adopt(ctx, "webapp", "dev", "vanished-bucket"))

	got, err := r.GetOrCreate(ctx, "webapp", "dev")
	require.NoError(t, err)
	assert.Equal(t, BucketName("webapp", "dev"), got)
	assert.True(t, fake.HasBucket(got))

	m, _, err := r.Lookup(ctx, "webapp")
	require.NoError(t, err)
	assert.Equal(t, got, m.Bucket)
}

func TestGetOrCreate_ProbeErrorPropagates(t *testing.T) {
	r, fake := newRegistry(t)
	fake.HeadBucketErr = func(string) error { return errors.New("access denied") }

	_, err := r.GetOrCreate(context.Background(), "webapp", "dev")
	require.Error(t, err)
	assert.Zero(t, fake.CallCount("CreateBucket"))

	tracked, err := r.Tracked(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tracked)
}

func TestGetOrCreate_TagFailureIsNotFatal(t *testing.T) {
	fake := awstest.NewFakeS3()
	r := New(failingTagger{blobstore.New(fake, "us-east-1")}, nil)

	name, err := r.GetOrCreate(context.Background(), "webapp", "dev")
	require.NoError(t, err)
	assert.True(t, fake.HasBucket(name))
}

type failingTagger struct{ *blobstore.Client }

func (failingTagger) TagBucket(context.Context, string, []s3types.Tag) error {
	return errors.New("tagging not allowed")
}

func TestGetOrCreate_RegionConstraint(t *testing.T) {
	fake := awstest.NewFakeS3()
	r := New(blobstore.New(fake, "eu-west-1"), nil)

	_, err := r.GetOrCreate(context.Background(), "webapp", "dev")
	require.NoError(t, err)
	require.Len(t, fake.CreateInputs, 1)
	require.NotNil(t, fake.CreateInputs[0].CreateBucketConfiguration)
	assert.Equal(t, "eu-west-1", string(fake.CreateInputs[0].CreateBucketConfiguration.LocationConstraint))
}

func TestAdopt_UnmanagedBucketIsMappedNotTracked(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Adopt(ctx, "webapp", "dev", "project-assets"))

	m, ok, err := r.Lookup(ctx, "webapp")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "project-assets", m.Bucket)
	assert.Equal(t, "project-assets", r.Current())

	tracked, err := r.Tracked(ctx)
	require.NoError(t, err)
	assert.Empty(t, tracked)
}

func TestAdopt_ManagedBucketIsTracked(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()
	name := TempPrefix + "1700000000-abc123"

	require.NoError(t, r.Adopt(ctx, "webapp", "dev", name))

	tracked, err := r.Tracked(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{name}, tracked)
}

func TestUntrack_DropsMappingsAndCurrent(t *testing.T) {
	m := metrics.New()
	r, _ := newRegistry(t, WithMetrics(m))
	ctx := context.Background()

	name, err := r.GetOrCreate(ctx, "webapp", "dev")
	require.NoError(t, err)
	require.NoError(t, r.Adopt(ctx, "api", "dev", name))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TrackedBuckets))

	require.NoError(t, r.Untrack(ctx, name))

	tracked, err := r.Tracked(ctx)
	require.NoError(t, err)
	assert.Empty(t, tracked)
	mappings, err := r.Mappings(ctx)
	require.NoError(t, err)
	assert.Empty(t, mappings)
	assert.Empty(t, r.Current())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.TrackedBuckets))
}

func TestForget_KeepsBucketTracked(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()

	name, err := r.GetOrCreate(ctx, "webapp", "dev")
	require.NoError(t, err)
	require.NoError(t, r.Forget(ctx, "webapp"))

	_, ok, err := r.Lookup(ctx, "webapp")
	require.NoError(t, err)
	assert.False(t, ok)
	tracked, err := r.Tracked(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{name}, tracked)
}

func TestBackend(t *testing.T) {
	r, _ := newRegistry(t)
	assert.Equal(t, "memory", r.Backend())
}
