package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SpiceLabsHQ/tfapi/internal/aws/awstest"
	"github.com/SpiceLabsHQ/tfapi/internal/metrics"
)

// ---------------------------------------------------------------------------
// Region handling
// ---------------------------------------------------------------------------

func TestCreateBucket_DefaultRegion_NoLocationConstraint(t *testing.T) {
	fake := awstest.NewFakeS3()
	c := New(fake, "us-east-1")

	require.NoError(t, c.CreateBucket(context.Background(), "terraform-state-a"))
	require.Len(t, fake.CreateInputs, 1)
	assert.Nil(t, fake.CreateInputs[0].CreateBucketConfiguration,
		"us-east-1 CreateBucket must have nil CreateBucketConfiguration")
}

func TestCreateBucket_OtherRegion_HasLocationConstraint(t *testing.T) {
	for _, region := range []string{"us-west-2", "eu-central-1", "ap-southeast-2"} {
		t.Run(region, func(t *testing.T) {
			fake := awstest.NewFakeS3()
			c := New(fake, region)

			require.NoError(t, c.CreateBucket(context.Background(), "terraform-state-b"))
			require.Len(t, fake.CreateInputs, 1)
			cfg := fake.CreateInputs[0].CreateBucketConfiguration
			require.NotNil(t, cfg, "non-default region must set CreateBucketConfiguration")
			assert.Equal(t, s3types.BucketLocationConstraint(region), cfg.LocationConstraint)
		})
	}
}

func TestNew_EmptyRegionDefaults(t *testing.T) {
	c := New(awstest.NewFakeS3(), "")
	assert.Equal(t, DefaultRegion, c.Region())
	assert.Nil(t, CreateBucketInput("x", "").CreateBucketConfiguration)
}

// ---------------------------------------------------------------------------
// BucketExists
// ---------------------------------------------------------------------------

func TestBucketExists(t *testing.T) {
	fake := awstest.NewFakeS3()
	fake.AddBucket("present")
	c := New(fake, "us-east-1", WithMetrics(metrics.New()))
	ctx := context.Background()

	ok, err := c.BucketExists(ctx, "present")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.BucketExists(ctx, "absent")
	require.NoError(t, err, "not-found must be a negative result, not an error")
	assert.False(t, ok)
}

func TestBucketExists_OtherErrorPropagates(t *testing.T) {
	fake := awstest.NewFakeS3()
	denied := &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}
	fake.HeadBucketErr = func(string) error { return denied }
	c := New(fake, "us-east-1")

	_, err := c.BucketExists(context.Background(), "any")
	require.Error(t, err)
	assert.True(t, errors.Is(err, denied))
}

// ---------------------------------------------------------------------------
// Objects
// ---------------------------------------------------------------------------

func TestPutGetDeleteObject(t *testing.T) {
	fake := awstest.NewFakeS3()
	fake.AddBucket("b")
	c := New(fake, "us-east-1")
	ctx := context.Background()

	require.NoError(t, c.PutObject(ctx, "b", "webapp/terraform.tfstate", []byte(`{"version":4}`)))

	body, err := c.GetObject(ctx, "b", "webapp/terraform.tfstate")
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, body.Close())
	assert.Equal(t, `{"version":4}`, string(data))

	require.NoError(t, c.DeleteObject(ctx, "b", "webapp/terraform.tfstate"))
	_, err = c.GetObject(ctx, "b", "webapp/terraform.tfstate")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestListObjects_PaginatesAndFoldsPrefixes(t *testing.T) {
	fake := awstest.NewFakeS3()
	fake.PageSize = 2
	for i := 0; i < 5; i++ {
		fake.PutRaw("b", fmt.Sprintf("alpha/file-%d.tfstate", i), []byte("x"))
	}
	fake.PutRaw("b", "beta/terraform.tfstate", []byte("y"))
	c := New(fake, "us-east-1")
	ctx := context.Background()

	listing, err := c.ListObjects(ctx, "b", "alpha/", "")
	require.NoError(t, err)
	assert.Len(t, listing.Objects, 5)
	assert.Equal(t, "alpha/file-0.tfstate", listing.Keys()[0])

	listing, err = c.ListObjects(ctx, "b", "", "/")
	require.NoError(t, err)
	assert.Empty(t, listing.Objects)
	assert.Equal(t, []string{"alpha/", "beta/"}, listing.Prefixes)
}

func TestListBuckets_Sorted(t *testing.T) {
	fake := awstest.NewFakeS3()
	fake.AddBucket("zeta")
	fake.AddBucket("alpha")
	c := New(fake, "us-east-1")

	names, err := c.ListBuckets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, names)
}

func TestDeleteBucket_NonEmptyFails(t *testing.T) {
	fake := awstest.NewFakeS3()
	fake.PutRaw("b", "k", []byte("v"))
	c := New(fake, "us-east-1")

	err := c.DeleteBucket(context.Background(), "b")
	require.Error(t, err)
	assert.True(t, fake.HasBucket("b"))
}

func TestTagBucket(t *testing.T) {
	fake := awstest.NewFakeS3()
	fake.AddBucket("b")
	c := New(fake, "us-east-1")

	tags := []s3types.Tag{{Key: strPtr("tfapi"), Value: strPtr("true")}}
	require.NoError(t, c.TagBucket(context.Background(), "b", tags))
	assert.Len(t, fake.Tags("b"), 1)
}

// ---------------------------------------------------------------------------
// IsNotFound
// ---------------------------------------------------------------------------

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"head bucket 404", awstest.NotFoundError(), true},
		{"no such bucket", awstest.NoSuchBucketError(), true},
		{"no such key", awstest.NoSuchKeyError(), true},
		{"wrapped", fmt.Errorf("ctx: %w", awstest.NoSuchBucketError()), true},
		{"generic code", &smithy.GenericAPIError{Code: "NoSuchBucket"}, true},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, false},
		{"bucket not empty", awstest.BucketNotEmptyError(), false},
		{"plain", errors.New("network down"), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsNotFound(tc.err))
		})
	}
}

func strPtr(s string) *string { return &s }
