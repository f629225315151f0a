// Package blobstore is the object-storage capability wrapper used by the
// state sync, bucket registry, and cleanup sweep. It exposes bucket and
// object operations in domain terms (names, keys, bytes) on top of the
// narrow S3 interfaces in internal/aws, and records every call's duration
// and outcome.
//
// The client never retries. Callers decide whether an error propagates or is
// swallowed; IsNotFound lets them treat missing buckets and keys as a normal
// negative result.
package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	tfaws "github.com/SpiceLabsHQ/tfapi/internal/aws"
	"github.com/SpiceLabsHQ/tfapi/internal/metrics"
)

// DefaultRegion is the S3 region whose CreateBucket call must NOT carry a
// LocationConstraint. Specifying one for us-east-1 returns
// InvalidLocationConstraint.
const DefaultRegion = "us-east-1"

// Object describes one listed object.
type Object struct {
	Key  string `json:"key"`
	Size int64  `json:"size"`
}

// Listing is the result of ListObjects. Prefixes holds the common prefixes
// produced when a delimiter is supplied.
type Listing struct {
	Objects  []Object `json:"objects"`
	Prefixes []string `json:"prefixes,omitempty"`
}

// Keys returns the object keys in listing order.
func (l *Listing) Keys() []string {
	keys := make([]string, 0, len(l.Objects))
	for _, o := range l.Objects {
		keys = append(keys, o.Key)
	}
	return keys
}

// Client wraps an S3 API with the operations tfapi needs.
type Client struct {
	api     tfaws.S3API
	region  string
	log     *zap.Logger
	metrics *metrics.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for per-call debug lines.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMetrics sets the metrics sink for per-call observations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a Client for the given region. An empty region is treated as
// DefaultRegion.
func New(api tfaws.S3API, region string, opts ...Option) *Client {
	if region == "" {
		region = DefaultRegion
	}
	c := &Client{
		api:    api,
		region: region,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Region returns the region buckets are created in.
func (c *Client) Region() string {
	return c.region
}

// observe records a single S3 call to the log and metrics sink.
func (c *Client) observe(operation string, start time.Time, err error, fields ...zap.Field) {
	d := time.Since(start)
	c.metrics.ObserveS3(operation, d, err)

	result := "success"
	if err != nil {
		result = "error"
	}
	fields = append(fields,
		zap.String("service", "s3"),
		zap.String("operation", operation),
		zap.Int64("duration_ms", d.Milliseconds()),
		zap.String("result", result),
	)
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	c.log.Debug("aws call", fields...)
}

// CreateBucketInput builds the CreateBucket request for name in region.
// us-east-1 is the AWS special case: it must not include a
// CreateBucketConfiguration.
func CreateBucketInput(name, region string) *s3.CreateBucketInput {
	input := &s3.CreateBucketInput{
		Bucket: aws.String(name),
	}
	if region != "" && region != DefaultRegion {
		input.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(region),
		}
	}
	return input
}

// CreateBucket creates a bucket in the client's region.
func (c *Client) CreateBucket(ctx context.Context, name string) (err error) {
	defer func(start time.Time) { c.observe("CreateBucket", start, err, zap.String("bucket", name)) }(time.Now())

	if _, err = c.api.CreateBucket(ctx, CreateBucketInput(name, c.region)); err != nil {
		return fmt.Errorf("create bucket %q: %w", name, err)
	}
	return nil
}

// BucketExists probes a bucket with HeadBucket. A not-found response is
// reported as (false, nil); any other failure is returned.
func (c *Client) BucketExists(ctx context.Context, name string) (exists bool, err error) {
	defer func(start time.Time) { c.observe("HeadBucket", start, err, zap.String("bucket", name)) }(time.Now())

	_, err = c.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(name)})
	if err == nil {
		return true, nil
	}
	if IsNotFound(err) {
		err = nil
		return false, nil
	}
	return false, fmt.Errorf("head bucket %q: %w", name, err)
}

// TagBucket replaces the bucket's tag set.
func (c *Client) TagBucket(ctx context.Context, name string, tags []s3types.Tag) (err error) {
	defer func(start time.Time) { c.observe("PutBucketTagging", start, err, zap.String("bucket", name)) }(time.Now())

	_, err = c.api.PutBucketTagging(ctx, &s3.PutBucketTaggingInput{
		Bucket:  aws.String(name),
		Tagging: &s3types.Tagging{TagSet: tags},
	})
	if err != nil {
		return fmt.Errorf("tag bucket %q: %w", name, err)
	}
	return nil
}

// DeleteBucket removes a bucket. S3 refuses to delete a non-empty bucket.
func (c *Client) DeleteBucket(ctx context.Context, name string) (err error) {
	defer func(start time.Time) { c.observe("DeleteBucket", start, err, zap.String("bucket", name)) }(time.Now())

	if _, err = c.api.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(name)}); err != nil {
		return fmt.Errorf("delete bucket %q: %w", name, err)
	}
	return nil
}

// ListBuckets returns the name of every bucket visible to the credentials
// in use, sorted.
func (c *Client) ListBuckets(ctx context.Context) (names []string, err error) {
	defer func(start time.Time) { c.observe("ListBuckets", start, err) }(time.Now())

	input := &s3.ListBucketsInput{}
	for {
		out, lerr := c.api.ListBuckets(ctx, input)
		if lerr != nil {
			err = lerr
			return nil, fmt.Errorf("list buckets: %w", err)
		}
		for _, b := range out.Buckets {
			names = append(names, aws.ToString(b.Name))
		}
		if aws.ToString(out.ContinuationToken) == "" {
			break
		}
		input.ContinuationToken = out.ContinuationToken
	}
	sort.Strings(names)
	return names, nil
}

// ListObjects lists every object in bucket under prefix, following
// continuation tokens. When delimiter is non-empty, keys sharing a prefix
// up to the delimiter are folded into Listing.Prefixes.
func (c *Client) ListObjects(ctx context.Context, bucket, prefix, delimiter string) (listing *Listing, err error) {
	defer func(start time.Time) {
		c.observe("ListObjectsV2", start, err, zap.String("bucket", bucket), zap.String("prefix", prefix))
	}(time.Now())

	input := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}
	if delimiter != "" {
		input.Delimiter = aws.String(delimiter)
	}

	listing = &Listing{}
	paginator := s3.NewListObjectsV2Paginator(c.api, input)
	for paginator.HasMorePages() {
		page, perr := paginator.NextPage(ctx)
		if perr != nil {
			err = perr
			return nil, fmt.Errorf("list objects in %q (prefix %q): %w", bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			listing.Objects = append(listing.Objects, Object{
				Key:  aws.ToString(obj.Key),
				Size: aws.ToInt64(obj.Size),
			})
		}
		for _, cp := range page.CommonPrefixes {
			listing.Prefixes = append(listing.Prefixes, aws.ToString(cp.Prefix))
		}
	}
	return listing, nil
}

// PutObject stores data under key.
func (c *Client) PutObject(ctx context.Context, bucket, key string, data []byte) (err error) {
	defer func(start time.Time) {
		c.observe("PutObject", start, err, zap.String("bucket", bucket), zap.String("key", key))
	}(time.Now())

	_, err = c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// GetObject opens the object at key. The caller must close the returned
// reader.
func (c *Client) GetObject(ctx context.Context, bucket, key string) (body io.ReadCloser, err error) {
	defer func(start time.Time) {
		c.observe("GetObject", start, err, zap.String("bucket", bucket), zap.String("key", key))
	}(time.Now())

	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	return out.Body, nil
}

// DeleteObject removes the object at key.
func (c *Client) DeleteObject(ctx context.Context, bucket, key string) (err error) {
	defer func(start time.Time) {
		c.observe("DeleteObject", start, err, zap.String("bucket", bucket), zap.String("key", key))
	}(time.Now())

	_, err = c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// notFoundCodes are the S3 error codes that mean "the thing you asked
// about does not exist".
var notFoundCodes = map[string]bool{
	"NotFound":     true,
	"NoSuchBucket": true,
	"NoSuchKey":    true,
}

// IsNotFound reports whether err is an S3 not-found response for a bucket
// or key.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var notFound *s3types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noSuchBucket *s3types.NoSuchBucket
	if errors.As(err, &noSuchBucket) {
		return true
	}
	var noSuchKey *s3types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return notFoundCodes[apiErr.ErrorCode()]
	}
	return false
}
