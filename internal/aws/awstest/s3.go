// Package awstest provides an in-memory S3 fake that satisfies
// aws.S3API. It models just enough of S3 for tfapi's tests: buckets,
// objects, prefix/delimiter listing with pagination, and the error shapes
// the real service returns for missing buckets and non-empty deletes.
package awstest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	tfaws "github.com/SpiceLabsHQ/tfapi/internal/aws"
)

var _ tfaws.S3API = (*FakeS3)(nil)

// FakeS3 is a concurrency-safe in-memory S3. The zero value is not usable;
// construct with NewFakeS3.
type FakeS3 struct {
	mu      sync.Mutex
	buckets map[string]*fakeBucket

	// PageSize bounds ListObjectsV2 results per page. Zero means 1000.
	PageSize int

	// Err hooks let tests fail a specific operation. The hook receives the
	// bucket (and key, where relevant) and returns a non-nil error to fail.
	HeadBucketErr   func(bucket string) error
	CreateBucketErr func(bucket string) error
	DeleteBucketErr func(bucket string) error
	ListBucketsErr  error
	PutObjectErr    func(bucket, key string) error
	GetObjectErr    func(bucket, key string) error
	DeleteObjectErr func(bucket, key string) error
	ListObjectsErr  func(bucket string) error

	// Calls counts invocations per operation name.
	Calls map[string]int

	// CreateInputs records every CreateBucket input in order.
	CreateInputs []*s3.CreateBucketInput
}

type fakeBucket struct {
	objects map[string][]byte
	tags    []s3types.Tag
}

// NewFakeS3 returns an empty fake.
func NewFakeS3() *FakeS3 {
	return &FakeS3{
		buckets: make(map[string]*fakeBucket),
		Calls:   make(map[string]int),
	}
}

// NotFoundError returns the error shape HeadBucket produces for a missing
// bucket: a 404 response wrapping *s3types.NotFound.
func NotFoundError() error {
	return &smithyhttp.ResponseError{
		Response: &smithyhttp.Response{Response: &http.Response{StatusCode: 404}},
		Err:      &s3types.NotFound{Message: aws.String("Not Found")},
	}
}

// NoSuchBucketError returns the error shape object-level calls produce for a
// missing bucket.
func NoSuchBucketError() error {
	return &smithyhttp.ResponseError{
		Response: &smithyhttp.Response{Response: &http.Response{StatusCode: 404}},
		Err:      &s3types.NoSuchBucket{Message: aws.String("The specified bucket does not exist")},
	}
}

// NoSuchKeyError returns the error shape GetObject produces for a missing key.
func NoSuchKeyError() error {
	return &smithyhttp.ResponseError{
		Response: &smithyhttp.Response{Response: &http.Response{StatusCode: 404}},
		Err:      &s3types.NoSuchKey{Message: aws.String("The specified key does not exist.")},
	}
}

// BucketNotEmptyError returns the error DeleteBucket produces for a bucket
// that still holds objects.
func BucketNotEmptyError() error {
	return &smithyhttp.ResponseError{
		Response: &smithyhttp.Response{Response: &http.Response{StatusCode: 409}},
		Err: &smithy.GenericAPIError{
			Code:    "BucketNotEmpty",
			Message: "The bucket you tried to delete is not empty",
		},
	}
}

// AddBucket creates a bucket directly, bypassing hooks and call counters.
func (f *FakeS3) AddBucket(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.buckets[name]; !ok {
		f.buckets[name] = &fakeBucket{objects: make(map[string][]byte)}
	}
}

// PutRaw stores an object directly, creating the bucket if needed.
func (f *FakeS3) PutRaw(bucket, key string, data []byte) {
	f.AddBucket(bucket)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buckets[bucket].objects[key] = append([]byte(nil), data...)
}

// HasBucket reports whether the bucket exists.
func (f *FakeS3) HasBucket(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.buckets[name]
	return ok
}

// BucketNames returns all bucket names, sorted.
func (f *FakeS3) BucketNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.buckets))
	for name := range f.buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Object returns a stored object's bytes.
func (f *FakeS3) Object(bucket, key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.buckets[bucket]
	if !ok {
		return nil, false
	}
	data, ok := b.objects[key]
	return data, ok
}

// Keys returns all object keys in a bucket, sorted.
func (f *FakeS3) Keys(bucket string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.buckets[bucket]
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Tags returns the tags applied to a bucket.
func (f *FakeS3) Tags(bucket string) []s3types.Tag {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.buckets[bucket]; ok {
		return b.tags
	}
	return nil
}

// CallCount returns how many times op was invoked.
func (f *FakeS3) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls[op]
}

func (f *FakeS3) record(op string) {
	f.Calls[op]++
}

func (f *FakeS3) CreateBucket(_ context.Context, params *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	name := aws.ToString(params.Bucket)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateBucket")
	f.CreateInputs = append(f.CreateInputs, params)
	if f.CreateBucketErr != nil {
		if err := f.CreateBucketErr(name); err != nil {
			return nil, err
		}
	}
	if _, ok := f.buckets[name]; ok {
		return nil, &smithy.GenericAPIError{Code: "BucketAlreadyOwnedByYou", Message: "bucket exists"}
	}
	f.buckets[name] = &fakeBucket{objects: make(map[string][]byte)}
	return &s3.CreateBucketOutput{Location: aws.String("/" + name)}, nil
}

func (f *FakeS3) HeadBucket(_ context.Context, params *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	name := aws.ToString(params.Bucket)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("HeadBucket")
	if f.HeadBucketErr != nil {
		if err := f.HeadBucketErr(name); err != nil {
			return nil, err
		}
	}
	if _, ok := f.buckets[name]; !ok {
		return nil, NotFoundError()
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *FakeS3) DeleteBucket(_ context.Context, params *s3.DeleteBucketInput, _ ...func(*s3.Options)) (*s3.DeleteBucketOutput, error) {
	name := aws.ToString(params.Bucket)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DeleteBucket")
	if f.DeleteBucketErr != nil {
		if err := f.DeleteBucketErr(name); err != nil {
			return nil, err
		}
	}
	b, ok := f.buckets[name]
	if !ok {
		return nil, NoSuchBucketError()
	}
	if len(b.objects) > 0 {
		return nil, BucketNotEmptyError()
	}
	delete(f.buckets, name)
	return &s3.DeleteBucketOutput{}, nil
}

func (f *FakeS3) ListBuckets(_ context.Context, _ *s3.ListBucketsInput, _ ...func(*s3.Options)) (*s3.ListBucketsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListBuckets")
	if f.ListBucketsErr != nil {
		return nil, f.ListBucketsErr
	}
	names := make([]string, 0, len(f.buckets))
	for name := range f.buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	out := &s3.ListBucketsOutput{}
	for _, name := range names {
		out.Buckets = append(out.Buckets, s3types.Bucket{Name: aws.String(name)})
	}
	return out, nil
}

func (f *FakeS3) PutBucketTagging(_ context.Context, params *s3.PutBucketTaggingInput, _ ...func(*s3.Options)) (*s3.PutBucketTaggingOutput, error) {
	name := aws.ToString(params.Bucket)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("PutBucketTagging")
	b, ok := f.buckets[name]
	if !ok {
		return nil, NoSuchBucketError()
	}
	if params.Tagging != nil {
		b.tags = append([]s3types.Tag(nil), params.Tagging.TagSet...)
	}
	return &s3.PutBucketTaggingOutput{}, nil
}

func (f *FakeS3) ListObjectsV2(_ context.Context, params *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	name := aws.ToString(params.Bucket)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListObjectsV2")
	if f.ListObjectsErr != nil {
		if err := f.ListObjectsErr(name); err != nil {
			return nil, err
		}
	}
	b, ok := f.buckets[name]
	if !ok {
		return nil, NoSuchBucketError()
	}

	prefix := aws.ToString(params.Prefix)
	delimiter := aws.ToString(params.Delimiter)

	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	// Fold keys into common prefixes when a delimiter is set. Each entry in
	// entries is either an object key or a common prefix.
	type entry struct {
		value    string
		isPrefix bool
	}
	var entries []entry
	seen := make(map[string]bool)
	for _, k := range keys {
		if delimiter != "" {
			rest := k[len(prefix):]
			if i := strings.Index(rest, delimiter); i >= 0 {
				cp := prefix + rest[:i+len(delimiter)]
				if !seen[cp] {
					seen[cp] = true
					entries = append(entries, entry{value: cp, isPrefix: true})
				}
				continue
			}
		}
		entries = append(entries, entry{value: k})
	}

	start := 0
	if tok := aws.ToString(params.ContinuationToken); tok != "" {
		n, err := strconv.Atoi(tok)
		if err != nil {
			return nil, fmt.Errorf("invalid continuation token %q", tok)
		}
		start = n
	}
	pageSize := f.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}
	if params.MaxKeys != nil && int(*params.MaxKeys) > 0 && int(*params.MaxKeys) < pageSize {
		pageSize = int(*params.MaxKeys)
	}
	end := start + pageSize
	if end > len(entries) {
		end = len(entries)
	}

	out := &s3.ListObjectsV2Output{
		Name:   aws.String(name),
		Prefix: aws.String(prefix),
	}
	for _, e := range entries[start:end] {
		if e.isPrefix {
			out.CommonPrefixes = append(out.CommonPrefixes, s3types.CommonPrefix{Prefix: aws.String(e.value)})
			continue
		}
		out.Contents = append(out.Contents, s3types.Object{
			Key:  aws.String(e.value),
			Size: aws.Int64(int64(len(b.objects[e.value]))),
		})
	}
	out.KeyCount = aws.Int32(int32(end - start))
	if end < len(entries) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	} else {
		out.IsTruncated = aws.Bool(false)
	}
	return out, nil
}

func (f *FakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	name := aws.ToString(params.Bucket)
	key := aws.ToString(params.Key)
	var data []byte
	if params.Body != nil {
		var err error
		data, err = io.ReadAll(params.Body)
		if err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("PutObject")
	if f.PutObjectErr != nil {
		if err := f.PutObjectErr(name, key); err != nil {
			return nil, err
		}
	}
	b, ok := f.buckets[name]
	if !ok {
		return nil, NoSuchBucketError()
	}
	b.objects[key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *FakeS3) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	name := aws.ToString(params.Bucket)
	key := aws.ToString(params.Key)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetObject")
	if f.GetObjectErr != nil {
		if err := f.GetObjectErr(name, key); err != nil {
			return nil, err
		}
	}
	b, ok := f.buckets[name]
	if !ok {
		return nil, NoSuchBucketError()
	}
	data, ok := b.objects[key]
	if !ok {
		return nil, NoSuchKeyError()
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(append([]byte(nil), data...))),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (f *FakeS3) DeleteObject(_ context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	name := aws.ToString(params.Bucket)
	key := aws.ToString(params.Key)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DeleteObject")
	if f.DeleteObjectErr != nil {
		if err := f.DeleteObjectErr(name, key); err != nil {
			return nil, err
		}
	}
	b, ok := f.buckets[name]
	if !ok {
		return nil, NoSuchBucketError()
	}
	delete(b.objects, key)
	return &s3.DeleteObjectOutput{}, nil
}
