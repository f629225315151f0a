// Package aws provides thin wrappers around AWS SDK clients used by tfapi.
// This file defines narrow interfaces for the S3 operations needed by the
// state bucket lifecycle: bucket management, object sync, and the sweep.
package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// CreateBucketAPI defines the subset used to create a bucket.
type CreateBucketAPI interface {
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// HeadBucketAPI defines the subset used to check bucket existence.
type HeadBucketAPI interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// DeleteBucketAPI defines the subset used to remove an empty bucket.
type DeleteBucketAPI interface {
	DeleteBucket(ctx context.Context, params *s3.DeleteBucketInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketOutput, error)
}

// ListBucketsAPI defines the subset used by the sweep to discover buckets.
type ListBucketsAPI interface {
	ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
}

// PutBucketTaggingAPI defines the subset used to tag newly-created buckets.
type PutBucketTaggingAPI interface {
	PutBucketTagging(ctx context.Context, params *s3.PutBucketTaggingInput, optFns ...func(*s3.Options)) (*s3.PutBucketTaggingOutput, error)
}

// ListObjectsV2API defines the subset used to enumerate objects under a prefix.
// It is also the interface accepted by s3.NewListObjectsV2Paginator.
type ListObjectsV2API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// PutObjectAPI defines the subset used for uploading state files.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// GetObjectAPI defines the subset used for downloading state files.
type GetObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// DeleteObjectAPI defines the subset used to remove single objects.
type DeleteObjectAPI interface {
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3API groups every S3 operation tfapi uses into a single interface for
// mock injection in tests.
type S3API interface {
	CreateBucketAPI
	HeadBucketAPI
	DeleteBucketAPI
	ListBucketsAPI
	PutBucketTaggingAPI
	ListObjectsV2API
	PutObjectAPI
	GetObjectAPI
	DeleteObjectAPI
}

// Compile-time checks: *s3.Client satisfies all narrow interfaces.
var (
	_ CreateBucketAPI     = (*s3.Client)(nil)
	_ HeadBucketAPI       = (*s3.Client)(nil)
	_ DeleteBucketAPI     = (*s3.Client)(nil)
	_ ListBucketsAPI      = (*s3.Client)(nil)
	_ PutBucketTaggingAPI = (*s3.Client)(nil)
	_ ListObjectsV2API    = (*s3.Client)(nil)
	_ PutObjectAPI        = (*s3.Client)(nil)
	_ GetObjectAPI        = (*s3.Client)(nil)
	_ DeleteObjectAPI     = (*s3.Client)(nil)
	_ S3API               = (*s3.Client)(nil)
)
