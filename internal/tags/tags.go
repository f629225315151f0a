// Package tags provides tag constants and a fluent tag builder for the
// state buckets tfapi creates.
//
// Every bucket tfapi creates carries the same base tag set so that an
// operator can find leaked buckets in the console even when the name prefix
// convention was not followed.
package tags

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ---------------------------------------------------------------------------
// Tag key constants
// ---------------------------------------------------------------------------

const (
	// TagManaged marks a bucket as created by tfapi. Value is always "true".
	TagManaged = "tfapi"

	// TagTemplate is the template name the bucket was created for.
	TagTemplate = "tfapi:template"

	// TagEnvironment is the environment the bucket was created for.
	TagEnvironment = "tfapi:environment"

	// TagOwner is the friendly owner name derived from STS at runtime.
	TagOwner = "tfapi:owner"

	// TagOwnerARN is the full IAM ARN of the owner.
	TagOwnerARN = "tfapi:owner-arn"
)

// ---------------------------------------------------------------------------
// TagBuilder: fluent builder for S3 bucket tag sets
// ---------------------------------------------------------------------------

// TagBuilder constructs the tag set for a state bucket.
// Base tags (tfapi, template, environment) are always included; owner tags
// are added only when the caller identity is known.
type TagBuilder struct {
	template    string
	environment string

	owner    string
	ownerARN string
}

// NewTagBuilder creates a TagBuilder with the required base fields.
func NewTagBuilder(template, environment string) *TagBuilder {
	return &TagBuilder{template: template, environment: environment}
}

// WithOwner sets the owner tags. Empty values are skipped by Build.
func (b *TagBuilder) WithOwner(owner, ownerARN string) *TagBuilder {
	b.owner = owner
	b.ownerARN = ownerARN
	return b
}

// Build produces the full set of S3 tags.
func (b *TagBuilder) Build() []s3types.Tag {
	tags := []s3types.Tag{
		{Key: aws.String(TagManaged), Value: aws.String("true")},
		{Key: aws.String(TagTemplate), Value: aws.String(b.template)},
		{Key: aws.String(TagEnvironment), Value: aws.String(b.environment)},
	}

	if b.owner != "" {
		tags = append(tags, s3types.Tag{
			Key: aws.String(TagOwner), Value: aws.String(b.owner),
		})
	}

	if b.ownerARN != "" {
		tags = append(tags, s3types.Tag{
			Key: aws.String(TagOwnerARN), Value: aws.String(b.ownerARN),
		})
	}

	return tags
}

// Lookup returns the value of key in tags and whether it was present.
func Lookup(tags []s3types.Tag, key string) (string, bool) {
	for _, t := range tags {
		if aws.ToString(t.Key) == key {
			return aws.ToString(t.Value), true
		}
	}
	return "", false
}
