package identity

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// Owner is the caller identity recorded on buckets tfapi creates.
// Name is the normalized friendly name (tfapi:owner tag value).
// ARN is the full caller ARN (tfapi:owner-arn tag value).
type Owner struct {
	Name    string
	ARN     string
	Account string
}

// STSClient defines the subset of the STS API used for identity resolution.
type STSClient interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// Resolver resolves the current AWS caller identity to an Owner. A
// successful lookup is cached for the lifetime of the Resolver; failures
// are not, so a later call can succeed once credentials appear.
type Resolver struct {
	client STSClient

	mu    sync.Mutex
	owner *Owner
}

// NewResolver creates a Resolver with the given STS client.
func NewResolver(client STSClient) *Resolver {
	return &Resolver{client: client}
}

// Resolve calls STS GetCallerIdentity and normalizes the ARN to an Owner.
func (r *Resolver) Resolve(ctx context.Context) (*Owner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.owner != nil {
		return r.owner, nil
	}

	out, err := r.client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("sts get-caller-identity: %w", err)
	}

	if out.Arn == nil {
		return nil, fmt.Errorf("sts get-caller-identity returned nil ARN")
	}

	name, err := NormalizeARN(*out.Arn)
	if err != nil {
		return nil, fmt.Errorf("normalize ARN: %w", err)
	}

	r.owner = &Owner{
		Name:    name,
		ARN:     *out.Arn,
		Account: aws.ToString(out.Account),
	}
	return r.owner, nil
}
