package provision

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/SpiceLabsHQ/tfapi/internal/config"
	"github.com/SpiceLabsHQ/tfapi/internal/registry"
	"github.com/SpiceLabsHQ/tfapi/internal/sweep"
	"github.com/SpiceLabsHQ/tfapi/internal/terraform"
)

// DestroyResult holds the outcome of a successful destroy run.
type DestroyResult struct {
	*terraform.Result
	Template     string         `json:"template"`
	Environment  string         `json:"environment"`
	Bucket       string         `json:"bucket"`
	StateDeleted bool           `json:"stateDeleted"`
	Cleanup      *sweep.Summary `json:"cleanup"`
	Warnings     []string       `json:"warnings,omitempty"`
	Message      string         `json:"message"`
}

// Destroy restores the template's state, runs `terraform destroy`, deletes
// the template's objects and then sweeps buckets. A template without a
// mapping still gets a bucket resolved for the duration of the call, so
// destroy works on a fresh process.
//
// Failures after terraform has succeeded (object deletes, the sweep) are
// reported as warnings and in the cleanup summary, not as errors.
func (s *Service) Destroy(ctx context.Context, req Request) (res *DestroyResult, err error) {
	start := time.Now()
	var bucket string

	release, err := s.begin(&req)
	if err != nil {
		s.audit("destroy", req, "", start, err)
		return nil, err
	}
	defer release()
	defer func() { s.audit("destroy", req, bucket, start, err) }()

	if err := s.runner.CheckDir(); err != nil {
		return nil, err
	}

	bucket, err = s.registry.GetOrCreate(ctx, req.Template, req.Environment)
	if err != nil {
		return nil, fmt.Errorf("resolve bucket: %w", err)
	}

	if _, err := s.syncer.Download(ctx, req.Template, bucket); err != nil {
		return nil, fmt.Errorf("download state: %w", err)
	}

	run, err := s.runner.Run(ctx, "destroy", argsOrDefault(req.Args, DefaultApplyArgs))
	if err != nil {
		return nil, err
	}

	res = &DestroyResult{
		Result:      run,
		Template:    req.Template,
		Environment: req.Environment,
		Bucket:      bucket,
	}

	deleted, err := s.syncer.DeletePrefix(ctx, req.Template, bucket)
	if err != nil {
		s.log.Warn("delete template state failed", zap.String("template", req.Template), zap.Error(err))
		res.Warnings = append(res.Warnings, fmt.Sprintf("delete state: %v", err))
	}
	res.StateDeleted = deleted

	res.Cleanup = s.sweepAfterDestroy(ctx, req, bucket)

	if err := s.registry.Forget(ctx, req.Template); err != nil {
		s.log.Warn("forget template failed", zap.String("template", req.Template), zap.Error(err))
		res.Warnings = append(res.Warnings, fmt.Sprintf("forget mapping: %v", err))
	}

	res.Message = fmt.Sprintf("Template %s destroyed and resources cleaned up", req.Template)
	return res, nil
}

// sweepAfterDestroy runs the configured sweep scope. The template scope
// removes the template's deterministic bucket and its current bucket when
// that one carries a managed name.
func (s *Service) sweepAfterDestroy(ctx context.Context, req Request, bucket string) *sweep.Summary {
	if s.destroySweep != config.SweepTemplate {
		return s.sweeper.CleanupAll(ctx)
	}

	own := registry.BucketName(req.Template, req.Environment)
	names := []string{own}
	if bucket != own && registry.IsManagedName(bucket) {
		names = append(names, bucket)
	}
	return s.sweeper.CleanupBuckets(ctx, names)
}
