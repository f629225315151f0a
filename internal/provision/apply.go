package provision

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/SpiceLabsHQ/tfapi/internal/terraform"
)

// ApplyResult holds the outcome of a successful apply run.
type ApplyResult struct {
	*terraform.Result
	Template    string `json:"template"`
	Environment string `json:"environment"`
	Bucket      string `json:"bucket"`
	// ManagedBucket is set when the run provisioned its own state bucket
	// and the template was moved onto it.
	ManagedBucket string   `json:"managedBucket,omitempty"`
	StateRestored bool     `json:"stateRestored"`
	Uploaded      []string `json:"uploaded"`
	Message       string   `json:"message"`
}

// Apply restores the template's state, runs `terraform apply` and uploads
// the updated state. If the run announces a state bucket of its own, the
// template is re-pointed at it and the state is copied there as well.
func (s *Service) Apply(ctx context.Context, req Request) (res *ApplyResult, err error) {
	start := time.Now()
	var bucket string

	release, err := s.begin(&req)
	if err != nil {
		s.audit("apply", req, "", start, err)
		return nil, err
	}
	defer release()
	defer func() { s.audit("apply", req, bucket, start, err) }()

	if err := s.runner.CheckDir(); err != nil {
		return nil, err
	}

	bucket, err = s.registry.GetOrCreate(ctx, req.Template, req.Environment)
	if err != nil {
		return nil, fmt.Errorf("resolve bucket: %w", err)
	}

	restored, err := s.syncer.Download(ctx, req.Template, bucket)
	if err != nil {
		return nil, fmt.Errorf("download state: %w", err)
	}

	run, err := s.runner.Run(ctx, "apply", argsOrDefault(req.Args, DefaultApplyArgs))
	if err != nil {
		return nil, err
	}

	uploaded, err := s.syncer.Upload(ctx, req.Template, bucket)
	if err != nil {
		return nil, fmt.Errorf("upload state: %w", err)
	}

	res = &ApplyResult{
		Result:        run,
		Template:      req.Template,
		Environment:   req.Environment,
		Bucket:        bucket,
		StateRestored: restored,
		Uploaded:      uploaded,
		Message:       fmt.Sprintf("Template %s applied successfully", req.Template),
	}

	managed := s.detectBucket(ctx, run)
	if managed == "" || managed == bucket {
		return res, nil
	}
	if err := s.registry.Adopt(ctx, req.Template, req.Environment, managed); err != nil {
		return nil, fmt.Errorf("adopt bucket %s: %w", managed, err)
	}
	if _, err := s.syncer.Upload(ctx, req.Template, managed); err != nil {
		return nil, fmt.Errorf("upload state to %s: %w", managed, err)
	}
	res.ManagedBucket = managed
	return res, nil
}

// detectBucket asks the detector for a bucket provisioned by the run.
// Detection is best effort: failures are logged and treated as no bucket.
func (s *Service) detectBucket(ctx context.Context, run *terraform.Result) string {
	name, err := s.detector.DetectBucket(ctx, run)
	if err != nil {
		s.log.Warn("managed bucket detection failed", zap.Error(err))
		return ""
	}
	return name
}
