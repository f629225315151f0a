package provision

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/SpiceLabsHQ/tfapi/internal/terraform"
)

// InitResult holds the outcome of a successful init run.
type InitResult struct {
	*terraform.Result
	Template    string   `json:"template"`
	Environment string   `json:"environment"`
	Bucket      string   `json:"bucket"`
	Uploaded    []string `json:"uploaded"`
	Message     string   `json:"message"`
}

// Init points terraform at a local backend, makes sure the template has a
// bucket, runs `terraform init` and uploads the resulting state files.
func (s *Service) Init(ctx context.Context, req Request) (res *InitResult, err error) {
	start := time.Now()
	var bucket string

	release, err := s.begin(&req)
	if err != nil {
		s.audit("init", req, "", start, err)
		return nil, err
	}
	defer release()
	defer func() { s.audit("init", req, bucket, start, err) }()

	if err := s.runner.CheckDir(); err != nil {
		return nil, err
	}
	changed, err := terraform.PrepareLocalBackend(s.runner.Dir())
	if err != nil {
		return nil, fmt.Errorf("prepare local backend: %w", err)
	}
	if changed {
		s.log.Info("switched main.tf to the local backend", zap.String("dir", s.runner.Dir()))
	}

	bucket, err = s.registry.GetOrCreate(ctx, req.Template, req.Environment)
	if err != nil {
		return nil, fmt.Errorf("resolve bucket: %w", err)
	}

	run, err := s.runner.Run(ctx, "init", req.Args)
	if err != nil {
		return nil, err
	}

	uploaded, err := s.syncer.Upload(ctx, req.Template, bucket)
	if err != nil {
		return nil, fmt.Errorf("upload state: %w", err)
	}

	return &InitResult{
		Result:      run,
		Template:    req.Template,
		Environment: req.Environment,
		Bucket:      bucket,
		Uploaded:    uploaded,
		Message:     fmt.Sprintf("Template %s initialized successfully", req.Template),
	}, nil
}
