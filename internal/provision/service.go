// Package provision runs the template operations: each one resolves the
// template's bucket, moves state files in or out, and runs terraform in the
// project directory.
//
// Operations on one template are mutually exclusive. A second request for a
// template that is already busy fails fast with registry.ErrBusy.
package provision

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/SpiceLabsHQ/tfapi/internal/config"
	"github.com/SpiceLabsHQ/tfapi/internal/logging"
	"github.com/SpiceLabsHQ/tfapi/internal/registry"
	"github.com/SpiceLabsHQ/tfapi/internal/statesync"
	"github.com/SpiceLabsHQ/tfapi/internal/sweep"
	"github.com/SpiceLabsHQ/tfapi/internal/terraform"
)

// Runner runs terraform in the project directory.
type Runner interface {
	Dir() string
	CheckDir() error
	Run(ctx context.Context, command string, args []string) (*terraform.Result, error)
}

// BucketProber reports whether a bucket exists.
type BucketProber interface {
	BucketExists(ctx context.Context, name string) (bool, error)
}

var _ Runner = (*terraform.Runner)(nil)

// Deps holds the collaborators of a Service. Detector and Auditor are
// optional.
type Deps struct {
	Runner   Runner
	Syncer   *statesync.Syncer
	Registry *registry.Registry
	Locks    *registry.Locks
	Sweeper  *sweep.Sweeper
	Buckets  BucketProber
	Detector terraform.BucketDetector
	Auditor  logging.Auditor
	Log      *zap.Logger

	// DefaultEnvironment is used when a request names none.
	DefaultEnvironment string
	// DestroySweep is config.SweepAll or config.SweepTemplate.
	DestroySweep string
}

// Service runs template operations.
type Service struct {
	runner   Runner
	syncer   *statesync.Syncer
	registry *registry.Registry
	locks    *registry.Locks
	sweeper  *sweep.Sweeper
	buckets  BucketProber
	detector terraform.BucketDetector
	auditor  logging.Auditor
	log      *zap.Logger

	defaultEnv   string
	destroySweep string
}

// New creates a Service.
func New(d Deps) *Service {
	s := &Service{
		runner:       d.Runner,
		syncer:       d.Syncer,
		registry:     d.Registry,
		locks:        d.Locks,
		sweeper:      d.Sweeper,
		buckets:      d.Buckets,
		detector:     d.Detector,
		auditor:      d.Auditor,
		log:          d.Log,
		defaultEnv:   d.DefaultEnvironment,
		destroySweep: d.DestroySweep,
	}
	if s.locks == nil {
		s.locks = registry.NewLocks()
	}
	if s.detector == nil {
		s.detector = terraform.ScrapeDetector{}
	}
	if s.auditor == nil {
		s.auditor = logging.NopAuditor{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.defaultEnv == "" {
		s.defaultEnv = "dev"
	}
	if s.destroySweep == "" {
		s.destroySweep = config.SweepAll
	}
	return s
}

// Request is the input to a mutating template operation.
type Request struct {
	Template    string
	Environment string
	Args        []string
	RequestID   string
}

// DefaultApplyArgs is used by apply and destroy when the request carries no
// arguments.
var DefaultApplyArgs = []string{"-auto-approve"}

// Environment returns env, or the configured default when env is empty.
func (s *Service) Environment(env string) string {
	if env == "" {
		return s.defaultEnv
	}
	return env
}

// ActiveTemplates returns the number of templates with an operation in
// flight.
func (s *Service) ActiveTemplates() int {
	return s.locks.Held()
}

// begin validates the request, fills in the environment and takes the
// template lock. The returned release must be called exactly when begin
// succeeds.
func (s *Service) begin(req *Request) (func(), error) {
	if err := statesync.ValidateTemplate(req.Template); err != nil {
		return nil, err
	}
	req.Environment = s.Environment(req.Environment)
	return s.locks.TryAcquire(req.Template)
}

// audit records the outcome of an operation. Audit failures are logged and
// otherwise ignored.
func (s *Service) audit(op string, req Request, bucket string, start time.Time, err error) {
	entry := logging.AuditLogEntry{
		RequestID:   req.RequestID,
		Operation:   op,
		Template:    req.Template,
		Environment: req.Environment,
		Bucket:      bucket,
		Result:      "success",
		DurationMs:  time.Since(start).Milliseconds(),
	}
	if err != nil {
		entry.Result = "error"
		if errors.Is(err, registry.ErrBusy) {
			entry.Result = "busy"
		}
		entry.Error = err.Error()
	}
	if aerr := s.auditor.Record(entry); aerr != nil {
		s.log.Warn("audit record failed", zap.Error(aerr))
	}
}

func argsOrDefault(args, def []string) []string {
	if len(args) == 0 {
		return append([]string(nil), def...)
	}
	return args
}
