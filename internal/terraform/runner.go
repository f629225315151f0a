// Package terraform runs the terraform CLI as an opaque external process in a
// fixed project directory. It captures and streams the process output,
// resolves success from the exit code, and bounds every run with a deadline.
package terraform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/SpiceLabsHQ/tfapi/internal/metrics"
)

// DefaultBinary is the executable invoked when no binary is configured.
const DefaultBinary = "terraform"

// waitDelay is how long terraform gets to exit after the interrupt sent on
// cancellation before it is killed.
const waitDelay = 10 * time.Second

var (
	// ErrWorkdirNotFound is returned when the configured project directory
	// does not exist. No process is spawned.
	ErrWorkdirNotFound = errors.New("terraform project path not found")

	// ErrTimedOut is returned when a run exceeds the runner's timeout.
	ErrTimedOut = errors.New("terraform run timed out")
)

// Result is the outcome of a single terraform invocation. ExitCode is nil
// when the process never ran to completion (spawn failure or timeout).
type Result struct {
	Success  bool   `json:"success"`
	Command  string `json:"command"`
	Output   string `json:"output,omitempty"`
	Error    string `json:"error,omitempty"`
	ExitCode *int   `json:"exitCode,omitempty"`
}

// RunError carries the failure Result of a run that did not succeed.
type RunError struct {
	Result *Result
	Err    error
}

func (e *RunError) Error() string {
	if e.Result.ExitCode != nil {
		msg := fmt.Sprintf("%s exited with code %d", e.Result.Command, *e.Result.ExitCode)
		if stderr := strings.TrimSpace(e.Result.Error); stderr != "" {
			msg += ": " + stderr
		}
		return msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Result.Command, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Result.Command, e.Result.Error)
}

func (e *RunError) Unwrap() error { return e.Err }

// Runner invokes terraform in a single working directory.
type Runner struct {
	bin     string
	dir     string
	timeout time.Duration
	log     *zap.Logger
	metrics *metrics.Metrics
}

// Option configures a Runner.
type Option func(*Runner)

// WithBinary overrides the terraform executable.
func WithBinary(bin string) Option {
	return func(r *Runner) {
		if bin != "" {
			r.bin = bin
		}
	}
}

// WithTimeout bounds every run. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) { r.timeout = d }
}

// WithLogger sets the logger that receives streamed process output.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// NewRunner creates a Runner for the project at dir.
func NewRunner(dir string, opts ...Option) *Runner {
	r := &Runner{
		bin: DefaultBinary,
		dir: dir,
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dir returns the project directory.
func (r *Runner) Dir() string {
	return r.dir
}

// CheckDir verifies the project directory exists.
func (r *Runner) CheckDir() error {
	info, err := os.Stat(r.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrWorkdirNotFound, r.dir)
		}
		return fmt.Errorf("stat terraform project path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrWorkdirNotFound, r.dir)
	}
	return nil
}

// Run executes `terraform <command> <args...>` in the project directory and
// blocks until it exits, the runner's timeout fires, or ctx is cancelled.
// Stdout and stderr are streamed to the logger chunk by chunk and
// accumulated into the Result. Any outcome other than exit code 0 returns
// a *RunError alongside the failure Result.
func (r *Runner) Run(ctx context.Context, command string, args []string) (res *Result, err error) {
	label := "terraform " + command
	if err := r.CheckDir(); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() { r.metrics.ObserveTerraform(command, time.Since(start), err) }()

	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	r.log.Info("running terraform", zap.String("command", label), zap.Strings("args", args), zap.String("dir", r.dir))

	cmd := exec.CommandContext(runCtx, r.bin, append([]string{command}, args...)...)
	cmd.Dir = r.dir
	// Interrupt first so terraform can release its lock and write state.
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = waitDelay

	stdout := &chunkWriter{log: r.log, stream: "stdout"}
	stderr := &chunkWriter{log: r.log, stream: "stderr"}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return r.spawnFailure(label, err)
	}
	waitErr := cmd.Wait()

	res = &Result{
		Command: label,
		Output:  stdout.String(),
	}

	switch {
	case waitErr == nil:
		res.Success = true
		r.log.Info("terraform finished", zap.String("command", label), zap.Duration("elapsed", time.Since(start)))
		return res, nil

	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		res.Error = stderr.String()
		r.log.Error("terraform timed out", zap.String("command", label), zap.Duration("timeout", r.timeout))
		return res, &RunError{Result: res, Err: fmt.Errorf("%w after %s", ErrTimedOut, r.timeout)}

	case ctx.Err() != nil:
		res.Error = stderr.String()
		return res, &RunError{Result: res, Err: ctx.Err()}
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		code := exitErr.ExitCode()
		res.ExitCode = &code
		res.Error = stderr.String()
		r.log.Error("terraform failed", zap.String("command", label), zap.Int("exit_code", code))
		return res, &RunError{Result: res}
	}

	res.Error = waitErr.Error()
	return res, &RunError{Result: res, Err: waitErr}
}

func (r *Runner) spawnFailure(label string, err error) (*Result, error) {
	r.log.Error("terraform could not be started", zap.String("command", label), zap.Error(err))
	res := &Result{Command: label, Error: err.Error()}
	return res, &RunError{Result: res, Err: err}
}

// chunkWriter accumulates process output and logs each chunk as exec
// delivers it.
type chunkWriter struct {
	log    *zap.Logger
	stream string

	mu  sync.Mutex
	buf strings.Builder
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	w.buf.Write(p)
	w.mu.Unlock()

	text := strings.TrimRight(string(p), "\n")
	if w.stream == "stderr" {
		w.log.Warn("terraform output", zap.String("stream", w.stream), zap.String("chunk", text))
	} else {
		w.log.Info("terraform output", zap.String("stream", w.stream), zap.String("chunk", text))
	}
	return len(p), nil
}

func (w *chunkWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

// OutputValue is one entry of `terraform output -json`.
type OutputValue struct {
	Sensitive bool            `json:"sensitive"`
	Type      json.RawMessage `json:"type"`
	Value     json.RawMessage `json:"value"`
}

// Outputs runs `terraform output -json` and decodes the root module
// outputs.
func (r *Runner) Outputs(ctx context.Context) (map[string]OutputValue, error) {
	res, err := r.Run(ctx, "output", []string{"-json"})
	if err != nil {
		return nil, err
	}
	return ParseOutputs([]byte(res.Output))
}

// ParseOutputs decodes the JSON document printed by `terraform output -json`.
// Empty input decodes to an empty map.
func ParseOutputs(data []byte) (map[string]OutputValue, error) {
	outputs := make(map[string]OutputValue)
	if len(strings.TrimSpace(string(data))) == 0 {
		return outputs, nil
	}
	if err := json.Unmarshal(data, &outputs); err != nil {
		return nil, fmt.Errorf("decode terraform outputs: %w", err)
	}
	return outputs, nil
}
