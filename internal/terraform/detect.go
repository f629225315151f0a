package terraform

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"go.uber.org/zap"
)

// StateBucketOutput is the terraform output name a project uses to announce
// a state bucket it provisioned as a managed resource.
const StateBucketOutput = "terraform_state_bucket"

// BucketDetector finds the name of a bucket that a terraform run itself
// provisioned. It returns "" when no bucket is announced.
type BucketDetector interface {
	DetectBucket(ctx context.Context, run *Result) (string, error)
}

// OutputsReader is the subset of Runner used by OutputDetector.
type OutputsReader interface {
	Outputs(ctx context.Context) (map[string]OutputValue, error)
}

// OutputDetector reads the bucket name from the structured output channel
// (`terraform output -json`).
type OutputDetector struct {
	Reader OutputsReader
	Name   string
}

// NewOutputDetector creates an OutputDetector for the StateBucketOutput
// output.
func NewOutputDetector(reader OutputsReader) *OutputDetector {
	return &OutputDetector{Reader: reader, Name: StateBucketOutput}
}

func (d *OutputDetector) DetectBucket(ctx context.Context, _ *Result) (string, error) {
	outputs, err := d.Reader.Outputs(ctx)
	if err != nil {
		return "", fmt.Errorf("read terraform outputs: %w", err)
	}
	out, ok := outputs[d.Name]
	if !ok || len(out.Value) == 0 {
		return "", nil
	}
	var name string
	if err := json.Unmarshal(out.Value, &name); err != nil {
		return "", fmt.Errorf("output %q is not a string: %w", d.Name, err)
	}
	return name, nil
}

// scrapePatterns are tried in order against captured stdout. The first is
// the explicit output line; the second is a looser fallback for any
// bucket-ish attribute assignment.
var scrapePatterns = []*regexp.Regexp{
	regexp.MustCompile(`terraform_state_bucket\s*=\s*"([^"]+)"`),
	regexp.MustCompile(`bucket[^=\n]*=\s*"([^"]+)"`),
}

// ScrapeDetector recovers the bucket name from human-readable run output.
// It is brittle and only used when the structured channel yields nothing.
type ScrapeDetector struct{}

func (ScrapeDetector) DetectBucket(_ context.Context, run *Result) (string, error) {
	if run == nil {
		return "", nil
	}
	for _, re := range scrapePatterns {
		if m := re.FindStringSubmatch(run.Output); m != nil {
			return m[1], nil
		}
	}
	return "", nil
}

// ChainDetector tries each detector in order and returns the first non-empty
// name. Detector errors are logged and skipped.
type ChainDetector struct {
	Detectors []BucketDetector
	Log       *zap.Logger
}

// NewChainDetector creates a ChainDetector.
func NewChainDetector(log *zap.Logger, detectors ...BucketDetector) *ChainDetector {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChainDetector{Detectors: detectors, Log: log}
}

func (c *ChainDetector) DetectBucket(ctx context.Context, run *Result) (string, error) {
	for _, d := range c.Detectors {
		name, err := d.DetectBucket(ctx, run)
		if err != nil {
			c.Log.Warn("bucket detector failed", zap.String("detector", fmt.Sprintf("%T", d)), zap.Error(err))
			continue
		}
		if name != "" {
			return name, nil
		}
	}
	return "", nil
}
