package provision

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/SpiceLabsHQ/tfapi/internal/registry"
	"github.com/SpiceLabsHQ/tfapi/internal/statesync"
)

// StatusResult describes where a template's state lives and what is there.
type StatusResult struct {
	Template     string   `json:"template"`
	Environment  string   `json:"environment"`
	Bucket       string   `json:"bucket"`
	BucketExists bool     `json:"bucketExists"`
	HasState     bool     `json:"hasState"`
	StateFiles   []string `json:"stateFiles"`
}

// TemplateInfo is one entry of the template listing.
type TemplateInfo struct {
	Name        string `json:"name"`
	Environment string `json:"environment"`
	Bucket      string `json:"bucket"`
	HasState    bool   `json:"hasState"`
}

// Status reports the template's bucket and stored state files. It takes no
// lock and never creates a bucket: without a mapping for env it reports on
// the bucket the template would get.
func (s *Service) Status(ctx context.Context, template, env string) (*StatusResult, error) {
	if err := statesync.ValidateTemplate(template); err != nil {
		return nil, err
	}
	env = s.Environment(env)

	bucket := registry.BucketName(template, env)
	m, ok, err := s.registry.Lookup(ctx, template)
	if err != nil {
		return nil, fmt.Errorf("lookup mapping: %w", err)
	}
	if ok && m.Environment == env {
		bucket = m.Bucket
	}

	res := &StatusResult{
		Template:    template,
		Environment: env,
		Bucket:      bucket,
		StateFiles:  []string{},
	}

	exists, err := s.buckets.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("probe bucket %s: %w", bucket, err)
	}
	if !exists {
		return res, nil
	}
	res.BucketExists = true

	keys, err := s.syncer.Keys(ctx, template, bucket)
	if err != nil {
		return nil, fmt.Errorf("list state files: %w", err)
	}
	if len(keys) > 0 {
		res.StateFiles = keys
		res.HasState = true
	}
	return res, nil
}

// Templates lists every mapped template. HasState comes from one delimited
// listing per distinct bucket; a bucket that cannot be listed yields
// HasState false for its templates.
func (s *Service) Templates(ctx context.Context) ([]TemplateInfo, error) {
	mappings, err := s.registry.Mappings(ctx)
	if err != nil {
		return nil, err
	}

	stored := make(map[string]map[string]bool)
	out := make([]TemplateInfo, 0, len(mappings))
	for _, m := range mappings {
		names, ok := stored[m.Bucket]
		if !ok {
			names = make(map[string]bool)
			templates, err := s.syncer.Templates(ctx, m.Bucket)
			if err != nil {
				s.log.Warn("list bucket templates failed", zap.String("bucket", m.Bucket), zap.Error(err))
			}
			for _, t := range templates {
				names[t] = true
			}
			stored[m.Bucket] = names
		}
		out = append(out, TemplateInfo{
			Name:        m.Template,
			Environment: m.Environment,
			Bucket:      m.Bucket,
			HasState:    names[m.Template],
		})
	}
	return out, nil
}
