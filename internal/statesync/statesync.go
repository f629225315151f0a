// Package statesync mirrors terraform state files between the local project
// directory and a bucket. Objects are keyed "<template>/<filename>", so a
// single bucket can hold several templates without collisions.
//
// Nothing here is atomic across files: a failure part-way through an upload
// leaves a strict subset of the files in the bucket.
package statesync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/SpiceLabsHQ/tfapi/internal/blobstore"
)

// DefaultMarker is the substring that identifies a state file by name
// (terraform.tfstate, terraform.tfstate.backup, ...).
const DefaultMarker = "tfstate"

// maxTemplateLen keeps template-derived keys and bucket names well inside
// S3 limits.
const maxTemplateLen = 200

// ErrInvalidTemplate is returned for template names that cannot be used as
// a key prefix.
var ErrInvalidTemplate = errors.New("invalid template name")

// Store is the subset of blobstore.Client used by the Syncer.
type Store interface {
	ListObjects(ctx context.Context, bucket, prefix, delimiter string) (*blobstore.Listing, error)
	PutObject(ctx context.Context, bucket, key string, data []byte) error
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	DeleteObject(ctx context.Context, bucket, key string) error
}

var _ Store = (*blobstore.Client)(nil)

// Syncer moves state files for one project directory.
type Syncer struct {
	store  Store
	dir    string
	marker string
	log    *zap.Logger
}

// New creates a Syncer for dir. An empty marker selects DefaultMarker.
func New(store Store, dir, marker string, log *zap.Logger) *Syncer {
	if marker == "" {
		marker = DefaultMarker
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Syncer{store: store, dir: dir, marker: marker, log: log}
}

// ValidateTemplate checks that name is usable as a key prefix.
func ValidateTemplate(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrInvalidTemplate)
	case len(name) > maxTemplateLen:
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidTemplate, maxTemplateLen)
	case strings.Contains(name, "/"):
		return fmt.Errorf("%w: %q contains '/'", ErrInvalidTemplate, name)
	case strings.Contains(name, ".."):
		return fmt.Errorf("%w: %q contains '..'", ErrInvalidTemplate, name)
	}
	return nil
}

// Prefix returns the key prefix holding a template's state files.
func Prefix(template string) string {
	return template + "/"
}

// Key returns the object key for one of a template's state files.
func Key(template, filename string) string {
	return Prefix(template) + filename
}

// LocalStateFiles returns the names of regular files in the project
// directory whose name contains the marker, sorted.
func (s *Syncer) LocalStateFiles() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read project dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if strings.Contains(e.Name(), s.marker) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Upload puts every local state file under the template's prefix and
// returns the keys written. It stops at the first failure.
func (s *Syncer) Upload(ctx context.Context, template, bucket string) ([]string, error) {
	if err := ValidateTemplate(template); err != nil {
		return nil, err
	}
	names, err := s.LocalStateFiles()
	if err != nil {
		return nil, err
	}

	uploaded := make([]string, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return uploaded, fmt.Errorf("read %s: %w", name, err)
		}
		key := Key(template, name)
		if err := s.store.PutObject(ctx, bucket, key, data); err != nil {
			return uploaded, fmt.Errorf("upload %s: %w", name, err)
		}
		s.log.Info("uploaded state file",
			zap.String("template", template), zap.String("bucket", bucket), zap.String("key", key))
		uploaded = append(uploaded, key)
	}
	return uploaded, nil
}

// Download writes every object under the template's prefix into the
// project directory, overwriting local files of the same name. It reports
// false (and no error) when the prefix is empty.
func (s *Syncer) Download(ctx context.Context, template, bucket string) (bool, error) {
	if err := ValidateTemplate(template); err != nil {
		return false, err
	}
	listing, err := s.store.ListObjects(ctx, bucket, Prefix(template), "")
	if err != nil {
		return false, err
	}
	if len(listing.Objects) == 0 {
		return false, nil
	}

	for _, obj := range listing.Objects {
		name := path.Base(obj.Key)
		if name == "" || name == "." || name == "/" {
			continue
		}
		if err := s.downloadOne(ctx, bucket, obj.Key, filepath.Join(s.dir, name)); err != nil {
			return false, err
		}
		s.log.Info("downloaded state file",
			zap.String("template", template), zap.String("bucket", bucket), zap.String("key", obj.Key))
	}
	return true, nil
}

func (s *Syncer) downloadOne(ctx context.Context, bucket, key, dst string) error {
	body, err := s.store.GetObject(ctx, bucket, key)
	if err != nil {
		return err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read s3://%s/%s: %w", bucket, key, err)
	}
	if err := os.WriteFile(dst, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return nil
}

// DeletePrefix removes every object under the template's prefix. It
// reports false (and no error) when the prefix was already empty.
// Individual delete failures are logged and skipped; the joined error is
// returned once every object has been attempted.
func (s *Syncer) DeletePrefix(ctx context.Context, template, bucket string) (bool, error) {
	if err := ValidateTemplate(template); err != nil {
		return false, err
	}
	listing, err := s.store.ListObjects(ctx, bucket, Prefix(template), "")
	if err != nil {
		return false, err
	}
	if len(listing.Objects) == 0 {
		return false, nil
	}

	var errs []error
	for _, obj := range listing.Objects {
		if err := s.store.DeleteObject(ctx, bucket, obj.Key); err != nil {
			s.log.Warn("delete state object failed",
				zap.String("bucket", bucket), zap.String("key", obj.Key), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		s.log.Info("deleted state object", zap.String("bucket", bucket), zap.String("key", obj.Key))
	}
	return true, errors.Join(errs...)
}

// Keys lists the object keys stored for a template.
func (s *Syncer) Keys(ctx context.Context, template, bucket string) ([]string, error) {
	if err := ValidateTemplate(template); err != nil {
		return nil, err
	}
	listing, err := s.store.ListObjects(ctx, bucket, Prefix(template), "")
	if err != nil {
		return nil, err
	}
	return listing.Keys(), nil
}

// Templates lists the template names that have at least one object in
// bucket.
func (s *Syncer) Templates(ctx context.Context, bucket string) ([]string, error) {
	listing, err := s.store.ListObjects(ctx, bucket, "", "/")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(listing.Prefixes))
	for _, p := range listing.Prefixes {
		names = append(names, strings.TrimSuffix(p, "/"))
	}
	return names, nil
}
