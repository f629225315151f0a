package terraform

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// s3BackendBlock matches a `backend "s3" { ... }` block. Backend blocks hold
// only attributes, so the body is assumed to contain no nested braces.
var s3BackendBlock = regexp.MustCompile(`(?s)backend\s*"s3"\s*\{[^}]*\}`)

var localBackend = regexp.MustCompile(`backend\s*"local"`)

// PrepareLocalBackend rewrites dir/main.tf so that terraform keeps its state
// in the working directory, where the state sync can find it. An s3 backend
// block is replaced by `backend "local" {}` and preserved as a comment.
// It reports whether the file changed. A missing main.tf or a file that
// already declares a local backend is left alone.
func PrepareLocalBackend(dir string) (bool, error) {
	path := filepath.Join(dir, "main.tf")
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", path, err)
	}

	content := string(data)
	if localBackend.MatchString(content) || !s3BackendBlock.MatchString(content) {
		return false, nil
	}

	rewritten := s3BackendBlock.ReplaceAllStringFunc(content, func(block string) string {
		commented := strings.ReplaceAll(block, "*/", "* /")
		return "backend \"local\" {}\n  /* replaced by tfapi:\n  " + commented + "\n  */"
	})

	info, err := os.Stat(path)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(rewritten), info.Mode().Perm()); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
