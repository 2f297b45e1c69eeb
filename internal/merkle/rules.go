package merkle

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/semantica-dev/codectx/pkg/types"
)

const (
	// DefaultMaxFileSize bounds the size of files the tracker will hash.
	// Oversized files are skipped with a warning.
	DefaultMaxFileSize = 1 << 20 // 1 MiB
)

// defaultExcludeGlobs covers version-control metadata, dependency caches,
// and build output that should never enter the index.
var defaultExcludeGlobs = []string{
	"**/.git/**",
	"**/.hg/**",
	"**/.svn/**",
	"**/.idea/**",
	"**/.vscode/**",
	"**/node_modules/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/.pytest_cache/**",
	"**/.venv/**",
	"**/venv/**",
	"**/env/**",
	"**/dist/**",
	"**/build/**",
	"**/target/**",
}

// Rules filters the file tree before hashing.
type Rules struct {
	// IncludeExtensions restricts tracking to the listed suffixes
	// (lowercase, with leading dot). Empty means every regular file.
	IncludeExtensions []string

	// ExcludeGlobs are doublestar patterns matched against the
	// slash-separated relative path. Matching files and directories are
	// skipped entirely.
	ExcludeGlobs []string

	// MaxFileSize skips files larger than this many bytes. Zero applies
	// DefaultMaxFileSize.
	MaxFileSize int64
}

// DefaultRules tracks the supported source-language extensions and excludes
// the usual dependency and build directories.
func DefaultRules() Rules {
	return Rules{
		IncludeExtensions: types.SourceExtensions(),
		ExcludeGlobs:      defaultExcludeGlobs,
		MaxFileSize:       DefaultMaxFileSize,
	}
}

// excludesPath reports whether relPath (slash-separated) matches any
// exclude glob. Malformed patterns never match.
func (r Rules) excludesPath(relPath string) bool {
	for _, pattern := range r.ExcludeGlobs {
		if ok, err := doublestar.Match(pattern, relPath); err == nil && ok {
			return true
		}
	}
	return false
}

// includesFile reports whether a regular file at relPath with the given
// metadata should be tracked, and if not, why.
func (r Rules) includesFile(relPath string, info fs.FileInfo) (bool, string) {
	if r.excludesPath(relPath) {
		return false, "excluded by glob"
	}

	if len(r.IncludeExtensions) > 0 {
		ext := strings.ToLower(filepath.Ext(relPath))
		found := false
		for _, want := range r.IncludeExtensions {
			if ext == want {
				found = true
				break
			}
		}
		if !found {
			return false, "extension not tracked"
		}
	}

	maxSize := r.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	if info.Size() > maxSize {
		return false, "file too large"
	}

	return true, ""
}
