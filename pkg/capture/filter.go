package capture

import (
	"strings"

	"github.com/gobwas/glob"

	apperrors "github.com/inframehq/inframe/pkg/errors"
)

// AppFilter handles glob pattern matching for the application allow-list.
// Plain names (no glob metacharacters) match anywhere in a window title;
// patterns containing metacharacters are used as-is. Matching is
// case-insensitive.
type AppFilter struct {
	includePatterns []glob.Glob
	excludePatterns []glob.Glob
}

// NewAppFilter compiles the include and exclude lists.
func NewAppFilter(include, exclude []string) (*AppFilter, error) {
	f := &AppFilter{}

	for _, pattern := range include {
		g, err := glob.Compile(normalizePattern(pattern))
		if err != nil {
			return nil, apperrors.New(apperrors.ErrCodeInvalidConfig, "invalid include-app pattern '"+pattern+"'", err)
		}
		f.includePatterns = append(f.includePatterns, g)
	}

	for _, pattern := range exclude {
		g, err := glob.Compile(normalizePattern(pattern))
		if err != nil {
			return nil, apperrors.New(apperrors.ErrCodeInvalidConfig, "invalid exclude-app pattern '"+pattern+"'", err)
		}
		f.excludePatterns = append(f.excludePatterns, g)
	}

	return f, nil
}

// Allows returns true if the application name passes the filter rules.
func (f *AppFilter) Allows(appName string) bool {
	name := strings.ToLower(appName)

	// Exclude patterns take precedence
	for _, pattern := range f.excludePatterns {
		if pattern.Match(name) {
			return false
		}
	}

	// If no include patterns specified, allow all (except excluded)
	if len(f.includePatterns) == 0 {
		return true
	}

	for _, pattern := range f.includePatterns {
		if pattern.Match(name) {
			return true
		}
	}

	return false
}

// normalizePattern wraps plain application names so they match anywhere in
// a window title, e.g. "Cursor" matches "main.go - project - Cursor".
func normalizePattern(pattern string) string {
	pattern = strings.ToLower(pattern)
	if strings.ContainsAny(pattern, "*?[{") {
		return pattern
	}
	return "*" + pattern + "*"
}
