package graph

import (
	"path/filepath"
	"strings"
)

// DefaultIgnorePatterns are directories excluded from discovery unless the
// caller overrides them: dependency trees, build output and VCS metadata.
var DefaultIgnorePatterns = []string{
	"node_modules/",
	"vendor/",
	"dist/",
	"build/",
	"out/",
	"__pycache__/",
	".git/",
	".venv/",
	"venv/",
	".tox/",
}

// IgnoreMatcher matches project-relative paths against gitignore-style
// patterns: trailing slash matches a directory anywhere on the path,
// otherwise the pattern is applied to the path and to each path segment.
type IgnoreMatcher struct {
	patterns []string
}

// NewIgnoreMatcher combines the default patterns with user-supplied ones.
func NewIgnoreMatcher(extra []string) *IgnoreMatcher {
	patterns := make([]string, 0, len(DefaultIgnorePatterns)+len(extra))
	patterns = append(patterns, DefaultIgnorePatterns...)
	patterns = append(patterns, extra...)
	return &IgnoreMatcher{patterns: patterns}
}

// Match reports whether a slash-separated relative path should be ignored.
func (m *IgnoreMatcher) Match(relPath string) bool {
	relPath = strings.TrimPrefix(filepath.ToSlash(relPath), "/")
	parts := strings.Split(relPath, "/")

	for _, pattern := range m.patterns {
		if strings.HasSuffix(pattern, "/") {
			dir := strings.TrimSuffix(pattern, "/")
			for _, part := range parts {
				if matched, _ := filepath.Match(dir, part); matched || part == dir {
					return true
				}
			}
			continue
		}
		if matched, _ := filepath.Match(pattern, relPath); matched {
			return true
		}
		for _, part := range parts {
			if matched, _ := filepath.Match(pattern, part); matched {
				return true
			}
		}
	}
	return false
}
