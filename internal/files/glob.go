package files

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/gobwas/glob"

	"github.com/release-tools/go-bumpversion/internal/config"
)

// Covers reports whether the slash-separated relative path is addressed by
// any of the configured changes, matching glob changes by pattern and plain
// changes by equality.
func Covers(changes []config.FileChange, path string) bool {
	for _, change := range changes {
		if !change.Glob {
			if filepath.ToSlash(change.Path) == path {
				return true
			}
			continue
		}
		if matcher, err := glob.Compile(change.Path, '/'); err == nil && matcher.Match(path) {
			return true
		}
	}
	return false
}

// expandGlob walks the working directory and returns the slash-separated
// relative paths matching pattern minus any exclude patterns, sorted for
// deterministic processing order.
func expandGlob(workDir, pattern string, excludes []string) ([]string, error) {
	matcher, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
	}

	excludeMatchers := make([]glob.Glob, 0, len(excludes))
	for _, ex := range excludes {
		m, err := glob.Compile(ex, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid glob exclude pattern %q: %w", ex, err)
		}
		excludeMatchers = append(excludeMatchers, m)
	}

	var matches []string
	err = filepath.WalkDir(workDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(workDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !matcher.Match(rel) {
			return nil
		}
		for _, ex := range excludeMatchers {
			if ex.Match(rel) {
				return nil
			}
		}
		matches = append(matches, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("expanding glob %q: %w", pattern, err)
	}

	sort.Strings(matches)
	return matches, nil
}
