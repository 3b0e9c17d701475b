// Package files implements the rewriter pipeline: expanding configured
// paths, locating search-pattern occurrences, producing rewritten buffers
// and dry-run diffs, and committing all writes only once every file has
// planned cleanly.
package files

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/release-tools/go-bumpversion/internal/config"
	"github.com/release-tools/go-bumpversion/internal/version"
)

// NoMatchesError reports a search pattern absent from a file.
type NoMatchesError struct {
	Path    string
	Pattern string
}

func (e *NoMatchesError) Error() string {
	return fmt.Sprintf("did not find %q in file %s", e.Pattern, e.Path)
}

// FileNotFoundError reports a configured file missing from the tree.
type FileNotFoundError struct {
	Path string
}

func (e *FileNotFoundError) Error() string {
	return fmt.Sprintf("file not found: %s", e.Path)
}

// ConflictError reports two configured changes competing for the same
// region of a file.
type ConflictError struct {
	Path    string
	Pattern string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicting replacements for %s: pattern %q was already rewritten by an earlier change",
		e.Path, e.Pattern)
}

// Rewrite is the planned outcome for one file.
type Rewrite struct {
	// Path is relative to the working directory.
	Path     string
	Original []byte
	New      []byte

	// Diff is a unified diff of Original against New, empty when nothing
	// changed.
	Diff string

	// Matches counts pattern occurrences, including ones already equal to
	// their replacement.
	Matches int
}

// Changed reports whether committing the rewrite will modify the file.
func (r *Rewrite) Changed() bool {
	return string(r.Original) != string(r.New)
}

// Plan is the full set of pending writes for one run. No file is touched
// until Commit, and Commit is only reached when every file planned without
// error.
type Plan struct {
	WorkDir  string
	Rewrites []Rewrite
}

// Planner computes rewrite plans against a working directory.
type Planner struct {
	// WorkDir is the root all relative paths resolve against.
	WorkDir string

	// Env is the render environment: time values, $-prefixed process
	// environment, and VCS context.
	Env map[string]string

	// ExcludedPaths drops resolved paths from the plan; IncludedPaths
	// exempts paths from exclusion.
	ExcludedPaths []string
	IncludedPaths []string
}

// excluded reports whether a resolved path is configured out of the run.
func (p *Planner) excluded(path string) bool {
	for _, inc := range p.IncludedPaths {
		if filepath.ToSlash(inc) == path {
			return false
		}
	}
	for _, exc := range p.ExcludedPaths {
		if filepath.ToSlash(exc) == path {
			return true
		}
	}
	return false
}

// target is one concrete file with its changes in configuration order.
type target struct {
	path    string
	changes []config.FileChange
}

// expand resolves every configured FileChange to concrete relative paths,
// expanding glob patterns and grouping changes that share a path in
// configuration order. A glob that matches nothing yields a warning; a
// literal path is checked later, during planning.
func (p *Planner) expand(changes []config.FileChange) ([]target, []string, error) {
	var order []string
	grouped := make(map[string][]config.FileChange)
	var warnings []string

	add := func(path string, change config.FileChange) {
		if _, seen := grouped[path]; !seen {
			order = append(order, path)
		}
		// The same change configured twice for one path (directly and via a
		// glob, say) applies once.
		for _, existing := range grouped[path] {
			if sameChange(existing, change) {
				return
			}
		}
		grouped[path] = append(grouped[path], change)
	}

	for _, change := range changes {
		if !change.Glob {
			add(filepath.ToSlash(change.Path), change)
			continue
		}
		matches, err := expandGlob(p.WorkDir, change.Path, change.GlobExclude)
		if err != nil {
			return nil, nil, err
		}
		if len(matches) == 0 {
			warnings = append(warnings, fmt.Sprintf("glob pattern %q matched no files", change.Path))
			continue
		}
		for _, m := range matches {
			add(m, change)
		}
	}

	targets := make([]target, 0, len(order))
	for _, path := range order {
		if p.excluded(path) {
			continue
		}
		targets = append(targets, target{path: path, changes: grouped[path]})
	}
	return targets, warnings, nil
}

// Plan computes the rewritten buffer for every configured file. Any error
// aborts planning so that no file is ever partially written.
func (p *Planner) Plan(changes []config.FileChange, current, next *version.Version) (*Plan, []string, error) {
	targets, warnings, err := p.expand(changes)
	if err != nil {
		return nil, nil, err
	}

	plan := &Plan{WorkDir: p.WorkDir}
	for _, t := range targets {
		rewrite, skip, err := p.planFile(t, current, next)
		if err != nil {
			return nil, warnings, err
		}
		if skip {
			warnings = append(warnings, fmt.Sprintf("file %s not found, ignoring", t.path))
			continue
		}
		plan.Rewrites = append(plan.Rewrites, rewrite)
	}
	return plan, warnings, nil
}

func (p *Planner) planFile(t target, current, next *version.Version) (Rewrite, bool, error) {
	full := filepath.Join(p.WorkDir, filepath.FromSlash(t.path))
	original, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			if allIgnoreMissingFile(t.changes) {
				return Rewrite{}, true, nil
			}
			return Rewrite{}, false, &FileNotFoundError{Path: t.path}
		}
		return Rewrite{}, false, fmt.Errorf("reading %s: %w", t.path, err)
	}

	buffer := string(original)
	totalMatches := 0

	for _, change := range t.changes {
		searchRE, replacement, err := p.renderChange(change, current, next)
		if err != nil {
			return Rewrite{}, false, fmt.Errorf("file %s: %w", t.path, err)
		}

		matches := searchRE.FindAllStringIndex(buffer, -1)
		if len(matches) == 0 {
			if searchRE.MatchString(string(original)) {
				// An earlier change for this path consumed the region this
				// change was configured to rewrite.
				return Rewrite{}, false, &ConflictError{Path: t.path, Pattern: searchRE.String()}
			}
			if change.IgnoreMissingVersion {
				continue
			}
			return Rewrite{}, false, &NoMatchesError{Path: t.path, Pattern: searchRE.String()}
		}

		totalMatches += len(matches)
		buffer = spliceAll(buffer, matches, replacement)
	}

	rewrite := Rewrite{
		Path:     t.path,
		Original: original,
		New:      []byte(buffer),
		Matches:  totalMatches,
	}
	if rewrite.Changed() {
		rewrite.Diff, err = unifiedDiff(t.path, string(original), buffer)
		if err != nil {
			return Rewrite{}, false, fmt.Errorf("diffing %s: %w", t.path, err)
		}
	}
	return rewrite, false, nil
}

// renderChange produces the compiled search regex and the literal
// replacement for one change. Each change serializes the current and next
// versions with its own templates, since files may format versions
// differently.
func (p *Planner) renderChange(change config.FileChange, current, next *version.Version) (*regexp.Regexp, string, error) {
	currentSerialized, err := version.Serialize(change.SerializeTemplates, current, p.Env)
	if err != nil {
		return nil, "", fmt.Errorf("serializing current version: %w", err)
	}
	nextSerialized, err := version.Serialize(change.SerializeTemplates, next, p.Env)
	if err != nil {
		return nil, "", fmt.Errorf("serializing new version: %w", err)
	}

	ctx := make(map[string]string, len(p.Env)+2)
	for k, v := range p.Env {
		ctx[k] = v
	}
	ctx["current_version"] = currentSerialized
	ctx["new_version"] = nextSerialized

	var pattern string
	if change.SearchIsRegex {
		pattern, err = change.Search.RawRegexPattern(nil, ctx)
	} else {
		pattern, err = change.Search.RegexPattern(nil, ctx, false)
	}
	if err != nil {
		return nil, "", fmt.Errorf("rendering search pattern: %w", err)
	}
	searchRE, err := regexp.Compile(pattern)
	if err != nil {
		return nil, "", fmt.Errorf("compiling search pattern %q: %w", pattern, err)
	}

	replacement, err := change.Replace.Render(ctx, true)
	if err != nil {
		return nil, "", fmt.Errorf("rendering replacement: %w", err)
	}
	return searchRE, replacement, nil
}

// spliceAll substitutes every match range with the replacement, left to
// right. The replacement is literal text; no capture references apply.
func spliceAll(buffer string, matches [][]int, replacement string) string {
	var out strings.Builder
	prev := 0
	for _, m := range matches {
		out.WriteString(buffer[prev:m[0]])
		out.WriteString(replacement)
		prev = m[1]
	}
	out.WriteString(buffer[prev:])
	return out.String()
}

func sameChange(a, b config.FileChange) bool {
	if a.Search.String() != b.Search.String() ||
		a.Replace.String() != b.Replace.String() ||
		a.SearchIsRegex != b.SearchIsRegex ||
		len(a.SerializeTemplates) != len(b.SerializeTemplates) {
		return false
	}
	for i := range a.SerializeTemplates {
		if a.SerializeTemplates[i].String() != b.SerializeTemplates[i].String() {
			return false
		}
	}
	return true
}

func allIgnoreMissingFile(changes []config.FileChange) bool {
	for _, c := range changes {
		if !c.IgnoreMissingFile {
			return false
		}
	}
	return true
}

// UnifiedDiff renders a unified diff between two buffer states of a file,
// with (before)/(after) labels and three lines of context.
func UnifiedDiff(path, before, after string) (string, error) {
	return unifiedDiff(path, before, after)
}

func unifiedDiff(path, before, after string) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: path + " (before)",
		ToFile:   path + " (after)",
		Context:  3,
	})
}

// Commit writes every planned rewrite. Files are written via a temp file
// and rename in the target directory; the original file mode is preserved.
// Unchanged rewrites are skipped.
func (p *Plan) Commit() error {
	for _, r := range p.Rewrites {
		if !r.Changed() {
			continue
		}
		if err := writeAtomic(filepath.Join(p.WorkDir, filepath.FromSlash(r.Path)), r.New); err != nil {
			return fmt.Errorf("writing %s: %w", r.Path, err)
		}
	}
	return nil
}

// ChangedPaths returns the relative paths Commit will modify, in plan
// order.
func (p *Plan) ChangedPaths() []string {
	var paths []string
	for _, r := range p.Rewrites {
		if r.Changed() {
			paths = append(paths, r.Path)
		}
	}
	return paths
}

func writeAtomic(path string, data []byte) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(info.Mode()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
