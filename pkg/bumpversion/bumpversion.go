// Package bumpversion provides the public API for advancing project
// version strings: load configuration, compute the next version, rewrite
// every configured occurrence atomically, update the config file in place,
// and optionally commit and tag the result.
//
// Basic usage:
//
//	result, err := bumpversion.Run(bumpversion.Options{
//	    Dir:       ".",
//	    Component: "minor",
//	})
//	fmt.Println(result.NewVersion) // "1.3.0"
package bumpversion

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/release-tools/go-bumpversion/internal/config"
	configctx "github.com/release-tools/go-bumpversion/internal/context"
	"github.com/release-tools/go-bumpversion/internal/files"
	"github.com/release-tools/go-bumpversion/internal/format"
	"github.com/release-tools/go-bumpversion/internal/hooks"
	"github.com/release-tools/go-bumpversion/internal/vcs"
	"github.com/release-tools/go-bumpversion/internal/version"
)

// DirtyWorkingTreeError aborts a bump when the working tree has
// uncommitted changes outside the configured file set.
type DirtyWorkingTreeError struct {
	Files []string
}

func (e *DirtyWorkingTreeError) Error() string {
	return fmt.Sprintf("working tree has uncommitted changes: %v (use --allow-dirty to proceed)", e.Files)
}

// VCSError wraps a failure in the version-control adapter.
type VCSError struct {
	Op  string
	Err error
}

func (e *VCSError) Error() string {
	return fmt.Sprintf("vcs %s: %v", e.Op, e.Err)
}

func (e *VCSError) Unwrap() error {
	return e.Err
}

// Options configures a bump run.
type Options struct {
	// Dir is the working directory root. Defaults to ".".
	Dir string

	// ConfigPath names the config file explicitly. Empty means discover in
	// Dir (.bumpversion.toml, .bumpversion.cfg, pyproject.toml, setup.cfg).
	ConfigPath string

	// Component is the version component to bump. May be empty when
	// NewVersion is set.
	Component string

	// NewVersion skips the bump algebra and targets this version.
	NewVersion string

	// Overrides are the per-field command-line overrides.
	Overrides config.Overrides

	// VCS injects a version-control adapter. Nil opens the git repository
	// containing Dir; a repository is only required when commit or tag is
	// enabled.
	VCS vcs.Adapter

	// Output receives dry-run diffs and verbose progress. Nil means
	// os.Stdout.
	Output io.Writer

	// Verbose enables progress logging to Output.
	Verbose bool
}

// Result reports what a run did (or, for dry runs, would do).
type Result struct {
	CurrentVersion string
	NewVersion     string

	// Rewrites holds the planned file states including diffs, the config
	// file itself last.
	Rewrites []files.Rewrite

	// ChangedPaths lists the paths that were (or would be) modified.
	ChangedPaths []string

	DryRun    bool
	Committed bool
	CommitID  string
	Tagged    bool
	TagName   string

	Warnings []string
}

type runner struct {
	opts     Options
	out      io.Writer
	cfg      *config.Config
	resolved *config.Resolved
	adapter  vcs.Adapter
	snapshot *configctx.Snapshot
	result   *Result
}

// Run executes one bump: load config, merge overrides, check the working
// tree, compute the next version, plan and apply rewrites, update the
// config file, and drive the VCS and hooks.
func Run(opts Options) (*Result, error) {
	if opts.Dir == "" {
		opts.Dir = "."
	}
	dir, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolving directory: %w", err)
	}
	opts.Dir = dir

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	r := &runner{opts: opts, out: out, result: &Result{}}
	if err := r.run(); err != nil {
		return r.result, err
	}
	return r.result, nil
}

func (r *runner) logf(format string, args ...any) {
	if r.opts.Verbose {
		fmt.Fprintf(r.out, format+"\n", args...)
	}
}

func (r *runner) warnf(format string, args ...any) {
	warning := fmt.Sprintf(format, args...)
	r.result.Warnings = append(r.result.Warnings, warning)
	fmt.Fprintf(r.out, "warning: %s\n", warning)
}

func (r *runner) run() error {
	// 1. Load configuration.
	var err error
	if r.opts.ConfigPath != "" {
		r.cfg, err = config.Load(r.opts.ConfigPath)
	} else {
		r.cfg, err = config.Discover(r.opts.Dir)
	}
	if err != nil {
		return err
	}
	for _, warning := range r.cfg.Warnings {
		fmt.Fprint(r.out, warning.Render(r.cfg.Path, r.cfg.Source))
	}

	// 2. Apply CLI overrides and resolve.
	r.cfg.Apply(r.opts.Overrides)
	r.resolved, err = r.cfg.Resolve()
	if err != nil {
		return err
	}
	dryRun := r.resolved.DryRun

	// 3. Working-tree check.
	if err := r.openVCS(); err != nil {
		return err
	}
	var status vcs.Status
	if r.adapter != nil {
		status, err = r.adapter.Status()
		if err != nil {
			return &VCSError{Op: "status", Err: err}
		}
		if status.Dirty && !r.resolved.AllowDirty {
			if outside := r.dirtyOutsideTrackedSet(status.DirtyFiles); len(outside) > 0 {
				return &DirtyWorkingTreeError{Files: outside}
			}
		}
	}

	var tagInfo *vcs.TagInfo
	if r.adapter != nil {
		tagInfo, err = r.adapter.LatestTag(tagGlob(r.resolved.TagName))
		if err != nil {
			return &VCSError{Op: "latest-tag", Err: err}
		}
	}
	r.snapshot = configctx.Capture(tagInfo, status, r.opts.Dir)
	env := r.snapshot.TemplateEnv()

	// 4. Parse the current version.
	if r.resolved.CurrentVersion == "" {
		return r.cfg.SchemaErrorf("current_version", "current_version is not set")
	}
	current, err := version.Parse(r.resolved.ParsePatterns, r.resolved.CurrentVersion, r.resolved.VersionSpec)
	if err != nil {
		return err
	}
	r.result.CurrentVersion = r.resolved.CurrentVersion
	r.logf("parsed current version %s", current)

	// 5. Compute the next version.
	next, err := r.nextVersion(current)
	if err != nil {
		return err
	}

	currentSerialized, err := version.Serialize(r.resolved.SerializeTemplates, current, env)
	if err != nil {
		return err
	}
	nextSerialized, err := version.Serialize(r.resolved.SerializeTemplates, next, env)
	if err != nil {
		return err
	}
	r.result.NewVersion = nextSerialized
	r.logf("bumping %q to %q", currentSerialized, nextSerialized)

	if currentSerialized == nextSerialized {
		r.warnf("new version %q matches the current version, nothing to do", nextSerialized)
		return nil
	}

	// Pre-bump hooks see both versions before any file changes.
	if err := r.runHooks("setup", r.resolved.SetupHooks, current, next, currentSerialized, nextSerialized, dryRun); err != nil {
		return err
	}

	// 6. Build the rewrite plan, the config file injected last.
	plan, err := r.buildPlan(current, next, currentSerialized, nextSerialized, env)
	if err != nil {
		return err
	}
	r.result.Rewrites = plan.Rewrites
	r.result.ChangedPaths = plan.ChangedPaths()

	// 7. Dry run stops before any side effect.
	if dryRun {
		r.result.DryRun = true
		for _, rewrite := range plan.Rewrites {
			if rewrite.Diff != "" {
				fmt.Fprint(r.out, rewrite.Diff)
			}
		}
		return nil
	}

	if err := plan.Commit(); err != nil {
		return err
	}
	for _, path := range r.result.ChangedPaths {
		r.logf("rewrote %s", path)
	}

	if err := r.runHooks("pre-commit", r.resolved.PreCommitHooks, current, next, currentSerialized, nextSerialized, false); err != nil {
		return err
	}

	// 8. VCS side effects.
	if err := r.commitAndTag(current, next, currentSerialized, nextSerialized); err != nil {
		return err
	}

	// 9. Post-bump hooks.
	return r.runHooks("post-commit", r.resolved.PostCommitHooks, current, next, currentSerialized, nextSerialized, false)
}

// dirtyOutsideTrackedSet filters dirty paths down to those not covered by
// the configured file set (the config file itself included).
func (r *runner) dirtyOutsideTrackedSet(dirty []string) []string {
	configRel := r.cfg.Path
	if rel, err := filepath.Rel(r.opts.Dir, r.cfg.Path); err == nil {
		configRel = filepath.ToSlash(rel)
	}

	var outside []string
	for _, path := range dirty {
		slashed := filepath.ToSlash(path)
		if slashed == configRel || files.Covers(r.resolved.Files, slashed) {
			continue
		}
		outside = append(outside, path)
	}
	return outside
}

func (r *runner) openVCS() error {
	if r.adapter = r.opts.VCS; r.adapter != nil {
		return nil
	}
	adapter, err := vcs.Open(r.opts.Dir)
	if err != nil {
		if r.resolved.Commit || r.resolved.Tag {
			return &VCSError{Op: "open", Err: err}
		}
		r.logf("no git repository found, VCS integration disabled")
		return nil
	}
	r.adapter = adapter
	return nil
}

func (r *runner) nextVersion(current *version.Version) (*version.Version, error) {
	if r.opts.NewVersion != "" {
		next, err := version.Parse(r.resolved.ParsePatterns, r.opts.NewVersion, r.resolved.VersionSpec)
		if err != nil {
			return nil, err
		}
		return next, nil
	}
	if r.opts.Component == "" {
		return nil, errors.New("no version component to bump (or --new-version) given")
	}
	return current.Bump(r.opts.Component)
}

// buildPlan computes the rewrite plan for the configured files plus the
// auto-injected config-file update targeting the current_version field.
func (r *runner) buildPlan(current, next *version.Version, currentSerialized, nextSerialized string, env map[string]string) (*files.Plan, error) {
	changes := r.resolved.Files
	if r.resolved.NoConfiguredFiles {
		changes = nil
	}

	planner := &files.Planner{
		WorkDir:       r.opts.Dir,
		Env:           env,
		ExcludedPaths: r.resolved.ExcludedPaths,
		IncludedPaths: r.resolved.IncludedPaths,
	}
	plan, warnings, err := planner.Plan(changes, current, next)
	for _, w := range warnings {
		r.warnf("%s", w)
	}
	if err != nil {
		return nil, err
	}

	configRewrite, err := r.configRewrite(currentSerialized, nextSerialized)
	if err != nil {
		return nil, err
	}
	if configRewrite != nil {
		plan.Rewrites = append(plan.Rewrites, *configRewrite)
	}
	return plan, nil
}

// configRewrite updates the config file's current_version in place,
// preserving the rest of the raw bytes.
func (r *runner) configRewrite(currentSerialized, nextSerialized string) (*files.Rewrite, error) {
	updated, ok := r.cfg.ReplaceVersion(currentSerialized, nextSerialized)
	if !ok {
		// Nothing to rewrite: the config declares no literal
		// current_version (it may come from a CLI override).
		if r.cfg.Global.CurrentVersion != "" {
			r.warnf("could not update current_version in %s", r.cfg.Path)
		}
		return nil, nil
	}

	rel, err := filepath.Rel(r.opts.Dir, r.cfg.Path)
	if err != nil {
		rel = r.cfg.Path
	}
	rewrite := &files.Rewrite{
		Path:     filepath.ToSlash(rel),
		Original: r.cfg.Source,
		New:      updated,
		Matches:  1,
	}
	rewrite.Diff, err = files.UnifiedDiff(rewrite.Path, string(r.cfg.Source), string(updated))
	if err != nil {
		return nil, fmt.Errorf("diffing %s: %w", rewrite.Path, err)
	}
	return rewrite, nil
}

func (r *runner) runHooks(kind string, commands []string, current, next *version.Version, currentSerialized, nextSerialized string, dryRun bool) error {
	if len(commands) == 0 {
		return nil
	}
	if dryRun {
		r.logf("would run %s hooks: %v", kind, commands)
		return nil
	}
	r.logf("running %s hooks", kind)

	tagName, err := r.resolved.TagName.Render(
		r.snapshot.MessageEnv(current, next, currentSerialized, nextSerialized), true)
	if err != nil {
		return err
	}
	runner := &hooks.Runner{
		Dir:    filepath.Dir(r.cfg.Path),
		Env:    r.snapshot.HookEnv(current, next, currentSerialized, nextSerialized, tagName),
		Stdout: r.out,
		Stderr: r.out,
	}
	return runner.Run(commands)
}

func (r *runner) commitAndTag(current, next *version.Version, currentSerialized, nextSerialized string) error {
	if r.adapter == nil || (!r.resolved.Commit && !r.resolved.Tag) {
		return nil
	}
	env := r.snapshot.MessageEnv(current, next, currentSerialized, nextSerialized)

	if r.resolved.Commit {
		paths := r.result.ChangedPaths
		if err := r.adapter.Stage(paths); err != nil {
			return &VCSError{Op: "stage", Err: err}
		}

		message, err := r.resolved.Message.Render(env, true)
		if err != nil {
			return err
		}
		if r.resolved.CommitArgs != "" {
			r.warnf("commit_args are not supported by the go-git backend and were ignored")
		}
		commitID, err := r.adapter.Commit(message)
		if err != nil {
			return &VCSError{Op: "commit", Err: err}
		}
		r.result.Committed = true
		r.result.CommitID = commitID
		r.logf("committed %s: %s", commitID, message)
	}

	if r.resolved.Tag {
		tagName, err := r.resolved.TagName.Render(env, true)
		if err != nil {
			return err
		}
		tagMessage, err := r.resolved.TagMessage.Render(env, true)
		if err != nil {
			return err
		}

		existing, err := r.adapter.Tags()
		if err != nil {
			return &VCSError{Op: "tags", Err: err}
		}
		for _, name := range existing {
			if name == tagName {
				r.warnf("tag %q already exists and will not be created", tagName)
				return nil
			}
		}

		if err := r.adapter.Tag(tagName, tagMessage, r.resolved.SignTags); err != nil {
			return &VCSError{Op: "tag", Err: err}
		}
		r.result.Tagged = true
		r.result.TagName = tagName
		r.logf("tagged %s", tagName)
	}
	return nil
}

// tagGlob derives a glob for locating previous tags from the tag_name
// template: literals survive, placeholders widen to "*".
func tagGlob(tmpl *format.Template) string {
	pattern := ""
	for _, seg := range tmpl.Segments() {
		if seg.IsPlaceholder() {
			pattern += "*"
		} else {
			pattern += seg.Literal
		}
	}
	if pattern == "" {
		return "*"
	}
	return pattern
}
