// Package vcs provides the version-control abstraction the orchestrator
// consumes: working-tree status, staging, committing, and tagging. The
// go-git backend is the default; Mock backs tests.
package vcs

// Status describes the working tree before a bump.
type Status struct {
	// Dirty reports tracked files with uncommitted modifications.
	Dirty bool

	// DirtyFiles lists the modified tracked paths.
	DirtyFiles []string

	// Untracked lists paths unknown to the VCS.
	Untracked []string
}

// TagInfo describes the most recent reachable version tag.
type TagInfo struct {
	// Name is the tag name, e.g. "v1.2.3".
	Name string

	// CommitSHA is the commit the tag points at.
	CommitSHA string

	// Distance counts commits between HEAD and the tagged commit.
	Distance int
}

// Adapter is the narrow interface through which the orchestrator drives a
// version-control working copy.
type Adapter interface {
	// WorkingDirectory returns the root of the working tree.
	WorkingDirectory() string

	// Status reports dirty and untracked files.
	Status() (Status, error)

	// Stage adds the given working-tree-relative paths to the index.
	Stage(paths []string) error

	// Commit records the staged changes and returns the new commit id.
	Commit(message string) (string, error)

	// Tag creates a tag on HEAD. A non-empty message creates an annotated
	// tag; sign requests a signed tag.
	Tag(name, message string, sign bool) error

	// Tags lists all tag names.
	Tags() ([]string, error)

	// LatestTag returns the nearest reachable tag matching the glob
	// pattern, or nil when no tag matches.
	LatestTag(pattern string) (*TagInfo, error)
}
