package vcs

import (
	"fmt"
	"os/exec"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
	gogitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/gobwas/glob"
)

// Compile-time check that Git implements Adapter.
var _ Adapter = (*Git)(nil)

// Git implements Adapter using go-git.
type Git struct {
	repo    *gogit.Repository
	workDir string
}

// Open opens the git repository containing path.
func Open(path string) (*Git, error) {
	r, err := gogit.PlainOpenWithOptions(path, &gogit.PlainOpenOptions{
		DetectDotGit: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening git repository at %s: %w", path, err)
	}

	wt, err := r.Worktree()
	if err != nil {
		return nil, fmt.Errorf("getting worktree: %w", err)
	}

	return &Git{repo: r, workDir: wt.Filesystem.Root()}, nil
}

func (g *Git) WorkingDirectory() string {
	return g.workDir
}

func (g *Git) Status() (Status, error) {
	wt, err := g.repo.Worktree()
	if err != nil {
		return Status{}, fmt.Errorf("getting worktree: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return Status{}, fmt.Errorf("getting worktree status: %w", err)
	}

	var result Status
	for path, s := range status {
		if s.Worktree == gogit.Untracked {
			result.Untracked = append(result.Untracked, path)
			continue
		}
		if s.Staging != gogit.Unmodified || s.Worktree != gogit.Unmodified {
			result.Dirty = true
			result.DirtyFiles = append(result.DirtyFiles, path)
		}
	}
	return result, nil
}

func (g *Git) Stage(paths []string) error {
	wt, err := g.repo.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree: %w", err)
	}
	for _, path := range paths {
		if _, err := wt.Add(path); err != nil {
			return fmt.Errorf("staging %s: %w", path, err)
		}
	}
	return nil
}

func (g *Git) Commit(message string) (string, error) {
	wt, err := g.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("getting worktree: %w", err)
	}

	opts := &gogit.CommitOptions{}
	if cfg, cerr := g.repo.ConfigScoped(gogitconfig.SystemScope); cerr != nil || cfg.User.Name == "" {
		// No user configured anywhere; fall back so CI bumps still commit.
		opts.Author = &object.Signature{
			Name:  "bumpversion",
			Email: "bumpversion@localhost",
			When:  time.Now(),
		}
	}

	hash, err := wt.Commit(message, opts)
	if err != nil {
		return "", fmt.Errorf("committing: %w", err)
	}
	return hash.String(), nil
}

func (g *Git) Tag(name, message string, sign bool) error {
	if sign {
		// go-git needs an in-process PGP key to sign; defer to the system
		// git so the user's configured signing key applies.
		return g.signedTag(name, message)
	}

	head, err := g.repo.Head()
	if err != nil {
		return fmt.Errorf("getting HEAD: %w", err)
	}

	var opts *gogit.CreateTagOptions
	if message != "" {
		opts = &gogit.CreateTagOptions{Message: message}
		if cfg, cerr := g.repo.ConfigScoped(gogitconfig.SystemScope); cerr != nil || cfg.User.Name == "" {
			// Annotated tags need a tagger; fall back as Commit does.
			opts.Tagger = &object.Signature{
				Name:  "bumpversion",
				Email: "bumpversion@localhost",
				When:  time.Now(),
			}
		}
	}
	if _, err := g.repo.CreateTag(name, head.Hash(), opts); err != nil {
		return fmt.Errorf("creating tag %s: %w", name, err)
	}
	return nil
}

func (g *Git) signedTag(name, message string) error {
	args := []string{"-C", g.workDir, "tag", "--sign", name}
	if message != "" {
		args = append(args, "--message", message)
	}
	out, err := exec.Command("git", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("creating signed tag %s: %s: %w", name, strings.TrimSpace(string(out)), err)
	}
	return nil
}

func (g *Git) Tags() ([]string, error) {
	iter, err := g.repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}

	var names []string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		names = append(names, ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterating tags: %w", err)
	}
	return names, nil
}

func (g *Git) LatestTag(pattern string) (*TagInfo, error) {
	matcher, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid tag pattern %q: %w", pattern, err)
	}

	// Map commit SHAs to their matching tag names, peeling annotated tags.
	tagged := make(map[string]string)
	iter, err := g.repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name().Short()
		if !matcher.Match(name) {
			return nil
		}
		sha := ref.Hash()
		if tag, terr := g.repo.TagObject(ref.Hash()); terr == nil {
			sha = tag.Target
		}
		tagged[sha.String()] = name
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterating tags: %w", err)
	}
	if len(tagged) == 0 {
		return nil, nil
	}

	head, err := g.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("getting HEAD: %w", err)
	}
	log, err := g.repo.Log(&gogit.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("walking history: %w", err)
	}
	defer log.Close()

	distance := 0
	var found *TagInfo
	err = log.ForEach(func(c *object.Commit) error {
		if name, ok := tagged[c.Hash.String()]; ok {
			found = &TagInfo{Name: name, CommitSHA: c.Hash.String(), Distance: distance}
			return storer.ErrStop
		}
		distance++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking history: %w", err)
	}
	return found, nil
}
