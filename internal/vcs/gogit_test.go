package vcs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/release-tools/go-bumpversion/internal/testutil"
)

func TestStatus_CleanDirtyUntracked(t *testing.T) {
	repo := testutil.NewTestRepo(t)
	repo.WriteFile("tracked.txt", "one\n")
	repo.CommitAll("initial")

	g, err := Open(repo.Path())
	require.NoError(t, err)

	status, err := g.Status()
	require.NoError(t, err)
	require.False(t, status.Dirty)
	require.Empty(t, status.Untracked)

	repo.WriteFile("tracked.txt", "two\n")
	repo.WriteFile("new.txt", "hello\n")

	status, err = g.Status()
	require.NoError(t, err)
	require.True(t, status.Dirty)
	require.Contains(t, status.DirtyFiles, "tracked.txt")
	require.Contains(t, status.Untracked, "new.txt")
}

func TestStageAndCommit(t *testing.T) {
	repo := testutil.NewTestRepo(t)
	repo.WriteFile("VERSION", "1.0.0\n")
	repo.CommitAll("initial")

	g, err := Open(repo.Path())
	require.NoError(t, err)

	repo.WriteFile("VERSION", "1.0.1\n")
	require.NoError(t, g.Stage([]string{"VERSION"}))

	sha, err := g.Commit("Bump version: 1.0.0 → 1.0.1")
	require.NoError(t, err)
	require.Len(t, sha, 40)

	head := repo.HeadCommit()
	require.Equal(t, sha, head.Hash.String())
	require.Equal(t, "Bump version: 1.0.0 → 1.0.1", head.Message)

	status, err := g.Status()
	require.NoError(t, err)
	require.False(t, status.Dirty)
}

func TestTag_Annotated(t *testing.T) {
	repo := testutil.NewTestRepo(t)
	repo.WriteFile("VERSION", "1.0.0\n")
	repo.CommitAll("initial")

	g, err := Open(repo.Path())
	require.NoError(t, err)

	require.NoError(t, g.Tag("v1.0.0", "release 1.0.0", false))

	tags, err := g.Tags()
	require.NoError(t, err)
	require.Equal(t, []string{"v1.0.0"}, tags)
}

func TestLatestTag(t *testing.T) {
	repo := testutil.NewTestRepo(t)
	repo.WriteFile("a.txt", "a\n")
	first := repo.CommitAll("first")
	repo.CreateTag("v1.0.0", first)
	repo.CreateTag("unrelated", first)

	repo.WriteFile("b.txt", "b\n")
	repo.CommitAll("second")
	repo.WriteFile("c.txt", "c\n")
	repo.CommitAll("third")

	g, err := Open(repo.Path())
	require.NoError(t, err)

	info, err := g.LatestTag("v*")
	require.NoError(t, err)
	require.NotNil(t, info)
	require.Equal(t, "v1.0.0", info.Name)
	require.Equal(t, first, info.CommitSHA)
	require.Equal(t, 2, info.Distance)
}

func TestLatestTag_NoneMatching(t *testing.T) {
	repo := testutil.NewTestRepo(t)
	repo.WriteFile("a.txt", "a\n")
	repo.CommitAll("first")

	g, err := Open(repo.Path())
	require.NoError(t, err)

	info, err := g.LatestTag("v*")
	require.NoError(t, err)
	require.Nil(t, info)
}
