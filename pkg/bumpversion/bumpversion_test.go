package bumpversion

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/release-tools/go-bumpversion/internal/config"
	"github.com/release-tools/go-bumpversion/internal/files"
	"github.com/release-tools/go-bumpversion/internal/testutil"
	"github.com/release-tools/go-bumpversion/internal/version"
	"github.com/release-tools/go-bumpversion/internal/vcs"
)

func writeWorkspace(t *testing.T, entries map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range entries {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

const preReleaseTOML = `[tool.bumpversion]
current_version = "1.0.0-dev1"
parse = '(?P<major>\d+)\.(?P<minor>\d+)\.(?P<patch>\d+)(?:-(?P<pre_l>dev|rc)(?P<pre_n>\d+))?'
serialize = [
    "{major}.{minor}.{patch}-{pre_l}{pre_n}",
    "{major}.{minor}.{patch}",
]

[tool.bumpversion.parts.pre_l]
values = ["dev", "rc", "final"]
optional_value = "final"
first_value = "final"

[tool.bumpversion.parts.pre_n]
first_value = "1"
`

func TestRun_BumpMinor(t *testing.T) {
	dir := writeWorkspace(t, map[string]string{
		".bumpversion.cfg": "[bumpversion]\ncurrent_version = 1.2.3\n\n[bumpversion:file:README.md]\nsearch = version {current_version}\nreplace = version {new_version}\n",
		"README.md":        "# pkg\n\nversion 1.2.3\n",
	})

	result, err := Run(Options{Dir: dir, Component: "minor"})
	require.NoError(t, err)
	require.Equal(t, "1.2.3", result.CurrentVersion)
	require.Equal(t, "1.3.0", result.NewVersion)

	readme, err := os.ReadFile(filepath.Join(dir, "README.md"))
	require.NoError(t, err)
	require.Equal(t, "# pkg\n\nversion 1.3.0\n", string(readme))

	cfg, err := os.ReadFile(filepath.Join(dir, ".bumpversion.cfg"))
	require.NoError(t, err)
	require.Contains(t, string(cfg), "current_version = 1.3.0")
	// Only the current_version value changed in the config file.
	require.Contains(t, string(cfg), "search = version {current_version}")
}

func TestRun_PreReleaseFlow(t *testing.T) {
	dir := writeWorkspace(t, map[string]string{
		".bumpversion.toml": preReleaseTOML,
		"VERSION":           "1.0.0-dev1\n",
	})
	// VERSION is rewritten via the default {current_version} search.
	appendToConfig(t, dir, "\n[[tool.bumpversion.files]]\nfilename = \"VERSION\"\n")

	result, err := Run(Options{Dir: dir, Component: "pre_l"})
	require.NoError(t, err)
	require.Equal(t, "1.0.0-rc1", result.NewVersion)
	require.Equal(t, "1.0.0-rc1\n", readFile(t, dir, "VERSION"))
	require.Contains(t, readFile(t, dir, ".bumpversion.toml"), `current_version = "1.0.0-rc1"`)

	// Bumping pre_l again reaches the omissible "final" value.
	result, err = Run(Options{Dir: dir, Component: "pre_l"})
	require.NoError(t, err)
	require.Equal(t, "1.0.0", result.NewVersion)
	require.Equal(t, "1.0.0\n", readFile(t, dir, "VERSION"))
}

func TestRun_BumpExhausted(t *testing.T) {
	dir := writeWorkspace(t, map[string]string{
		".bumpversion.toml": strings.Replace(preReleaseTOML, `"1.0.0-dev1"`, `"1.0.0"`, 1),
	})

	_, err := Run(Options{Dir: dir, Component: "pre_l"})
	var exhausted *version.BumpExhaustedError
	require.ErrorAs(t, err, &exhausted)
}

func TestRun_DryRunNoMatchExitsWithoutWrites(t *testing.T) {
	dir := writeWorkspace(t, map[string]string{
		".bumpversion.cfg": "[bumpversion]\ncurrent_version = 1.2.3\n\n[bumpversion:file:README.md]\nsearch = version {current_version}\nreplace = version {new_version}\n",
		"README.md":        "no pattern here\n",
	})

	dryRun := true
	_, err := Run(Options{
		Dir:       dir,
		Component: "patch",
		Overrides: config.Overrides{DryRun: &dryRun},
	})
	var noMatch *files.NoMatchesError
	require.ErrorAs(t, err, &noMatch)

	require.Equal(t, "no pattern here\n", readFile(t, dir, "README.md"))
	require.Contains(t, readFile(t, dir, ".bumpversion.cfg"), "current_version = 1.2.3")
}

func TestRun_DryRunEmitsDiffsAndWritesNothing(t *testing.T) {
	dir := writeWorkspace(t, map[string]string{
		".bumpversion.cfg": "[bumpversion]\ncurrent_version = 1.2.3\n\n[bumpversion:file:VERSION]\n",
		"VERSION":          "1.2.3\n",
	})

	dryRun := true
	var out bytes.Buffer
	result, err := Run(Options{
		Dir:       dir,
		Component: "patch",
		Overrides: config.Overrides{DryRun: &dryRun},
		Output:    &out,
	})
	require.NoError(t, err)
	require.True(t, result.DryRun)
	require.Contains(t, out.String(), "-1.2.3")
	require.Contains(t, out.String(), "+1.2.4")
	require.Contains(t, out.String(), ".bumpversion.cfg (before)")

	require.Equal(t, "1.2.3\n", readFile(t, dir, "VERSION"))
	require.Contains(t, readFile(t, dir, ".bumpversion.cfg"), "current_version = 1.2.3")

	// Dry runs are idempotent: a second run produces the same output.
	var again bytes.Buffer
	_, err = Run(Options{
		Dir:       dir,
		Component: "patch",
		Overrides: config.Overrides{DryRun: &dryRun},
		Output:    &again,
	})
	require.NoError(t, err)
	require.Equal(t, out.String(), again.String())
}

func TestRun_CommitAndTag(t *testing.T) {
	repo := testutil.NewTestRepo(t)
	repo.WriteFile(".bumpversion.cfg", "[bumpversion]\ncurrent_version = 1.2.3\ncommit = True\ntag = True\n\n[bumpversion:file:VERSION]\n")
	repo.WriteFile("VERSION", "1.2.3\n")
	repo.CommitAll("initial")

	result, err := Run(Options{Dir: repo.Path(), Component: "minor"})
	require.NoError(t, err)
	require.True(t, result.Committed)
	require.True(t, result.Tagged)
	require.Equal(t, "v1.3.0", result.TagName)

	head := repo.HeadCommit()
	require.Equal(t, "Bump version: 1.2.3 → 1.3.0", head.Message)
	require.Equal(t, result.CommitID, head.Hash.String())
	require.Contains(t, repo.TagNames(), "v1.3.0")

	// The working tree is clean after the bump commit.
	g, err := vcs.Open(repo.Path())
	require.NoError(t, err)
	status, err := g.Status()
	require.NoError(t, err)
	require.False(t, status.Dirty)
}

func TestRun_DirtyTreeAborts(t *testing.T) {
	repo := testutil.NewTestRepo(t)
	repo.WriteFile(".bumpversion.cfg", "[bumpversion]\ncurrent_version = 1.2.3\ncommit = True\n")
	repo.WriteFile("unrelated.txt", "a\n")
	repo.CommitAll("initial")
	repo.WriteFile("unrelated.txt", "b\n")

	_, err := Run(Options{Dir: repo.Path(), Component: "patch"})
	var dirty *DirtyWorkingTreeError
	require.ErrorAs(t, err, &dirty)
	require.Contains(t, dirty.Files, "unrelated.txt")

	// --allow-dirty proceeds.
	allow := true
	result, err := Run(Options{
		Dir:       repo.Path(),
		Component: "patch",
		Overrides: config.Overrides{AllowDirty: &allow},
	})
	require.NoError(t, err)
	require.Equal(t, "1.2.4", result.NewVersion)
}

func TestRun_UnknownComponentDiagnostic(t *testing.T) {
	dir := writeWorkspace(t, map[string]string{
		".bumpversion.cfg": "[bumpversion]\ncurrent_version = 1.2.3\nserialize = {major}.{minor}.{build}\n",
	})

	_, err := Run(Options{Dir: dir, Component: "patch"})
	var serr *config.SchemaError
	require.ErrorAs(t, err, &serr)
	require.Contains(t, err.Error(), `unknown version component "build"`)
	require.Contains(t, err.Error(), ".bumpversion.cfg:3:")
}

func TestRun_NewVersionSkipsBumpAlgebra(t *testing.T) {
	dir := writeWorkspace(t, map[string]string{
		".bumpversion.cfg": "[bumpversion]\ncurrent_version = 1.2.3\n",
	})

	result, err := Run(Options{Dir: dir, NewVersion: "4.5.6"})
	require.NoError(t, err)
	require.Equal(t, "4.5.6", result.NewVersion)
	require.Contains(t, readFile(t, dir, ".bumpversion.cfg"), "current_version = 4.5.6")
}

func TestRun_MockAdapterStagesInOrder(t *testing.T) {
	dir := writeWorkspace(t, map[string]string{
		".bumpversion.cfg": "[bumpversion]\ncurrent_version = 1.2.3\ncommit = True\ntag = True\n\n[bumpversion:file:b.txt]\n\n[bumpversion:file:a.txt]\n",
		"a.txt":            "1.2.3\n",
		"b.txt":            "1.2.3\n",
	})

	mock := &vcs.Mock{}
	result, err := Run(Options{Dir: dir, Component: "patch", VCS: mock})
	require.NoError(t, err)

	// Paths stage in configuration order, the config file last.
	require.Equal(t, []string{"b.txt", "a.txt", ".bumpversion.cfg"}, mock.StagedPaths)
	require.Equal(t, []string{"Bump version: 1.2.3 → 1.2.4"}, mock.Commits)
	require.Equal(t, []string{"v1.2.4"}, mock.CreatedTags)
	require.True(t, result.Committed)
}

func TestRun_ExistingTagWarnsInsteadOfFailing(t *testing.T) {
	dir := writeWorkspace(t, map[string]string{
		".bumpversion.cfg": "[bumpversion]\ncurrent_version = 1.2.3\ntag = True\n",
	})

	mock := &vcs.Mock{
		TagsFunc: func() ([]string, error) { return []string{"v1.2.4"}, nil },
	}
	result, err := Run(Options{Dir: dir, Component: "patch", VCS: mock})
	require.NoError(t, err)
	require.False(t, result.Tagged)
	require.Empty(t, mock.CreatedTags)
	require.NotEmpty(t, result.Warnings)
}

func TestRun_Hooks(t *testing.T) {
	dir := writeWorkspace(t, map[string]string{
		".bumpversion.cfg": "[bumpversion]\ncurrent_version = 1.2.3\nsetup_hooks =\n    sh -c 'echo pre $CURRENT_VERSION $NEW_VERSION >> hooks.log'\npost_commit_hooks =\n    sh -c 'echo post $NEW_VERSION >> hooks.log'\n",
	})

	_, err := Run(Options{Dir: dir, Component: "patch"})
	require.NoError(t, err)

	log := readFile(t, dir, "hooks.log")
	require.Equal(t, "pre 1.2.3 1.2.4\npost 1.2.4\n", log)
}

func TestRun_HookFailureSurfaces(t *testing.T) {
	dir := writeWorkspace(t, map[string]string{
		".bumpversion.cfg": "[bumpversion]\ncurrent_version = 1.2.3\nsetup_hooks = sh -c 'exit 7'\n",
	})

	_, err := Run(Options{Dir: dir, Component: "patch"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "exit code 7")
	// The failing pre-bump hook prevented all writes.
	require.Contains(t, readFile(t, dir, ".bumpversion.cfg"), "current_version = 1.2.3")
}

func readFile(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	return string(data)
}

func appendToConfig(t *testing.T, dir, content string) {
	t.Helper()
	path := filepath.Join(dir, ".bumpversion.toml")
	existing, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, append(existing, []byte(content)...), 0o644))
}
