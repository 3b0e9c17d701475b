package context

import (
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/release-tools/go-bumpversion/internal/vcs"
	"github.com/release-tools/go-bumpversion/internal/version"
)

var pattern = regexp.MustCompile(`(?P<major>\d+)\.(?P<minor>\d+)\.(?P<patch>\d+)`)

func versions(t *testing.T) (*version.Version, *version.Version) {
	t.Helper()
	spec := version.NewSpec([]string{"major", "minor", "patch"}, nil)
	current, err := version.Parse([]version.ParsePattern{version.NewParsePattern(pattern)}, "1.2.3", spec)
	require.NoError(t, err)
	next, err := current.Bump("minor")
	require.NoError(t, err)
	return current, next
}

func TestCapture_BaseEnv(t *testing.T) {
	t.Setenv("BUMP_TEST_VALUE", "hello")

	s := Capture(&vcs.TagInfo{Name: "v1.2.3", CommitSHA: "abc123", Distance: 4},
		vcs.Status{Dirty: true}, "/work")
	env := s.TemplateEnv()

	require.Equal(t, "hello", env["$BUMP_TEST_VALUE"])
	require.Equal(t, "git", env["tool"])
	require.Equal(t, "v1.2.3", env["current_tag"])
	require.Equal(t, "abc123", env["commit_sha"])
	require.Equal(t, "4", env["distance_to_latest_tag"])
	require.Equal(t, "true", env["dirty"])
	require.Equal(t, "/work", env["repository_root"])

	// now/utcnow are RFC 3339 so {now:%Y-%m-%d} templates can reformat them.
	_, err := time.Parse(time.RFC3339, env["now"])
	require.NoError(t, err)
	_, err = time.Parse(time.RFC3339, env["utcnow"])
	require.NoError(t, err)
}

func TestCapture_NoTag(t *testing.T) {
	s := Capture(nil, vcs.Status{}, "/work")
	env := s.TemplateEnv()
	require.Equal(t, "false", env["dirty"])
	require.NotContains(t, env, "commit_sha")
}

func TestMessageEnv(t *testing.T) {
	current, next := versions(t)
	s := Capture(nil, vcs.Status{}, "/work")

	env := s.MessageEnv(current, next, "1.2.3", "1.3.0")
	require.Equal(t, "1.2.3", env["current_version"])
	require.Equal(t, "1.3.0", env["new_version"])
	// {name} carries the new value, {name_current} the old one.
	require.Equal(t, "3", env["minor"])
	require.Equal(t, "2", env["minor_current"])
	require.Equal(t, "0", env["patch"])
	require.Equal(t, "3", env["patch_current"])
	require.Equal(t, "2", env["current_minor"])
	require.Equal(t, "3", env["new_minor"])
}

func TestHookEnv(t *testing.T) {
	current, next := versions(t)
	s := Capture(nil, vcs.Status{}, "/work")

	env := s.HookEnv(current, next, "1.2.3", "1.3.0", "v1.3.0")
	require.Contains(t, env, "CURRENT_VERSION=1.2.3")
	require.Contains(t, env, "NEW_VERSION=1.3.0")
	require.Contains(t, env, "MINOR_CURRENT=2")
	require.Contains(t, env, "MINOR_NEW=3")
	require.Contains(t, env, "PATCH_CURRENT=3")
	require.Contains(t, env, "PATCH_NEW=0")
	require.Contains(t, env, "BVHOOK_NEW_VERSION_TAG=v1.3.0")

	// The process environment is passed through.
	found := false
	for _, kv := range env {
		if kv == "PATH="+os.Getenv("PATH") {
			found = true
		}
	}
	require.True(t, found)
}

// The snapshot is immutable: returned maps are copies.
func TestTemplateEnv_Copies(t *testing.T) {
	s := Capture(nil, vcs.Status{}, "/work")
	env := s.TemplateEnv()
	env["tool"] = "mutated"
	require.Equal(t, "git", s.TemplateEnv()["tool"])
}
