package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/release-tools/go-bumpversion/internal/version"
)

func TestResolve_Defaults(t *testing.T) {
	cfg, err := ParseINI(".bumpversion.cfg", []byte("[bumpversion]\ncurrent_version = 1.2.3\n"))
	require.NoError(t, err)

	r, err := cfg.Resolve()
	require.NoError(t, err)

	require.Equal(t, "1.2.3", r.CurrentVersion)
	require.Equal(t, []string{"major", "minor", "patch"}, r.VersionSpec.ComponentNames())
	require.False(t, r.Commit)
	require.False(t, r.Tag)
	require.False(t, r.AllowDirty)
	require.Equal(t, DefaultTagName, r.TagName.String())
	require.Equal(t, DefaultMessage, r.Message.String())
}

func TestResolve_UnknownComponentInSerialize(t *testing.T) {
	source := []byte("[bumpversion]\ncurrent_version = 1.2.3\nserialize = {major}.{minor}.{build}\n")
	cfg, err := ParseINI(".bumpversion.cfg", source)
	require.NoError(t, err)

	_, err = cfg.Resolve()
	var serr *SchemaError
	require.ErrorAs(t, err, &serr)
	require.Contains(t, serr.Error(), `unknown version component "build"`)
	// The diagnostic points at the serialize value's span.
	require.Contains(t, serr.Error(), ".bumpversion.cfg:3:13")
}

func TestResolve_FileInheritsGlobalTemplates(t *testing.T) {
	source := []byte(`[bumpversion]
current_version = 1.2.3
search = {current_version}
replace = {new_version}

[bumpversion:file:VERSION]

[bumpversion:file:README.md]
search = version {current_version}
`)
	cfg, err := ParseINI(".bumpversion.cfg", source)
	require.NoError(t, err)

	r, err := cfg.Resolve()
	require.NoError(t, err)
	require.Len(t, r.Files, 2)
	require.Equal(t, "{current_version}", r.Files[0].Search.String())
	require.Equal(t, "version {current_version}", r.Files[1].Search.String())
	require.Equal(t, "{new_version}", r.Files[1].Replace.String())
}

func TestResolve_EnvAndTimePlaceholdersAllowed(t *testing.T) {
	source := []byte("[bumpversion]\ncurrent_version = 1.2.3\nserialize = {major}.{minor}.{patch}+{$BUILD_ID}.{utcnow:%Y%m%d}\n")
	cfg, err := ParseINI(".bumpversion.cfg", source)
	require.NoError(t, err)

	_, err = cfg.Resolve()
	require.NoError(t, err)
}

func TestResolve_InvalidParsePattern(t *testing.T) {
	source := []byte("[bumpversion]\ncurrent_version = 1.2.3\nparse = (?P<major>\\d+\n")
	cfg, err := ParseINI(".bumpversion.cfg", source)
	require.NoError(t, err)

	_, err = cfg.Resolve()
	var serr *SchemaError
	require.ErrorAs(t, err, &serr)
	require.Contains(t, serr.Error(), "invalid parse pattern")
}

func TestResolve_TemplateFormParsePattern(t *testing.T) {
	source := []byte(`[bumpversion]
current_version = 1.2.3
parse = {major}.{minor}.{patch}
`)
	cfg, err := ParseINI(".bumpversion.cfg", source)
	require.NoError(t, err)

	r, err := cfg.Resolve()
	require.NoError(t, err)
	require.Equal(t, []string{"major", "minor", "patch"}, r.VersionSpec.ComponentNames())
	require.True(t, r.ParsePatterns[0].Regexp.MatchString("1.2.3"))
}

// A $-prefixed capture name marks the component independent. The name is
// illegal in Go regexp group syntax, so the loader aliases it for
// compilation and maps parsed values back to the original name.
func TestResolve_DollarComponentFromTemplatePattern(t *testing.T) {
	source := []byte(`[bumpversion]
current_version = 1.2.3+7
parse = {major}.{minor}.{patch}+{$build}
serialize = {major}.{minor}.{patch}+{$build}
`)
	cfg, err := ParseINI(".bumpversion.cfg", source)
	require.NoError(t, err)

	r, err := cfg.Resolve()
	require.NoError(t, err)
	require.Equal(t, []string{"major", "minor", "patch", "$build"}, r.VersionSpec.ComponentNames())

	spec, ok := r.VersionSpec.Config("$build")
	require.True(t, ok)
	require.True(t, spec.Independent)

	v, err := version.Parse(r.ParsePatterns, "1.2.3+7", r.VersionSpec)
	require.NoError(t, err)
	require.Equal(t, "7", v.Values()["$build"])

	// A major bump leaves the independent component alone.
	bumped, err := v.Bump("major")
	require.NoError(t, err)
	require.Equal(t, "7", bumped.Values()["$build"])

	got, err := version.Serialize(r.SerializeTemplates, bumped, nil)
	require.NoError(t, err)
	require.Equal(t, "2.0.0+7", got)
}

func TestResolve_DollarComponentFromRawPattern(t *testing.T) {
	source := []byte(`[bumpversion]
current_version = 1.2.3+7
parse = (?P<major>\d+)\.(?P<minor>\d+)\.(?P<patch>\d+)\+(?P<$build>\d+)
serialize = {major}.{minor}.{patch}+{$build}
`)
	cfg, err := ParseINI(".bumpversion.cfg", source)
	require.NoError(t, err)

	r, err := cfg.Resolve()
	require.NoError(t, err)
	require.Equal(t, []string{"major", "minor", "patch", "$build"}, r.VersionSpec.ComponentNames())

	v, err := version.Parse(r.ParsePatterns, "1.2.3+7", r.VersionSpec)
	require.NoError(t, err)
	require.Equal(t, "7", v.Values()["$build"])

	spec, ok := r.VersionSpec.Config("$build")
	require.True(t, ok)
	require.True(t, spec.Independent)
}

func TestApply_OverridesWinPerField(t *testing.T) {
	cfg, err := ParseINI(".bumpversion.cfg", []byte("[bumpversion]\ncurrent_version = 1.2.3\ncommit = True\ntag = True\n"))
	require.NoError(t, err)

	noCommit := false
	cfg.Apply(Overrides{
		CurrentVersion: "2.0.0",
		Commit:         &noCommit,
		Message:        "release {new_version}",
	})

	r, err := cfg.Resolve()
	require.NoError(t, err)
	require.Equal(t, "2.0.0", r.CurrentVersion)
	require.False(t, r.Commit)
	require.True(t, r.Tag) // untouched by overrides
	require.Equal(t, "release {new_version}", r.Message.String())
}

func TestApply_TemplateAndFileOverrides(t *testing.T) {
	source := []byte(`[bumpversion]
current_version = 1.2
search = version {current_version}
replace = version {new_version}
ignore_missing_version = False

[bumpversion:file:VERSION]
`)
	cfg, err := ParseINI(".bumpversion.cfg", source)
	require.NoError(t, err)

	regex := true
	noFiles := true
	ignoreMissing := true
	cfg.Apply(Overrides{
		Parse:                []string{`(?P<major>\d+)\.(?P<minor>\d+)`},
		Serialize:            []string{"{major}.{minor}"},
		Search:               `v{current_version}`,
		Replace:              `v{new_version}`,
		Regex:                &regex,
		NoConfiguredFiles:    &noFiles,
		IgnoreMissingFiles:   &ignoreMissing,
		IgnoreMissingVersion: &ignoreMissing,
	})

	r, err := cfg.Resolve()
	require.NoError(t, err)
	require.Equal(t, []string{"major", "minor"}, r.VersionSpec.ComponentNames())
	require.Equal(t, "{major}.{minor}", r.SerializeTemplates[0].String())
	require.True(t, r.NoConfiguredFiles)
	require.True(t, r.IgnoreMissingFiles)
	require.True(t, r.IgnoreMissingVersion)

	// The overridden templates and flags flow into the file changes.
	require.Len(t, r.Files, 1)
	require.Equal(t, "v{current_version}", r.Files[0].Search.String())
	require.Equal(t, "v{new_version}", r.Files[0].Replace.String())
	require.True(t, r.Files[0].SearchIsRegex)
	require.True(t, r.Files[0].IgnoreMissingFile)
	require.True(t, r.Files[0].IgnoreMissingVersion)
}

func TestDiscover_Order(t *testing.T) {
	dir := t.TempDir()

	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	// setup.cfg alone, with a bumpversion section.
	write("setup.cfg", "[metadata]\nname = pkg\n\n[bumpversion]\ncurrent_version = 0.0.1\n")
	cfg, err := Discover(dir)
	require.NoError(t, err)
	require.Equal(t, "0.0.1", cfg.Global.CurrentVersion)

	// pyproject.toml with a tool.bumpversion table takes precedence.
	write("pyproject.toml", "[tool.bumpversion]\ncurrent_version = \"0.0.2\"\n")
	cfg, err = Discover(dir)
	require.NoError(t, err)
	require.Equal(t, "0.0.2", cfg.Global.CurrentVersion)

	// .bumpversion.cfg beats pyproject.toml.
	write(".bumpversion.cfg", "[bumpversion]\ncurrent_version = 0.0.3\n")
	cfg, err = Discover(dir)
	require.NoError(t, err)
	require.Equal(t, "0.0.3", cfg.Global.CurrentVersion)

	// .bumpversion.toml beats everything.
	write(".bumpversion.toml", "[tool.bumpversion]\ncurrent_version = \"0.0.4\"\n")
	cfg, err = Discover(dir)
	require.NoError(t, err)
	require.Equal(t, "0.0.4", cfg.Global.CurrentVersion)
}

func TestDiscover_SkipsSharedFilesWithoutSection(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pyproject.toml"),
		[]byte("[tool.black]\nline-length = 88\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "setup.cfg"),
		[]byte("[bumpversion]\ncurrent_version = 3.2.1\n"), 0o644))

	cfg, err := Discover(dir)
	require.NoError(t, err)
	require.Equal(t, "3.2.1", cfg.Global.CurrentVersion)
}

func TestDiscover_NoConfig(t *testing.T) {
	_, err := Discover(t.TempDir())
	require.Error(t, err)
	require.Contains(t, err.Error(), "no configuration file")
}
