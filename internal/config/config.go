// Package config loads bumpversion configuration from its two surface
// syntaxes (the INI dialect of .bumpversion.cfg/setup.cfg and the TOML
// dialect of .bumpversion.toml/pyproject.toml) into one in-memory tree.
// Values are tagged with byte spans into the source so that syntactic and
// semantic errors point at the offending range.
package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/release-tools/go-bumpversion/internal/diagnostics"
	"github.com/release-tools/go-bumpversion/internal/format"
	"github.com/release-tools/go-bumpversion/internal/version"
)

// Format identifies the surface syntax a config file was parsed from.
type Format int

const (
	FormatINI Format = iota
	FormatTOML
)

// Defaults shared by both surfaces.
const (
	DefaultParsePattern = `(?P<major>\d+)\.(?P<minor>\d+)\.(?P<patch>\d+)`
	DefaultSerialize    = "{major}.{minor}.{patch}"
	DefaultSearch       = "{current_version}"
	DefaultReplace      = "{new_version}"
	DefaultMessage      = "Bump version: {current_version} → {new_version}"
	DefaultTagName      = "v{new_version}"
)

// Global holds the top-level settings. Optional booleans are pointers so a
// later merge can distinguish "unset" from "false" (CLI overrides win
// per-field).
type Global struct {
	CurrentVersion       string
	Parse                []string
	Serialize            []string
	Search               string
	Replace              string
	Regex                *bool
	AllowDirty           *bool
	DryRun               *bool
	Commit               *bool
	Tag                  *bool
	SignTags             *bool
	TagName              string
	TagMessage           string
	Message              string
	CommitArgs           string
	NoConfiguredFiles    *bool
	IgnoreMissingFiles   *bool
	IgnoreMissingVersion *bool
	SetupHooks           []string
	PreCommitHooks       []string
	PostCommitHooks      []string
	IncludedPaths        []string
	ExcludedPaths        []string
}

// FileSpec is one configured file entry: which path (or glob pattern) to
// rewrite and the per-file template overrides.
type FileSpec struct {
	Path                 string
	Glob                 bool
	GlobExclude          []string
	Parse                []string
	Serialize            []string
	Search               string
	Replace              string
	Regex                *bool
	IgnoreMissingFile    *bool
	IgnoreMissingVersion *bool
}

// PartSpec configures one version component.
type PartSpec struct {
	Values          []string
	OptionalValue   *string
	FirstValue      string
	Independent     *bool
	AlwaysIncrement *bool
	DependsOn       string
}

// Config is the parsed configuration tree, before CLI overrides and
// template resolution.
type Config struct {
	Global Global
	Files  []FileSpec
	Parts  map[string]PartSpec

	// Path, Format and Source describe the file the tree was parsed from.
	// Source is kept verbatim for diagnostics and the in-place
	// current_version rewrite.
	Path   string
	Format Format
	Source []byte

	// Spans locates values in Source, keyed by a dotted key such as
	// "serialize", "file:README.md.search" or "part:pre_l.values".
	Spans map[string]diagnostics.Span

	// Warnings collects soft diagnostics (unknown keys) found during
	// parsing.
	Warnings []diagnostics.Diagnostic
}

func newConfig(path string, f Format, source []byte) *Config {
	return &Config{
		Parts:  make(map[string]PartSpec),
		Path:   path,
		Format: f,
		Source: source,
		Spans:  make(map[string]diagnostics.Span),
	}
}

// Span returns the recorded span for a dotted key, if any.
func (c *Config) Span(key string) diagnostics.Span {
	return c.Spans[key]
}

func (c *Config) warnUnknownKey(key string, span diagnostics.Span) {
	c.Warnings = append(c.Warnings, diagnostics.Diagnostic{
		Severity: diagnostics.SeverityWarning,
		Message:  fmt.Sprintf("unknown configuration key %q", key),
		Labels:   []diagnostics.Label{diagnostics.Primary(span, "this key is ignored")},
	})
}

// Overrides carries per-field command-line overrides. Nil and empty fields
// leave the config value in place.
type Overrides struct {
	CurrentVersion       string
	Parse                []string
	Serialize            []string
	Search               string
	Replace              string
	Regex                *bool
	AllowDirty           *bool
	DryRun               *bool
	Commit               *bool
	Tag                  *bool
	SignTags             *bool
	Message              string
	TagName              string
	TagMessage           string
	CommitArgs           string
	NoConfiguredFiles    *bool
	IgnoreMissingFiles   *bool
	IgnoreMissingVersion *bool
}

// Apply merges the overrides into the config, overrides winning per-field.
func (c *Config) Apply(o Overrides) {
	if o.CurrentVersion != "" {
		c.Global.CurrentVersion = o.CurrentVersion
	}
	if len(o.Parse) > 0 {
		c.Global.Parse = o.Parse
	}
	if len(o.Serialize) > 0 {
		c.Global.Serialize = o.Serialize
	}
	if o.Search != "" {
		c.Global.Search = o.Search
	}
	if o.Replace != "" {
		c.Global.Replace = o.Replace
	}
	if o.Regex != nil {
		c.Global.Regex = o.Regex
	}
	if o.AllowDirty != nil {
		c.Global.AllowDirty = o.AllowDirty
	}
	if o.DryRun != nil {
		c.Global.DryRun = o.DryRun
	}
	if o.Commit != nil {
		c.Global.Commit = o.Commit
	}
	if o.Tag != nil {
		c.Global.Tag = o.Tag
	}
	if o.SignTags != nil {
		c.Global.SignTags = o.SignTags
	}
	if o.Message != "" {
		c.Global.Message = o.Message
	}
	if o.TagName != "" {
		c.Global.TagName = o.TagName
	}
	if o.TagMessage != "" {
		c.Global.TagMessage = o.TagMessage
	}
	if o.CommitArgs != "" {
		c.Global.CommitArgs = o.CommitArgs
	}
	if o.NoConfiguredFiles != nil {
		c.Global.NoConfiguredFiles = o.NoConfiguredFiles
	}
	if o.IgnoreMissingFiles != nil {
		c.Global.IgnoreMissingFiles = o.IgnoreMissingFiles
	}
	if o.IgnoreMissingVersion != nil {
		c.Global.IgnoreMissingVersion = o.IgnoreMissingVersion
	}
}

// SchemaError is a known-syntax configuration error carrying the offending
// span for diagnostics.
type SchemaError struct {
	Path   string
	Source []byte
	Diag   diagnostics.Diagnostic
}

func (e *SchemaError) Error() string {
	return strings.TrimRight(e.Diag.Render(e.Path, e.Source), "\n")
}

// SchemaErrorf builds a SchemaError whose diagnostic points at the span
// recorded for spanKey.
func (c *Config) SchemaErrorf(spanKey, msgFormat string, args ...any) *SchemaError {
	return c.schemaError(fmt.Sprintf(msgFormat, args...), spanKey, "")
}

func (c *Config) schemaError(message, spanKey, label string) *SchemaError {
	return &SchemaError{
		Path:   c.Path,
		Source: c.Source,
		Diag: diagnostics.Diagnostic{
			Severity: diagnostics.SeverityError,
			Message:  message,
			Labels:   []diagnostics.Label{diagnostics.Primary(c.Span(spanKey), label)},
		},
	}
}

// FileChange is a fully resolved (file, search, replace) unit ready for the
// rewriter: templates parsed, parse patterns compiled, flags defaulted.
type FileChange struct {
	Path                 string
	Glob                 bool
	GlobExclude          []string
	ParsePatterns        []version.ParsePattern
	SerializeTemplates   []*format.Template
	Search               *format.Template
	SearchIsRegex        bool
	Replace              *format.Template
	IgnoreMissingFile    bool
	IgnoreMissingVersion bool
}

// Resolved is the configuration after defaulting, template parsing, and
// validation: everything the orchestrator consumes.
type Resolved struct {
	Config *Config

	CurrentVersion     string
	ParsePatterns      []version.ParsePattern
	SerializeTemplates []*format.Template
	VersionSpec        *version.Spec

	Files []FileChange

	AllowDirty           bool
	DryRun               bool
	Commit               bool
	Tag                  bool
	SignTags             bool
	NoConfiguredFiles    bool
	IgnoreMissingFiles   bool
	IgnoreMissingVersion bool

	Message    *format.Template
	TagName    *format.Template
	TagMessage *format.Template
	CommitArgs string

	SetupHooks      []string
	PreCommitHooks  []string
	PostCommitHooks []string

	IncludedPaths []string
	ExcludedPaths []string
}

// Resolve validates the tree and produces the Resolved configuration.
// Template placeholders naming unknown components fail here, not at version
// parse time, with a diagnostic pointing at the offending span.
func (c *Config) Resolve() (*Resolved, error) {
	g := c.Global

	parse := g.Parse
	if len(parse) == 0 {
		parse = []string{DefaultParsePattern}
	}
	serialize := g.Serialize
	if len(serialize) == 0 {
		serialize = []string{DefaultSerialize}
	}

	patterns, order, err := c.compileParsePatterns(parse, "parse")
	if err != nil {
		return nil, err
	}

	specs := make(map[string]version.ComponentSpec, len(c.Parts))
	for name, part := range c.Parts {
		specs[name] = version.ComponentSpec{
			Values:          part.Values,
			FirstValue:      part.FirstValue,
			OptionalValue:   part.OptionalValue,
			Independent:     boolValue(part.Independent, false),
			AlwaysIncrement: boolValue(part.AlwaysIncrement, false),
			DependsOn:       part.DependsOn,
		}
	}
	vspec := version.NewSpec(order, specs)

	known := make(map[string]struct{}, len(order))
	for _, name := range order {
		known[name] = struct{}{}
	}

	serializeTemplates, err := c.parseTemplates(serialize, "serialize", known)
	if err != nil {
		return nil, err
	}

	r := &Resolved{
		Config:               c,
		CurrentVersion:       g.CurrentVersion,
		ParsePatterns:        patterns,
		SerializeTemplates:   serializeTemplates,
		VersionSpec:          vspec,
		AllowDirty:           boolValue(g.AllowDirty, false),
		DryRun:               boolValue(g.DryRun, false),
		Commit:               boolValue(g.Commit, false),
		Tag:                  boolValue(g.Tag, false),
		SignTags:             boolValue(g.SignTags, false),
		NoConfiguredFiles:    boolValue(g.NoConfiguredFiles, false),
		IgnoreMissingFiles:   boolValue(g.IgnoreMissingFiles, false),
		IgnoreMissingVersion: boolValue(g.IgnoreMissingVersion, false),
		CommitArgs:           g.CommitArgs,
		SetupHooks:           g.SetupHooks,
		PreCommitHooks:       g.PreCommitHooks,
		PostCommitHooks:      g.PostCommitHooks,
		IncludedPaths:        g.IncludedPaths,
		ExcludedPaths:        g.ExcludedPaths,
	}

	if r.Message, err = c.parseTemplate(stringOr(g.Message, DefaultMessage), "message"); err != nil {
		return nil, err
	}
	if r.TagName, err = c.parseTemplate(stringOr(g.TagName, DefaultTagName), "tag_name"); err != nil {
		return nil, err
	}
	if r.TagMessage, err = c.parseTemplate(stringOr(g.TagMessage, DefaultMessage), "tag_message"); err != nil {
		return nil, err
	}

	globalSearch := stringOr(g.Search, DefaultSearch)
	globalReplace := stringOr(g.Replace, DefaultReplace)

	for _, f := range c.Files {
		change, err := c.resolveFile(f, r, known, globalSearch, globalReplace)
		if err != nil {
			return nil, err
		}
		r.Files = append(r.Files, change)
	}

	return r, nil
}

func (c *Config) resolveFile(f FileSpec, r *Resolved, known map[string]struct{}, globalSearch, globalReplace string) (FileChange, error) {
	prefix := "file:" + f.Path + "."

	parsePatterns := r.ParsePatterns
	if len(f.Parse) > 0 {
		patterns, _, err := c.compileParsePatterns(f.Parse, prefix+"parse")
		if err != nil {
			return FileChange{}, err
		}
		parsePatterns = patterns
	}

	serializeTemplates := r.SerializeTemplates
	if len(f.Serialize) > 0 {
		templates, err := c.parseTemplates(f.Serialize, prefix+"serialize", known)
		if err != nil {
			return FileChange{}, err
		}
		serializeTemplates = templates
	}

	searchRaw, searchKey := globalSearch, "search"
	if f.Search != "" {
		searchRaw, searchKey = f.Search, prefix+"search"
	}
	search, err := c.parseTemplate(searchRaw, searchKey)
	if err != nil {
		return FileChange{}, err
	}

	replaceRaw, replaceKey := globalReplace, "replace"
	if f.Replace != "" {
		replaceRaw, replaceKey = f.Replace, prefix+"replace"
	}
	replace, err := c.parseTemplate(replaceRaw, replaceKey)
	if err != nil {
		return FileChange{}, err
	}

	return FileChange{
		Path:                 f.Path,
		Glob:                 f.Glob || strings.ContainsAny(f.Path, "*?["),
		GlobExclude:          f.GlobExclude,
		ParsePatterns:        parsePatterns,
		SerializeTemplates:   serializeTemplates,
		Search:               search,
		SearchIsRegex:        boolValue(f.Regex, boolValue(c.Global.Regex, false)),
		Replace:              replace,
		IgnoreMissingFile:    boolValue(f.IgnoreMissingFile, r.IgnoreMissingFiles),
		IgnoreMissingVersion: boolValue(f.IgnoreMissingVersion, r.IgnoreMissingVersion),
	}, nil
}

// compileParsePatterns compiles parse patterns and derives the component
// order from the first pattern's capture groups. A pattern without named
// groups is treated as a format template whose placeholders expand to the
// matching component sub-patterns. $-prefixed component names are aliased
// to legal capture-group names before compilation; the alias map travels
// with the pattern so parsed values land under the original names.
func (c *Config) compileParsePatterns(raw []string, spanKey string) ([]version.ParsePattern, []string, error) {
	patterns := make([]version.ParsePattern, 0, len(raw))
	var order []string
	for _, source := range raw {
		expanded := source
		if !strings.Contains(source, "(?P<") {
			tmpl, err := format.Parse(source)
			if err != nil {
				return nil, nil, c.schemaError(err.Error(), spanKey, "invalid parse template")
			}
			groups := make(map[string]string)
			for name := range tmpl.PlaceholderNames() {
				spec := version.ComponentSpec{}
				if part, ok := c.Parts[name]; ok {
					spec.Values = part.Values
				}
				groups[name] = spec.SubPattern()
			}
			expanded, err = tmpl.RegexPattern(groups, nil, true)
			if err != nil {
				return nil, nil, c.schemaError(err.Error(), spanKey, "invalid parse template")
			}
		}
		expanded, aliases := sanitizeCaptureNames(expanded)
		compiled, err := regexp.Compile(expanded)
		if err != nil {
			return nil, nil, c.schemaError(
				fmt.Sprintf("invalid parse pattern: %v", err), spanKey, "does not compile")
		}
		pattern := version.ParsePattern{Regexp: compiled, Groups: aliases}
		patterns = append(patterns, pattern)
		if order == nil {
			for _, group := range compiled.SubexpNames() {
				if group == "" {
					continue
				}
				if name, ok := aliases[group]; ok {
					group = name
				}
				order = append(order, group)
			}
		}
	}
	if len(order) == 0 {
		return nil, nil, c.schemaError("parse pattern has no named capture groups", spanKey, "no components")
	}
	return patterns, order, nil
}

// captureNameRE matches the name of a (?P<name>...) capture group.
var captureNameRE = regexp.MustCompile(`\(\?P<([^>]+)>`)

// sanitizeCaptureNames rewrites capture-group names the regexp package
// rejects ($-prefixed independent components) into legal aliases and
// returns the mapping from alias back to original name.
func sanitizeCaptureNames(source string) (string, map[string]string) {
	var aliases map[string]string
	rewritten := captureNameRE.ReplaceAllStringFunc(source, func(m string) string {
		name := m[4 : len(m)-1]
		if !strings.Contains(name, "$") {
			return m
		}
		alias := "_" + strings.ReplaceAll(name, "$", "")
		if aliases == nil {
			aliases = make(map[string]string)
		}
		aliases[alias] = name
		return "(?P<" + alias + ">"
	})
	return rewritten, aliases
}

// parseTemplates parses serialize templates and checks every placeholder
// against the declared component names.
func (c *Config) parseTemplates(raw []string, spanKey string, known map[string]struct{}) ([]*format.Template, error) {
	templates := make([]*format.Template, 0, len(raw))
	for _, source := range raw {
		tmpl, err := format.Parse(source)
		if err != nil {
			return nil, c.schemaError(err.Error(), spanKey, "invalid template")
		}
		for name := range tmpl.PlaceholderNames() {
			if !componentPlaceholder(name) {
				continue
			}
			if _, ok := known[name]; !ok {
				return nil, c.schemaError(
					fmt.Sprintf("unknown version component %q", name),
					spanKey, "placeholder refers to undeclared component")
			}
		}
		templates = append(templates, tmpl)
	}
	return templates, nil
}

// parseTemplate parses a search/replace/message template. Placeholders may
// name components, the reserved current_version/new_version keys, or
// environment values, so only the syntax is validated here.
func (c *Config) parseTemplate(raw, spanKey string) (*format.Template, error) {
	tmpl, err := format.Parse(raw)
	if err != nil {
		return nil, c.schemaError(err.Error(), spanKey, "invalid template")
	}
	return tmpl, nil
}

// componentPlaceholder reports whether a placeholder name must resolve to a
// declared version component. Environment references ($NAME), timestamps and
// the reserved serialization keys are exempt.
func componentPlaceholder(name string) bool {
	switch name {
	case "now", "utcnow", "current_version", "new_version":
		return false
	}
	return !strings.HasPrefix(name, "$")
}

func boolValue(p *bool, fallback bool) bool {
	if p != nil {
		return *p
	}
	return fallback
}

func stringOr(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
