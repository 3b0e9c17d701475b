package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/release-tools/go-bumpversion/internal/diagnostics"
)

// tomlDocument is the raw shape of the [tool.bumpversion] table. Values are
// decoded loosely and coerced afterwards so that type mismatches can be
// reported with spans into the source.
type tomlDocument struct {
	Tool struct {
		Bumpversion map[string]any `toml:"bumpversion"`
	} `toml:"tool"`
}

// ParseTOML parses the TOML dialect: a [tool.bumpversion] table with
// [tool.bumpversion.parts.<component>] sub-tables and
// [[tool.bumpversion.files]] entries.
func ParseTOML(path string, source []byte) (*Config, error) {
	var doc tomlDocument
	if err := toml.Unmarshal(source, &doc); err != nil {
		return nil, tomlParseError(path, source, err)
	}

	cfg := newConfig(path, FormatTOML, source)
	if doc.Tool.Bumpversion == nil {
		return nil, &ParseError{Path: path, Source: source, Diag: diagnostics.Diagnostic{
			Severity: diagnostics.SeverityError,
			Message:  "no [tool.bumpversion] table found",
			Labels:   []diagnostics.Label{diagnostics.Primary(diagnostics.Span{}, "")},
		}}
	}

	for key, value := range doc.Tool.Bumpversion {
		span := tomlKeySpan(source, key)
		cfg.Spans[key] = span
		if err := cfg.setTOMLGlobal(key, value, span); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// HasTOMLTable reports whether the source declares a [tool.bumpversion]
// table, used during discovery to skip unrelated pyproject.toml files.
func HasTOMLTable(source []byte) bool {
	var doc tomlDocument
	if err := toml.Unmarshal(source, &doc); err != nil {
		return false
	}
	return doc.Tool.Bumpversion != nil
}

func (c *Config) setTOMLGlobal(key string, value any, span diagnostics.Span) error {
	g := &c.Global
	var err error

	switch key {
	case "current_version":
		g.CurrentVersion, err = c.tomlString(key, value, span)
	case "parse":
		g.Parse, err = c.tomlStringList(key, value, span)
	case "serialize":
		g.Serialize, err = c.tomlStringList(key, value, span)
	case "search":
		g.Search, err = c.tomlString(key, value, span)
	case "replace":
		g.Replace, err = c.tomlString(key, value, span)
	case "regex":
		g.Regex, err = c.tomlBool(key, value, span)
	case "allow_dirty":
		g.AllowDirty, err = c.tomlBool(key, value, span)
	case "dry_run":
		g.DryRun, err = c.tomlBool(key, value, span)
	case "commit":
		g.Commit, err = c.tomlBool(key, value, span)
	case "tag":
		g.Tag, err = c.tomlBool(key, value, span)
	case "sign_tags", "sign_tag":
		g.SignTags, err = c.tomlBool(key, value, span)
	case "tag_name":
		g.TagName, err = c.tomlString(key, value, span)
	case "tag_message":
		g.TagMessage, err = c.tomlString(key, value, span)
	case "message", "commit_message":
		g.Message, err = c.tomlString(key, value, span)
	case "commit_args":
		g.CommitArgs, err = c.tomlString(key, value, span)
	case "no_configured_files":
		g.NoConfiguredFiles, err = c.tomlBool(key, value, span)
	case "ignore_missing_file", "ignore_missing_files":
		g.IgnoreMissingFiles, err = c.tomlBool(key, value, span)
	case "ignore_missing_version":
		g.IgnoreMissingVersion, err = c.tomlBool(key, value, span)
	case "setup_hooks":
		g.SetupHooks, err = c.tomlStringList(key, value, span)
	case "pre_commit_hooks":
		g.PreCommitHooks, err = c.tomlStringList(key, value, span)
	case "post_commit_hooks":
		g.PostCommitHooks, err = c.tomlStringList(key, value, span)
	case "included_paths":
		g.IncludedPaths, err = c.tomlStringList(key, value, span)
	case "excluded_paths":
		g.ExcludedPaths, err = c.tomlStringList(key, value, span)
	case "files":
		err = c.setTOMLFiles(value, span)
	case "parts":
		err = c.setTOMLParts(value, span)
	default:
		c.warnUnknownKey(key, span)
	}
	return err
}

func (c *Config) setTOMLFiles(value any, span diagnostics.Span) error {
	var tables []map[string]any
	switch v := value.(type) {
	case []map[string]any:
		tables = v
	case []any:
		for _, raw := range v {
			table, ok := raw.(map[string]any)
			if !ok {
				return c.tomlTypeError("files", "array of tables", span)
			}
			tables = append(tables, table)
		}
	default:
		return c.tomlTypeError("files", "array of tables", span)
	}
	for _, table := range tables {
		var f FileSpec
		for key, v := range table {
			kspan := tomlKeySpan(c.Source, key)
			var err error
			switch key {
			case "filename":
				f.Path, err = c.tomlString(key, v, kspan)
			case "glob":
				f.Path, err = c.tomlString(key, v, kspan)
				f.Glob = true
			case "glob_exclude":
				f.GlobExclude, err = c.tomlStringList(key, v, kspan)
			case "parse":
				f.Parse, err = c.tomlStringList(key, v, kspan)
			case "serialize":
				f.Serialize, err = c.tomlStringList(key, v, kspan)
			case "search":
				f.Search, err = c.tomlString(key, v, kspan)
			case "replace":
				f.Replace, err = c.tomlString(key, v, kspan)
			case "regex":
				f.Regex, err = c.tomlBool(key, v, kspan)
			case "ignore_missing_file":
				f.IgnoreMissingFile, err = c.tomlBool(key, v, kspan)
			case "ignore_missing_version":
				f.IgnoreMissingVersion, err = c.tomlBool(key, v, kspan)
			default:
				c.warnUnknownKey("files."+key, kspan)
			}
			if err != nil {
				return err
			}
		}
		if f.Path == "" {
			return &SchemaError{Path: c.Path, Source: c.Source, Diag: diagnostics.Diagnostic{
				Severity: diagnostics.SeverityError,
				Message:  "file entry missing filename or glob",
				Labels:   []diagnostics.Label{diagnostics.Primary(span, "in this files entry")},
			}}
		}
		for key := range table {
			c.Spans["file:"+f.Path+"."+key] = tomlKeySpan(c.Source, key)
		}
		c.Files = append(c.Files, f)
	}
	return nil
}

func (c *Config) setTOMLParts(value any, span diagnostics.Span) error {
	tables, ok := value.(map[string]any)
	if !ok {
		return c.tomlTypeError("parts", "table", span)
	}
	for name, raw := range tables {
		table, ok := raw.(map[string]any)
		if !ok {
			return c.tomlTypeError("parts."+name, "table", span)
		}
		var p PartSpec
		for key, v := range table {
			kspan := tomlKeySpan(c.Source, key)
			c.Spans["part:"+name+"."+key] = kspan
			var err error
			switch key {
			case "values":
				p.Values, err = c.tomlStringList(key, v, kspan)
			case "optional_value":
				var s string
				if s, err = c.tomlString(key, v, kspan); err == nil {
					p.OptionalValue = &s
				}
			case "first_value":
				p.FirstValue, err = c.tomlString(key, v, kspan)
			case "independent":
				p.Independent, err = c.tomlBool(key, v, kspan)
			case "always_increment":
				p.AlwaysIncrement, err = c.tomlBool(key, v, kspan)
			case "depends_on":
				p.DependsOn, err = c.tomlString(key, v, kspan)
			default:
				c.warnUnknownKey("parts."+name+"."+key, kspan)
			}
			if err != nil {
				return err
			}
		}
		c.Parts[name] = p
	}
	return nil
}

func (c *Config) tomlString(key string, value any, span diagnostics.Span) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case int64:
		return fmt.Sprintf("%d", v), nil
	default:
		return "", c.tomlTypeError(key, "string", span)
	}
}

func (c *Config) tomlBool(key string, value any, span diagnostics.Span) (*bool, error) {
	b, ok := value.(bool)
	if !ok {
		return nil, c.tomlTypeError(key, "boolean", span)
	}
	return &b, nil
}

// tomlStringList accepts a single string or an array of strings.
func (c *Config) tomlStringList(key string, value any, span diagnostics.Span) ([]string, error) {
	switch v := value.(type) {
	case string:
		return []string{v}, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, c.tomlTypeError(key, "array of strings", span)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, c.tomlTypeError(key, "string or array of strings", span)
	}
}

func (c *Config) tomlTypeError(key, expected string, span diagnostics.Span) error {
	return &SchemaError{Path: c.Path, Source: c.Source, Diag: diagnostics.Diagnostic{
		Severity: diagnostics.SeverityError,
		Message:  fmt.Sprintf("key %q must be a %s", key, expected),
		Labels:   []diagnostics.Label{diagnostics.Primary(span, "wrong type")},
	}}
}

// tomlParseError converts a go-toml DecodeError position into a span-backed
// ParseError.
func tomlParseError(path string, source []byte, err error) error {
	diag := diagnostics.Diagnostic{
		Severity: diagnostics.SeverityError,
		Message:  "invalid TOML",
	}
	var derr *toml.DecodeError
	if errors.As(err, &derr) {
		row, col := derr.Position()
		offset := offsetOf(source, row, col)
		diag.Message = derr.Error()
		diag.Labels = []diagnostics.Label{diagnostics.Primary(
			diagnostics.Span{Start: offset, End: offset + 1}, "syntax error here")}
	}
	return &ParseError{Path: path, Source: source, Diag: diag}
}

// offsetOf converts a 1-based row/column into a byte offset.
func offsetOf(source []byte, row, col int) int {
	offset := 0
	for row > 1 && offset < len(source) {
		if source[offset] == '\n' {
			row--
		}
		offset++
	}
	offset += col - 1
	if offset > len(source) {
		offset = len(source)
	}
	return offset
}

// tomlKeySpan locates the value of "key = ..." in the raw source. The span
// is approximate (first occurrence of the key at the start of a line) but
// sufficient for pointing diagnostics at the right place.
func tomlKeySpan(source []byte, key string) diagnostics.Span {
	re, err := regexp.Compile(`(?m)^[ \t]*` + regexp.QuoteMeta(key) + `[ \t]*=[ \t]*`)
	if err != nil {
		return diagnostics.Span{}
	}
	loc := re.FindIndex(source)
	if loc == nil {
		return diagnostics.Span{}
	}
	end := loc[1]
	for end < len(source) && source[end] != '\n' {
		end++
	}
	value := strings.TrimRight(string(source[loc[1]:end]), " \t\r")
	return diagnostics.Span{Start: loc[1], End: loc[1] + len(value)}
}
