package config

import (
	"fmt"
	"strings"

	"github.com/release-tools/go-bumpversion/internal/diagnostics"
)

// ParseError is a surface-syntax error in a configuration file.
type ParseError struct {
	Path   string
	Source []byte
	Diag   diagnostics.Diagnostic
}

func (e *ParseError) Error() string {
	return strings.TrimRight(e.Diag.Render(e.Path, e.Source), "\n")
}

const (
	sectionGlobal     = "bumpversion"
	sectionFilePrefix = "bumpversion:file:"
	sectionGlobPrefix = "bumpversion:glob:"
	sectionPartPrefix = "bumpversion:part:"
)

// iniLine is one logical line with its byte offset into the source.
type iniLine struct {
	text   string
	offset int
}

// iniEntry is a key with its (possibly continued) value and spans.
type iniEntry struct {
	key     string
	keySpan diagnostics.Span
	value   string
	// lines holds each value line separately for list-valued keys.
	lines   []string
	valSpan diagnostics.Span
}

// ParseINI parses the INI dialect: sections [bumpversion],
// [bumpversion:file:<path>], [bumpversion:glob:<pattern>] and
// [bumpversion:part:<component>]. Sections outside the bumpversion
// namespace (as found in a shared setup.cfg) are ignored.
func ParseINI(path string, source []byte) (*Config, error) {
	cfg := newConfig(path, FormatINI, source)

	lines := splitLines(source)
	section := ""
	sectionSpan := diagnostics.Span{}
	sawGlobal := false

	var currentFile *FileSpec
	var currentPart *PartSpec
	var currentPartName string

	flushPart := func() {
		if currentPart != nil {
			cfg.Parts[currentPartName] = *currentPart
			currentPart = nil
		}
	}
	flushFile := func() {
		if currentFile != nil {
			cfg.Files = append(cfg.Files, *currentFile)
			currentFile = nil
		}
	}

	i := 0
	for i < len(lines) {
		line := lines[i]
		trimmed := strings.TrimSpace(line.text)
		if trimmed == "" || trimmed[0] == '#' || trimmed[0] == ';' {
			i++
			continue
		}

		if strings.HasPrefix(trimmed, "[") {
			if !strings.HasSuffix(trimmed, "]") {
				return nil, &ParseError{Path: path, Source: source, Diag: diagnostics.Diagnostic{
					Severity: diagnostics.SeverityError,
					Message:  "unterminated section header",
					Labels: []diagnostics.Label{diagnostics.Primary(
						diagnostics.Span{Start: line.offset, End: line.offset + len(line.text)}, "missing ']'")},
				}}
			}
			flushFile()
			flushPart()
			section = trimmed[1 : len(trimmed)-1]
			sectionSpan = diagnostics.Span{Start: line.offset, End: line.offset + len(line.text)}

			switch {
			case section == sectionGlobal:
				sawGlobal = true
			case strings.HasPrefix(section, sectionFilePrefix):
				sawGlobal = true
				currentFile = &FileSpec{Path: section[len(sectionFilePrefix):]}
				cfg.Spans["file:"+currentFile.Path] = sectionSpan
			case strings.HasPrefix(section, sectionGlobPrefix):
				sawGlobal = true
				currentFile = &FileSpec{Path: section[len(sectionGlobPrefix):], Glob: true}
				cfg.Spans["file:"+currentFile.Path] = sectionSpan
			case strings.HasPrefix(section, sectionPartPrefix):
				sawGlobal = true
				currentPartName = section[len(sectionPartPrefix):]
				currentPart = &PartSpec{}
				cfg.Spans["part:"+currentPartName] = sectionSpan
			case strings.HasPrefix(section, sectionGlobal+":"):
				cfg.Warnings = append(cfg.Warnings, diagnostics.Diagnostic{
					Severity: diagnostics.SeverityWarning,
					Message:  fmt.Sprintf("unknown section %q", section),
					Labels:   []diagnostics.Label{diagnostics.Primary(sectionSpan, "this section is ignored")},
				})
			}
			i++
			continue
		}

		entry, next, err := parseEntry(path, source, lines, i)
		if err != nil {
			return nil, err
		}
		i = next

		if !inBumpversionSection(section) {
			continue
		}

		switch {
		case currentFile != nil:
			err = cfg.setFileKey(currentFile, entry)
		case currentPart != nil:
			err = cfg.setPartKey(currentPart, currentPartName, entry)
		case section == sectionGlobal:
			err = cfg.setGlobalKey(entry)
		}
		if err != nil {
			return nil, err
		}
	}
	flushFile()
	flushPart()

	if !sawGlobal {
		return nil, &ParseError{Path: path, Source: source, Diag: diagnostics.Diagnostic{
			Severity: diagnostics.SeverityError,
			Message:  "no [bumpversion] section found",
			Labels:   []diagnostics.Label{diagnostics.Primary(diagnostics.Span{}, "")},
		}}
	}
	return cfg, nil
}

// HasINISection reports whether the source contains any bumpversion
// section, used during discovery to skip unrelated setup.cfg files.
func HasINISection(source []byte) bool {
	for _, line := range splitLines(source) {
		trimmed := strings.TrimSpace(line.text)
		if trimmed == "[bumpversion]" || strings.HasPrefix(trimmed, "[bumpversion:") {
			return true
		}
	}
	return false
}

func inBumpversionSection(section string) bool {
	return section == sectionGlobal || strings.HasPrefix(section, sectionGlobal+":")
}

func splitLines(source []byte) []iniLine {
	var lines []iniLine
	start := 0
	for idx, b := range source {
		if b == '\n' {
			lines = append(lines, iniLine{text: strings.TrimRight(string(source[start:idx]), "\r"), offset: start})
			start = idx + 1
		}
	}
	if start < len(source) {
		lines = append(lines, iniLine{text: string(source[start:]), offset: start})
	}
	return lines
}

// parseEntry reads "key = value" (or "key: value") plus any indented
// continuation lines. Returns the entry and the index of the next
// unconsumed line.
func parseEntry(path string, source []byte, lines []iniLine, i int) (iniEntry, int, error) {
	line := lines[i]
	sep := strings.IndexAny(line.text, "=:")
	if sep < 0 {
		return iniEntry{}, 0, &ParseError{Path: path, Source: source, Diag: diagnostics.Diagnostic{
			Severity: diagnostics.SeverityError,
			Message:  "expected 'key = value'",
			Labels: []diagnostics.Label{diagnostics.Primary(
				diagnostics.Span{Start: line.offset, End: line.offset + len(line.text)}, "no '=' found")},
		}}
	}

	key := strings.TrimSpace(line.text[:sep])
	rawValue := line.text[sep+1:]
	valueStart := line.offset + sep + 1 + leadingSpace(rawValue)
	value := strings.TrimSpace(rawValue)

	entry := iniEntry{
		key:     key,
		keySpan: diagnostics.Span{Start: line.offset, End: line.offset + sep},
		valSpan: diagnostics.Span{Start: valueStart, End: valueStart + len(value)},
	}
	if value != "" {
		entry.lines = append(entry.lines, value)
	}

	next := i + 1
	for next < len(lines) {
		cont := lines[next]
		if cont.text == "" || !isSpace(cont.text[0]) {
			break
		}
		contValue := strings.TrimSpace(cont.text)
		if contValue != "" {
			entry.lines = append(entry.lines, contValue)
			entry.valSpan.End = cont.offset + len(cont.text)
		}
		next++
	}
	if entry.valSpan.End == entry.valSpan.Start && len(entry.lines) > 0 {
		entry.valSpan.End = entry.valSpan.Start + len(entry.lines[0])
	}

	entry.value = strings.Join(entry.lines, "\n")
	return entry, next, nil
}

func leadingSpace(s string) int {
	n := 0
	for n < len(s) && isSpace(s[n]) {
		n++
	}
	return n
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t'
}

func (c *Config) setGlobalKey(e iniEntry) error {
	c.Spans[e.key] = e.valSpan
	g := &c.Global

	switch e.key {
	case "current_version":
		g.CurrentVersion = e.value
	case "parse":
		g.Parse = e.lines
	case "serialize":
		g.Serialize = e.lines
	case "search":
		g.Search = e.value
	case "replace":
		g.Replace = e.value
	case "regex":
		return c.setBool(&g.Regex, e)
	case "allow_dirty":
		return c.setBool(&g.AllowDirty, e)
	case "dry_run":
		return c.setBool(&g.DryRun, e)
	case "commit":
		return c.setBool(&g.Commit, e)
	case "tag":
		return c.setBool(&g.Tag, e)
	case "sign_tag", "sign_tags":
		return c.setBool(&g.SignTags, e)
	case "tag_name":
		g.TagName = e.value
	case "tag_message":
		g.TagMessage = e.value
	case "message", "commit_message":
		g.Message = e.value
	case "commit_args":
		g.CommitArgs = e.value
	case "no_configured_files":
		return c.setBool(&g.NoConfiguredFiles, e)
	case "ignore_missing_file", "ignore_missing_files":
		return c.setBool(&g.IgnoreMissingFiles, e)
	case "ignore_missing_version":
		return c.setBool(&g.IgnoreMissingVersion, e)
	case "setup_hooks":
		g.SetupHooks = e.lines
	case "pre_commit_hooks":
		g.PreCommitHooks = e.lines
	case "post_commit_hooks":
		g.PostCommitHooks = e.lines
	case "included_paths":
		g.IncludedPaths = e.lines
	case "excluded_paths":
		g.ExcludedPaths = e.lines
	default:
		c.warnUnknownKey(e.key, e.keySpan)
	}
	return nil
}

func (c *Config) setFileKey(f *FileSpec, e iniEntry) error {
	key := "file:" + f.Path + "." + e.key
	c.Spans[key] = e.valSpan

	switch e.key {
	case "parse":
		f.Parse = e.lines
	case "serialize":
		f.Serialize = e.lines
	case "search":
		f.Search = e.value
	case "replace":
		f.Replace = e.value
	case "regex":
		return c.setBool(&f.Regex, e)
	case "glob_exclude":
		f.GlobExclude = splitList(e.lines)
	case "ignore_missing_file":
		return c.setBool(&f.IgnoreMissingFile, e)
	case "ignore_missing_version":
		return c.setBool(&f.IgnoreMissingVersion, e)
	default:
		c.warnUnknownKey(e.key, e.keySpan)
	}
	return nil
}

func (c *Config) setPartKey(p *PartSpec, name string, e iniEntry) error {
	key := "part:" + name + "." + e.key
	c.Spans[key] = e.valSpan

	switch e.key {
	case "values":
		p.Values = splitList(e.lines)
	case "optional_value":
		value := e.value
		p.OptionalValue = &value
	case "first_value":
		p.FirstValue = e.value
	case "independent":
		return c.setBool(&p.Independent, e)
	case "always_increment":
		return c.setBool(&p.AlwaysIncrement, e)
	case "depends_on":
		p.DependsOn = e.value
	default:
		c.warnUnknownKey(e.key, e.keySpan)
	}
	return nil
}

func (c *Config) setBool(dst **bool, e iniEntry) error {
	switch e.value {
	case "True", "true", "1":
		v := true
		*dst = &v
	case "False", "false", "0":
		v := false
		*dst = &v
	default:
		return &ParseError{Path: c.Path, Source: c.Source, Diag: diagnostics.Diagnostic{
			Severity: diagnostics.SeverityError,
			Message:  fmt.Sprintf("invalid boolean %q for key %q", e.value, e.key),
			Labels:   []diagnostics.Label{diagnostics.Primary(e.valSpan, "expected True or False")},
		}}
	}
	return nil
}

// splitList splits list values on newlines and commas, dropping empties.
func splitList(lines []string) []string {
	var out []string
	for _, line := range lines {
		for _, item := range strings.Split(line, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}
