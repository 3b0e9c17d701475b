package config

import (
	"regexp"
)

// ReplaceVersion rewrites the current_version field inside the raw config
// bytes with a targeted regex, preserving comments and layout. Returns the
// rewritten bytes and whether a replacement happened.
func (c *Config) ReplaceVersion(oldVersion, newVersion string) ([]byte, bool) {
	var pattern *regexp.Regexp
	if c.Format == FormatTOML {
		pattern = regexp.MustCompile(
			`(?m)^(?P<prefix>\s*current_version\s*=\s*["'])` + regexp.QuoteMeta(oldVersion) + `(?P<suffix>["'])`)
	} else {
		pattern = regexp.MustCompile(
			`(?m)^(?P<prefix>\s*current_version\s*[=:][ \t]*)` + regexp.QuoteMeta(oldVersion) + `(?P<suffix>[ \t]*\r?)$`)
	}

	replaced := false
	out := pattern.ReplaceAllFunc(c.Source, func(match []byte) []byte {
		if replaced {
			return match
		}
		replaced = true
		groups := pattern.FindSubmatch(match)
		prefix := groups[pattern.SubexpIndex("prefix")]
		suffix := groups[pattern.SubexpIndex("suffix")]
		return append(append(append([]byte{}, prefix...), []byte(newVersion)...), suffix...)
	})
	if !replaced {
		return c.Source, false
	}
	return out, true
}
