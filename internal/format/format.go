// Package format implements the brace-based template dialect used for
// version serialization, search patterns, and commit/tag messages.
// A template is literal text interleaved with {name} or {name:spec}
// placeholders; {{ and }} escape literal braces.
package format

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/lestrrat-go/strftime"
)

// Segment is one piece of a parsed template: either literal text or a
// placeholder to be substituted at render time.
type Segment struct {
	// Literal holds the unescaped text for literal segments.
	Literal string

	// Name is the placeholder name. Empty for literal segments.
	Name string

	// Spec is the format specifier following the colon, if any.
	Spec string

	// Start and End delimit the segment's byte range in the source template.
	Start int
	End   int
}

// IsPlaceholder reports whether the segment substitutes a value.
func (s Segment) IsPlaceholder() bool {
	return s.Name != ""
}

// Template is a parsed format string.
type Template struct {
	raw      string
	segments []Segment
}

// ParseError reports a malformed template.
type ParseError struct {
	Template string
	Pos      int
	Reason   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid format string %q at offset %d: %s", e.Template, e.Pos, e.Reason)
}

// MissingKeyError reports a placeholder with no value in the environment.
type MissingKeyError struct {
	Name string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("missing argument %q", e.Name)
}

// Parse splits a template into literal and placeholder segments.
func Parse(raw string) (*Template, error) {
	var segments []Segment
	var literal strings.Builder
	litStart := 0

	flush := func(end int) {
		if literal.Len() > 0 {
			segments = append(segments, Segment{
				Literal: literal.String(),
				Start:   litStart,
				End:     end,
			})
			literal.Reset()
		}
	}

	i := 0
	for i < len(raw) {
		switch raw[i] {
		case '{':
			if i+1 < len(raw) && raw[i+1] == '{' {
				if literal.Len() == 0 {
					litStart = i
				}
				literal.WriteByte('{')
				i += 2
				continue
			}
			close := strings.IndexByte(raw[i+1:], '}')
			if close < 0 {
				return nil, &ParseError{Template: raw, Pos: i, Reason: "unmatched '{'"}
			}
			flush(i)
			inner := raw[i+1 : i+1+close]
			name, spec := inner, ""
			if idx := strings.IndexByte(inner, ':'); idx >= 0 {
				name, spec = inner[:idx], inner[idx+1:]
			}
			if name == "" {
				return nil, &ParseError{Template: raw, Pos: i, Reason: "empty placeholder name"}
			}
			if strings.ContainsRune(inner, '{') {
				return nil, &ParseError{Template: raw, Pos: i, Reason: "nested '{' in placeholder"}
			}
			segments = append(segments, Segment{
				Name:  name,
				Spec:  spec,
				Start: i,
				End:   i + close + 2,
			})
			i += close + 2
			litStart = i
		case '}':
			if i+1 < len(raw) && raw[i+1] == '}' {
				if literal.Len() == 0 {
					litStart = i
				}
				literal.WriteByte('}')
				i += 2
				continue
			}
			return nil, &ParseError{Template: raw, Pos: i, Reason: "unmatched '}'"}
		default:
			if literal.Len() == 0 {
				litStart = i
			}
			literal.WriteByte(raw[i])
			i++
		}
	}
	flush(len(raw))

	return &Template{raw: raw, segments: segments}, nil
}

// MustParse is Parse for templates known valid at compile time.
func MustParse(raw string) *Template {
	t, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return t
}

// String returns the original template text.
func (t *Template) String() string {
	return t.raw
}

// Segments returns the parsed segments in order.
func (t *Template) Segments() []Segment {
	return t.segments
}

// PlaceholderNames returns the set of placeholder names in the template.
func (t *Template) PlaceholderNames() map[string]struct{} {
	names := make(map[string]struct{})
	for _, seg := range t.segments {
		if seg.IsPlaceholder() {
			names[seg.Name] = struct{}{}
		}
	}
	return names
}

// Render substitutes each placeholder from env. When strict is true a
// placeholder with no value yields a MissingKeyError; otherwise it renders
// as the empty string.
func (t *Template) Render(env map[string]string, strict bool) (string, error) {
	var out strings.Builder
	for _, seg := range t.segments {
		if !seg.IsPlaceholder() {
			out.WriteString(seg.Literal)
			continue
		}
		value, err := t.renderPlaceholder(seg, env, strict)
		if err != nil {
			return "", err
		}
		out.WriteString(value)
	}
	return out.String(), nil
}

func (t *Template) renderPlaceholder(seg Segment, env map[string]string, strict bool) (string, error) {
	value, ok := env[seg.Name]
	if !ok {
		if strict {
			return "", &MissingKeyError{Name: seg.Name}
		}
		return "", nil
	}
	if seg.Spec == "" {
		return value, nil
	}
	if strings.HasPrefix(seg.Spec, "%") {
		return formatTimestamp(value, seg.Spec)
	}
	return applySpec(value, seg.Spec, seg, t.raw)
}

// formatTimestamp renders an RFC 3339 environment value (such as "now" or
// "utcnow") through a strftime layout.
func formatTimestamp(value, layout string) (string, error) {
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return "", fmt.Errorf("value %q is not a timestamp: %w", value, err)
	}
	formatted, err := strftime.Format(layout, ts)
	if err != nil {
		return "", fmt.Errorf("invalid time format %q: %w", layout, err)
	}
	return formatted, nil
}

// applySpec implements the supported subset of the format-spec grammar:
// [[fill]align][0][width] with align one of '<', '>', '^'.
func applySpec(value, spec string, seg Segment, raw string) (string, error) {
	fill := byte(' ')
	align := byte(0)
	rest := spec

	if len(rest) >= 2 && isAlign(rest[1]) {
		fill, align = rest[0], rest[1]
		rest = rest[2:]
	} else if len(rest) >= 1 && isAlign(rest[0]) {
		align = rest[0]
		rest = rest[1:]
	} else if strings.HasPrefix(rest, "0") {
		fill, align = '0', '>'
		rest = rest[1:]
	}

	width := 0
	for i := 0; i < len(rest); i++ {
		if rest[i] < '0' || rest[i] > '9' {
			return "", &ParseError{Template: raw, Pos: seg.Start, Reason: fmt.Sprintf("unsupported format spec %q", spec)}
		}
		width = width*10 + int(rest[i]-'0')
	}

	if pad := width - len(value); pad > 0 {
		padding := strings.Repeat(string(fill), pad)
		switch align {
		case '>':
			value = padding + value
		case '^':
			left := pad / 2
			value = strings.Repeat(string(fill), left) + value + strings.Repeat(string(fill), pad-left)
		default:
			value = value + padding
		}
	}
	return value, nil
}

func isAlign(b byte) bool {
	return b == '<' || b == '>' || b == '^'
}

// RegexPattern compiles the template into a regular expression source.
// Literal segments are escaped. A placeholder named in groups becomes a
// named capture with the given sub-pattern; any other placeholder is
// rendered from env immediately and escaped as a literal. When anchored is
// true the pattern is wrapped in ^...$.
func (t *Template) RegexPattern(groups map[string]string, env map[string]string, anchored bool) (string, error) {
	return t.regexPattern(groups, env, anchored, true)
}

// RawRegexPattern is RegexPattern for templates whose literal text already
// is regex source: literals pass through unescaped while substituted
// placeholder values are still quoted.
func (t *Template) RawRegexPattern(groups map[string]string, env map[string]string) (string, error) {
	return t.regexPattern(groups, env, false, false)
}

func (t *Template) regexPattern(groups map[string]string, env map[string]string, anchored, escapeLiterals bool) (string, error) {
	var pattern strings.Builder
	if anchored {
		pattern.WriteString("^")
	}
	for _, seg := range t.segments {
		if !seg.IsPlaceholder() {
			if escapeLiterals {
				pattern.WriteString(regexp.QuoteMeta(seg.Literal))
			} else {
				pattern.WriteString(seg.Literal)
			}
			continue
		}
		if sub, ok := groups[seg.Name]; ok {
			fmt.Fprintf(&pattern, "(?P<%s>%s)", seg.Name, sub)
			continue
		}
		value, err := t.renderPlaceholder(seg, env, true)
		if err != nil {
			return "", err
		}
		pattern.WriteString(regexp.QuoteMeta(value))
	}
	if anchored {
		pattern.WriteString("$")
	}
	return pattern.String(), nil
}
