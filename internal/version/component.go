// Package version implements the user-defined version grammar: an ordered
// set of named components with numeric or fixed-list value spaces, parse and
// serialize templates, and the bump algebra that resets dependents.
package version

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// firstNumericRegex locates the first numeric run in a component value,
// keeping any non-numeric prefix and suffix intact across bumps.
var firstNumericRegex = regexp.MustCompile(`^(?P<prefix>[^-0-9]*)(?P<number>-?\d+)(?P<suffix>.*)$`)

// ComponentSpec describes one named component of the version grammar.
// An empty Values list means the component is numeric.
type ComponentSpec struct {
	// Values is the ordered list of allowed values. The first entry is the
	// initial value. Empty for numeric components.
	Values []string

	// FirstValue overrides the initial value ("0" for numeric components,
	// Values[0] otherwise).
	FirstValue string

	// OptionalValue is the value omissible in serialization. Nil defaults to
	// the initial value; a pointer to "" makes nothing omissible.
	OptionalValue *string

	// Independent exempts the component from reset-on-parent-bump.
	Independent bool

	// AlwaysIncrement bumps the component on every bump operation,
	// regardless of the target component.
	AlwaysIncrement bool

	// DependsOn names the component this one resets with, overriding the
	// implicit previous-component dependency.
	DependsOn string
}

// Numeric reports whether the component counts integers rather than walking
// a fixed value list.
func (s ComponentSpec) Numeric() bool {
	return len(s.Values) == 0
}

// Initial returns the component's initial value.
func (s ComponentSpec) Initial() string {
	if s.FirstValue != "" {
		return s.FirstValue
	}
	if len(s.Values) > 0 {
		return s.Values[0]
	}
	return "0"
}

// Omissible returns the value that may be left out of serialized forms.
func (s ComponentSpec) Omissible() string {
	if s.OptionalValue != nil {
		return *s.OptionalValue
	}
	return s.Initial()
}

// SubPattern returns the regex sub-pattern matching this component's value
// space: \d+ for numeric components, an alternation of the escaped allowed
// values (longest first) otherwise.
func (s ComponentSpec) SubPattern() string {
	if s.Numeric() {
		return `\d+`
	}
	escaped := make([]string, len(s.Values))
	copy(escaped, s.Values)
	sort.SliceStable(escaped, func(i, j int) bool {
		return len(escaped[i]) > len(escaped[j])
	})
	for i, v := range escaped {
		escaped[i] = regexp.QuoteMeta(v)
	}
	return strings.Join(escaped, "|")
}

// BumpExhaustedError reports a values component already at its last entry.
type BumpExhaustedError struct {
	Component string
	Value     string
	Values    []string
}

func (e *BumpExhaustedError) Error() string {
	return fmt.Sprintf("component %q already has the maximum value among %v and cannot be bumped",
		e.Component, e.Values)
}

// InvalidValueError reports a component value outside its allowed list.
type InvalidValueError struct {
	Component string
	Value     string
	Values    []string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("value %q of component %q must be one of %v", e.Value, e.Component, e.Values)
}

// Component is one named part of a concrete version. The zero value of a
// component carries its spec's initial value.
type Component struct {
	name  string
	value string
	set   bool
	spec  ComponentSpec
}

// NewComponent builds a component with an explicit value. Pass set=false for
// a component at its initial value.
func NewComponent(name, value string, set bool, spec ComponentSpec) Component {
	return Component{name: name, value: value, set: set, spec: spec}
}

// Name returns the component name.
func (c Component) Name() string {
	return c.name
}

// Value returns the effective current value.
func (c Component) Value() string {
	if c.set {
		return c.value
	}
	return c.spec.Initial()
}

// Spec returns the component's specification.
func (c Component) Spec() ComponentSpec {
	return c.spec
}

// Explicit reports whether the component carries a parsed or bumped value
// rather than falling back to its spec's initial value.
func (c Component) Explicit() bool {
	return c.set
}

// Required reports whether the value must appear in a serialized form.
// Components left at their initial value by parse or reset are never
// required; explicitly set components are required unless they sit at the
// omissible value.
func (c Component) Required() bool {
	return c.set && c.Value() != c.spec.Omissible()
}

// First returns the component reset to its initial value.
func (c Component) First() Component {
	return Component{name: c.name, spec: c.spec}
}

// Bump returns the component advanced by one step.
func (c Component) Bump() (Component, error) {
	var next string
	if c.spec.Numeric() {
		bumped, err := bumpNumeric(c.name, c.Value(), c.spec)
		if err != nil {
			return Component{}, err
		}
		next = bumped
	} else {
		idx := indexOf(c.spec.Values, c.Value())
		if idx < 0 {
			return Component{}, &InvalidValueError{Component: c.name, Value: c.Value(), Values: c.spec.Values}
		}
		if idx+1 >= len(c.spec.Values) {
			return Component{}, &BumpExhaustedError{Component: c.name, Value: c.Value(), Values: c.spec.Values}
		}
		next = c.spec.Values[idx+1]
	}
	return Component{name: c.name, value: next, set: true, spec: c.spec}, nil
}

// bumpNumeric increments the first numeric run in value, preserving any
// prefix and suffix text around it.
func bumpNumeric(name, value string, spec ComponentSpec) (string, error) {
	m := firstNumericRegex.FindStringSubmatch(value)
	if m == nil {
		return "", fmt.Errorf("component %q value %q does not contain any digit", name, value)
	}
	prefix := m[firstNumericRegex.SubexpIndex("prefix")]
	number := m[firstNumericRegex.SubexpIndex("number")]
	suffix := m[firstNumericRegex.SubexpIndex("suffix")]

	n, err := strconv.ParseInt(number, 10, 64)
	if err != nil {
		return "", fmt.Errorf("component %q value %q is not a valid number: %w", name, number, err)
	}

	first, err := strconv.ParseInt(spec.Initial(), 10, 64)
	if err != nil {
		return "", fmt.Errorf("component %q first value %q is not a valid number: %w", name, spec.Initial(), err)
	}
	if n < first {
		return "", fmt.Errorf("component %q value %d is lower than the first value %d and cannot be bumped",
			name, n, first)
	}

	return prefix + strconv.FormatInt(n+1, 10) + suffix, nil
}

func indexOf(values []string, value string) int {
	for i, v := range values {
		if v == value {
			return i
		}
	}
	return -1
}
