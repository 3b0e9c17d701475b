package version

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/release-tools/go-bumpversion/internal/format"
)

// Spec is the version grammar: component order, per-component value spaces,
// the dependency graph used for resets, and the always-increment set.
type Spec struct {
	order           []string
	configs         map[string]ComponentSpec
	deps            map[string][]string
	alwaysIncrement []string
}

// NewSpec builds a Spec from ordered component names and their configs.
// A component missing from configs becomes an implicit numeric component.
// Each component depends on its predecessor unless it is independent or
// names an explicit DependsOn.
func NewSpec(order []string, configs map[string]ComponentSpec) *Spec {
	resolved := make(map[string]ComponentSpec, len(order))
	for _, name := range order {
		spec := configs[name]
		// A leading $ marks an environment-driven, independent component.
		if strings.HasPrefix(name, "$") {
			spec.Independent = true
		}
		resolved[name] = spec
	}

	deps := make(map[string][]string)
	var always []string
	for i, name := range order {
		spec := resolved[name]
		if spec.AlwaysIncrement {
			always = append(always, name)
		}
		if i == 0 || spec.Independent {
			continue
		}
		parent := order[i-1]
		if spec.DependsOn != "" {
			parent = spec.DependsOn
		}
		deps[parent] = append(deps[parent], name)
	}

	return &Spec{order: order, configs: resolved, deps: deps, alwaysIncrement: always}
}

// ComponentNames returns the component names in significance order.
func (s *Spec) ComponentNames() []string {
	return s.order
}

// Config returns the spec for a named component.
func (s *Spec) Config(name string) (ComponentSpec, bool) {
	c, ok := s.configs[name]
	return c, ok
}

// Dependents returns the transitive closure of components that reset when
// the named component bumps.
func (s *Spec) Dependents(name string) map[string]struct{} {
	visited := make(map[string]struct{})
	stack := append([]string(nil), s.deps[name]...)
	for len(stack) > 0 {
		next := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := visited[next]; seen {
			continue
		}
		visited[next] = struct{}{}
		stack = append(stack, s.deps[next]...)
	}
	return visited
}

// GroupPatterns returns the regex sub-pattern for each component, keyed by
// name, for use as named capture groups in parse and search patterns.
func (s *Spec) GroupPatterns() map[string]string {
	groups := make(map[string]string, len(s.order))
	for _, name := range s.order {
		groups[name] = s.configs[name].SubPattern()
	}
	return groups
}

// Build assembles a Version from raw captured component values. A value
// outside a component's allowed list is an InvalidValueError.
func (s *Spec) Build(raw map[string]string) (*Version, error) {
	components := make(map[string]Component, len(s.order))
	for _, name := range s.order {
		spec := s.configs[name]
		value, ok := raw[name]
		if ok && !spec.Numeric() && indexOf(spec.Values, value) < 0 {
			return nil, &InvalidValueError{Component: name, Value: value, Values: spec.Values}
		}
		components[name] = NewComponent(name, value, ok, spec)
	}
	return &Version{spec: s, components: components}, nil
}

// Version is a concrete parsed version: one value per grammar component.
// Versions are immutable; Bump returns a new value.
type Version struct {
	spec       *Spec
	components map[string]Component
}

// UnparseableVersionError reports a raw string no parse pattern matched.
type UnparseableVersionError struct {
	Raw      string
	Patterns []string
}

func (e *UnparseableVersionError) Error() string {
	return fmt.Sprintf("version %q does not match any parse pattern %v", e.Raw, e.Patterns)
}

// InvalidComponentError reports a bump target that is not a component.
type InvalidComponentError struct {
	Component string
}

func (e *InvalidComponentError) Error() string {
	return fmt.Sprintf("invalid version component %q", e.Component)
}

// ParsePattern couples a compiled parse regex with the mapping from its
// capture-group names back to component names. The two differ for
// $-prefixed (independent) components, whose names the regexp package
// rejects in group syntax.
type ParsePattern struct {
	Regexp *regexp.Regexp

	// Groups maps a capture-group name to the component name it stands
	// for. Groups it does not mention map to themselves.
	Groups map[string]string
}

// NewParsePattern wraps a regex whose group names are component names.
func NewParsePattern(re *regexp.Regexp) ParsePattern {
	return ParsePattern{Regexp: re}
}

func (p ParsePattern) componentName(group string) string {
	if name, ok := p.Groups[group]; ok {
		return name
	}
	return group
}

// Parse tries each pattern in order and builds a Version from the first
// match. Capture groups carry component values.
func Parse(patterns []ParsePattern, raw string, spec *Spec) (*Version, error) {
	for _, pattern := range patterns {
		re := pattern.Regexp
		m := re.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		values := make(map[string]string)
		for _, group := range re.SubexpNames() {
			if group == "" {
				continue
			}
			if idx := re.SubexpIndex(group); idx >= 0 && idx < len(m) && m[idx] != "" {
				values[pattern.componentName(group)] = m[idx]
			}
		}
		if len(values) == 0 {
			continue
		}
		return spec.Build(values)
	}

	sources := make([]string, len(patterns))
	for i, p := range patterns {
		sources[i] = p.Regexp.String()
	}
	return nil, &UnparseableVersionError{Raw: raw, Patterns: sources}
}

// Spec returns the grammar this version was built from.
func (v *Version) Spec() *Spec {
	return v.spec
}

// Component returns the named component.
func (v *Version) Component(name string) (Component, bool) {
	c, ok := v.components[name]
	return c, ok
}

// Components returns all components in significance order.
func (v *Version) Components() []Component {
	out := make([]Component, 0, len(v.spec.order))
	for _, name := range v.spec.order {
		out = append(out, v.components[name])
	}
	return out
}

// Values returns the effective value of every component, keyed by name.
func (v *Version) Values() map[string]string {
	values := make(map[string]string, len(v.components))
	for name, c := range v.components {
		values[name] = c.Value()
	}
	return values
}

// RequiredComponents returns the names of explicitly set components whose
// value differs from their omissible value and so must appear in a
// serialized form.
func (v *Version) RequiredComponents() map[string]struct{} {
	required := make(map[string]struct{})
	for name, c := range v.components {
		if c.Required() {
			required[name] = struct{}{}
		}
	}
	return required
}

// Equal reports whether both versions have the same effective component
// values under the same component order.
func (v *Version) Equal(other *Version) bool {
	if other == nil || len(v.spec.order) != len(other.spec.order) {
		return false
	}
	for _, name := range v.spec.order {
		oc, ok := other.components[name]
		if !ok || oc.Value() != v.components[name].Value() {
			return false
		}
	}
	return true
}

// String renders the component values for diagnostics.
func (v *Version) String() string {
	parts := make([]string, 0, len(v.spec.order))
	for _, name := range v.spec.order {
		parts = append(parts, fmt.Sprintf("%s=%s", name, v.components[name].Value()))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Bump advances the target component and resets every non-independent
// dependent to its initial value. Components marked always-increment bump
// on every call regardless of the target.
func (v *Version) Bump(target string) (*Version, error) {
	if _, ok := v.components[target]; !ok {
		return nil, &InvalidComponentError{Component: target}
	}

	next := make(map[string]Component, len(v.components))
	for name, c := range v.components {
		next[name] = c
	}

	toReset := make(map[string]struct{})
	for _, name := range v.spec.alwaysIncrement {
		bumped, err := v.components[name].Bump()
		if err != nil {
			return nil, err
		}
		next[name] = bumped
		if bumped.Value() != v.components[name].Value() {
			for dep := range v.spec.Dependents(name) {
				toReset[dep] = struct{}{}
			}
		}
	}

	if _, reset := toReset[target]; !reset {
		bumped, err := v.components[target].Bump()
		if err != nil {
			return nil, err
		}
		next[target] = bumped
		for dep := range v.spec.Dependents(target) {
			toReset[dep] = struct{}{}
		}
	}

	for name := range toReset {
		if !v.components[name].Spec().Independent {
			next[name] = v.components[name].First()
		}
	}

	return &Version{spec: v.spec, components: next}, nil
}

// Serialize renders the version through a serialize template. Templates
// whose placeholders cover every required component are preferred; among
// those the one with the fewest placeholders wins, ties breaking on config
// order. When no template covers the required set, the first is used.
// Component values are merged over env.
func Serialize(templates []*format.Template, v *Version, env map[string]string) (string, error) {
	if len(templates) == 0 {
		return "", fmt.Errorf("no serialize patterns configured")
	}

	required := v.RequiredComponents()
	chosen := templates[0]
	bestLen := -1
	for _, tmpl := range templates {
		names := tmpl.PlaceholderNames()
		if !coversAll(names, required) {
			continue
		}
		if bestLen < 0 || len(names) < bestLen {
			chosen = tmpl
			bestLen = len(names)
		}
	}

	merged := make(map[string]string, len(env)+len(v.components))
	for k, val := range env {
		merged[k] = val
	}
	for name, c := range v.components {
		// An environment value (say {$PR_NUMBER}) stands until the
		// component is explicitly parsed or bumped.
		if !c.Explicit() {
			if _, ok := merged[name]; ok {
				continue
			}
		}
		merged[name] = c.Value()
	}
	return chosen.Render(merged, true)
}

func coversAll(names map[string]struct{}, required map[string]struct{}) bool {
	for name := range required {
		if _, ok := names[name]; !ok {
			return false
		}
	}
	return true
}
