// Package context builds the immutable environment snapshot used to render
// search/replace templates, commit and tag messages, and hook environments.
// The process environment and clock are captured once per run.
package context

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/release-tools/go-bumpversion/internal/vcs"
	"github.com/release-tools/go-bumpversion/internal/version"
)

// hookEnvPrefix is prepended to the bump-specific hook variables.
const hookEnvPrefix = "BVHOOK_"

// Snapshot is the captured render environment. It is immutable after
// Capture; maps returned by its methods are fresh copies.
type Snapshot struct {
	now        time.Time
	utcnow     time.Time
	processEnv []string
	base       map[string]string
}

// Capture records the clock, the process environment, and the VCS state.
// tag may be nil when the repository has no version tag (or no VCS is in
// use).
func Capture(tag *vcs.TagInfo, status vcs.Status, workDir string) *Snapshot {
	s := &Snapshot{
		now:        time.Now(),
		utcnow:     time.Now().UTC(),
		processEnv: os.Environ(),
		base:       make(map[string]string),
	}

	s.base["now"] = s.now.Format(time.RFC3339)
	s.base["utcnow"] = s.utcnow.Format(time.RFC3339)

	// Environment variables are addressed as {$NAME} in templates.
	for _, kv := range s.processEnv {
		if idx := strings.IndexByte(kv, '='); idx > 0 {
			s.base["$"+kv[:idx]] = kv[idx+1:]
		}
	}

	s.base["tool"] = "git"
	s.base["repository_root"] = workDir
	s.base["dirty"] = fmt.Sprintf("%t", status.Dirty)
	if tag != nil {
		s.base["commit_sha"] = tag.CommitSHA
		s.base["current_tag"] = tag.Name
		s.base["distance_to_latest_tag"] = fmt.Sprintf("%d", tag.Distance)
	}

	// Literal escapes for the INI comment characters.
	s.base["#"] = "#"
	s.base[";"] = ";"

	return s
}

// TemplateEnv returns the base render environment without version keys.
func (s *Snapshot) TemplateEnv() map[string]string {
	env := make(map[string]string, len(s.base))
	for k, v := range s.base {
		env[k] = v
	}
	return env
}

// MessageEnv returns the render environment for commit and tag message
// templates: the base environment plus current_version/new_version and the
// per-component keys {name} (new value) and {name_current} (old value).
func (s *Snapshot) MessageEnv(current, next *version.Version, currentSerialized, nextSerialized string) map[string]string {
	env := s.TemplateEnv()
	env["current_version"] = currentSerialized
	env["new_version"] = nextSerialized

	if current != nil {
		for name, value := range current.Values() {
			env[name+"_current"] = value
			env["current_"+name] = value
		}
	}
	if next != nil {
		for name, value := range next.Values() {
			env[name] = value
			env["new_"+name] = value
		}
	}
	return env
}

// HookEnv returns the environment for hook subprocesses: the calling
// process's environment plus CURRENT_VERSION, NEW_VERSION, per-component
// <NAME>_CURRENT/<NAME>_NEW, and BVHOOK_-prefixed metadata.
func (s *Snapshot) HookEnv(current, next *version.Version, currentSerialized, nextSerialized, tagName string) []string {
	env := append([]string(nil), s.processEnv...)

	add := func(key, value string) {
		env = append(env, key+"="+value)
	}

	add(hookEnvPrefix+"NOW", s.base["now"])
	add(hookEnvPrefix+"UTCNOW", s.base["utcnow"])
	add(hookEnvPrefix+"COMMIT_SHA", s.base["commit_sha"])
	add(hookEnvPrefix+"CURRENT_TAG", s.base["current_tag"])
	add(hookEnvPrefix+"DISTANCE_TO_LATEST_TAG", s.base["distance_to_latest_tag"])
	add(hookEnvPrefix+"IS_DIRTY", s.base["dirty"])

	add("CURRENT_VERSION", currentSerialized)
	add(hookEnvPrefix+"CURRENT_VERSION", currentSerialized)
	if current != nil {
		for name, value := range current.Values() {
			upper := strings.ToUpper(strings.TrimPrefix(name, "$"))
			add(upper+"_CURRENT", value)
			add(hookEnvPrefix+"CURRENT_"+upper, value)
		}
	}

	if nextSerialized != "" {
		add("NEW_VERSION", nextSerialized)
		add(hookEnvPrefix+"NEW_VERSION", nextSerialized)
		add(hookEnvPrefix+"NEW_VERSION_TAG", tagName)
	}
	if next != nil {
		for name, value := range next.Values() {
			upper := strings.ToUpper(strings.TrimPrefix(name, "$"))
			add(upper+"_NEW", value)
			add(hookEnvPrefix+"NEW_"+upper, value)
		}
	}
	return env
}
