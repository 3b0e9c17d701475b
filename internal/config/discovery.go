package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoConfig reports that discovery found no configuration file.
var ErrNoConfig = errors.New("no configuration file found")

// candidate pairs a config file name with its surface syntax and whether
// the file is shared with other tools (requiring a section check).
type candidate struct {
	name   string
	format Format
	shared bool
}

// discoveryOrder lists the config files searched in a directory, first
// existing (and applicable) file wins.
var discoveryOrder = []candidate{
	{".bumpversion.toml", FormatTOML, false},
	{".bumpversion.cfg", FormatINI, false},
	{"pyproject.toml", FormatTOML, true},
	{"setup.cfg", FormatINI, true},
}

// Discover locates and parses the configuration file for dir.
func Discover(dir string) (*Config, error) {
	for _, cand := range discoveryOrder {
		path := filepath.Join(dir, cand.name)
		source, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if cand.shared && !hasBumpversionConfig(cand.format, source) {
			continue
		}
		return parse(path, cand.format, source)
	}
	return nil, fmt.Errorf("%w in %s (looked for .bumpversion.toml, .bumpversion.cfg, pyproject.toml, setup.cfg)", ErrNoConfig, dir)
}

// Load parses an explicitly named configuration file, choosing the surface
// syntax from the file extension.
func Load(path string) (*Config, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	f := FormatINI
	if strings.HasSuffix(path, ".toml") {
		f = FormatTOML
	}
	return parse(path, f, source)
}

func parse(path string, f Format, source []byte) (*Config, error) {
	if f == FormatTOML {
		return ParseTOML(path, source)
	}
	return ParseINI(path, source)
}

func hasBumpversionConfig(f Format, source []byte) bool {
	if f == FormatTOML {
		return HasTOMLTable(source)
	}
	return HasINISection(source)
}
