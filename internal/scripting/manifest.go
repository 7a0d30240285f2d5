package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/gamelobby/internal/lobby"
)

// ManifestFile is the manifest's file name inside a scripts directory.
const ManifestFile = "calls.yaml"

// ParamSpec declares one parameter of a scripted call.
type ParamSpec struct {
	Name     string     `yaml:"name"`
	Kind     lobby.Kind `yaml:"kind"`
	Optional bool       `yaml:"optional"`
}

// CallSpec binds a remote call name to a global Lua function in a script file.
type CallSpec struct {
	Name     string      `yaml:"name"`
	Script   string      `yaml:"script"`
	Function string      `yaml:"function"`
	Params   []ParamSpec `yaml:"params"`
}

// Manifest is the parsed calls.yaml.
type Manifest struct {
	Calls []CallSpec `yaml:"calls"`
}

// LoadManifest reads and validates the manifest at path.
//
// Precondition: path must name a readable YAML file.
// Postcondition: Returns a Manifest whose entries have unique names that do not
// shadow built-in calls, local script paths, and known parameter kinds.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading manifest %s", path)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrapf(err, "parsing manifest %s", path)
	}
	if err := m.Validate(); err != nil {
		return nil, errors.Wrapf(err, "manifest %s", path)
	}
	return &m, nil
}

// Validate checks every entry and reports all problems at once.
func (m *Manifest) Validate() error {
	builtins := lobby.DefaultCallRegistry()
	seen := make(map[string]bool, len(m.Calls))

	var problems []string
	fail := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}
	for i, c := range m.Calls {
		label := c.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i)
		}
		switch {
		case c.Name == "":
			fail("call %s: name is required", label)
		case seen[c.Name]:
			fail("call %s: duplicate name", label)
		default:
			if _, clash := builtins.Resolve(c.Name); clash {
				fail("call %s: name is reserved by a built-in call", label)
			}
		}
		seen[c.Name] = true

		if c.Script == "" {
			fail("call %s: script is required", label)
		} else if !filepath.IsLocal(c.Script) {
			fail("call %s: script %q must be a relative path inside the scripts directory", label, c.Script)
		}
		if c.Function == "" {
			fail("call %s: function is required", label)
		}

		params := make(map[string]bool, len(c.Params))
		for _, p := range c.Params {
			if p.Name == "" {
				fail("call %s: parameter name is required", label)
				continue
			}
			if params[p.Name] {
				fail("call %s: duplicate parameter %q", label, p.Name)
			}
			params[p.Name] = true
			if !p.Kind.Valid() {
				fail("call %s: parameter %q has unknown kind %q", label, p.Name, p.Kind)
			}
		}
	}
	if len(problems) > 0 {
		return errors.Newf("invalid calls: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c CallSpec) params() []lobby.Param {
	out := make([]lobby.Param, len(c.Params))
	for i, p := range c.Params {
		out[i] = lobby.Param{Name: p.Name, Kind: p.Kind, Optional: p.Optional}
	}
	return out
}
