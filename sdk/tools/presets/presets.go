// Package presets provides named sampling configurations that can be built in
// or read from YAML files.
package presets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ardanlabs/llamactx/sdk/llamactx/sampling"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when no preset exists with the requested name.
var ErrNotFound = errors.New("preset not found")

// Preset is a named set of answer settings. Fields missing from a YAML file
// keep their default value.
type Preset struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	MaxTokens   int             `yaml:"max_tokens"`
	Prefix      string          `yaml:"prefix"`
	Suffix      string          `yaml:"suffix"`
	Sampling    sampling.Params `yaml:"sampling"`
}

const defMaxTokens = 256

// Default returns the preset every other preset starts from.
func Default() Preset {
	return Preset{
		Name:        "default",
		Description: "balanced sampling",
		MaxTokens:   defMaxTokens,
		Sampling:    sampling.DefaultParams(),
	}
}

func builtins() []Preset {
	precise := Default()
	precise.Name = "precise"
	precise.Description = "always picks the most likely token"
	precise.Sampling.Temperature = 0

	creative := Default()
	creative.Name = "creative"
	creative.Description = "higher temperature with a wider nucleus"
	creative.Sampling.Temperature = 1.0
	creative.Sampling.TopP = 0.98
	creative.Sampling.TopK = 100
	creative.Sampling.AlphaPresence = 0.3

	mirostat := Default()
	mirostat.Name = "mirostat"
	mirostat.Description = "mirostat 2.0 targeting a surprise of 5"
	mirostat.Sampling.Mirostat = sampling.MirostatV2

	return []Preset{Default(), precise, creative, mirostat}
}

// Names returns the names of the built in presets.
func Names() []string {
	var names []string
	for _, p := range builtins() {
		names = append(names, p.Name)
	}

	return names
}

// Builtin returns the built in preset with the specified name.
func Builtin(name string) (Preset, error) {
	idx := slices.IndexFunc(builtins(), func(p Preset) bool {
		return strings.EqualFold(p.Name, name)
	})

	if idx < 0 {
		return Preset{}, fmt.Errorf("builtin: %s: %w", name, ErrNotFound)
	}

	return builtins()[idx], nil
}

// Parse reads a preset from YAML.
func Parse(data []byte) (Preset, error) {
	p := Default()
	p.Name = ""

	if err := yaml.Unmarshal(data, &p); err != nil {
		return Preset{}, fmt.Errorf("parse: %w", err)
	}

	if err := p.Sampling.Validate(); err != nil {
		return Preset{}, fmt.Errorf("parse: %w", err)
	}

	if p.MaxTokens <= 0 {
		p.MaxTokens = defMaxTokens
	}

	return p, nil
}

// Load reads a preset from a YAML file. The file name is used when the file
// doesn't name the preset.
func Load(path string) (Preset, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Preset{}, fmt.Errorf("load: %w", err)
	}

	p, err := Parse(data)
	if err != nil {
		return Preset{}, fmt.Errorf("load: %s: %w", path, err)
	}

	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	return p, nil
}

// Find looks for a preset file named name.yaml or name.yml in dir and falls
// back to the built in presets.
func Find(name string, dir string) (Preset, error) {
	if dir != "" {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, name+ext)
			if _, err := os.Stat(path); err == nil {
				return Load(path)
			}
		}
	}

	return Builtin(name)
}

// Marshal writes the preset as YAML.
func Marshal(p Preset) ([]byte, error) {
	data, err := yaml.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	return data, nil
}
