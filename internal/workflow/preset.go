package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Preset is a named, reusable workflow loaded from a YAML file.
type Preset struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Steps       []Step `yaml:"steps"`
}

// Library holds the presets loaded at startup, keyed by name.
type Library struct {
	presets map[string]Preset
}

// LoadDir reads every *.yaml / *.yml file under dir into a library. A missing
// directory yields an empty library rather than an error, so presets stay
// optional.
func LoadDir(dir string) (*Library, error) {
	lib := &Library{presets: make(map[string]Preset)}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return lib, nil
		}
		return nil, fmt.Errorf("reading preset dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		preset, err := loadPresetFile(path)
		if err != nil {
			return nil, fmt.Errorf("preset %s: %w", entry.Name(), err)
		}
		if _, exists := lib.presets[preset.Name]; exists {
			return nil, fmt.Errorf("preset %s: duplicate name %q", entry.Name(), preset.Name)
		}
		lib.presets[preset.Name] = preset
	}
	return lib, nil
}

func loadPresetFile(path string) (Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Preset{}, err
	}
	var preset Preset
	if err := yaml.Unmarshal(data, &preset); err != nil {
		return Preset{}, fmt.Errorf("parsing yaml: %w", err)
	}
	if preset.Name == "" {
		return Preset{}, fmt.Errorf("missing \"name\"")
	}
	if len(preset.Steps) == 0 {
		return Preset{}, fmt.Errorf("preset %q has no steps", preset.Name)
	}
	for i, step := range preset.Steps {
		if step.Tool == "" {
			return Preset{}, fmt.Errorf("preset %q: step %d is missing \"tool\"", preset.Name, i)
		}
	}
	return preset, nil
}

// Get returns the preset with the given name.
func (l *Library) Get(name string) (Preset, bool) {
	p, ok := l.presets[name]
	return p, ok
}

// Names returns all preset names in sorted order.
func (l *Library) Names() []string {
	names := make([]string, 0, len(l.presets))
	for name := range l.presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len reports how many presets are loaded.
func (l *Library) Len() int { return len(l.presets) }
