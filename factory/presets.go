package factory

import (
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"
)

//go:embed presets/*.yaml
var presetFS embed.FS

// Preset names.
const (
	PresetKenya2025 = "kenya_2025"
)

var ErrUnknownPreset = errors.New("unknown preset")

// Preset returns an embedded bundle by name.
func Preset(name string) (*Bundle, error) {
	data, err := presetFS.ReadFile("presets/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return ParseBundleYAML(data)
}

// KenyaPreset is the Kenyan statutory configuration as of 2025.
func KenyaPreset() *Bundle {
	b, err := Preset(PresetKenya2025)
	if err != nil {
		panic(fmt.Sprintf("embedded preset is invalid: %v", err))
	}
	return b
}

// Presets lists the embedded preset names.
func Presets() []string {
	entries, _ := presetFS.ReadDir("presets")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}
