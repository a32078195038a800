package scene

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gogpu/raytrace"
)

func TestParseSettingsTOML(t *testing.T) {
	data := []byte(`
seed = 7

[scene]
sphere_count = 150
placement_radius = 120.0
radius = { min = 2.0, max = 9.0 }
`)
	s, err := ParseSettings(data, FormatTOML)
	if err != nil {
		t.Fatalf("ParseSettings() error = %v", err)
	}
	if s.Seed != 7 {
		t.Errorf("Seed = %d, want 7", s.Seed)
	}
	if s.Scene.SphereCount != 150 {
		t.Errorf("SphereCount = %d, want 150", s.Scene.SphereCount)
	}
	if s.Scene.RadiusRange != (Range{Min: 2, Max: 9}) {
		t.Errorf("RadiusRange = %v, want {2 9}", s.Scene.RadiusRange)
	}
	// Missing tables keep defaults.
	if s.Scene.ShininessRange != DefaultConfig().ShininessRange {
		t.Errorf("ShininessRange = %v, want default", s.Scene.ShininessRange)
	}
}

func TestParseSettingsYAML(t *testing.T) {
	data := []byte(`
seed: 3
scene:
  sphere_count: 20
  shininess:
    min: 1
    max: 2
`)
	s, err := ParseSettings(data, FormatYAML)
	if err != nil {
		t.Fatalf("ParseSettings() error = %v", err)
	}
	if s.Seed != 3 || s.Scene.SphereCount != 20 {
		t.Errorf("got seed %d count %d, want 3 and 20", s.Seed, s.Scene.SphereCount)
	}
	if s.Scene.ShininessRange != (Range{Min: 1, Max: 2}) {
		t.Errorf("ShininessRange = %v, want {1 2}", s.Scene.ShininessRange)
	}
	if s.Scene.PlacementRadius != DefaultPlacementRadius {
		t.Errorf("PlacementRadius = %v, want default %v", s.Scene.PlacementRadius, DefaultPlacementRadius)
	}
}

func TestParseSettingsEmptyYAML(t *testing.T) {
	s, err := ParseSettings(nil, FormatYAML)
	if err != nil {
		t.Fatalf("ParseSettings(empty) error = %v", err)
	}
	if s != DefaultSettings() {
		t.Errorf("ParseSettings(empty) = %+v, want defaults", s)
	}
}

func TestParseSettingsErrors(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format Format
	}{
		{"unknown toml field", "bogus = 1\n", FormatTOML},
		{"unknown yaml field", "bogus: 1\n", FormatYAML},
		{"degenerate radius", "[scene]\nradius = { min = 9.0, max = 2.0 }\n", FormatTOML},
		{"malformed toml", "[scene\n", FormatTOML},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSettings([]byte(tt.data), tt.format)
			if !errors.Is(err, raytrace.ErrConfiguration) {
				t.Errorf("ParseSettings() error = %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestLoadSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scene.yml")
	if err := os.WriteFile(path, []byte("seed: 11\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	if s.Seed != 11 {
		t.Errorf("Seed = %d, want 11", s.Seed)
	}

	if _, err := LoadSettings(filepath.Join(dir, "scene.json")); !errors.Is(err, raytrace.ErrConfiguration) {
		t.Errorf("LoadSettings(.json) error = %v, want ErrConfiguration", err)
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"a.toml", FormatTOML},
		{"b.YAML", FormatYAML},
		{"dir/c.yml", FormatYAML},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := FormatFromPath(tt.path)
			if err != nil {
				t.Fatalf("FormatFromPath() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("FormatFromPath() = %v, want %v", got, tt.want)
			}
		})
	}
}
