package scene

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/gogpu/raytrace"
)

// Format identifies a settings file encoding.
type Format int

// Supported settings formats.
const (
	FormatTOML Format = iota
	FormatYAML
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatTOML:
		return "toml"
	case FormatYAML:
		return "yaml"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// FormatFromPath picks a format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return 0, fmt.Errorf("%w: scene: unsupported settings file %q", raytrace.ErrConfiguration, path)
	}
}

// Settings is the on-disk form of a scene generation request.
//
// Example (TOML):
//
//	seed = 7
//
//	[scene]
//	sphere_count = 150
//	placement_radius = 120.0
//	radius = { min = 2.0, max = 9.0 }
//	shininess = { min = 20.0, max = 400.0 }
type Settings struct {
	Seed  uint64 `toml:"seed" yaml:"seed"`
	Scene Config `toml:"scene" yaml:"scene"`
}

// DefaultSettings returns DefaultConfig with seed 0.
func DefaultSettings() Settings {
	return Settings{Scene: DefaultConfig()}
}

// ParseSettings decodes settings. Fields missing from data keep their
// defaults; unknown fields are rejected. The decoded scene configuration is
// validated.
func ParseSettings(data []byte, format Format) (Settings, error) {
	s := DefaultSettings()

	var err error
	switch format {
	case FormatTOML:
		err = toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(&s)
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(&s)
		if err != nil && len(bytes.TrimSpace(data)) == 0 {
			// An empty YAML document decodes to io.EOF; treat it as "all defaults".
			err = nil
		}
	default:
		return Settings{}, fmt.Errorf("%w: scene: unknown settings format %v", raytrace.ErrConfiguration, format)
	}
	if err != nil {
		return Settings{}, fmt.Errorf("%w: scene: decode %s settings: %v", raytrace.ErrConfiguration, format, err)
	}

	if err := s.Scene.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// LoadSettings reads and parses a settings file. The format is chosen from
// the file extension (.toml, .yaml, .yml).
func LoadSettings(path string) (Settings, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return Settings{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("scene: read settings: %w", err)
	}
	return ParseSettings(data, format)
}
