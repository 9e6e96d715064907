package dynlink

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the session configuration file.
//
//	search_path: [lib, ~/units]
//	debug: false
//	color: auto
//	libraries: [libfmt.so]
type Config struct {
	// SearchPath is tried in order when resolving a file name.
	SearchPath []string `yaml:"search_path,omitempty"`
	// Debug enables debug logging of loads.
	Debug bool `yaml:"debug,omitempty"`
	// Color is one of auto, always or never. Defaults to auto.
	Color ColorMode `yaml:"color,omitempty"`
	// Libraries are shared libraries opened before anything is loaded.
	Libraries []string `yaml:"libraries,omitempty"`
}

// ParseConfig decodes a YAML configuration.
func ParseConfig(b []byte) (*Config, error) {
	c := new(Config)
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	switch c.Color {
	case "":
		c.Color = ColorAuto
	case ColorAuto, ColorAlways, ColorNever:
	default:
		return nil, fmt.Errorf("parse config: unknown color mode %q", c.Color)
	}
	return c, nil
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(b)
}
