package meshio

import (
	"fmt"
	"os"

	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"
)

// Config locates input and output files.
type Config struct {
	// InputDir is searched for meshes whose path does not exist as given.
	InputDir string `toml:"input_dir"`
	// OutputDir is the root every export path is relative to.
	OutputDir string `toml:"output_dir"`
	// AutoIncrement appends a five digit counter to exported names so
	// earlier exports are never overwritten.
	AutoIncrement bool `toml:"auto_increment"`
}

// DefaultConfig reads inputs from ./input and writes to ./output with
// auto-increment enabled.
func DefaultConfig() Config {
	return Config{
		InputDir:      "input",
		OutputDir:     "output",
		AutoIncrement: true,
	}
}

// LoadConfig reads a TOML configuration file. Keys missing from the file
// keep their DefaultConfig values; unknown keys are an error. A leading ~
// in the path or in either directory is expanded to the home directory.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	path, err := homedir.Expand(path)
	if err != nil {
		return cfg, fmt.Errorf("meshio: config path: %w", err)
	}
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("meshio: open config: %w", err)
	}
	defer f.Close()

	if err := toml.NewDecoder(f).DisallowUnknownFields().Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("meshio: decode config %s: %w", path, err)
	}
	return cfg.Expand()
}

// Expand resolves a leading ~ in the configured directories.
func (c Config) Expand() (Config, error) {
	var err error
	if c.InputDir, err = homedir.Expand(c.InputDir); err != nil {
		return c, fmt.Errorf("meshio: input_dir: %w", err)
	}
	if c.OutputDir, err = homedir.Expand(c.OutputDir); err != nil {
		return c, fmt.Errorf("meshio: output_dir: %w", err)
	}
	return c, nil
}
