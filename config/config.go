// Package config loads the YAML configuration used by tankctl.
//
// A config file names the install directory and the directories that hold
// archives, and sets loader behavior. Values not present in the file keep
// the defaults from Default. ${VAR} and ${VAR:-default} references in
// directory entries are expanded from the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/meigma/tank"
	"github.com/meigma/tank/overlay"
)

// EnvVar names the environment variable consulted for a config path when
// none is given on the command line.
const EnvVar = "TANK_CONFIG"

// Config is the tool configuration.
type Config struct {
	// InstallDir is the game install root. Resources and Maps default to
	// its Resources and Maps subdirectories.
	InstallDir string `yaml:"install_dir"`

	// Resources lists directories holding resource archives. Relative
	// entries are resolved against InstallDir.
	Resources []string `yaml:"resources"`

	// Maps lists directories holding map archives.
	Maps []string `yaml:"maps"`

	// Extensions are the archive file extensions to load.
	// Default: .dsres, .dsmap, .dsm
	Extensions []string `yaml:"extensions"`

	// SkipBroken logs and skips archives that fail to load instead of
	// failing the whole set.
	SkipBroken bool `yaml:"skip_broken"`

	// Mmap memory-maps archives instead of reading through a file handle.
	Mmap bool `yaml:"mmap"`

	// VerifyCRC checks extracted file contents against their stored CRC-32.
	VerifyCRC bool `yaml:"verify_crc"`

	// MaxFileSize caps the uncompressed size of a single extracted file,
	// in humanized form ("256 MiB", "1GB").
	MaxFileSize string `yaml:"max_file_size"`

	// Concurrency limits parallel archive loading. 0 uses GOMAXPROCS.
	Concurrency int `yaml:"concurrency"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Extensions:  append([]string(nil), overlay.DefaultExtensions...),
		MaxFileSize: humanize.IBytes(tank.DefaultMaxFileSize),
		LogLevel:    "info",
	}
}

// Load reads the config file at path over Default and validates it.
// Unknown keys are an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML config data over Default and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.expandVariables()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) expandVariables() {
	vars := map[string]string{"HOME": os.Getenv("HOME")}

	c.InstallDir = expandVars(c.InstallDir, vars)
	vars["INSTALL_DIR"] = c.InstallDir

	for i := range c.Resources {
		c.Resources[i] = expandVars(c.Resources[i], vars)
	}
	for i := range c.Maps {
		c.Maps[i] = expandVars(c.Maps[i], vars)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default}. vars take precedence
// over the environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, fallback := parts[1], parts[2]
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return fallback
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.InstallDir == "" && len(c.Resources) == 0 && len(c.Maps) == 0 {
		errs = append(errs, errors.New("install_dir or resources/maps is required"))
	}
	if c.InstallDir == "" {
		for _, dir := range append(append([]string(nil), c.Resources...), c.Maps...) {
			if !filepath.IsAbs(dir) {
				errs = append(errs, fmt.Errorf("relative directory %q requires install_dir", dir))
			}
		}
	}
	for _, ext := range c.Extensions {
		if !strings.HasPrefix(ext, ".") {
			errs = append(errs, fmt.Errorf("extension %q must start with a dot", ext))
		}
	}
	if _, err := c.MaxFileSizeBytes(); err != nil {
		errs = append(errs, err)
	}
	if c.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("concurrency must be >= 0, got %d", c.Concurrency))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// SearchDirs returns the directories to scan for archives, resources
// before maps.
func (c *Config) SearchDirs() []string {
	resources, maps := c.Resources, c.Maps
	if len(resources) == 0 && len(maps) == 0 && c.InstallDir != "" {
		return overlay.InstallDirs(c.InstallDir)
	}

	dirs := make([]string, 0, len(resources)+len(maps))
	for _, dir := range append(append([]string(nil), resources...), maps...) {
		if !filepath.IsAbs(dir) && c.InstallDir != "" {
			dir = filepath.Join(c.InstallDir, dir)
		}
		dirs = append(dirs, filepath.Clean(dir))
	}
	return dirs
}

// MaxFileSizeBytes parses MaxFileSize. An empty value yields
// tank.DefaultMaxFileSize.
func (c *Config) MaxFileSizeBytes() (uint64, error) {
	if c.MaxFileSize == "" {
		return tank.DefaultMaxFileSize, nil
	}
	n, err := humanize.ParseBytes(c.MaxFileSize)
	if err != nil {
		return 0, fmt.Errorf("invalid max_file_size %q: %w", c.MaxFileSize, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("max_file_size %q must be positive", c.MaxFileSize)
	}
	return n, nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// ArchiveOptions returns the tank options the config selects.
func (c *Config) ArchiveOptions(logger *slog.Logger) []tank.Option {
	opts := []tank.Option{
		tank.WithLogger(logger),
		tank.WithMmap(c.Mmap),
		tank.WithVerifyCRC(c.VerifyCRC),
	}
	if n, err := c.MaxFileSizeBytes(); err == nil {
		opts = append(opts, tank.WithMaxFileSize(n))
	}
	return opts
}

// OverlayOptions returns the overlay options the config selects.
func (c *Config) OverlayOptions(logger *slog.Logger) []overlay.Option {
	return []overlay.Option{
		overlay.WithLogger(logger),
		overlay.WithSkipBroken(c.SkipBroken),
		overlay.WithConcurrency(c.Concurrency),
		overlay.WithArchiveOptions(c.ArchiveOptions(logger)...),
	}
}
