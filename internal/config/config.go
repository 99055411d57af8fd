// Package config loads blockdoc's YAML configuration file.
//
// Values come from, in increasing precedence: Default, the YAML file, and
// the BLOCKDOC_INTERPRETER / BLOCKDOC_CACHE_DIR environment variables. The
// result is checked against the embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/blockdoc/internal/mediacache"
	"github.com/roach88/blockdoc/internal/trail"
)

//go:embed config.cue
var schemaCUE []byte

// Environment overrides.
const (
	EnvInterpreter = "BLOCKDOC_INTERPRETER"
	EnvCacheDir    = "BLOCKDOC_CACHE_DIR"
)

// ErrInvalid is returned when the configuration fails to parse or validate.
var ErrInvalid = errors.New("invalid configuration")

// Config is the user configuration.
type Config struct {
	// Interpreter runs rendered-code blocks. Empty disables rendering.
	Interpreter string `yaml:"interpreter" json:"interpreter"`

	// CacheDir overrides the media cache base directory.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	Driver    string      `yaml:"driver" json:"driver"`
	LogLevel  string      `yaml:"log_level" json:"log_level"`
	TrailSize int         `yaml:"trail_size" json:"trail_size"`
	Cache     CacheLimits `yaml:"cache" json:"cache"`
}

// CacheLimits bound the media cache for `cache prune`.
type CacheLimits struct {
	MaxBytes int64 `yaml:"max_bytes" json:"max_bytes"`
	MaxFiles int   `yaml:"max_files" json:"max_files"`
	MaxDays  int   `yaml:"max_days" json:"max_days"`
}

// Limits converts to mediacache limits.
func (c CacheLimits) Limits() mediacache.Limits {
	return mediacache.Limits{
		MaxBytes: c.MaxBytes,
		MaxFiles: c.MaxFiles,
		MaxAge:   time.Duration(c.MaxDays) * 24 * time.Hour,
	}
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Driver:    "sqlite3",
		LogLevel:  "info",
		TrailSize: trail.DefaultSize,
		Cache: CacheLimits{
			MaxBytes: 200 * 1024 * 1024,
			MaxFiles: 2000,
			MaxDays:  30,
		},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/blockdoc/config.yaml or the platform
// equivalent.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "blockdoc", "config.yaml"), nil
}

// Load reads the configuration at path, applies environment overrides and
// validates the result. An empty path means DefaultPath, which may be absent;
// an explicit path must exist.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return finish(cfg)
		}
		path = p
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		return finish(cfg)
	case err != nil:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := decode(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
	}
	return finish(cfg)
}

func finish(cfg Config) (Config, error) {
	cfg.ApplyEnv(os.Getenv)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// decode overlays YAML data onto cfg, rejecting unknown keys.
func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides fields from environment variables looked up by getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvInterpreter); v != "" {
		c.Interpreter = v
	}
	if v := getenv(EnvCacheDir); v != "" {
		c.CacheDir = v
	}
}

// CacheBase returns the media cache base directory.
func (c Config) CacheBase() (string, error) {
	if c.CacheDir != "" {
		return c.CacheDir, nil
	}
	return mediacache.DefaultBase()
}

// Validate checks cfg against the CUE schema.
func Validate(cfg Config) error {
	ctx := cuecontext.New()
	schema := ctx.CompileBytes(schemaCUE)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := def.Unify(ctx.Encode(cfg))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.TrimSpace(cueerrors.Details(err, nil)))
	}
	return nil
}
