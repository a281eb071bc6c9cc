// Package config loads rulegraph settings from a YAML file, an optional
// .env file beside it and RULEGRAPH_* environment variables, in that order
// of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileName is the config file the CLI looks for in the repository root.
const FileName = "rulegraph.yaml"

// Ranking algorithms accepted in Ranking.Algorithm.
const (
	PageRank    = "pagerank"
	Eigenvector = "eigenvector"
)

// ErrInvalid reports a setting outside its accepted range.
var ErrInvalid = errors.New("invalid config")

// Config holds the settings of one run, as read from the config file and
// overridden by flags.
type Config struct {
	Languages   []string `yaml:"languages,omitempty"`
	MaxFileSize int64    `yaml:"max_file_size"`
	SkipTests   bool     `yaml:"skip_tests"`
	Cache       struct {
		Enabled bool   `yaml:"enabled"`
		Dir     string `yaml:"dir"` // relative to the repository root
	} `yaml:"cache"`
	Ranking struct {
		Algorithm     string  `yaml:"algorithm"`
		Damping       float64 `yaml:"damping"`
		MaxIterations int     `yaml:"max_iterations"`
		Tolerance     float64 `yaml:"tolerance"`
		CoreK         int     `yaml:"core_k"`
	} `yaml:"ranking"`
	Resolve struct {
		Parallelism int `yaml:"parallelism"` // 0 means GOMAXPROCS
	} `yaml:"resolve"`
}

// Default returns the settings used when no file is present.
func Default() *Config {
	var cfg Config
	cfg.MaxFileSize = 1 << 20
	cfg.Cache.Enabled = true
	cfg.Cache.Dir = ".rulegraph"
	cfg.Ranking.Algorithm = PageRank
	cfg.Ranking.Damping = 0.85
	cfg.Ranking.MaxIterations = 100
	cfg.Ranking.Tolerance = 1e-6
	cfg.Ranking.CoreK = 5
	return &cfg
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	// 1. Load .env beside the config file, if any. Existing variables win.
	envFile := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", envFile, err)
	}

	// 2. Load YAML config
	cfg := Default()
	file, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(file, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	// 3. Override with Environment Variables if present
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("RULEGRAPH_LANGUAGES"); v != "" {
		c.Languages = nil
		for _, l := range strings.Split(v, ",") {
			if l = strings.TrimSpace(l); l != "" {
				c.Languages = append(c.Languages, l)
			}
		}
	}
	if v := os.Getenv("RULEGRAPH_MAX_FILE_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: RULEGRAPH_MAX_FILE_SIZE: %w", ErrInvalid, err)
		}
		c.MaxFileSize = n
	}
	if v := os.Getenv("RULEGRAPH_CACHE_DIR"); v != "" {
		c.Cache.Dir = v
	}
	if v := os.Getenv("RULEGRAPH_NO_CACHE"); v != "" {
		off, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: RULEGRAPH_NO_CACHE: %w", ErrInvalid, err)
		}
		c.Cache.Enabled = !off
	}
	if v := os.Getenv("RULEGRAPH_RANKING"); v != "" {
		c.Ranking.Algorithm = v
	}
	if v := os.Getenv("RULEGRAPH_CORE_K"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: RULEGRAPH_CORE_K: %w", ErrInvalid, err)
		}
		c.Ranking.CoreK = n
	}
	if v := os.Getenv("RULEGRAPH_PARALLELISM"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: RULEGRAPH_PARALLELISM: %w", ErrInvalid, err)
		}
		c.Resolve.Parallelism = n
	}
	return nil
}

// Validate checks ranges and the ranking algorithm name.
func (c *Config) Validate() error {
	switch c.Ranking.Algorithm {
	case PageRank, Eigenvector:
	default:
		return fmt.Errorf("%w: ranking.algorithm %q (want %s or %s)", ErrInvalid, c.Ranking.Algorithm, PageRank, Eigenvector)
	}
	if c.Ranking.Damping <= 0 || c.Ranking.Damping >= 1 {
		return fmt.Errorf("%w: ranking.damping %v not in (0, 1)", ErrInvalid, c.Ranking.Damping)
	}
	if c.Ranking.MaxIterations < 1 {
		return fmt.Errorf("%w: ranking.max_iterations %d < 1", ErrInvalid, c.Ranking.MaxIterations)
	}
	if c.Ranking.Tolerance <= 0 {
		return fmt.Errorf("%w: ranking.tolerance %v <= 0", ErrInvalid, c.Ranking.Tolerance)
	}
	if c.Ranking.CoreK < 0 {
		return fmt.Errorf("%w: ranking.core_k %d < 0", ErrInvalid, c.Ranking.CoreK)
	}
	if c.Resolve.Parallelism < 0 {
		return fmt.Errorf("%w: resolve.parallelism %d < 0", ErrInvalid, c.Resolve.Parallelism)
	}
	return nil
}

// Marshal renders the config as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
