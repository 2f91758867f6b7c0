// Package config loads the kbindex YAML configuration.
package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"kbindex/internal/chunker"
	"kbindex/internal/store"
)

// ChunkerConfig configures how oversized chunks are split.
type ChunkerConfig struct {
	MaxChunkSize int `yaml:"max_chunk_size"`
	Overlap      int `yaml:"overlap"`
}

// SearchConfig tunes the hybrid ranking. Weight and decay are preserved as
// configuration rather than re-derived constants.
type SearchConfig struct {
	Weight float64 `yaml:"weight"`
	Decay  float64 `yaml:"decay"`
}

// Config is the root configuration structure.
type Config struct {
	DBPath  string        `yaml:"db_path"`
	Chunker ChunkerConfig `yaml:"chunker"`
	Search  SearchConfig  `yaml:"search"`
}

// Load reads a config from path. A missing file returns defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./kbindex.yaml first, then ~/.kbindex/config.yaml, and
// falls back to defaults when neither exists.
func LoadDefault() (*Config, error) {
	if _, err := os.Stat("kbindex.yaml"); err == nil {
		return Load("kbindex.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultConfig(), nil
	}
	return Load(filepath.Join(home, ".kbindex", "config.yaml"))
}

// Save writes the config to path, creating directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.DBPath == "" {
		home, _ := os.UserHomeDir()
		cfg.DBPath = filepath.Join(home, ".kbindex", "index.db")
	}
	if cfg.Chunker.MaxChunkSize == 0 {
		cfg.Chunker.MaxChunkSize = chunker.DefaultMaxChunkSize
	}
	if cfg.Chunker.Overlap == 0 {
		cfg.Chunker.Overlap = chunker.DefaultOverlap
	}
	if cfg.Search.Weight == 0 {
		cfg.Search.Weight = store.DefaultWeight
	}
	if cfg.Search.Decay == 0 {
		cfg.Search.Decay = store.DefaultDecay
	}
}
