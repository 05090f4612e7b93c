// Package config loads the site-wide configuration knobs. Shape follows
// tinykv's kv/config/config.go: a plain struct, a NewDefaultConfig
// constructor, and a Validate method, loaded from TOML via
// BurntSushi/toml.
package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/errors"
)

// Config carries every tunable knob for the site.
type Config struct {
	Specexec   SpecexecConfig   `toml:"specexec"`
	Markov     MarkovConfig     `toml:"markov"`
	Exec       ExecConfig       `toml:"exec"`
	Pool       PoolConfig       `toml:"pool"`
	Status     StatusConfig     `toml:"status"`
	Anticache  AnticacheConfig  `toml:"anticache"`

	LogLevel      string `toml:"log_level"`
	NumPartitions int    `toml:"num_partitions"`
}

type SpecexecConfig struct {
	Enable          bool `toml:"enable"`
	Idle            bool `toml:"idle"`
	IgnoreAllLocal  bool `toml:"ignore_all_local"`
}

type MarkovConfig struct {
	Enable      bool `toml:"enable"`
	PathCaching bool `toml:"path_caching"`
}

type ExecConfig struct {
	PrefetchQueries bool `toml:"prefetch_queries"`
}

type PoolConfig struct {
	EstimatorStatesIdle int `toml:"estimatorstates_idle"`
}

type StatusConfig struct {
	Interval    time.Duration `toml:"interval"`
	KillIfHung  bool          `toml:"kill_if_hung"`
}

type AnticacheConfig struct {
	Enable bool   `toml:"enable"`
	Dir    string `toml:"dir"`
}

// NewDefaultConfig mirrors tinykv's NewDefaultConfig(): every field
// gets a conservative, development-friendly default.
func NewDefaultConfig() *Config {
	return &Config{
		Specexec: SpecexecConfig{
			Enable:         true,
			Idle:           false,
			IgnoreAllLocal: false,
		},
		Markov: MarkovConfig{
			Enable:      false,
			PathCaching: true,
		},
		Exec: ExecConfig{
			PrefetchQueries: true,
		},
		Pool: PoolConfig{
			EstimatorStatesIdle: 500,
		},
		Status: StatusConfig{
			Interval:   10 * time.Second,
			KillIfHung: false,
		},
		Anticache: AnticacheConfig{
			Enable: false,
			Dir:    "/tmp/specexec-anticache",
		},
		LogLevel:      getLogLevel(),
		NumPartitions: 1,
	}
}

func getLogLevel() string {
	if l := os.Getenv("LOG_LEVEL"); l != "" {
		return l
	}
	return "info"
}

// Load reads a TOML file into a new Config seeded with defaults, so an
// input file only needs to override the knobs it cares about.
func Load(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, errors.Annotatef(err, "loading config from %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants the rest of the core assumes hold.
func (c *Config) Validate() error {
	if c.NumPartitions <= 0 {
		return errors.New("num_partitions must be greater than 0")
	}
	if c.Pool.EstimatorStatesIdle < 0 {
		return errors.New("pool.estimatorstates_idle must be non-negative")
	}
	if c.Anticache.Enable && c.Anticache.Dir == "" {
		return errors.New("anticache.dir must be set when anticache.enable is true")
	}
	return nil
}
