package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Sources     Sources     `yaml:"sources"`
	Cache       Cache       `yaml:"cache"`
	Queue       Queue       `yaml:"queue"`
	Performance Performance `yaml:"performance"`
	Server      Server      `yaml:"server"`
	Logging     Logging     `yaml:"logging"`
}

type Sources struct {
	ArticlesFile string `yaml:"articles_file"`
	Feeds        []Feed `yaml:"feeds"`
	FetchContent bool   `yaml:"fetch_content"`
	FetchTimeout string `yaml:"fetch_timeout"`
}

type Feed struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

type Cache struct {
	DataDir         string `yaml:"data_dir"`
	DefaultTTL      string `yaml:"default_ttl"`
	LRUMaxSize      int    `yaml:"lru_max_size"`
	LRUTTL          string `yaml:"lru_ttl"`
	CleanupInterval string `yaml:"cleanup_interval"`
}

type Queue struct {
	MemoTTL     string `yaml:"memo_ttl"`
	TaskTimeout string `yaml:"task_timeout"`
}

type Performance struct {
	Debounce string `yaml:"debounce"`
	Throttle string `yaml:"throttle"`
	Window   int    `yaml:"window"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for aimindset.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "aimindset")
}

// DataDir returns the XDG data directory for aimindset.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "aimindset")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/aimindset/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'aimindset init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg, err := parse(nil)
	if err != nil {
		panic(err)
	}
	return cfg
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Sources: Sources{
			FetchTimeout: "15s",
		},
		Cache: Cache{
			DefaultTTL:      "24h",
			LRUMaxSize:      100,
			LRUTTL:          "30m",
			CleanupInterval: "1h",
		},
		Queue: Queue{
			MemoTTL:     "5m",
			TaskTimeout: "30s",
		},
		Performance: Performance{
			Debounce: "300ms",
			Throttle: "16ms",
			Window:   100,
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Cache.DataDir != "" {
		return c.Cache.DataDir
	}
	return DataDir()
}

// Duration parses a duration setting, returning def for empty or invalid values.
func Duration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return def
	}
	return d
}

func (c Cache) DefaultTTLDuration() time.Duration { return Duration(c.DefaultTTL, 24*time.Hour) }
func (c Cache) LRUTTLDuration() time.Duration     { return Duration(c.LRUTTL, 30*time.Minute) }
func (c Cache) CleanupEvery() time.Duration       { return Duration(c.CleanupInterval, time.Hour) }

func (q Queue) MemoTTLDuration() time.Duration { return Duration(q.MemoTTL, 5*time.Minute) }
func (q Queue) TimeoutDuration() time.Duration { return Duration(q.TaskTimeout, 30*time.Second) }

func (p Performance) DebounceDuration() time.Duration {
	return Duration(p.Debounce, 300*time.Millisecond)
}

func (p Performance) ThrottleDuration() time.Duration {
	return Duration(p.Throttle, 16*time.Millisecond)
}

func (s Sources) FetchTimeoutDuration() time.Duration {
	return Duration(s.FetchTimeout, 15*time.Second)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
