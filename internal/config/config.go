// Package config resolves runtime settings: built-in defaults, then an
// optional TOML file, then RASHPLAYER_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	DefaultSegment   = "rashplayer_shm"
	DefaultPollingHz = 100
	DefaultProfile   = "flappy"
	DefaultLogLevel  = "info"
	DefaultQueueSize = 1024

	MaxPollingHz = 1000
)

var ErrInvalid = errors.New("invalid configuration")

type Tap struct {
	X int32 `toml:"x"`
	Y int32 `toml:"y"`
}

type Config struct {
	Segment   string   `toml:"segment"`
	PollingHz int      `toml:"polling_hz"`
	Profile   string   `toml:"profile"`
	Journal   string   `toml:"journal"` // DSN, empty disables journaling
	LogLevel  string   `toml:"log_level"`
	QueueSize int      `toml:"queue_size"`
	Tap       Tap      `toml:"tap"` // zero keeps the profile default
	Templates []string `toml:"templates"`
}

func Default() Config {
	return Config{
		Segment:   DefaultSegment,
		PollingHz: DefaultPollingHz,
		Profile:   DefaultProfile,
		LogLevel:  DefaultLogLevel,
		QueueSize: DefaultQueueSize,
	}
}

// Load builds the effective configuration. An empty path skips the file
// layer; a named file that does not exist is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	cfg = normalize(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("RASHPLAYER_SEGMENT"); v != "" {
		cfg.Segment = v
	}
	cfg.PollingHz = atoiOrDefault(os.Getenv("RASHPLAYER_POLLING_HZ"), cfg.PollingHz)
	if v := os.Getenv("RASHPLAYER_PROFILE"); v != "" {
		cfg.Profile = v
	}
	if v, ok := os.LookupEnv("RASHPLAYER_JOURNAL"); ok {
		cfg.Journal = v
	}
	if v := os.Getenv("RASHPLAYER_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	cfg.QueueSize = atoiOrDefault(os.Getenv("RASHPLAYER_QUEUE_SIZE"), cfg.QueueSize)
}

func normalize(cfg Config) Config {
	cfg.Segment = strings.TrimSpace(cfg.Segment)
	if cfg.Segment == "" {
		cfg.Segment = DefaultSegment
	}
	cfg.Profile = strings.ToLower(strings.TrimSpace(cfg.Profile))
	if cfg.Profile == "" {
		cfg.Profile = DefaultProfile
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.PollingHz <= 0 {
		cfg.PollingHz = DefaultPollingHz
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	cfg.Journal = strings.TrimSpace(cfg.Journal)
	return cfg
}

func (c Config) Validate() error {
	if c.PollingHz > MaxPollingHz {
		return fmt.Errorf("%w: polling_hz %d above %d", ErrInvalid, c.PollingHz, MaxPollingHz)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: log_level %q", ErrInvalid, c.LogLevel)
	}
	if strings.ContainsRune(c.Segment, '/') {
		return fmt.Errorf("%w: segment name %q contains a slash", ErrInvalid, c.Segment)
	}
	return nil
}

// Encode renders cfg as TOML.
func Encode(cfg Config) ([]byte, error) {
	return toml.Marshal(cfg)
}

// Save writes cfg to path atomically.
func Save(path string, cfg Config) error {
	b, err := Encode(cfg)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func atoiOrDefault(v string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
