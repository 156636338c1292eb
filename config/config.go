package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "15m" parse with
// time.ParseDuration semantics. Bare integers are taken as nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var ns int64
	if err := value.Decode(&ns); err == nil {
		*d = Duration(ns)
		return nil
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("parse duration: %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root runtime configuration.
type Config struct {
	Bus           BusConfig           `yaml:"bus"`
	Dispatcher    DispatcherConfig    `yaml:"dispatcher"`
	Memory        MemoryConfig        `yaml:"memory"`
	Consolidation ConsolidationConfig `yaml:"consolidation"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Storage       StorageConfig       `yaml:"storage"`
	Redis         RedisConfig         `yaml:"redis"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// BusConfig tunes the event bus.
type BusConfig struct {
	// HistoryCap bounds per-type and global event history.
	HistoryCap int `yaml:"history_cap"`
	// Source stamps events published without an explicit source.
	Source string `yaml:"source"`
}

// DispatcherConfig tunes the task dispatcher.
type DispatcherConfig struct {
	QueueCapacity int `yaml:"queue_capacity"`
	// OverflowPolicy is one of reject, drop_oldest, block.
	OverflowPolicy string `yaml:"overflow_policy"`
	Workers        int    `yaml:"workers"`
}

// MemoryConfig tunes the tiered memory store.
type MemoryConfig struct {
	CacheSize     int `yaml:"cache_size"`
	RetrieveLimit int `yaml:"retrieve_limit"`
}

// ConsolidationConfig tunes the consolidation worker and scheduler.
type ConsolidationConfig struct {
	Interval            Duration `yaml:"interval"`
	AgeThreshold        Duration `yaml:"age_threshold"`
	ImportanceThreshold float64  `yaml:"importance_threshold"`
	BatchSize           int      `yaml:"batch_size"`
}

// EmbeddingConfig selects the embedding backend.
type EmbeddingConfig struct {
	// Provider is hash or openai.
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	Dims     int    `yaml:"dims"`
}

// StorageConfig selects the storage backend.
type StorageConfig struct {
	// Backend is memory or sqlite.
	Backend string `yaml:"backend"`
	// Path is the database file for the sqlite backend.
	Path string `yaml:"path"`
}

// RedisConfig configures the optional Redis transport and event store.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// LoggingConfig tunes structured logging.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Bus: BusConfig{
			HistoryCap: 1000,
			Source:     "system",
		},
		Dispatcher: DispatcherConfig{
			QueueCapacity:  256,
			OverflowPolicy: "reject",
			Workers:        1,
		},
		Memory: MemoryConfig{
			CacheSize:     1024,
			RetrieveLimit: 5,
		},
		Consolidation: ConsolidationConfig{
			Interval:            Duration(time.Hour),
			AgeThreshold:        Duration(24 * time.Hour),
			ImportanceThreshold: 0.3,
			BatchSize:           5,
		},
		Embedding: EmbeddingConfig{
			Provider: "hash",
			Dims:     512,
		},
		Storage: StorageConfig{
			Backend: "memory",
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "cogmesh",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML file over the defaults. Fields absent from the file keep
// their default values.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values no subsystem could run with.
func (c Config) Validate() error {
	if c.Bus.HistoryCap <= 0 {
		return fmt.Errorf("bus.history_cap must be positive, got %d", c.Bus.HistoryCap)
	}
	if c.Dispatcher.QueueCapacity <= 0 {
		return fmt.Errorf("dispatcher.queue_capacity must be positive, got %d", c.Dispatcher.QueueCapacity)
	}
	switch c.Dispatcher.OverflowPolicy {
	case "reject", "drop_oldest", "block":
	default:
		return fmt.Errorf("dispatcher.overflow_policy must be reject, drop_oldest or block, got %q", c.Dispatcher.OverflowPolicy)
	}
	if c.Memory.CacheSize <= 0 {
		return fmt.Errorf("memory.cache_size must be positive, got %d", c.Memory.CacheSize)
	}
	if c.Consolidation.ImportanceThreshold < 0 || c.Consolidation.ImportanceThreshold > 1 {
		return fmt.Errorf("consolidation.importance_threshold must be within [0,1], got %v", c.Consolidation.ImportanceThreshold)
	}
	switch c.Embedding.Provider {
	case "hash", "openai":
	default:
		return fmt.Errorf("embedding.provider must be hash or openai, got %q", c.Embedding.Provider)
	}
	switch c.Storage.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("storage.backend must be memory or sqlite, got %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "sqlite" && c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required for the sqlite backend")
	}
	return nil
}
