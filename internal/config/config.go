// Package config provides configuration loading and structs for simgroup.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Grouping  GroupingConfig  `yaml:"grouping"`
	Source    SourceConfig    `yaml:"source"`
	Publish   PublishConfig   `yaml:"publish"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// MaxBodyBytes caps request bodies; grouping cost grows with the square of the item count.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// StorageConfig holds the SQLite database path and the optional vector snapshot path.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	VectorsPath  string `yaml:"vectors_path"`
}

// EmbeddingConfig selects and configures the embedder.
type EmbeddingConfig struct {
	Provider        string `yaml:"provider"`
	ModelPath       string `yaml:"model_path"`
	ONNXLibraryPath string `yaml:"onnx_library_path"`
	PoolTokens      bool   `yaml:"pool_tokens"`
	Dimensions      int    `yaml:"dimensions"`
	MaxTokens       int    `yaml:"max_tokens"`
	CacheSize       int    `yaml:"cache_size"`
	APIEndpoint     string `yaml:"api_endpoint"`
	APIKey          string `yaml:"api_key"`
	APIModel        string `yaml:"api_model"`
	APIBatchSize    int    `yaml:"api_batch_size"`
}

// DefaultThreshold is the similarity cutoff used when grouping.threshold is unset.
const DefaultThreshold = 0.65

// GroupingConfig holds similarity grouping settings.
type GroupingConfig struct {
	// Threshold is a pointer so that an explicit 0 is distinguishable from unset.
	Threshold  *float64      `yaml:"threshold"`
	Workers    int           `yaml:"workers"`
	RunTimeout time.Duration `yaml:"run_timeout"`
}

// ThresholdOrDefault returns the configured threshold; defaults to DefaultThreshold when unset.
func (g *GroupingConfig) ThresholdOrDefault() float64 {
	if g.Threshold != nil {
		return *g.Threshold
	}
	return DefaultThreshold
}

// Source types.
const (
	SourceSQLite = "sqlite"
	SourceFile   = "file"
)

// SourceConfig says where records come from and which fields form the embedded text.
type SourceConfig struct {
	Type       string   `yaml:"type"`
	Path       string   `yaml:"path"`
	TextFields []string `yaml:"text_fields"`
}

// Publish sinks.
const (
	SinkRedis   = "redis"
	SinkWebhook = "webhook"
	SinkStdout  = "stdout"
	SinkOutbox  = "outbox"
)

// PublishConfig configures where group assignments are sent.
type PublishConfig struct {
	Sink        string `yaml:"sink"`
	MessageType string `yaml:"message_type"`
	BatchSize   int    `yaml:"batch_size"`
	RedisAddr   string `yaml:"redis_addr"`
	RedisKey    string `yaml:"redis_key"`
	WebhookURL  string `yaml:"webhook_url"`
}

// WatchConfig holds file watch settings for re-running the pipeline on change.
type WatchConfig struct {
	Paths    []string      `yaml:"paths"`
	Debounce time.Duration `yaml:"debounce"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed, or fails validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	if cfg.Storage.VectorsPath != "" {
		cfg.Storage.VectorsPath = expandPath(cfg.Storage.VectorsPath, configDir)
	}
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	if cfg.Source.Path != "" {
		cfg.Source.Path = expandPath(cfg.Source.Path, configDir)
	}
	for i := range cfg.Watch.Paths {
		cfg.Watch.Paths[i] = expandPath(cfg.Watch.Paths[i], configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports settings that would make a run fail later.
func (c *Config) Validate() error {
	t := c.Grouping.ThresholdOrDefault()
	if math.IsNaN(t) || t < -1 || t > 1 {
		return fmt.Errorf("invalid config: grouping.threshold %v must be within [-1, 1]", t)
	}
	if c.Publish.BatchSize <= 0 {
		return fmt.Errorf("invalid config: publish.batch_size must be positive, got %d", c.Publish.BatchSize)
	}
	if c.Grouping.Workers < 0 {
		return fmt.Errorf("invalid config: grouping.workers must not be negative, got %d", c.Grouping.Workers)
	}
	switch c.Source.Type {
	case SourceSQLite, SourceFile:
	default:
		return fmt.Errorf("invalid config: unknown source.type %q (supported: sqlite, file)", c.Source.Type)
	}
	if c.Source.Type == SourceFile && c.Source.Path == "" {
		return fmt.Errorf("invalid config: source.path is required for source.type %q", SourceFile)
	}
	switch c.Publish.Sink {
	case SinkRedis, SinkWebhook, SinkStdout, SinkOutbox:
	default:
		return fmt.Errorf("invalid config: unknown publish.sink %q (supported: redis, webhook, stdout, outbox)", c.Publish.Sink)
	}
	if c.Publish.Sink == SinkWebhook && c.Publish.WebhookURL == "" {
		return fmt.Errorf("invalid config: publish.webhook_url is required for sink %q", SinkWebhook)
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
