// Package config provides configuration loading and structs for the Sakusei server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Generation GenerationConfig `yaml:"generation"`
	Queues     QueuesConfig     `yaml:"queues"`
	Watch      WatchConfig      `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the database and indices.
type StorageConfig struct {
	DatabasePath    string `yaml:"database_path"`
	VectorIndexPath string `yaml:"vector_index_path"`
	BleveIndexPath  string `yaml:"bleve_index_path"`
}

// RetrievalConfig holds the external retrieval dependency endpoints.
type RetrievalConfig struct {
	EmbeddingEndpoint        string        `yaml:"embedding_endpoint"`
	EmbeddingModel           string        `yaml:"embedding_model"`
	EmbeddingAPIKey          string        `yaml:"embedding_api_key"`
	Dimensions               int           `yaml:"dimensions"`
	PrimaryRerankerEndpoint  string        `yaml:"primary_reranker_endpoint"`
	FallbackRerankerEndpoint string        `yaml:"fallback_reranker_endpoint"`
	TopK                     int           `yaml:"top_k"`
	ProbeTimeout             time.Duration `yaml:"probe_timeout"`
}

// GenerationConfig holds LLM drafting settings.
type GenerationConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
}

// QueueConfig holds the retry/backoff/retention policy for one queue.
type QueueConfig struct {
	Attempts        int           `yaml:"attempts"`
	Backoff         time.Duration `yaml:"backoff"`
	Workers         int           `yaml:"workers"`
	KeepCompleted   int           `yaml:"keep_completed"`
	KeepFailed      int           `yaml:"keep_failed"`
	CompletedMaxAge time.Duration `yaml:"completed_max_age"`
}

// QueuesConfig holds the per-queue policies.
type QueuesConfig struct {
	Ingestion  QueueConfig `yaml:"ingestion"`
	Embedding  QueueConfig `yaml:"embedding"`
	Generation QueueConfig `yaml:"generation"`
}

// WatchConfig holds uploads-directory watch settings.
type WatchConfig struct {
	Directory  string   `yaml:"directory"`
	Extensions []string `yaml:"extensions"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
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
	cfg.Storage.VectorIndexPath = expandPath(cfg.Storage.VectorIndexPath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	if cfg.Watch.Directory != "" {
		cfg.Watch.Directory = expandPath(cfg.Watch.Directory, configDir)
	}

	return &cfg, nil
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
