// Package file loads the application configuration from a TOML file.
package file

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the full application configuration.
type Config struct {
	// DataDir holds the SQLite database. Empty means ~/.coachkb/data.
	DataDir string `toml:"data_dir"`

	Source    SourceConfig    `toml:"source"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Vector    VectorConfig    `toml:"vector"`
	Sync      SyncConfig      `toml:"sync"`
	Retrieval RetrievalConfig `toml:"retrieval"`
}

// SourceConfig configures the document source.
type SourceConfig struct {
	// Dir is the root of the markdown corpus.
	Dir string `toml:"dir"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Provider selects the backend: "openai" or "ollama".
	Provider string `toml:"provider"`

	// Model overrides the provider's default model.
	Model string `toml:"model"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `toml:"base_url"`

	// APIKeyEnv names the environment variable holding the API key.
	// The key itself never lives in the config file.
	APIKeyEnv string `toml:"api_key_env"`

	// Dimensions overrides the model's default vector size.
	Dimensions int `toml:"dimensions"`
}

// VectorConfig configures the vector index.
type VectorConfig struct {
	// Provider selects the backend: "qdrant" or "memory".
	Provider string `toml:"provider"`

	// URL is the Qdrant base URL.
	URL string `toml:"url"`

	// APIKeyEnv names the environment variable holding the Qdrant key.
	APIKeyEnv string `toml:"api_key_env"`

	// Collection is the Qdrant collection name.
	Collection string `toml:"collection"`
}

// SyncConfig configures sync runs.
type SyncConfig struct {
	// Concurrency bounds parallel chunk-and-embed work.
	Concurrency int `toml:"concurrency"`

	// LeaseTTLMinutes is the sync lease time-to-live.
	LeaseTTLMinutes int `toml:"lease_ttl_minutes"`
}

// RetrievalConfig configures retrieval defaults.
type RetrievalConfig struct {
	// K is the default result count.
	K int `toml:"k"`

	// MinScore is the default similarity threshold.
	MinScore float64 `toml:"min_score"`

	// TimeoutSeconds bounds one retrieval call.
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// DefaultPath returns the default config file location,
// ~/.coachkb/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".coachkb", "config.toml"), nil
}

// Load reads the configuration from path, applying defaults for missing
// values. A missing file yields the pure defaults; only a malformed file
// is an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	} else if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Source.Dir == "" {
		c.Source.Dir = "."
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "ollama"
	}
	if c.Embedding.APIKeyEnv == "" {
		c.Embedding.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.Vector.Provider == "" {
		c.Vector.Provider = "memory"
	}
	if c.Vector.APIKeyEnv == "" {
		c.Vector.APIKeyEnv = "QDRANT_API_KEY"
	}
	if c.Sync.Concurrency <= 0 {
		c.Sync.Concurrency = 4
	}
	if c.Sync.LeaseTTLMinutes <= 0 {
		c.Sync.LeaseTTLMinutes = 15
	}
	if c.Retrieval.K <= 0 {
		c.Retrieval.K = 8
	}
	if c.Retrieval.MinScore <= 0 {
		c.Retrieval.MinScore = 0.30
	}
	if c.Retrieval.TimeoutSeconds <= 0 {
		c.Retrieval.TimeoutSeconds = 5
	}
}

// LeaseTTL returns the lease time-to-live as a duration.
func (c *Config) LeaseTTL() time.Duration {
	return time.Duration(c.Sync.LeaseTTLMinutes) * time.Minute
}

// RetrievalTimeout returns the retrieval timeout as a duration.
func (c *Config) RetrievalTimeout() time.Duration {
	return time.Duration(c.Retrieval.TimeoutSeconds) * time.Second
}
