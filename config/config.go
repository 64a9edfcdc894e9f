// Package config loads the service configuration from YAML plus environment
// variables. Secrets (API keys, Redis password) come from the environment so
// the YAML file can live in version control.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/wahl-chat/wahl-chat-backend/core"
)

// Config is the root configuration document.
type Config struct {
	Server    ServerConfig      `yaml:"server"`
	Backends  []BackendConfig   `yaml:"backends"`
	Retrieval RetrievalConfig   `yaml:"retrieval"`
	Redis     RedisConfig       `yaml:"redis"`
	Chat      ChatConfig        `yaml:"chat"`
	Obs       ObsConfig         `yaml:"observability"`
	Parties   []core.Party      `yaml:"parties"`
	Questions ProposedQuestions `yaml:"proposed_questions"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// BackendConfig describes one generation endpoint. APIKeyEnv names the
// environment variable holding the key, never the key itself.
type BackendConfig struct {
	Name        string            `yaml:"name"`
	BaseURL     string            `yaml:"base_url"`
	APIKeyEnv   string            `yaml:"api_key_env"`
	Model       string            `yaml:"model"`
	Sizes       []string          `yaml:"sizes"`
	Priority    int               `yaml:"priority"`
	Capacity    int               `yaml:"capacity_per_minute"`
	PremiumOnly bool              `yaml:"premium_only"`
	BackupOnly  bool              `yaml:"backup_only"`
	Utility     bool              `yaml:"utility"`
	Temperature *float32          `yaml:"temperature"`
	Headers     map[string]string `yaml:"headers"`
	Query       map[string]string `yaml:"query"`
}

type RetrievalConfig struct {
	BaseURL   string  `yaml:"base_url"`
	APIKeyEnv string  `yaml:"api_key_env"`
	TopK      int     `yaml:"top_k"`
	MinScore  float64 `yaml:"min_score"`
	MaxDocs   int     `yaml:"max_docs"`
	Rerank    bool    `yaml:"rerank"`
}

type RedisConfig struct {
	Addr        string `yaml:"addr"`
	PasswordEnv string `yaml:"password_env"`
	DB          int    `yaml:"db"`
}

type ChatConfig struct {
	TurnTimeout       time.Duration `yaml:"turn_timeout"`
	ComparisonTimeout time.Duration `yaml:"comparison_timeout"`
	MaxChunkLen       int           `yaml:"max_chunk_len"`
	ChunkDelay        time.Duration `yaml:"chunk_delay"`
	MaxAutoParties    int           `yaml:"max_auto_parties"`
	CachedAnswerLimit int           `yaml:"cached_answer_limit"`
}

type ObsConfig struct {
	ServiceName string  `yaml:"service_name"`
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// ProposedQuestions maps a party id (or the shared "group" key) to the
// questions whose answers may be cached and replayed.
type ProposedQuestions map[string][]string

// LoadEnv loads a .env file when present. Missing files are not an error;
// production sets real environment variables.
func LoadEnv() {
	_ = godotenv.Load()
}

// Load reads and validates the YAML configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = 20
	}
	if c.Retrieval.MinScore <= 0 {
		c.Retrieval.MinScore = 0.5
	}
	if c.Retrieval.MaxDocs <= 0 {
		c.Retrieval.MaxDocs = 5
	}
	if c.Obs.ServiceName == "" {
		c.Obs.ServiceName = "wahl-chat-backend"
	}
	if c.Obs.Exporter == "" {
		c.Obs.Exporter = "none"
	}
}

func (c *Config) validate() error {
	if len(c.Backends) == 0 {
		return fmt.Errorf("config: at least one backend is required")
	}
	seen := map[string]bool{}
	for i, b := range c.Backends {
		if b.Name == "" {
			return fmt.Errorf("config: backend %d has no name", i)
		}
		if seen[b.Name] {
			return fmt.Errorf("config: duplicate backend name %q", b.Name)
		}
		seen[b.Name] = true
		if b.BaseURL == "" {
			return fmt.Errorf("config: backend %q has no base_url", b.Name)
		}
		if b.Model == "" {
			return fmt.Errorf("config: backend %q has no model", b.Name)
		}
		for _, size := range b.Sizes {
			if size != "small" && size != "large" {
				return fmt.Errorf("config: backend %q has unknown size %q", b.Name, size)
			}
		}
	}
	for _, party := range c.Parties {
		if party.ID == "" {
			return fmt.Errorf("config: party with empty party_id")
		}
	}
	return nil
}

// APIKey resolves a backend's key from the environment.
func (b BackendConfig) APIKey() string {
	if b.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(b.APIKeyEnv)
}

// Password resolves the Redis password from the environment.
func (r RedisConfig) Password() string {
	if r.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(r.PasswordEnv)
}

// APIKey resolves the retrieval service key from the environment.
func (r RetrievalConfig) APIKey() string {
	if r.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(r.APIKeyEnv)
}
