package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	AI      AIConfig      `yaml:"ai"`
	Webhook WebhookConfig `yaml:"webhook"`
	Pillars PillarConfig  `yaml:"pillars"`
	Images  ImageConfig   `yaml:"images"`
	Prompts PromptConfig  `yaml:"prompts"`
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// StorageConfig selects the key-value backend used for workspace state.
// Backend is one of "memory", "redis" or "mysql".
type StorageConfig struct {
	Backend string      `yaml:"backend"`
	Redis   RedisConfig `yaml:"redis"`
	MySQL   MySQLConfig `yaml:"mysql"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`

	// TTL expires idle workspace keys; 0 keeps them forever.
	TTL time.Duration `yaml:"ttl"`
}

type MySQLConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type AIConfig struct {
	Primary   ModelEndpoint `yaml:"primary"`
	Secondary ModelEndpoint `yaml:"secondary"`
	Timeout   time.Duration `yaml:"timeout"`

	// Transcription is an OpenAI-compatible audio endpoint used to retry
	// failed clips. Unset disables retries.
	Transcription ModelEndpoint `yaml:"transcription"`
}

// ModelEndpoint describes one model backend. Kind is "gemini" for the
// generateContent contract or "openai" for an OpenAI-compatible chat API.
type ModelEndpoint struct {
	Kind        string  `yaml:"kind"`
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

type WebhookConfig struct {
	ProdURL     string        `yaml:"prod_url"`
	TestURL     string        `yaml:"test_url"`
	Environment string        `yaml:"environment"`
	Timeout     time.Duration `yaml:"timeout"`
}

// PillarConfig is the pillar category rule table applied to generated pillars.
type PillarConfig struct {
	Exclude []string          `yaml:"exclude"`
	Rename  map[string]string `yaml:"rename"`
	Max     int               `yaml:"max"`
}

// ImageConfig sizes the shared world image worker pool and the per-workspace
// image state cache.
type ImageConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	MaxEntries int           `yaml:"max_entries"`
	Workers    int           `yaml:"workers"`
	QueueSize  int           `yaml:"queue_size"`
}

// PromptConfig points at a directory of JSON templates overriding the
// built-in prompts. Empty means built-ins only.
type PromptConfig struct {
	Dir string `yaml:"dir"`
}

type LoggingConfig struct {
	Mode string `yaml:"mode"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 180 * time.Second,
		},
		Storage: StorageConfig{
			Backend: "memory",
			Redis:   RedisConfig{Host: "localhost", Port: 6379, PoolSize: 10},
			MySQL: MySQLConfig{
				Host:            "localhost",
				Port:            3306,
				Database:        "brand_studio",
				MaxOpenConns:    10,
				MaxIdleConns:    5,
				ConnMaxLifetime: time.Hour,
			},
		},
		AI: AIConfig{
			Primary: ModelEndpoint{
				Kind:    "gemini",
				BaseURL: "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.5-pro:generateContent",
			},
			Secondary: ModelEndpoint{
				Kind:    "gemini",
				BaseURL: "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.5-flash:generateContent",
			},
			Timeout: 120 * time.Second,
		},
		Webhook: WebhookConfig{
			Environment: "prod",
			Timeout:     300 * time.Second,
		},
		Pillars: PillarConfig{
			Exclude: []string{"Self-Actualization", "Self Actualization"},
			Rename: map[string]string{
				"Physiological":  "Basic Needs",
				"Safety":         "Security",
				"Love/Belonging": "Connection",
				"Belonging":      "Connection",
				"Esteem":         "Recognition",
			},
			Max: 4,
		},
		Images: ImageConfig{
			Timeout:    90 * time.Second,
			MaxEntries: 500,
			Workers:    4,
			QueueSize:  100,
		},
		Logging: LoggingConfig{Mode: "dev"},
	}
}

// Load reads configuration from a YAML file on top of Default. A missing
// file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Apply environment variable overrides
func applyEnv(cfg *Config) {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		if cfg.AI.Primary.Kind == "gemini" {
			cfg.AI.Primary.APIKey = key
		}
		if cfg.AI.Secondary.Kind == "gemini" {
			cfg.AI.Secondary.APIKey = key
		}
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if cfg.AI.Primary.Kind == "openai" {
			cfg.AI.Primary.APIKey = key
		}
		if cfg.AI.Secondary.Kind == "openai" {
			cfg.AI.Secondary.APIKey = key
		}
		if cfg.AI.Transcription.APIKey == "" {
			cfg.AI.Transcription.APIKey = key
		}
	}
	if v := os.Getenv("WEBHOOK_PROD_URL"); v != "" {
		cfg.Webhook.ProdURL = v
	}
	if v := os.Getenv("WEBHOOK_TEST_URL"); v != "" {
		cfg.Webhook.TestURL = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Storage.Redis.Password = v
	}
	if v := os.Getenv("MYSQL_PASSWORD"); v != "" {
		cfg.Storage.MySQL.Password = v
	}
}

func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "memory", "redis", "mysql":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	for _, ep := range []ModelEndpoint{c.AI.Primary, c.AI.Secondary} {
		if ep.Kind != "" && ep.Kind != "gemini" && ep.Kind != "openai" {
			return fmt.Errorf("unknown model endpoint kind %q", ep.Kind)
		}
	}
	if c.Webhook.Environment != "prod" && c.Webhook.Environment != "test" {
		return fmt.Errorf("webhook environment must be prod or test, got %q", c.Webhook.Environment)
	}
	if c.Images.Workers <= 0 {
		return errors.New("images.workers must be positive")
	}
	if c.Pillars.Max <= 0 {
		return errors.New("pillars.max must be positive")
	}
	return nil
}
