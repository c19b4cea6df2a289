package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the harvester.
type Config struct {
	DatabaseURL string
	RedisURL    string
	CatalogPath string
	Queue       QueueConfig
	Run         RunConfig
	AI          AIConfig
	HTTP        HTTPConfig
}

// QueueConfig tunes the durable work queue and its worker pool.
type QueueConfig struct {
	Name        string
	Concurrency int           // worker pool size
	RatePerSec  int           // dispatch rate shared across the pool
	MaxAttempts int           // attempt ceiling before a unit moves to the dead set
	BaseDelay   time.Duration // first backoff delay, doubled per attempt
}

// RunConfig controls how full harvest runs are seeded and scheduled.
type RunConfig struct {
	MaxCompanies int           // cap on companies per run, 0 = all
	Cooldown     time.Duration // minimum gap between on-demand runs
	Interval     time.Duration // daemon mode: gap between scheduled runs
}

// AIConfig controls the extraction model endpoint.
type AIConfig struct {
	BaseURL   string        // defaults to https://api.openai.com/v1
	Model     string        // model identifier, e.g. "gpt-4o-mini"
	APIKey    string        // expanded from env var by Load
	Timeout   time.Duration // per-request timeout
	BatchSize int           // raw postings per extraction call
}

// HTTPConfig controls outbound page fetches (classification, HTML strategy).
type HTTPConfig struct {
	UserAgent    string
	FetchTimeout time.Duration
}

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultUserAgent     = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// rawConfig is used for YAML unmarshaling (snake_case fields and durations as strings).
type rawConfig struct {
	DatabaseURL string         `yaml:"database_url"`
	RedisURL    string         `yaml:"redis_url"`
	CatalogPath string         `yaml:"catalog_path"`
	Queue       rawQueueConfig `yaml:"queue"`
	Run         rawRunConfig   `yaml:"run"`
	AI          rawAIConfig    `yaml:"ai"`
	HTTP        rawHTTPConfig  `yaml:"http"`
}

type rawQueueConfig struct {
	Name        string `yaml:"name"`
	Concurrency int    `yaml:"concurrency"`
	RatePerSec  int    `yaml:"rate_per_sec"`
	MaxAttempts int    `yaml:"max_attempts"`
	BaseDelay   string `yaml:"base_delay"`
}

type rawRunConfig struct {
	MaxCompanies int    `yaml:"max_companies"`
	Cooldown     string `yaml:"cooldown"`
	Interval     string `yaml:"interval"`
}

type rawAIConfig struct {
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"`
	Timeout   string `yaml:"timeout"`
	BatchSize int    `yaml:"batch_size"`
}

type rawHTTPConfig struct {
	UserAgent    string `yaml:"user_agent"`
	FetchTimeout string `yaml:"fetch_timeout"`
}

// Load reads and parses the YAML config file at path, validates it, and returns Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	baseDelay := 5 * time.Second
	if raw.Queue.BaseDelay != "" {
		baseDelay, err = time.ParseDuration(raw.Queue.BaseDelay)
		if err != nil {
			return nil, fmt.Errorf("parse queue.base_delay %q: %w", raw.Queue.BaseDelay, err)
		}
	}

	cooldown := 1 * time.Hour
	if raw.Run.Cooldown != "" {
		cooldown, err = time.ParseDuration(raw.Run.Cooldown)
		if err != nil {
			return nil, fmt.Errorf("parse run.cooldown %q: %w", raw.Run.Cooldown, err)
		}
	}

	interval := 6 * time.Hour
	if raw.Run.Interval != "" {
		interval, err = time.ParseDuration(raw.Run.Interval)
		if err != nil {
			return nil, fmt.Errorf("parse run.interval %q: %w", raw.Run.Interval, err)
		}
	}

	aiTimeout := 60 * time.Second
	if raw.AI.Timeout != "" {
		aiTimeout, err = time.ParseDuration(raw.AI.Timeout)
		if err != nil {
			return nil, fmt.Errorf("parse ai.timeout %q: %w", raw.AI.Timeout, err)
		}
	}

	fetchTimeout := 15 * time.Second
	if raw.HTTP.FetchTimeout != "" {
		fetchTimeout, err = time.ParseDuration(raw.HTTP.FetchTimeout)
		if err != nil {
			return nil, fmt.Errorf("parse http.fetch_timeout %q: %w", raw.HTTP.FetchTimeout, err)
		}
	}

	cfg := &Config{
		DatabaseURL: raw.DatabaseURL,
		RedisURL:    raw.RedisURL,
		CatalogPath: stringOr(raw.CatalogPath, "catalog.db"),
		Queue: QueueConfig{
			Name:        stringOr(raw.Queue.Name, "harvest"),
			Concurrency: intOr(raw.Queue.Concurrency, 10),
			RatePerSec:  intOr(raw.Queue.RatePerSec, 10),
			MaxAttempts: intOr(raw.Queue.MaxAttempts, 3),
			BaseDelay:   baseDelay,
		},
		Run: RunConfig{
			MaxCompanies: raw.Run.MaxCompanies,
			Cooldown:     cooldown,
			Interval:     interval,
		},
		AI: AIConfig{
			BaseURL:   stringOr(raw.AI.BaseURL, defaultOpenAIBaseURL),
			Model:     raw.AI.Model,
			APIKey:    raw.AI.APIKey,
			Timeout:   aiTimeout,
			BatchSize: intOr(raw.AI.BatchSize, 10),
		},
		HTTP: HTTPConfig{
			UserAgent:    stringOr(raw.HTTP.UserAgent, defaultUserAgent),
			FetchTimeout: fetchTimeout,
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("database_url is required")
	}
	if cfg.RedisURL == "" {
		return fmt.Errorf("redis_url is required")
	}
	if cfg.AI.Model == "" {
		return fmt.Errorf("ai.model is required")
	}
	if cfg.AI.APIKey == "" {
		return fmt.Errorf("ai.api_key is required")
	}
	if cfg.Queue.Concurrency < 1 {
		return fmt.Errorf("queue.concurrency must be positive, got %d", cfg.Queue.Concurrency)
	}
	if cfg.Queue.RatePerSec < 1 {
		return fmt.Errorf("queue.rate_per_sec must be positive, got %d", cfg.Queue.RatePerSec)
	}
	if cfg.Queue.MaxAttempts < 1 {
		return fmt.Errorf("queue.max_attempts must be positive, got %d", cfg.Queue.MaxAttempts)
	}
	if cfg.Run.Cooldown < 0 {
		return fmt.Errorf("run.cooldown must not be negative, got %v", cfg.Run.Cooldown)
	}
	return nil
}

func stringOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func intOr(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}
