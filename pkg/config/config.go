// Package config loads process configuration for every pipeline stage
// driver from config.yaml with environment variable overrides. Secrets
// (passwords, API keys) must only come from environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for a pipeline stage driver. A single
// Config value is constructed once in main() and passed by pointer to
// every stage driver; nothing here is read from a package-level global.
type Config struct {
	Env string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`

	Database DatabaseConfig `yaml:"database"`
	Graph    GraphConfig    `yaml:"graph"`
	LLM      LLMConfig      `yaml:"llm"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// DatabaseConfig holds PostgreSQL connection settings for the control
// plane and optional physical overrides for operators who split
// raw-log and analytical-pattern storage into separate databases. When
// RawLogsDSN/AnalyticalDSN are empty they default to the primary DSN
// built from the fields below.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"lumi"`
	Password       string `yaml:"-" env:"PGPASSWORD"`
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"lumi"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`

	// RawLogsDSN and AnalyticalDSN override the primary DSN for operators
	// who keep the original pglumilineage three-database split. Empty
	// means "use the primary database" (this module's default layout).
	RawLogsDSN    string `yaml:"-" env:"RAW_LOGS_DSN"`
	AnalyticalDSN string `yaml:"-" env:"ANALYTICAL_DSN"`
}

// ConnectionString returns the primary PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RawLogsConnectionString returns RawLogsDSN if the operator set one,
// otherwise the primary connection string.
func (c *DatabaseConfig) RawLogsConnectionString() string {
	if c.RawLogsDSN != "" {
		return c.RawLogsDSN
	}
	return c.ConnectionString()
}

// AnalyticalConnectionString returns AnalyticalDSN if the operator set
// one, otherwise the primary connection string.
func (c *DatabaseConfig) AnalyticalConnectionString() string {
	if c.AnalyticalDSN != "" {
		return c.AnalyticalDSN
	}
	return c.ConnectionString()
}

// GraphConfig names the Apache AGE graph the metadata and lineage
// builders write into. The graph lives inside the same database as the
// control plane.
type GraphConfig struct {
	Name string `yaml:"name" env:"GRAPH_NAME" env-default:"lineage_graph"`
}

// LLMConfig configures the lineage extraction call.
type LLMConfig struct {
	// Provider selects the wire protocol: "openai" for any
	// OpenAI-compatible chat-completions endpoint, "anthropic" for the
	// Messages API.
	Provider string `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`

	Endpoint string `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:"https://api.openai.com/v1"`
	Model    string `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o-mini"`
	APIKey   string `yaml:"-" env:"LLM_API_KEY"`

	// Temperature is fixed low for deterministic extraction.
	Temperature float64 `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0.0"`
	MaxTokens   int     `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"4096"`

	// RequestTimeout is loaded from config but not applied: no LLM client
	// or driver in this module reads it, so a call is bounded only by
	// the caller's context.
	RequestTimeout time.Duration `yaml:"request_timeout" env:"LLM_REQUEST_TIMEOUT" env-default:"60s"`

	// MaxSchemaRetries bounds the re-prompt-with-validator-error loop.
	MaxSchemaRetries int `yaml:"max_schema_retries" env:"LLM_MAX_SCHEMA_RETRIES" env-default:"2"`

	// MaxConcurrent bounds simultaneous in-flight LLM calls.
	// RequestsPerMinute/TokensPerMinute feed a token-bucket limiter
	// layered in front of the concurrency cap.
	MaxConcurrent     int `yaml:"max_concurrent" env:"LLM_MAX_CONCURRENT" env-default:"8"`
	RequestsPerMinute int `yaml:"requests_per_minute" env:"LLM_REQUESTS_PER_MINUTE" env-default:"120"`
	TokensPerMinute   int `yaml:"tokens_per_minute" env:"LLM_TOKENS_PER_MINUTE" env-default:"200000"`

	// CircuitBreakerThreshold/ResetAfter tune the breaker in pkg/llm.
	CircuitBreakerThreshold  int           `yaml:"circuit_breaker_threshold" env:"LLM_CIRCUIT_BREAKER_THRESHOLD" env-default:"5"`
	CircuitBreakerResetAfter time.Duration `yaml:"circuit_breaker_reset_after" env:"LLM_CIRCUIT_BREAKER_RESET_AFTER" env-default:"30s"`
}

// PipelineConfig tunes batch sizes and grace intervals shared across
// stage drivers.
type PipelineConfig struct {
	// ClaimBatchSize bounds how many rows a single invocation of a stage
	// driver claims via FOR UPDATE SKIP LOCKED.
	ClaimBatchSize int `yaml:"claim_batch_size" env:"PIPELINE_CLAIM_BATCH_SIZE" env-default:"100"`

	// InProgressGraceInterval is how long an IN_PROGRESS pattern may sit
	// before the start-up sweep resets it back to PENDING.
	InProgressGraceInterval time.Duration `yaml:"in_progress_grace_interval" env:"PIPELINE_IN_PROGRESS_GRACE" env-default:"15m"`

	// ContextTokenBudget caps the assembled prompt context.
	ContextTokenBudget int `yaml:"context_token_budget" env:"PIPELINE_CONTEXT_TOKEN_BUDGET" env-default:"6000"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. Missing config.yaml is not an error: every field has an
// env-default, so a purely env-driven deployment works without a file.
func Load() (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("read environment config: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.LLM.Provider != "openai" && c.LLM.Provider != "anthropic" {
		return fmt.Errorf("llm.provider must be \"openai\" or \"anthropic\", got %q", c.LLM.Provider)
	}
	if c.LLM.MaxSchemaRetries < 0 {
		return fmt.Errorf("llm.max_schema_retries must be >= 0")
	}
	return nil
}
