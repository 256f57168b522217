package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultPath is the configuration file read when no path is given.
const DefaultPath = "config.yaml"

// Supported completion providers.
const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Fallback modes for exhausted completion retries.
const (
	FallbackCanned      = "canned"
	FallbackErrorMarker = "error_marker"
)

// Config holds all configuration for the dialog generator.
// Configuration can come from a YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (API keys, passwords) must only come from environment variables.
type Config struct {
	Version string `yaml:"-"` // Set at load time, not from config

	// Completion service used by both agents
	Provider ProviderConfig `yaml:"provider"`

	// Per-conversation generation settings
	Generation GenerationConfig `yaml:"generation"`

	// Batch (dataset) settings
	Batch BatchConfig `yaml:"batch"`

	// Where generated records are written
	Output OutputConfig `yaml:"output"`

	// Optional PostgreSQL sink
	Database DatabaseConfig `yaml:"database"`

	// Optional shared completion cache
	Redis RedisConfig `yaml:"redis"`

	Log LogConfig `yaml:"log"`
}

// ProviderConfig selects and configures the external completion service.
type ProviderConfig struct {
	Name    string        `yaml:"name" env:"LLM_PROVIDER" env-default:"gemini"`
	BaseURL string        `yaml:"base_url" env:"LLM_BASE_URL" env-default:""` // Empty uses the provider's public endpoint
	Model   string        `yaml:"model" env:"LLM_MODEL" env-default:""`       // Empty uses the provider default
	APIKey  string        `yaml:"-" env:"LLM_API_KEY"`                        // Secret - not in YAML
	Timeout time.Duration `yaml:"timeout" env:"LLM_TIMEOUT" env-default:"60s"`
}

// GenerationConfig controls a single buyer/seller conversation.
type GenerationConfig struct {
	Turns          int           `yaml:"turns" env:"DIALOG_TURNS" env-default:"3"`
	Temperature    float64       `yaml:"temperature" env:"DIALOG_TEMPERATURE" env-default:"0.2"`
	MaxRetries     int           `yaml:"max_retries" env:"DIALOG_MAX_RETRIES" env-default:"3"`
	BackoffUnit    time.Duration `yaml:"backoff_unit" env:"DIALOG_BACKOFF_UNIT" env-default:"1s"`
	ShortMaxTokens int           `yaml:"short_max_tokens" env:"DIALOG_SHORT_MAX_TOKENS" env-default:"150"`
	LongMaxTokens  int           `yaml:"long_max_tokens" env:"DIALOG_LONG_MAX_TOKENS" env-default:"500"`

	// RecordPrompts keeps the exact system/user prompt of every turn in the output.
	RecordPrompts bool `yaml:"record_prompts" env:"DIALOG_RECORD_PROMPTS" env-default:"false"`

	// Fallback is "canned" (plausible sentences) or "error_marker" (literal error text, rejected by the batch).
	Fallback string `yaml:"fallback" env:"DIALOG_FALLBACK" env-default:"canned"`

	// Seed fixes the random source; 0 seeds from the clock.
	Seed uint64 `yaml:"seed" env:"DIALOG_SEED" env-default:"0"`

	// ScenarioFile overrides the embedded scenario catalog.
	ScenarioFile string `yaml:"scenario_file" env:"DIALOG_SCENARIO_FILE" env-default:""`

	// After BreakerThreshold consecutive exhausted completions, calls are
	// skipped (straight to fallback) for BreakerReset. 0 disables the breaker.
	BreakerThreshold int           `yaml:"breaker_threshold" env:"DIALOG_BREAKER_THRESHOLD" env-default:"5"`
	BreakerReset     time.Duration `yaml:"breaker_reset" env:"DIALOG_BREAKER_RESET" env-default:"30s"`
}

// BatchConfig controls dataset assembly.
type BatchConfig struct {
	TargetCount   int           `yaml:"target_count" env:"BATCH_TARGET_COUNT" env-default:"50"`
	MaxAttempts   int           `yaml:"max_attempts" env:"BATCH_MAX_ATTEMPTS" env-default:"75"`
	DelayUnit     time.Duration `yaml:"delay_unit" env:"BATCH_DELAY_UNIT" env-default:"1s"`
	MinDelayUnits int           `yaml:"min_delay_units" env:"BATCH_MIN_DELAY_UNITS" env-default:"3"`
	MaxDelayUnits int           `yaml:"max_delay_units" env:"BATCH_MAX_DELAY_UNITS" env-default:"7"`
}

// OutputConfig controls the file sinks.
type OutputConfig struct {
	Dir               string `yaml:"dir" env:"OUTPUT_DIR" env-default:"data"`
	JSONLFile         string `yaml:"jsonl_file" env:"OUTPUT_JSONL_FILE" env-default:"dataset.jsonl"`
	ConversationFiles bool   `yaml:"conversation_files" env:"OUTPUT_CONVERSATION_FILES" env-default:"true"`

	// CallLogDir, when set, receives one request/response file per completion call.
	CallLogDir string `yaml:"call_log_dir" env:"OUTPUT_CALL_LOG_DIR" env-default:""`

	// Optional extra formats, written inside Dir when set.
	ShareGPTFile string `yaml:"sharegpt_file" env:"OUTPUT_SHAREGPT_FILE" env-default:""`
	ReadableDir  string `yaml:"readable_dir" env:"OUTPUT_READABLE_DIR" env-default:""`
}

// DatabaseConfig holds PostgreSQL configuration for the optional example store.
type DatabaseConfig struct {
	Enabled        bool   `yaml:"enabled" env:"PGENABLED" env-default:"false"`
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"dialoggen"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"dialoggen"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"5"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// RedisConfig enables the shared completion cache. An empty Host disables it.
type RedisConfig struct {
	Host     string        `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int           `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string        `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	TTL      time.Duration `yaml:"ttl" env:"REDIS_CACHE_TTL" env-default:"168h"`

	// Timeout bounds each dial, read and write. A cache that answers slower
	// than this is not worth waiting for.
	Timeout time.Duration `yaml:"timeout" env:"REDIS_TIMEOUT" env-default:"500ms"`
}

// Addr returns host:port with the Docker host rewrite applied.
func (c *RedisConfig) Addr() string {
	return ResolveHostForDocker(c.Host) + ":" + strconv.Itoa(c.Port)
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level       string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Development bool   `yaml:"development" env:"LOG_DEVELOPMENT" env-default:"false"`
}

// Load reads configuration from path (config.yaml when empty) with environment
// variable overrides. A missing file is not an error: defaults and environment
// variables are used instead.
func Load(path string, version string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	cfg.applyProviderDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyProviderDefaults fills the model and API key from provider-specific
// conventions when they were not set explicitly.
func (c *Config) applyProviderDefaults() {
	c.Provider.Name = strings.ToLower(strings.TrimSpace(c.Provider.Name))

	if c.Provider.Model == "" {
		switch c.Provider.Name {
		case ProviderGemini:
			c.Provider.Model = "gemini-2.0-flash"
		case ProviderOpenAI:
			c.Provider.Model = "gpt-4o-mini"
		case ProviderAnthropic:
			c.Provider.Model = "claude-3-5-haiku-latest"
		}
	}

	if c.Provider.APIKey == "" {
		var candidates []string
		switch c.Provider.Name {
		case ProviderGemini:
			candidates = []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}
		case ProviderOpenAI:
			candidates = []string{"OPENAI_API_KEY"}
		case ProviderAnthropic:
			candidates = []string{"ANTHROPIC_API_KEY"}
		}
		for _, name := range candidates {
			if v := os.Getenv(name); v != "" {
				c.Provider.APIKey = v
				break
			}
		}
	}

	if c.Provider.BaseURL != "" {
		c.Provider.BaseURL = resolveURLHost(c.Provider.BaseURL)
	}
}

// Validate checks value ranges and cross-field constraints.
func (c *Config) Validate() error {
	switch c.Provider.Name {
	case ProviderGemini, ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("unknown provider %q (want gemini, openai or anthropic)", c.Provider.Name)
	}

	if c.Generation.Turns < 1 {
		return fmt.Errorf("generation.turns must be at least 1, got %d", c.Generation.Turns)
	}
	if c.Generation.MaxRetries < 1 {
		return fmt.Errorf("generation.max_retries must be at least 1, got %d", c.Generation.MaxRetries)
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		return fmt.Errorf("generation.temperature must be within [0, 2], got %g", c.Generation.Temperature)
	}
	if c.Generation.ShortMaxTokens < 1 || c.Generation.LongMaxTokens < c.Generation.ShortMaxTokens {
		return fmt.Errorf("generation token limits must satisfy 0 < short_max_tokens <= long_max_tokens")
	}
	if c.Generation.BreakerThreshold < 0 {
		return fmt.Errorf("generation.breaker_threshold must not be negative, got %d", c.Generation.BreakerThreshold)
	}
	switch c.Generation.Fallback {
	case FallbackCanned, FallbackErrorMarker:
	default:
		return fmt.Errorf("generation.fallback must be %q or %q, got %q", FallbackCanned, FallbackErrorMarker, c.Generation.Fallback)
	}

	if c.Batch.TargetCount < 1 {
		return fmt.Errorf("batch.target_count must be at least 1, got %d", c.Batch.TargetCount)
	}
	if c.Batch.MaxAttempts < c.Batch.TargetCount {
		return fmt.Errorf("batch.max_attempts (%d) must be >= batch.target_count (%d)", c.Batch.MaxAttempts, c.Batch.TargetCount)
	}
	if c.Batch.MinDelayUnits < 0 || c.Batch.MinDelayUnits > c.Batch.MaxDelayUnits {
		return fmt.Errorf("batch delay units must satisfy 0 <= min_delay_units <= max_delay_units")
	}

	return nil
}

// ConnectionString returns a PostgreSQL connection URL.
func (c *DatabaseConfig) ConnectionString() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     ResolveHostForDocker(c.Host) + ":" + strconv.Itoa(c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}
