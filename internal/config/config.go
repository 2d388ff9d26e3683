package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"
)

type Config struct {
	App            AppConfig            `yaml:"app"`
	Server         ServerConfig         `yaml:"server"`
	OpenAI         OpenAIConfig         `yaml:"openai"`
	Anthropic      AnthropicConfig      `yaml:"anthropic"`
	Classification ClassificationConfig `yaml:"classification"`
	Retry          RetryConfig          `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	Prompts        PromptsConfig        `yaml:"prompts"`
	Database       DatabaseConfig       `yaml:"database"`
	Redis          RedisConfig          `yaml:"redis"`
	Feedback       FeedbackConfig       `yaml:"feedback"`
	Policy         PolicyConfig         `yaml:"policy"`
	Notify         NotifyConfig         `yaml:"notify"`
	Telemetry      TelemetryConfig      `yaml:"telemetry"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	MaxAudioBytes    int64         `yaml:"max_audio_bytes"`
	// AdminToken guards /api/v1/admin. Empty disables the admin routes.
	AdminToken     string `yaml:"admin_token"`
	GRPCHealthPort int    `yaml:"grpc_health_port"`
}

func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

type OpenAIConfig struct {
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url"`
	Organization      string        `yaml:"organization"`
	Model             string        `yaml:"model"`
	RealtimeModel     string        `yaml:"realtime_model"`
	RealtimeURL       string        `yaml:"realtime_url"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	MaxConcurrent     int           `yaml:"max_concurrent"`
}

type AnthropicConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

type ClassificationConfig struct {
	// Backend names the text backend: openai or anthropic.
	Backend                string        `yaml:"backend"`
	MinConfidenceThreshold float64       `yaml:"min_confidence_threshold"`
	MaxMessageLength       int           `yaml:"max_message_length"`
	RealtimeTimeout        time.Duration `yaml:"realtime_timeout"`
	PromptID               string        `yaml:"prompt_id"`
	AudioPromptID          string        `yaml:"audio_prompt_id"`
}

type RetryConfig struct {
	Attempts int           `yaml:"attempts"`
	MinWait  time.Duration `yaml:"min_wait"`
	MaxWait  time.Duration `yaml:"max_wait"`
}

type CircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`
	HalfOpenMaxCalls int           `yaml:"half_open_max_calls"`
	SuccessThreshold int           `yaml:"success_threshold"`
}

type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	BurstSize         int           `yaml:"burst_size"`
	MaxClients        int           `yaml:"max_clients"`
	ClientTTL         time.Duration `yaml:"client_ttl"`
	// Backend is memory or redis.
	Backend string `yaml:"backend"`
}

type PromptsConfig struct {
	Dir   string `yaml:"dir"`
	Watch bool   `yaml:"watch"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + d.SSLMode,
	}
	return u.String()
}

type RedisConfig struct {
	Addresses []string `yaml:"addresses"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	PoolSize  int      `yaml:"pool_size"`
}

type FeedbackConfig struct {
	// Store is memory, postgres or sqlite.
	Store             string        `yaml:"store"`
	SQLitePath        string        `yaml:"sqlite_path"`
	MaxEntries        int           `yaml:"max_entries"`
	Retention         time.Duration `yaml:"retention"`
	RetentionSchedule string        `yaml:"retention_schedule"`
	CacheTTL          time.Duration `yaml:"cache_ttl"`
}

type PolicyConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Path              string        `yaml:"path"`
	EvaluationTimeout time.Duration `yaml:"evaluation_timeout"`
}

type NotifyConfig struct {
	SlackToken   string `yaml:"slack_token"`
	SlackChannel string `yaml:"slack_channel"`
	SlackAPIURL  string `yaml:"slack_api_url"`
}

type TelemetryConfig struct {
	LogLevel string `yaml:"log_level"`
}

func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "Contact Center",
			Version:     "0.1.0",
			Environment: "development",
		},
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8000,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     90 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
			MaxAudioBytes:    25 << 20,
		},
		OpenAI: OpenAIConfig{
			BaseURL:       "https://api.openai.com/v1",
			Model:         "gpt-4.1",
			RealtimeModel: "gpt-4o-realtime-preview",
			RealtimeURL:   "wss://api.openai.com/v1/realtime",
			Timeout:       30 * time.Second,
			MaxConcurrent: 50,
		},
		Anthropic: AnthropicConfig{
			BaseURL: "https://api.anthropic.com",
			Model:   "claude-sonnet-4-5-20250929",
			Timeout: 30 * time.Second,
		},
		Classification: ClassificationConfig{
			Backend:                "openai",
			MinConfidenceThreshold: 0.5,
			MaxMessageLength:       5000,
			RealtimeTimeout:        30 * time.Second,
			PromptID:               "classification",
			AudioPromptID:          "classification_audio",
		},
		Retry: RetryConfig{
			Attempts: 3,
			MinWait:  time.Second,
			MaxWait:  10 * time.Second,
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  30 * time.Second,
			HalfOpenMaxCalls: 3,
			SuccessThreshold: 2,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 60,
			MaxClients:        10000,
			ClientTTL:         10 * time.Minute,
			Backend:           "memory",
		},
		Prompts: PromptsConfig{
			Dir:   "prompts",
			Watch: true,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "contact_center",
			User:            "contact_center",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			PoolSize: 20,
		},
		Feedback: FeedbackConfig{
			Store:             "memory",
			SQLitePath:        "feedback.db",
			MaxEntries:        100000,
			Retention:         90 * 24 * time.Hour,
			RetentionSchedule: "0 3 * * *",
			CacheTTL:          10 * time.Minute,
		},
		Policy: PolicyConfig{
			Enabled:           true,
			Path:              "policies",
			EvaluationTimeout: 100 * time.Millisecond,
		},
		Telemetry: TelemetryConfig{
			LogLevel: "info",
		},
	}
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.Classification.Backend {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("classification.backend: unknown backend %q", c.Classification.Backend)
	}
	if t := c.Classification.MinConfidenceThreshold; t < 0 || t > 1 {
		return fmt.Errorf("classification.min_confidence_threshold: %v out of range [0,1]", t)
	}
	if c.Classification.MaxMessageLength <= 0 {
		return fmt.Errorf("classification.max_message_length must be positive")
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("rate_limit.requests_per_minute must be positive")
	}
	switch c.RateLimit.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("rate_limit.backend: unknown backend %q", c.RateLimit.Backend)
	}
	if c.RateLimit.Backend == "redis" && len(c.Redis.Addresses) == 0 {
		return fmt.Errorf("rate_limit.backend redis requires redis.addresses")
	}
	switch c.Feedback.Store {
	case "memory", "postgres", "sqlite":
	default:
		return fmt.Errorf("feedback.store: unknown store %q", c.Feedback.Store)
	}
	if c.Retry.Attempts < 1 {
		return fmt.Errorf("retry.attempts must be at least 1")
	}
	if cb := c.CircuitBreaker; cb.HalfOpenMaxCalls > 0 && cb.SuccessThreshold > cb.HalfOpenMaxCalls {
		return fmt.Errorf("circuit_breaker.success_threshold (%d) must not exceed half_open_max_calls (%d)", cb.SuccessThreshold, cb.HalfOpenMaxCalls)
	}
	return nil
}
