package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the orchestrator.
type Config struct {
	App         AppConfig
	Postgres    PostgresConfig
	Redis       RedisConfig
	Logger      LoggerConfig
	Gateway     GatewayConfig
	Webhook     WebhookConfig
	Transcript  TranscriptConfig
	Automation  AutomationConfig
	ConfigCache ConfigCacheConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// GatewayConfig holds the chat-platform API connection values.
type GatewayConfig struct {
	BaseURL        string
	Token          string
	RequestTimeout time.Duration
}

// WebhookConfig defines inbound webhook authentication parameters.
type WebhookConfig struct {
	Secret string
}

// TranscriptConfig controls capture, rendering, and storage of transcripts.
type TranscriptConfig struct {
	Dir           string
	FetchBatch    int
	MaxEntryChars int
}

// AutomationConfig carries process-wide automation defaults. Per-workspace
// minute thresholds live in the workspace config record; these are the knobs
// that are not workspace-scoped.
type AutomationConfig struct {
	SweepIntervalMinutes  int
	ChannelDeleteDelayMS  int
	ForwardSessionTTLMins int
}

// ConfigCacheConfig controls the workspace-config read-through cache.
type ConfigCacheConfig struct {
	TTLSeconds int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ticket-orchestrator"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Gateway: GatewayConfig{
			BaseURL:        getEnv("GATEWAY_BASE_URL", "http://127.0.0.1:9090"),
			Token:          os.Getenv("GATEWAY_TOKEN"),
			RequestTimeout: time.Duration(getEnvAsInt("GATEWAY_REQUEST_TIMEOUT_SECONDS", 15)) * time.Second,
		},
		Webhook: WebhookConfig{
			Secret: getEnv("WEBHOOK_SECRET", "dev-secret"),
		},
		Transcript: TranscriptConfig{
			Dir:           getEnv("TRANSCRIPT_DIR", "./data/transcripts"),
			FetchBatch:    getEnvAsInt("TRANSCRIPT_FETCH_BATCH", 100),
			MaxEntryChars: getEnvAsInt("TRANSCRIPT_MAX_ENTRY_CHARS", 4000),
		},
		Automation: AutomationConfig{
			SweepIntervalMinutes:  getEnvAsInt("AUTOMATION_SWEEP_INTERVAL_MINUTES", 15),
			ChannelDeleteDelayMS:  getEnvAsInt("CHANNEL_DELETE_DELAY_MS", 5000),
			ForwardSessionTTLMins: getEnvAsInt("FORWARD_SESSION_TTL_MINUTES", 2),
		},
		ConfigCache: ConfigCacheConfig{
			TTLSeconds: getEnvAsInt("WORKSPACE_CONFIG_CACHE_TTL_SECONDS", 120),
		},
	}

	if cfg.Transcript.FetchBatch <= 0 {
		cfg.Transcript.FetchBatch = 100
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// SweepInterval returns the unclaimed-ticket sweep cadence.
func (a AutomationConfig) SweepInterval() time.Duration {
	if a.SweepIntervalMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(a.SweepIntervalMinutes) * time.Minute
}

// ChannelDeleteDelay returns the grace delay before a closed ticket channel is removed.
func (a AutomationConfig) ChannelDeleteDelay() time.Duration {
	if a.ChannelDeleteDelayMS <= 0 {
		return 5 * time.Second
	}
	return time.Duration(a.ChannelDeleteDelayMS) * time.Millisecond
}

// ForwardSessionTTL returns how long a forward-selection session stays valid.
func (a AutomationConfig) ForwardSessionTTL() time.Duration {
	if a.ForwardSessionTTLMins <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(a.ForwardSessionTTLMins) * time.Minute
}

// TTL returns the workspace-config cache TTL.
func (c ConfigCacheConfig) TTL() time.Duration {
	if c.TTLSeconds <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(c.TTLSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
