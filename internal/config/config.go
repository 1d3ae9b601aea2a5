package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// maxDeliveryTimeout bounds a single outbox delivery attempt.
const maxDeliveryTimeout = 10 * time.Second

// Config aggregates runtime configuration for the service.
type Config struct {
	App        AppConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Logger     LoggerConfig
	Auth       AuthConfig
	Cases      CasesConfig
	SLA        SLAConfig
	Outbox     OutboxConfig
	Messaging  MessagingConfig
	Webhook    WebhookConfig
	Kafka      KafkaConfig
	HTTPClient HTTPClientConfig
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
	Addr        string
	Password    string
	DB          int
	LockPrefix  string
	DialTimeout time.Duration
	OpTimeout   time.Duration
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines bearer token parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// CasesConfig tunes case creation and updates.
type CasesConfig struct {
	AutoAssign     bool
	LockTTLSeconds int
	Timezone       string
}

// SLAConfig holds the sweep schedule, window and alert cooldowns.
type SLAConfig struct {
	SweepEnabled          bool
	SweepSchedule         string
	UrgentWindowMinutes   int
	UrgentCooldownMinutes int
	MissedCooldownMinutes int
}

// OutboxConfig tunes the outbox dispatcher.
type OutboxConfig struct {
	DispatcherEnabled      bool
	BatchSize              int
	Workers                int
	MaxRetries             int
	PollIntervalSeconds    int
	LeaseSeconds           int
	DeliveryTimeoutSeconds int
}

// MessagingConfig points at the chat messaging endpoint.
type MessagingConfig struct {
	Endpoint    string
	AccessToken string
	Target      string
}

// WebhookConfig toggles webhook fan-out.
type WebhookConfig struct {
	Enabled bool
}

// KafkaConfig configures the case event stream.
type KafkaConfig struct {
	Enabled  bool
	Brokers  []string
	Topic    string
	ClientID string
}

// HTTPClientConfig tunes the outbound HTTP transport.
type HTTPClientConfig struct {
	ConnectTimeout        time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
	IdleConnTimeout       time.Duration
	MaxIdleConns          int
	MaxIdleConnsPerHost   int
	UserAgent             string
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
			Name:                  getEnv("APP_NAME", "case-service"),
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
			Addr:        getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:    os.Getenv("REDIS_PASSWORD"),
			DB:          redisDB,
			LockPrefix:  getEnv("REDIS_LOCK_PREFIX", "case-service:lock:"),
			DialTimeout: getEnvAsDuration("REDIS_DIAL_TIMEOUT", 2*time.Second),
			OpTimeout:   getEnvAsDuration("REDIS_OP_TIMEOUT", 500*time.Millisecond),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Cases: CasesConfig{
			AutoAssign:     getEnvAsBool("CASES_AUTO_ASSIGN", false),
			LockTTLSeconds: getEnvAsInt("CASES_LOCK_TTL_SECONDS", 10),
			Timezone:       getEnv("CASES_TIMEZONE", "UTC"),
		},
		SLA: SLAConfig{
			SweepEnabled:          getEnvAsBool("SLA_SWEEP_ENABLED", true),
			SweepSchedule:         getEnv("SLA_SWEEP_SCHEDULE", "@every 15m"),
			UrgentWindowMinutes:   getEnvAsInt("SLA_URGENT_WINDOW_MINUTES", 30),
			UrgentCooldownMinutes: getEnvAsInt("SLA_URGENT_COOLDOWN_MINUTES", 120),
			MissedCooldownMinutes: getEnvAsInt("SLA_MISSED_COOLDOWN_MINUTES", 360),
		},
		Outbox: OutboxConfig{
			DispatcherEnabled:      getEnvAsBool("OUTBOX_DISPATCHER_ENABLED", true),
			BatchSize:              getEnvAsInt("OUTBOX_BATCH_SIZE", 10),
			Workers:                getEnvAsInt("OUTBOX_WORKERS", 4),
			MaxRetries:             getEnvAsInt("OUTBOX_MAX_RETRIES", 5),
			PollIntervalSeconds:    getEnvAsInt("OUTBOX_POLL_INTERVAL_SECONDS", 5),
			LeaseSeconds:           getEnvAsInt("OUTBOX_LEASE_SECONDS", 60),
			DeliveryTimeoutSeconds: getEnvAsInt("OUTBOX_DELIVERY_TIMEOUT_SECONDS", 10),
		},
		Messaging: MessagingConfig{
			Endpoint:    os.Getenv("MESSAGING_ENDPOINT"),
			AccessToken: os.Getenv("MESSAGING_ACCESS_TOKEN"),
			Target:      os.Getenv("MESSAGING_TARGET"),
		},
		Webhook: WebhookConfig{
			Enabled: getEnvAsBool("WEBHOOKS_ENABLED", true),
		},
		Kafka: KafkaConfig{
			Enabled:  getEnvAsBool("KAFKA_ENABLED", false),
			Brokers:  getEnvAsList("KAFKA_BROKERS", []string{"127.0.0.1:9092"}),
			Topic:    getEnv("KAFKA_TOPIC", "case-events"),
			ClientID: getEnv("KAFKA_CLIENT_ID", "case-service"),
		},
		HTTPClient: HTTPClientConfig{
			ConnectTimeout:        getEnvAsDuration("HTTP_CLIENT_CONNECT_TIMEOUT", 3*time.Second),
			TLSHandshakeTimeout:   getEnvAsDuration("HTTP_CLIENT_TLS_HANDSHAKE_TIMEOUT", 3*time.Second),
			ResponseHeaderTimeout: getEnvAsDuration("HTTP_CLIENT_RESPONSE_HEADER_TIMEOUT", 8*time.Second),
			IdleConnTimeout:       getEnvAsDuration("HTTP_CLIENT_IDLE_CONN_TIMEOUT", 90*time.Second),
			MaxIdleConns:          getEnvAsInt("HTTP_CLIENT_MAX_IDLE_CONNS", 50),
			MaxIdleConnsPerHost:   getEnvAsInt("HTTP_CLIENT_MAX_IDLE_CONNS_PER_HOST", 10),
			UserAgent:             getEnv("HTTP_CLIENT_USER_AGENT", "case-service/1.0"),
		},
	}

	if _, err := time.LoadLocation(cfg.Cases.Timezone); err != nil {
		return nil, fmt.Errorf("invalid CASES_TIMEZONE: %w", err)
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

// LockTTL returns how long a per-case update lock is held at most.
func (c CasesConfig) LockTTL() time.Duration {
	if c.LockTTLSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// Location returns the zone used for case number years.
func (c CasesConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (s SLAConfig) UrgentWindow() time.Duration {
	return minutesOr(s.UrgentWindowMinutes, 30)
}

func (s SLAConfig) UrgentCooldown() time.Duration {
	return minutesOr(s.UrgentCooldownMinutes, 120)
}

func (s SLAConfig) MissedCooldown() time.Duration {
	return minutesOr(s.MissedCooldownMinutes, 360)
}

// PollInterval returns the dispatcher tick.
func (o OutboxConfig) PollInterval() time.Duration {
	if o.PollIntervalSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(o.PollIntervalSeconds) * time.Second
}

// Lease returns how long a claimed entry stays invisible to other dispatchers.
func (o OutboxConfig) Lease() time.Duration {
	if o.LeaseSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(o.LeaseSeconds) * time.Second
}

// DeliveryTimeout returns the per-delivery timeout, capped at 10s.
func (o OutboxConfig) DeliveryTimeout() time.Duration {
	d := time.Duration(o.DeliveryTimeoutSeconds) * time.Second
	if d <= 0 || d > maxDeliveryTimeout {
		return maxDeliveryTimeout
	}
	return d
}

// Configured reports whether messaging notifications can be delivered.
func (m MessagingConfig) Configured() bool {
	return m.Endpoint != "" && m.Target != ""
}

func minutesOr(value, fallback int) time.Duration {
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value) * time.Minute
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

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
