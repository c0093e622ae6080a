package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const placeholderWebhookKey = "PLACEHOLDER_WEBHOOK_KEY_CREATE_LATER"

type Config struct {
	Env      string         `yaml:"env"`
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	S3       S3Config       `yaml:"s3"`
	Gateways GatewaysConfig `yaml:"gateways"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Boost    BoostConfig    `yaml:"boost"`
	Worker   WorkerConfig   `yaml:"worker"`
}

type HTTPConfig struct {
	Addr           string        `yaml:"addr"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// PostgresConfig points at the marketplace database. ServiceKey, when set,
// replaces the password carried by DSN.
type PostgresConfig struct {
	DSN         string `yaml:"dsn"`
	ServiceKey  string `yaml:"service_key"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

func (c PostgresConfig) HasURL() bool {
	return strings.TrimSpace(c.DSN) != ""
}

func (c PostgresConfig) HasServiceKey() bool {
	return strings.TrimSpace(c.ServiceKey) != ""
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type GatewaysConfig struct {
	CamPay GatewayConfig `yaml:"campay"`
	Fapshi GatewayConfig `yaml:"fapshi"`
}

type GatewayConfig struct {
	WebhookKey    string `yaml:"webhook_key"`
	AllowUnsigned bool   `yaml:"allow_unsigned"`
}

// HasWebhookKey reports whether a real shared secret is configured.
func (g GatewayConfig) HasWebhookKey() bool {
	key := strings.TrimSpace(g.WebhookKey)
	return key != "" && key != placeholderWebhookKey
}

type WebhookConfig struct {
	DedupeTTL      time.Duration `yaml:"dedupe_ttl"`
	RetryAttempts  int           `yaml:"retry_attempts"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay  time.Duration `yaml:"retry_max_delay"`
}

type BoostConfig struct {
	DefaultDays int `yaml:"default_days"`
}

type WorkerConfig struct {
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	EventRetention time.Duration `yaml:"event_retention"`
}

func Default() Config {
	return Config{
		Env: "dev",
		HTTP: HTTPConfig{
			Addr:           ":8080",
			ReadTimeout:    5 * time.Second,
			WriteTimeout:   15 * time.Second,
			IdleTimeout:    30 * time.Second,
			RequestTimeout: 30 * time.Second,
			MaxBodyBytes:   1 << 20,
		},
		Log: LogConfig{Level: "debug"},
		Postgres: PostgresConfig{
			AutoMigrate: false,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			DB:   0,
		},
		S3: S3Config{
			Endpoint: "",
			Bucket:   "payment-webhooks",
			UseSSL:   false,
		},
		Webhook: WebhookConfig{
			DedupeTTL:      24 * time.Hour,
			RetryAttempts:  3,
			RetryBaseDelay: 100 * time.Millisecond,
			RetryMaxDelay:  2 * time.Second,
		},
		Boost: BoostConfig{
			DefaultDays: 7,
		},
		Worker: WorkerConfig{
			SweepInterval:  5 * time.Minute,
			EventRetention: 90 * 24 * time.Hour,
		},
	}
}

func (c Config) IsProduction() bool {
	switch strings.ToLower(strings.TrimSpace(c.Env)) {
	case "prod", "production":
		return true
	default:
		return false
	}
}

func (c Config) Validate() error {
	if c.Boost.DefaultDays <= 0 {
		return fmt.Errorf("boost.default_days must be positive")
	}
	if c.Webhook.RetryAttempts <= 0 {
		return fmt.Errorf("webhook.retry_attempts must be positive")
	}
	if !c.IsProduction() {
		return nil
	}
	for name, gw := range map[string]GatewayConfig{
		"campay": c.Gateways.CamPay,
		"fapshi": c.Gateways.Fapshi,
	} {
		if gw.AllowUnsigned {
			return fmt.Errorf("gateways.%s.allow_unsigned is not permitted in production", name)
		}
		if !gw.HasWebhookKey() {
			return fmt.Errorf("gateways.%s.webhook_key is required in production", name)
		}
	}
	return nil
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromYAML(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := loadDotEnv(os.Getenv("APP_ENV_FILE")); err != nil {
		return Config{}, err
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func loadFromYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("unmarshal config yaml: %w", err)
	}

	return nil
}

// loadDotEnv fills unset environment variables from a dotenv file. Variables
// already present in the process environment win.
func loadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.Env = v
	}

	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if err := overrideDuration("HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout); err != nil {
		return err
	}
	if err := overrideDuration("HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout); err != nil {
		return err
	}
	if err := overrideDuration("HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout); err != nil {
		return err
	}
	if err := overrideDuration("HTTP_REQUEST_TIMEOUT", &cfg.HTTP.RequestTimeout); err != nil {
		return err
	}
	if err := overrideInt64("HTTP_MAX_BODY_BYTES", &cfg.HTTP.MaxBodyBytes); err != nil {
		return err
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	overrideString(&cfg.Postgres.DSN, "POSTGRES_DSN", "DATABASE_URL", "SUPABASE_URL")
	overrideString(&cfg.Postgres.ServiceKey, "POSTGRES_SERVICE_KEY", "SUPABASE_SERVICE_ROLE_KEY")
	if err := overrideBool("POSTGRES_AUTO_MIGRATE", &cfg.Postgres.AutoMigrate); err != nil {
		return err
	}

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if err := overrideInt("REDIS_DB", &cfg.Redis.DB); err != nil {
		return err
	}

	if v := os.Getenv("S3_ENDPOINT"); v != "" {
		cfg.S3.Endpoint = v
	}
	if v := os.Getenv("S3_ACCESS_KEY"); v != "" {
		cfg.S3.AccessKey = v
	}
	if v := os.Getenv("S3_SECRET_KEY"); v != "" {
		cfg.S3.SecretKey = v
	}
	if v := os.Getenv("S3_BUCKET"); v != "" {
		cfg.S3.Bucket = v
	}
	if err := overrideBool("S3_USE_SSL", &cfg.S3.UseSSL); err != nil {
		return err
	}

	overrideString(&cfg.Gateways.CamPay.WebhookKey, "CAMPAY_WEBHOOK_KEY")
	if err := overrideBool("CAMPAY_ALLOW_UNSIGNED", &cfg.Gateways.CamPay.AllowUnsigned); err != nil {
		return err
	}
	overrideString(&cfg.Gateways.Fapshi.WebhookKey, "FAPSHI_WEBHOOK_KEY")
	if err := overrideBool("FAPSHI_ALLOW_UNSIGNED", &cfg.Gateways.Fapshi.AllowUnsigned); err != nil {
		return err
	}

	if err := overrideDuration("WEBHOOK_DEDUPE_TTL", &cfg.Webhook.DedupeTTL); err != nil {
		return err
	}
	if err := overrideInt("WEBHOOK_RETRY_ATTEMPTS", &cfg.Webhook.RetryAttempts); err != nil {
		return err
	}
	if err := overrideDuration("WEBHOOK_RETRY_BASE_DELAY", &cfg.Webhook.RetryBaseDelay); err != nil {
		return err
	}
	if err := overrideDuration("WEBHOOK_RETRY_MAX_DELAY", &cfg.Webhook.RetryMaxDelay); err != nil {
		return err
	}

	if err := overrideInt("BOOST_DEFAULT_DAYS", &cfg.Boost.DefaultDays); err != nil {
		return err
	}
	if err := overrideDuration("WORKER_SWEEP_INTERVAL", &cfg.Worker.SweepInterval); err != nil {
		return err
	}
	if err := overrideDuration("WORKER_EVENT_RETENTION", &cfg.Worker.EventRetention); err != nil {
		return err
	}

	return nil
}

// overrideString applies the first non-empty variable among keys.
func overrideString(target *string, keys ...string) {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			*target = v
			return
		}
	}
}

func overrideDuration(key string, target *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("parse %s duration: %w", key, err)
	}
	*target = d
	return nil
}

func overrideInt(key string, target *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parse %s int: %w", key, err)
	}
	*target = n
	return nil
}

func overrideInt64(key string, target *int64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("parse %s int64: %w", key, err)
	}
	*target = n
	return nil
}

func overrideBool(key string, target *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("parse %s bool: %w", key, err)
	}
	*target = b
	return nil
}
