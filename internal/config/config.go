package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// per-user requests per minute on order/verify endpoints; 0 disables
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
	Migrate  bool   `yaml:"migrate"` // apply embedded migrations on startup
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // course cache ttl
}

type GatewayConfig struct {
	Name           string        `yaml:"name"`
	BaseURL        string        `yaml:"base_url"`
	SecretKey      string        `yaml:"secret_key"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	Fake           bool          `yaml:"fake"` // dev only: accept every payment key
}

type PaymentConfig struct {
	Currency      string        `yaml:"currency"`
	OrderTTL      time.Duration `yaml:"order_ttl"`
	WebhookSecret string        `yaml:"webhook_secret"`
	Gateway       GatewayConfig `yaml:"gateway"`
}

type SchedulerConfig struct {
	ExpiryInterval time.Duration `yaml:"expiry_interval"`
	OrphanInterval time.Duration `yaml:"orphan_interval"`
	// PENDING_VERIFICATION orders untouched for this long are re-queried
	OrphanGrace time.Duration `yaml:"orphan_grace"`
	OrphanBatch int           `yaml:"orphan_batch"`
	Workers     int           `yaml:"workers"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

type KafkaConfig struct {
	Brokers      []string `yaml:"brokers"`
	EventsTopic  string   `yaml:"events_topic"`
	RefundsTopic string   `yaml:"refunds_topic"`
	GroupID      string   `yaml:"group_id"`
}

func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

type TracingConfig struct {
	Enabled        bool   `yaml:"enabled"`
	JaegerEndpoint string `yaml:"jaeger_endpoint"`
	ServiceName    string `yaml:"service_name"`
}

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Payment   PaymentConfig   `yaml:"payment"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Auth      AuthConfig      `yaml:"auth"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Tracing   TracingConfig   `yaml:"tracing"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, applies env overrides for secrets,
// fills defaults and validates required keys.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Runtime.Dev = dev
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	override := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	override(&cfg.Database.URL, "DATABASE_URL")
	override(&cfg.Redis.URL, "REDIS_URL")
	override(&cfg.Payment.Gateway.SecretKey, "GATEWAY_SECRET_KEY")
	override(&cfg.Payment.WebhookSecret, "WEBHOOK_SECRET")
	override(&cfg.Auth.JWTSecret, "JWT_SECRET")
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 30 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	p := &cfg.Payment
	if p.Currency == "" {
		p.Currency = "KRW"
	}
	p.Currency = strings.ToUpper(p.Currency)
	if p.OrderTTL <= 0 {
		p.OrderTTL = 30 * time.Minute
	}
	if p.Gateway.Name == "" {
		p.Gateway.Name = "toss"
	}
	if p.Gateway.BaseURL == "" {
		p.Gateway.BaseURL = "https://api.tosspayments.com"
	}
	if p.Gateway.RequestTimeout <= 0 {
		p.Gateway.RequestTimeout = 10 * time.Second
	}
	if p.Gateway.MaxAttempts <= 0 {
		p.Gateway.MaxAttempts = 3
	}
	if p.Gateway.InitialBackoff <= 0 {
		p.Gateway.InitialBackoff = 200 * time.Millisecond
	}
	if p.Gateway.MaxBackoff <= 0 {
		p.Gateway.MaxBackoff = 2 * time.Second
	}

	s := &cfg.Scheduler
	if s.ExpiryInterval <= 0 {
		s.ExpiryInterval = time.Minute
	}
	if s.OrphanInterval <= 0 {
		s.OrphanInterval = time.Minute
	}
	if s.OrphanGrace <= 0 {
		s.OrphanGrace = 2 * time.Minute
	}
	if s.OrphanBatch <= 0 {
		s.OrphanBatch = 200
	}
	if s.Workers <= 0 {
		s.Workers = 4
	}

	if cfg.Kafka.EventsTopic == "" {
		cfg.Kafka.EventsTopic = "ledger-events"
	}
	if cfg.Kafka.RefundsTopic == "" {
		cfg.Kafka.RefundsTopic = "purchase-refunds"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "course-ledger"
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "course-ledger"
	}
}

// Validate checks the keys the process cannot start without.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.Payment.WebhookSecret == "" {
		return errors.New("payment.webhook_secret is required")
	}
	if c.Payment.Gateway.SecretKey == "" && !c.Payment.Gateway.Fake {
		return errors.New("payment.gateway.secret_key is required")
	}
	if c.Payment.Gateway.Fake && !c.Runtime.Dev {
		return errors.New("payment.gateway.fake is only allowed with -dev")
	}
	if c.Tracing.Enabled && c.Tracing.JaegerEndpoint == "" {
		return errors.New("tracing.jaeger_endpoint is required when tracing is enabled")
	}
	// orphans are only healed before expires_at
	if c.Scheduler.OrphanGrace >= c.Payment.OrderTTL {
		return errors.New("scheduler.orphan_grace must be shorter than payment.order_ttl")
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
