package config

import (
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/joho/godotenv"

	"github.com/Skotchmaster/bi_dashboard/pkg/config"
)

const (
	defaultAccessSecret  = "your-secret-key"
	defaultRefreshSecret = "your-refresh-secret"

	RegistrationOpen      = "open"
	RegistrationBootstrap = "bootstrap"
)

type Config struct {
	Env      string
	LogLevel string
	HTTPAddr string
	// TrustedProxies may set X-Forwarded-For; empty means the socket address is used.
	TrustedProxies []*net.IPNet

	DatabaseURL    string
	DBMaxOpenConns int
	DBMaxIdleConns int

	JWTSecret     []byte
	RefreshSecret []byte
	// InsecureSecrets lists the env names that fell back to built-in literals.
	InsecureSecrets []string

	LoginRateLimit  int
	LoginRateWindow time.Duration
	RedisURL        string

	KafkaBrokers []string
	KafkaTopic   string

	ESURL      string
	ESUser     string
	ESPassword string
	AuditIndex string

	RegistrationMode     string
	SessionSweepInterval time.Duration
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}
	return Load()
}

// Load reads the process environment only.
func Load() (*Config, error) {
	cfg := &Config{
		Env:      config.EnvDefault("APP_ENV", "local"),
		LogLevel: config.EnvDefault("LOG_LEVEL", "info"),
		HTTPAddr: config.EnvDefault("HTTP_ADDR", ":8080"),

		DatabaseURL:    config.EnvDefault("DATABASE_URL", ""),
		DBMaxOpenConns: config.EnvIntDefault("DB_MAX_OPEN_CONNS", 20),
		DBMaxIdleConns: config.EnvIntDefault("DB_MAX_IDLE_CONNS", 10),

		LoginRateLimit:  config.EnvIntDefault("LOGIN_RATE_LIMIT", 5),
		LoginRateWindow: config.EnvDurationDefault("LOGIN_RATE_WINDOW", 15*time.Minute),
		RedisURL:        config.EnvDefault("REDIS_URL", ""),

		KafkaBrokers: config.CSV(config.EnvDefault("KAFKA_BROKERS", "")),
		KafkaTopic:   config.EnvDefault("KAFKA_TOPIC", "auth_events"),

		ESURL:      config.EnvDefault("ES_URL", ""),
		ESUser:     config.EnvDefault("ES_USER", ""),
		ESPassword: config.EnvDefault("ES_PASSWORD", ""),
		AuditIndex: config.EnvDefault("AUDIT_INDEX", "auth_audit"),

		RegistrationMode:     config.EnvDefault("REGISTRATION_MODE", RegistrationOpen),
		SessionSweepInterval: config.EnvDurationDefault("SESSION_SWEEP_INTERVAL", 30*time.Minute),
	}

	if err := config.NonEmpty(cfg.DatabaseURL, "DATABASE_URL"); err != nil {
		return nil, fmt.Errorf("DATABASE_URL must be set: %w", err)
	}

	cfg.JWTSecret = cfg.secret("JWT_SECRET", defaultAccessSecret)
	cfg.RefreshSecret = cfg.secret("REFRESH_SECRET", defaultRefreshSecret)
	if len(cfg.InsecureSecrets) > 0 && cfg.Env == "production" {
		return nil, fmt.Errorf("signing secrets %v must be set in production", cfg.InsecureSecrets)
	}

	switch cfg.RegistrationMode {
	case RegistrationOpen, RegistrationBootstrap:
	default:
		return nil, fmt.Errorf("unknown REGISTRATION_MODE %q", cfg.RegistrationMode)
	}

	for _, cidr := range config.CSV(config.EnvDefault("TRUSTED_PROXIES", "")) {
		_, n, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
		}
		cfg.TrustedProxies = append(cfg.TrustedProxies, n)
	}

	if cfg.LoginRateLimit <= 0 || cfg.LoginRateWindow <= 0 {
		return nil, errors.New("LOGIN_RATE_LIMIT and LOGIN_RATE_WINDOW must be positive")
	}

	return cfg, nil
}

func (c *Config) secret(env, def string) []byte {
	v := config.EnvDefault(env, "")
	if v == "" {
		c.InsecureSecrets = append(c.InsecureSecrets, env)
		return []byte(def)
	}
	return []byte(v)
}
