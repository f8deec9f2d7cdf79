package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port             string        `mapstructure:"PORT"`
	Env              string        `mapstructure:"ENV"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32         `mapstructure:"DB_MIN_CONNS"`
	JWTSecret        string        `mapstructure:"JWT_SECRET"`
	JWTTTL           time.Duration `mapstructure:"JWT_TTL"`
	RedisURL         string        `mapstructure:"REDIS_URL"`
	CORSOrigins      []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS     float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst   int           `mapstructure:"RATE_LIMIT_BURST"`
	PHIEncryptionKey string        `mapstructure:"PHI_ENCRYPTION_KEY"`
	SMTPHost         string        `mapstructure:"SMTP_HOST"`
	SMTPPort         int           `mapstructure:"SMTP_PORT"`
	SMTPUser         string        `mapstructure:"SMTP_USER"`
	SMTPPass         string        `mapstructure:"SMTP_PASS"`
	SMTPFrom         string        `mapstructure:"SMTP_FROM"`
	ExpoPushEnabled  bool          `mapstructure:"EXPO_PUSH_ENABLED"`
	ReminderSchedule string        `mapstructure:"REMINDER_SCHEDULE"`
	ReminderLead     time.Duration `mapstructure:"REMINDER_LEAD"`
	MigrationsDir    string        `mapstructure:"MIGRATIONS_DIR"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"JWT_SECRET", "JWT_TTL", "REDIS_URL", "CORS_ORIGINS",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "PHI_ENCRYPTION_KEY",
	"SMTP_HOST", "SMTP_PORT", "SMTP_USER", "SMTP_PASS", "SMTP_FROM",
	"EXPO_PUSH_ENABLED", "REMINDER_SCHEDULE", "REMINDER_LEAD", "MIGRATIONS_DIR",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("JWT_TTL", "24h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("REMINDER_SCHEDULE", "*/5 * * * *")
	v.SetDefault("REMINDER_LEAD", "1h")
	v.SetDefault("MIGRATIONS_DIR", "./migrations")

	// Unmarshal only sees keys viper already knows about.
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// A missing .env is fine; the environment alone is enough.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// SMTPEnabled reports whether outbound email is configured.
func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != ""
}

// Validate checks that the configuration is safe to run. Outside development a
// JWT secret is mandatory. In production PHI_ENCRYPTION_KEY is required and
// must decode to 32 bytes.
func (c *Config) Validate() error {
	if !c.IsDev() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when ENV=%q", c.Env)
	}
	if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters, got %d", len(c.JWTSecret))
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive, got %s", c.JWTTTL)
	}

	if c.IsProduction() && c.PHIEncryptionKey == "" {
		return fmt.Errorf("PHI_ENCRYPTION_KEY is required in production")
	}
	if c.PHIEncryptionKey != "" {
		keyBytes, err := hex.DecodeString(c.PHIEncryptionKey)
		if err != nil {
			return fmt.Errorf("PHI_ENCRYPTION_KEY is not valid hex: %w", err)
		}
		if len(keyBytes) != 32 {
			return fmt.Errorf("PHI_ENCRYPTION_KEY must be 32 bytes (64 hex chars), got %d bytes", len(keyBytes))
		}
	}

	if c.SMTPEnabled() && c.SMTPFrom == "" {
		return fmt.Errorf("SMTP_FROM is required when SMTP_HOST is set")
	}
	if c.ReminderLead <= 0 {
		return fmt.Errorf("REMINDER_LEAD must be positive, got %s", c.ReminderLead)
	}

	return nil
}
