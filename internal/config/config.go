package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/clinic/frontdesk/internal/domain/scheduling"
	"github.com/clinic/frontdesk/internal/platform/db"
)

const (
	AuthModeDevelopment = "development"
	AuthModeJWT         = "jwt"

	minSigningKeyLen = 32
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`
	AuthMode       string        `mapstructure:"AUTH_MODE"`
	AuthIssuer     string        `mapstructure:"AUTH_ISSUER"`
	JWTSigningKey  string        `mapstructure:"JWT_SIGNING_KEY"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	DBSchema       string        `mapstructure:"DB_SCHEMA"`
	LocalStoreDir  string        `mapstructure:"LOCAL_STORE_DIR"`
	RedisURL       string        `mapstructure:"REDIS_URL"`
	CacheTTL       time.Duration `mapstructure:"CACHE_TTL"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	HolidaysFile   string        `mapstructure:"HOLIDAYS_FILE"`
	SlotCount      int           `mapstructure:"SLOT_COUNT"`
	SlotMinutes    int           `mapstructure:"SLOT_MINUTES"`
	SlotStart      string        `mapstructure:"SLOT_START"`
	SlotBreaks     string        `mapstructure:"SLOT_BREAKS"`
	DefaultDoctor  string        `mapstructure:"DEFAULT_DOCTOR"`
	TLSEnabled     bool          `mapstructure:"TLS_ENABLED"`
	TLSCertFile    string        `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile     string        `mapstructure:"TLS_KEY_FILE"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "AUTH_MODE", "AUTH_ISSUER", "JWT_SIGNING_KEY",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "DB_SCHEMA", "LOCAL_STORE_DIR",
	"REDIS_URL", "CACHE_TTL", "CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"BODY_LIMIT", "REQUEST_TIMEOUT", "HOLIDAYS_FILE",
	"SLOT_COUNT", "SLOT_MINUTES", "SLOT_START", "SLOT_BREAKS", "DEFAULT_DOCTOR",
	"TLS_ENABLED", "TLS_CERT_FILE", "TLS_KEY_FILE",
}

// Load reads the configuration from the environment and an optional .env
// file in the working directory.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	def := scheduling.DefaultGridConfig()
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("AUTH_MODE", "") // "" -> inferred from ENV
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DB_SCHEMA", "frontdesk")
	v.SetDefault("LOCAL_STORE_DIR", "./data")
	v.SetDefault("CACHE_TTL", "5m")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("BODY_LIMIT", "64K")
	v.SetDefault("REQUEST_TIMEOUT", "15s")
	v.SetDefault("SLOT_COUNT", def.Count)
	v.SetDefault("SLOT_MINUTES", def.SlotMinutes)
	v.SetDefault("SLOT_START", def.Start.String())
	v.SetDefault("SLOT_BREAKS", FormatBreaks(def.Breaks))

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(cfg.CORSOrigins[i])
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns AUTH_MODE when set, otherwise "development" in
// the development environment and "jwt" everywhere else.
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return AuthModeDevelopment
	}
	return AuthModeJWT
}

// UsePostgres reports whether a remote store is configured. When false the
// server keeps its data in LOCAL_STORE_DIR.
func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != ""
}

func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// GridConfig assembles the daily slot grid from the SLOT_* settings.
func (c *Config) GridConfig() (scheduling.GridConfig, error) {
	start, err := scheduling.ParseClockTime(c.SlotStart)
	if err != nil {
		return scheduling.GridConfig{}, fmt.Errorf("SLOT_START: %w", err)
	}
	breaks, err := scheduling.ParseBreaks(c.SlotBreaks)
	if err != nil {
		return scheduling.GridConfig{}, fmt.Errorf("SLOT_BREAKS: %w", err)
	}
	g := scheduling.GridConfig{Count: c.SlotCount, SlotMinutes: c.SlotMinutes, Start: start, Breaks: breaks}
	if err := g.Validate(); err != nil {
		return scheduling.GridConfig{}, err
	}
	return g, nil
}

// FormatBreaks renders breaks in the SLOT_BREAKS syntax.
func FormatBreaks(breaks []scheduling.Break) string {
	parts := make([]string, len(breaks))
	for i, b := range breaks {
		parts[i] = fmt.Sprintf("%d:%d", b.AfterSlot, b.Minutes)
	}
	return strings.Join(parts, ",")
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch mode := c.ResolvedAuthMode(); mode {
	case AuthModeDevelopment:
		if c.IsProduction() {
			return fmt.Errorf("AUTH_MODE=development is not allowed when ENV=production")
		}
	case AuthModeJWT:
		if len(c.JWTSigningKey) < minSigningKeyLen {
			return fmt.Errorf("JWT_SIGNING_KEY must be at least %d characters when AUTH_MODE is %q",
				minSigningKeyLen, AuthModeJWT)
		}
	default:
		return fmt.Errorf("AUTH_MODE must be %q or %q, got %q", AuthModeDevelopment, AuthModeJWT, mode)
	}

	if c.DBMaxConns < 1 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) and DB_MAX_CONNS (%d) must satisfy 0 <= min <= max, max >= 1",
			c.DBMinConns, c.DBMaxConns)
	}
	if err := db.ValidateSchema(c.DBSchema); err != nil {
		return fmt.Errorf("DB_SCHEMA: %w", err)
	}
	if !c.UsePostgres() && strings.TrimSpace(c.LocalStoreDir) == "" {
		return fmt.Errorf("LOCAL_STORE_DIR is required when DATABASE_URL is not set")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_RPS must be positive and RATE_LIMIT_BURST at least 1")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive, got %s", c.CacheTTL)
	}
	if _, err := c.GridConfig(); err != nil {
		return fmt.Errorf("invalid slot grid: %w", err)
	}

	// TLS validation: when TLS is enabled, cert and key files must be specified.
	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}

	return nil
}
