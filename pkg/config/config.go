package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds everything the portal reads at startup.
type Config struct {
	AppEnv      string            `mapstructure:"app_env"`
	Server      ServerConfig      `mapstructure:"server"`
	Marketplace MarketplaceConfig `mapstructure:"marketplace"`
	Database    DatabaseConfig    `mapstructure:"db"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Payment     PaymentConfig     `mapstructure:"payment"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Wizard      WizardConfig      `mapstructure:"wizard"`
	Log         LogConfig         `mapstructure:"log"`
}

type ServerConfig struct {
	Port         int      `mapstructure:"port"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// MarketplaceConfig points at the REST API that owns assignments and wallets.
type MarketplaceConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Retries   int           `mapstructure:"retries"`
	RetryBase time.Duration `mapstructure:"retry_base"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	// DevPasswordHash is a bcrypt hash guarding the dev login. Empty disables it.
	DevPasswordHash string `mapstructure:"dev_password_hash"`
}

// PaymentConfig selects the top-up collaborator: "mock" or "stripe".
type PaymentConfig struct {
	Provider        string `mapstructure:"provider"`
	StripeSecretKey string `mapstructure:"stripe_secret_key"`
	Currency        string `mapstructure:"currency"`
}

type StorageConfig struct {
	SupabaseURL string `mapstructure:"supabase_url"`
	SupabaseKey string `mapstructure:"supabase_key"`
	Bucket      string `mapstructure:"bucket"`
	SignedTTL   int    `mapstructure:"signed_ttl"` // seconds
}

type WizardConfig struct {
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads defaults, then the optional config file, then the environment.
// Precedence: env > file > defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("app_env", "production")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.allow_origins", []string{"http://localhost:5173"})

	v.SetDefault("marketplace.base_url", "http://localhost:8080/api")
	v.SetDefault("marketplace.timeout", "30s")
	v.SetDefault("marketplace.retries", 3)
	v.SetDefault("marketplace.retry_base", "200ms")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("payment.provider", "mock")
	v.SetDefault("payment.currency", "inr")

	v.SetDefault("storage.signed_ttl", 60)

	v.SetDefault("wizard.session_ttl", "2h")
	v.SetDefault("wizard.sweep_interval", "5m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PORTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Plain names used by existing deployments.
	_ = v.BindEnv("app_env", "PORTAL_APP_ENV", "APP_ENV")
	_ = v.BindEnv("server.port", "PORTAL_SERVER_PORT", "PORT")
	_ = v.BindEnv("db.dsn", "PORTAL_DB_DSN", "DATABASE_URL")
	_ = v.BindEnv("auth.jwt_secret", "PORTAL_AUTH_JWT_SECRET", "JWT_SECRET")
	_ = v.BindEnv("auth.dev_password_hash", "PORTAL_AUTH_DEV_PASSWORD_HASH", "DEV_PASSWORD_HASH")
	_ = v.BindEnv("payment.provider", "PORTAL_PAYMENT_PROVIDER", "PAYMENT_PROVIDER")
	_ = v.BindEnv("payment.stripe_secret_key", "PORTAL_PAYMENT_STRIPE_SECRET_KEY", "STRIPE_SECRET_KEY")
	_ = v.BindEnv("storage.supabase_url", "PORTAL_STORAGE_SUPABASE_URL", "SUPABASE_URL")
	_ = v.BindEnv("storage.supabase_key", "PORTAL_STORAGE_SUPABASE_KEY", "SUPABASE_SERVICE_KEY")
	_ = v.BindEnv("storage.bucket", "PORTAL_STORAGE_BUCKET", "SUPABASE_BUCKET")
	_ = v.BindEnv("marketplace.base_url", "PORTAL_MARKETPLACE_BASE_URL", "MARKETPLACE_URL")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings the portal cannot run without.
func (c *Config) Validate() error {
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("config: auth.jwt_secret must be at least 16 characters")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port must be between 1 and 65535")
	}
	if c.Marketplace.BaseURL == "" {
		return fmt.Errorf("config: marketplace.base_url is required")
	}
	if c.Marketplace.Retries <= 0 {
		return fmt.Errorf("config: marketplace.retries must be > 0")
	}
	switch c.Payment.Provider {
	case "mock":
	case "stripe":
		if c.Payment.StripeSecretKey == "" {
			return fmt.Errorf("config: payment.stripe_secret_key is required for the stripe provider")
		}
	default:
		return fmt.Errorf("config: unknown payment.provider %q", c.Payment.Provider)
	}
	if c.Wizard.SessionTTL <= 0 {
		return fmt.Errorf("config: wizard.session_ttl must be positive")
	}
	return nil
}

// IsDev reports whether the dev-only surfaces may be mounted.
func (c *Config) IsDev() bool { return c.AppEnv == "dev" }
