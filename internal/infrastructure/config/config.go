package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

const (
	BackendFile  = "file"
	BackendMongo = "mongo"
)

type Config struct {
	Port      string `env:"PORT,       default=3000"`
	Env       string `env:"ENV,        default=development"`
	LogLevel  string `env:"LOG_LEVEL,  default=info"`
	PublicURL string `env:"PUBLIC_URL"`

	// AutoConfirm skips email verification. noinit keeps it nil when the
	// variable is absent so ResolveAutoConfirm can infer it from SMTP.
	AutoConfirm     *bool         `env:"AUTO_CONFIRM, noinit"`
	TokenTTL        time.Duration `env:"TOKEN_TTL,        default=24h"`
	BcryptCost      int           `env:"BCRYPT_COST,      default=10"`
	ConfirmRedirect string        `env:"CONFIRM_REDIRECT, default=/serverview-index.html"`
	StaticDir       string        `env:"STATIC_DIR"`
	NotifyWorkers   int           `env:"NOTIFY_WORKERS,   default=4"`

	Store StoreConfig
	Mongo MongoConfig
	Redis RedisConfig
	SMTP  SMTPConfig
}

type StoreConfig struct {
	Backend string `env:"STORE_BACKEND, default=file"`
	Path    string `env:"DB_PATH,       default=data/db.json"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=weewoocad"`
}

// RedisConfig enables delivery dedup when Addr is set.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB, default=0"`
}

type SMTPConfig struct {
	Host string `env:"SMTP_HOST"`
	Port int    `env:"SMTP_PORT, default=587"`
	User string `env:"SMTP_USER"`
	Pass string `env:"SMTP_PASS"`
	From string `env:"FROM_EMAIL"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom reads configuration through l instead of the process environment.
func LoadFrom(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.PublicURL == "" {
		cfg.PublicURL = "http://localhost:" + cfg.Port
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case BackendFile, BackendMongo:
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q", c.Store.Backend)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("config: TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}
	return nil
}

// MailConfigured reports whether SMTP delivery is possible: host, user and
// password must all be set.
func (c *Config) MailConfigured() bool {
	return c.SMTP.Host != "" && c.SMTP.User != "" && c.SMTP.Pass != ""
}

// ResolveAutoConfirm returns the effective auto-confirm policy and whether it
// was inferred rather than set explicitly.
func (c *Config) ResolveAutoConfirm() (autoConfirm, inferred bool) {
	if c.AutoConfirm != nil {
		return *c.AutoConfirm, false
	}
	return !c.MailConfigured(), true
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
