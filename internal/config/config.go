package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"github.com/simaogato/topvoter-backend/internal/domain"
)

const (
	StoreDriverMemory   = "memory"
	StoreDriverPostgres = "postgres"
)

// DevAccountTokenSecret is the default signing secret; replace it outside development
const DevAccountTokenSecret = "dev-account-token-secret"

const minAccountTokenSecretLen = 16

// Config holds the process configuration, read from the environment
type Config struct {
	GRPCAddr string `envconfig:"GRPC_ADDR" default:":8080"`
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":9090"`
	APIToken string `envconfig:"API_TOKEN" default:"dev-token"`

	// HS256 secret for x-account-token; the token subject is the calling account
	AccountTokenSecret string        `envconfig:"ACCOUNT_TOKEN_SECRET" default:"dev-account-token-secret"`
	AccountTokenTTL    time.Duration `envconfig:"ACCOUNT_TOKEN_TTL" default:"24h"`

	AdminAccount       string                    `envconfig:"ADMIN_ACCOUNT" required:"true"`
	RoundDuration      time.Duration             `envconfig:"ROUND_DURATION" default:"168h"`
	MinimumDeposit     decimal.Decimal           `envconfig:"MINIMUM_DEPOSIT" default:"0.1"`
	DominantViewPolicy domain.DominantViewPolicy `envconfig:"DOMINANT_VIEW_POLICY" default:"persist"`

	StoreDriver string `envconfig:"STORE_DRIVER" default:"memory"`
	DBConnStr   string `envconfig:"DB_CONN_STR"`

	RedisAddr         string `envconfig:"REDIS_ADDR"`
	RedisPassword     string `envconfig:"REDIS_PASSWORD"`
	RedisDB           int    `envconfig:"REDIS_DB" default:"0"`
	RedisStream       string `envconfig:"REDIS_STREAM" default:"topvoter:round-results"`
	RedisStreamMaxLen int64  `envconfig:"REDIS_STREAM_MAXLEN" default:"10000"`

	// Cron spec with a seconds field, e.g. "*/30 * * * * *"; empty disables auto-finalization
	AutoFinalizeSpec string `envconfig:"AUTO_FINALIZE_SPEC"`

	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding string `envconfig:"LOG_ENCODING" default:"json"`
}

// Load reads an optional .env file, then the environment
// Variables already set in the environment win over the .env file
func Load() (Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to read .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Admin returns the parsed administrative account
func (c Config) Admin() (domain.Account, error) {
	return domain.ParseAccount(c.AdminAccount)
}

// Validate ensures the configuration is usable
func (c Config) Validate() error {
	if _, err := c.Admin(); err != nil {
		return fmt.Errorf("ADMIN_ACCOUNT: %w", err)
	}
	if len(c.AccountTokenSecret) < minAccountTokenSecretLen {
		return fmt.Errorf("ACCOUNT_TOKEN_SECRET must be at least %d bytes", minAccountTokenSecretLen)
	}
	if c.AccountTokenTTL <= 0 {
		return errors.New("ACCOUNT_TOKEN_TTL must be positive")
	}
	if c.RoundDuration <= 0 {
		return errors.New("ROUND_DURATION must be positive")
	}
	if c.MinimumDeposit.LessThanOrEqual(decimal.Zero) {
		return errors.New("MINIMUM_DEPOSIT must be positive")
	}
	if err := c.DominantViewPolicy.Validate(); err != nil {
		return fmt.Errorf("DOMINANT_VIEW_POLICY: %w", err)
	}

	switch c.StoreDriver {
	case StoreDriverMemory:
	case StoreDriverPostgres:
		if c.DBConnStr == "" {
			return errors.New("DB_CONN_STR is required when STORE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER: %s", c.StoreDriver)
	}

	if c.RedisStream == "" {
		return errors.New("REDIS_STREAM must not be empty")
	}
	if c.RedisStreamMaxLen < 0 {
		return errors.New("REDIS_STREAM_MAXLEN must be non-negative")
	}

	return nil
}

// String returns a human-friendly configuration string with masked secrets
func (c Config) String() string {
	return fmt.Sprintf(
		"grpc=%s http=%s admin=%s round_duration=%s min_deposit=%s policy=%s store=%s dsn=%s redis=%s auto_finalize=%q",
		c.GRPCAddr,
		c.HTTPAddr,
		c.AdminAccount,
		c.RoundDuration,
		c.MinimumDeposit,
		c.DominantViewPolicy,
		c.StoreDriver,
		maskDSN(c.DBConnStr),
		c.RedisAddr,
		c.AutoFinalizeSpec,
	)
}

func maskDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	if u, err := url.Parse(dsn); err == nil && u.Scheme != "" {
		if u.User != nil {
			u.User = url.User(u.User.Username())
		}
		return u.String()
	}
	// Key-value DSN: host=... password=...
	parts := strings.Fields(dsn)
	for i, p := range parts {
		if strings.HasPrefix(strings.ToLower(p), "password=") {
			parts[i] = "password=***"
		}
	}
	return strings.Join(parts, " ")
}
