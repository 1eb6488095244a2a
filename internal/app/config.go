package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (ORDER_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:2006" usage:"Order API listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (ORDER_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisAddr   string `default:"" usage:"Redis address for idempotency keys; empty disables idempotency" flag:"redis-addr"`

	Catalog  CollaboratorConfig
	Store    CollaboratorConfig
	Identity CollaboratorConfig

	// ShippingFee is the flat per-order shipping fee. The current business
	// rule is a fixed amount, so it is configuration rather than a computed
	// value.
	ShippingFee int64 `default:"30000" usage:"Flat shipping fee per order" flag:"shipping-fee"`

	IdempotencyTTL time.Duration `default:"24h" usage:"How long fulfilled idempotency keys are remembered" flag:"idempotency-ttl"`

	RateLimit RateLimitConfig
	CORS      CORSConfig
	Graceful  GracefulConfig
}

// CollaboratorConfig addresses one upstream service.
type CollaboratorConfig struct {
	URL     string        `usage:"Base URL of the collaborator service"`
	Timeout time.Duration `default:"5s" usage:"Per-call timeout budget"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "ORDER",
		Files:     []string{"config.yaml", "/etc/order-service/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set ORDER_DATABASE_URL or DATABASE_URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps standard platform environment variables
// (DATABASE_URL, PORT) and the collaborator URL variables shared with the
// other services in this deployment onto the ORDER_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:2006" {
		c.Addr = "0.0.0.0:" + port
	}
	if c.Catalog.URL == "" {
		c.Catalog.URL = envOr("PRODUCT_SERVICE_URL", "http://localhost:2004")
	}
	if c.Store.URL == "" {
		c.Store.URL = envOr("STORE_SERVICE_URL", "http://localhost:2005")
	}
	if c.Identity.URL == "" {
		c.Identity.URL = envOr("AUTH_SERVICE_URL", "http://localhost:2000")
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
