package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/shop-core/internal/domain/order"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds the complete application configuration, loadable from
// environment variables (SHOP_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (SHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Storage      string `default:"postgres" usage:"Storage backend: postgres or memory"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (SHOP_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Currency     string `default:"INR" usage:"ISO currency code of all prices"`
	Payment      PaymentConfig
	Charges      ChargesConfig
	Kafka        KafkaConfig
	Bootstrap    BootstrapConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// PaymentConfig configures the payment gateway.
type PaymentConfig struct {
	BaseURL   string `default:"https://api.razorpay.com" usage:"Gateway API base URL" flag:"payment-base-url"`
	KeyID     string `usage:"Gateway key id, also returned to clients" flag:"payment-key-id"`
	KeySecret string `usage:"Gateway key secret" flag:"payment-key-secret"`
	// WebhookSecret signs payment callbacks. Defaults to KeySecret.
	WebhookSecret string        `usage:"Secret for callback signatures" flag:"payment-webhook-secret"`
	Timeout       time.Duration `default:"10s" usage:"Gateway request timeout" flag:"payment-timeout"`
}

// ChargesConfig sets tax and shipping.
type ChargesConfig struct {
	TaxRate          string `default:"0" usage:"Tax percentage on the discounted subtotal" flag:"tax-rate"`
	FlatShipping     string `default:"0" usage:"Shipping charged per order" flag:"flat-shipping"`
	FreeShippingOver string `default:"0" usage:"Subtotal from which shipping is free, 0 disables" flag:"free-shipping-over"`
}

// KafkaConfig enables event publishing. Events are only logged without brokers.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka broker addresses"`
	Topic   string   `default:"shop.orders" usage:"Topic for order events"`
}

// BootstrapConfig provisions API keys at startup of the memory backend.
type BootstrapConfig struct {
	ShopKey  string `usage:"Raw shop API key for the memory backend" flag:"bootstrap-shop-key"`
	AdminKey string `usage:"Raw admin API key for the memory backend" flag:"bootstrap-admin-key"`
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

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SHOP",
		Files:     []string{"config.yaml", "/etc/shop/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's SHOP_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
	if c.Payment.WebhookSecret == "" {
		c.Payment.WebhookSecret = c.Payment.KeySecret
	}
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set SHOP_DATABASE_URL or DATABASE_URL")
		}
	case StorageMemory:
	default:
		return errors.Errorf("unknown storage %q", c.Storage)
	}
	if c.APIKeyPepper == "" {
		return errors.New("api key pepper is required: set SHOP_API_KEY_PEPPER")
	}
	if c.Payment.KeyID == "" || c.Payment.KeySecret == "" {
		return errors.New("payment key id and secret are required")
	}
	if c.Currency == "" {
		return errors.New("currency is required")
	}
	if _, err := c.Charges.Parse(); err != nil {
		return err
	}
	return nil
}

// Parse converts the configured amounts to decimals.
func (c ChargesConfig) Parse() (order.Charges, error) {
	var (
		p   order.Charges
		err error
	)
	for _, f := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"tax rate", c.TaxRate, &p.TaxRate},
		{"flat shipping", c.FlatShipping, &p.FlatShipping},
		{"free shipping threshold", c.FreeShippingOver, &p.FreeShippingOver},
	} {
		if f.raw == "" {
			continue
		}
		if *f.dst, err = decimal.NewFromString(f.raw); err != nil {
			return p, errors.Wrapf(err, "parse %s", f.name)
		}
		if f.dst.IsNegative() {
			return p, errors.Errorf("%s must not be negative", f.name)
		}
	}
	return p, nil
}
