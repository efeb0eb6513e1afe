package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Addr:         "0.0.0.0:8080",
		Storage:      StoragePostgres,
		DatabaseURL:  "postgres://localhost/shop",
		APIKeyPepper: "pepper",
		Currency:     "INR",
		Payment:      PaymentConfig{KeyID: "rzp", KeySecret: "secret"},
	}
}

func TestConfigValidate(t *testing.T) {
	for _, tt := range []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "Valid", mutate: func(*Config) {}},
		{name: "MemoryWithoutDatabase", mutate: func(c *Config) {
			c.Storage, c.DatabaseURL = StorageMemory, ""
		}},
		{name: "PostgresWithoutDatabase", mutate: func(c *Config) { c.DatabaseURL = "" }, wantErr: "database URL"},
		{name: "UnknownStorage", mutate: func(c *Config) { c.Storage = "sqlite" }, wantErr: "unknown storage"},
		{name: "NoPepper", mutate: func(c *Config) { c.APIKeyPepper = "" }, wantErr: "pepper"},
		{name: "NoGatewayKey", mutate: func(c *Config) { c.Payment.KeySecret = "" }, wantErr: "payment key"},
		{name: "BadTaxRate", mutate: func(c *Config) { c.Charges.TaxRate = "ten" }, wantErr: "tax rate"},
		{name: "NegativeShipping", mutate: func(c *Config) { c.Charges.FlatShipping = "-1" }, wantErr: "negative"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestChargesParse(t *testing.T) {
	p, err := ChargesConfig{TaxRate: "18", FlatShipping: "40.5", FreeShippingOver: ""}.Parse()
	require.NoError(t, err)
	assert.Equal(t, "18", p.TaxRate.String())
	assert.Equal(t, "40.5", p.FlatShipping.String())
	assert.True(t, p.FreeShippingOver.IsZero())
}

func TestApplyPlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("PORT", "9090")

	c := validConfig()
	c.DatabaseURL = ""
	c.Payment.WebhookSecret = ""
	c.applyPlatformDefaults()

	assert.Equal(t, "postgres://platform/db", c.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9090", c.Addr)
	assert.Equal(t, "secret", c.Payment.WebhookSecret)

	c = validConfig()
	c.Addr = "127.0.0.1:7000"
	c.applyPlatformDefaults()
	assert.Equal(t, "127.0.0.1:7000", c.Addr, "explicit address wins over PORT")
	assert.Equal(t, "postgres://localhost/shop", c.DatabaseURL)
}
