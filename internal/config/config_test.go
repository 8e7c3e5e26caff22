package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 79, cfg.Pricing.DeliveryFee)
	assert.Equal(t, 0, cfg.Pricing.TaxPercent)
	assert.Equal(t, time.Second, cfg.Tracking.TickInterval)
	assert.Equal(t, 0.5, cfg.Tracking.ProgressStep)
	assert.Equal(t, 12.0, cfg.Tracking.InitialETA)
	assert.Equal(t, 0.05, cfg.Tracking.ETAStep)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }},
		{"negative fee", func(c *Config) { c.Pricing.DeliveryFee = -1 }},
		{"tax over 100", func(c *Config) { c.Pricing.TaxPercent = 101 }},
		{"zero tick", func(c *Config) { c.Tracking.TickInterval = 0 }},
		{"zero step", func(c *Config) { c.Tracking.ProgressStep = 0 }},
		{"eta below floor", func(c *Config) { c.Tracking.InitialETA = 0.5 }},
		{"empty addr", func(c *Config) { c.HTTP.Addr = "" }},
		{"unknown storage", func(c *Config) { c.Storage = "sqlite" }},
		{"postgres without url", func(c *Config) { c.Postgres.URL = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadFromFile_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "localmart.yaml")
	content := `
pricing:
  delivery_fee: 49
  tax_percent: 5
tracking:
  tick_interval: 250ms
kafka:
  brokers: ["kafka-1:9092", "kafka-2:9092"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 49, cfg.Pricing.DeliveryFee)
	assert.Equal(t, 5, cfg.Pricing.TaxPercent)
	assert.Equal(t, 250*time.Millisecond, cfg.Tracking.TickInterval)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	// untouched sections keep their defaults
	assert.Equal(t, 12.0, cfg.Tracking.InitialETA)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestLoadFromFile_Missing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DELIVERY_FEE", "99")
	t.Setenv("KAFKA_BROKERS", "a:1,b:2")
	t.Setenv("PORT", "9090")
	t.Setenv("TRACKING_TICK_INTERVAL", "2s")
	t.Setenv("STORAGE", "memory")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, 99, cfg.Pricing.DeliveryFee)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.Kafka.Brokers)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 2*time.Second, cfg.Tracking.TickInterval)
}

func TestValidate_MemoryNeedsNoDatabase(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage = StorageMemory
	cfg.Postgres.URL = ""

	assert.NoError(t, cfg.Validate())
}

func TestLoad_RejectsInvalidEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("JWT_SECRET", "too-short")

	_, err := Load("")
	assert.Error(t, err)
}
