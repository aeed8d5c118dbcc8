package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/batch"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, 4, cfg.SyncConcurrency)
	assert.Equal(t, batch.PricingConfig{Mode: batch.TaxInclusive}, cfg.Pricing())
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsBadSettings(t *testing.T) {
	t.Setenv("TAX_MODE", "sometimes")
	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("TAX_MODE", "Exclusive")
	t.Setenv("SYNC_CONCURRENCY", "0")
	_, err = LoadConfig()
	require.Error(t, err)

	t.Setenv("SYNC_CONCURRENCY", "2")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, batch.TaxExclusive, cfg.Pricing().Mode)
}
