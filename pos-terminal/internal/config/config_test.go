package config

import (
	"os"
	"testing"
	"time"

	"github.com/fjod/go_pos/pos-terminal/internal/scanner"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"POS_API_URL", "NEXT_PUBLIC_API_URL", "POS_HTTP_ADDR", "POS_REQUEST_TIMEOUT",
		"POS_SHUTDOWN_TIMEOUT", "POS_SCAN_REOPEN", "POS_SCAN_REOPEN_DELAY", "POS_TAX_RATE",
		"POS_DECODER_CMD", "POS_REDIS_ADDR", "POS_PRODUCT_CACHE_TTL", "POS_KAFKA_BROKERS",
		"POS_RECEIPT_TOPIC", "POS_LOG_LEVEL", "POS_LOG_FORMAT", "POS_BREAKER_FAILURES",
		"POS_SCAN_IGNORE_REPEAT",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.APIBase)
	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, scanner.ReopenTimed, cfg.ScanReopen)
	assert.Equal(t, 3*time.Second, cfg.ScanReopenDelay)
	assert.False(t, cfg.ScanIgnoreRepeat)
	assert.True(t, cfg.TaxRate.Equal(decimal.RequireFromString("0.1")))
	assert.Empty(t, cfg.DecoderCmd)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "pos-receipts", cfg.ReceiptTopic)
	assert.Equal(t, 15*time.Minute, cfg.ProductCacheTTL)
	assert.Equal(t, uint32(5), cfg.BreakerFailures)
}

func TestLoad_APIBase(t *testing.T) {
	clearEnv(t)
	t.Setenv("NEXT_PUBLIC_API_URL", "http://backend:8000/")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://backend:8000", cfg.APIBase)

	t.Setenv("POS_API_URL", "http://other:9000")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "http://other:9000", cfg.APIBase)
}

func TestLoad_EmptyHTTPAddrDisablesAPI(t *testing.T) {
	clearEnv(t)
	t.Setenv("POS_HTTP_ADDR", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.HTTPAddr)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("POS_HTTP_ADDR", "127.0.0.1:9090")
	t.Setenv("POS_SCAN_REOPEN", "MANUAL")
	t.Setenv("POS_SCAN_REOPEN_DELAY", "500ms")
	t.Setenv("POS_SCAN_IGNORE_REPEAT", "true")
	t.Setenv("POS_TAX_RATE", "0.08")
	t.Setenv("POS_DECODER_CMD", "zbarcam --raw /dev/video0")
	t.Setenv("POS_KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("POS_BREAKER_FAILURES", "0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.HTTPAddr)
	assert.Equal(t, scanner.ReopenManual, cfg.ScanReopen)
	assert.Equal(t, 500*time.Millisecond, cfg.ScanReopenDelay)
	assert.True(t, cfg.ScanIgnoreRepeat)
	assert.Equal(t, "0.08", cfg.TaxRate.String())
	assert.Equal(t, []string{"zbarcam", "--raw", "/dev/video0"}, cfg.DecoderCmd)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Zero(t, cfg.BreakerFailures)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"POS_SCAN_REOPEN", "sometimes"},
		{"POS_SCAN_REOPEN_DELAY", "soon"},
		{"POS_REQUEST_TIMEOUT", "-1s"},
		{"POS_TAX_RATE", "ten percent"},
		{"POS_TAX_RATE", "-0.1"},
		{"POS_BREAKER_FAILURES", "many"},
		{"POS_SCAN_IGNORE_REPEAT", "maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}
