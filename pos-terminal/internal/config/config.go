package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/go_pos/pos-terminal/internal/scanner"
	"github.com/shopspring/decimal"
)

const defaultAPIBase = "http://localhost:8000"

type Config struct {
	APIBase         string
	HTTPAddr        string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	ScanReopen      scanner.ReopenPolicy
	ScanReopenDelay time.Duration
	// ScanIgnoreRepeat drops a decode of the code already on display.
	ScanIgnoreRepeat bool
	TaxRate          decimal.Decimal
	DecoderCmd       []string

	RedisAddr       string
	ProductCacheTTL time.Duration
	KafkaBrokers    []string
	ReceiptTopic    string
	BreakerFailures uint32

	LogLevel  string
	LogFormat string
}

// Load reads the terminal configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		APIBase:      strings.TrimRight(apiBase(), "/"),
		HTTPAddr:     lookupEnv("POS_HTTP_ADDR", ":8081"),
		DecoderCmd:   strings.Fields(getEnv("POS_DECODER_CMD", "")),
		RedisAddr:    getEnv("POS_REDIS_ADDR", ""),
		KafkaBrokers: splitList(getEnv("POS_KAFKA_BROKERS", "")),
		ReceiptTopic: getEnv("POS_RECEIPT_TOPIC", "pos-receipts"),
		LogLevel:     getEnv("POS_LOG_LEVEL", "info"),
		LogFormat:    getEnv("POS_LOG_FORMAT", "console"),
	}

	var err error
	if cfg.RequestTimeout, err = getDuration("POS_REQUEST_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getDuration("POS_SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.ScanReopenDelay, err = getDuration("POS_SCAN_REOPEN_DELAY", scanner.DefaultReopenDelay); err != nil {
		return nil, err
	}
	if cfg.ProductCacheTTL, err = getDuration("POS_PRODUCT_CACHE_TTL", 15*time.Minute); err != nil {
		return nil, err
	}

	if cfg.ScanIgnoreRepeat, err = strconv.ParseBool(getEnv("POS_SCAN_IGNORE_REPEAT", "false")); err != nil {
		return nil, fmt.Errorf("POS_SCAN_IGNORE_REPEAT: %w", err)
	}

	if cfg.ScanReopen, err = scanner.ParseReopenPolicy(os.Getenv("POS_SCAN_REOPEN")); err != nil {
		return nil, fmt.Errorf("POS_SCAN_REOPEN: %w", err)
	}

	cfg.TaxRate, err = decimal.NewFromString(getEnv("POS_TAX_RATE", "0.10"))
	if err != nil {
		return nil, fmt.Errorf("POS_TAX_RATE: %w", err)
	}
	if cfg.TaxRate.IsNegative() {
		return nil, fmt.Errorf("POS_TAX_RATE: must not be negative, got %s", cfg.TaxRate)
	}

	failures, err := strconv.ParseUint(getEnv("POS_BREAKER_FAILURES", "5"), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("POS_BREAKER_FAILURES: %w", err)
	}
	cfg.BreakerFailures = uint32(failures)

	return cfg, nil
}

// apiBase keeps the variable name the web front-end used working.
func apiBase() string {
	if v := os.Getenv("POS_API_URL"); v != "" {
		return v
	}
	return getEnv("NEXT_PUBLIC_API_URL", defaultAPIBase)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// lookupEnv differs from getEnv in that an explicitly empty value is kept.
func lookupEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: must not be negative, got %s", key, d)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
