package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_pos/dev-backend/internal/repository"
	"github.com/fjod/go_pos/pkg/logger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	h "github.com/fjod/go_pos/dev-backend/internal/http"
)

type Config struct {
	HTTPPort        string
	DBPath          string
	TaxRate         string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

func loadConfig() *Config {
	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8000"),
		DBPath:          getEnv("DB_PATH", "./pos.db"),
		TaxRate:         getEnv("TAX_RATE", "0.10"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", logger.FormatJSON),
		ShutdownTimeout: 10 * time.Second,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	cfg := loadConfig()

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	defer log.Sync()

	taxRate, err := decimal.NewFromString(cfg.TaxRate)
	if err != nil || taxRate.IsNegative() {
		log.Fatal("invalid TAX_RATE", zap.String("value", cfg.TaxRate), zap.Error(err))
	}

	repo, err := repository.NewRepository(cfg.DBPath)
	if err != nil {
		log.Fatal("open database", zap.Error(err))
	}
	defer repo.Close()

	if err := repo.RunMigrations(); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}
	log.Info("migrations completed", zap.String("db_path", cfg.DBPath))

	handler := h.NewHandler(repo, taxRate, log.Named("http"))
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      h.NewRouter(handler, log.Named("http")),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("dev backend starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}
