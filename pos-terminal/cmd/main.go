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

	"github.com/fjod/go_pos/pkg/circuitbreaker"
	"github.com/fjod/go_pos/pkg/logger"
	"github.com/fjod/go_pos/pos-terminal/internal/backend"
	"github.com/fjod/go_pos/pos-terminal/internal/cache"
	"github.com/fjod/go_pos/pos-terminal/internal/config"
	"github.com/fjod/go_pos/pos-terminal/internal/console"
	h "github.com/fjod/go_pos/pos-terminal/internal/http"
	"github.com/fjod/go_pos/pos-terminal/internal/publisher"
	"github.com/fjod/go_pos/pos-terminal/internal/scanner"
	"github.com/fjod/go_pos/pos-terminal/internal/session"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("terminal stopped", zap.Error(err))
	}
	log.Info("terminal exited")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	breaker := circuitbreaker.New(circuitbreaker.Config{
		Name:         "pos-backend",
		MaxFailures:  cfg.BreakerFailures,
		OpenTimeout:  30 * time.Second,
		IsSuccessful: backend.BreakerSuccessful,
	}, log)
	client := backend.NewClient(cfg.APIBase, log.Named("backend"),
		backend.WithTimeout(cfg.RequestTimeout),
		backend.WithBreaker(breaker))

	var lookup session.ProductLookup = client
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unavailable, product cache disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		} else {
			lookup = cache.NewCachedLookup(client, cache.NewRedisProductCache(rdb, cfg.ProductCacheTTL), log.Named("cache"))
			log.Info("product cache enabled", zap.String("addr", cfg.RedisAddr))
		}
	}

	var receipts publisher.ReceiptPublisher = publisher.Noop{}
	if len(cfg.KafkaBrokers) > 0 {
		receipts = publisher.NewKafkaReceiptPublisher(cfg.ReceiptTopic, cfg.KafkaBrokers...)
		log.Info("publishing receipts", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.ReceiptTopic))
	}
	defer func() {
		if err := receipts.Close(); err != nil {
			log.Warn("close receipt publisher", zap.Error(err))
		}
	}()

	sess := session.New(session.Options{
		Lookup:       lookup,
		Purchases:    client,
		Health:       client,
		Publisher:    receipts,
		TaxRate:      cfg.TaxRate,
		ReopenPolicy: cfg.ScanReopen,
		ReopenDelay:  cfg.ScanReopenDelay,
		IgnoreRepeat: cfg.ScanIgnoreRepeat,
		Logger:       log.Named("session"),
	})

	// Codes typed at the console and posted to the webhook share one push
	// source. An external decoder process, when configured, is fanned in
	// alongside it.
	push := scanner.NewPushSource()
	var src scanner.Source = push
	if len(cfg.DecoderCmd) > 0 {
		cmdSrc, err := scanner.NewCommandSource(cfg.DecoderCmd, log.Named("decoder"))
		if err != nil {
			return err
		}
		src = multiSource{cmdSrc, push}
	}

	sessionDone := make(chan error, 1)
	go func() { sessionDone <- sess.Run(ctx, src) }()

	var srv *http.Server
	if cfg.HTTPAddr != "" {
		handler := h.NewHandler(sess, push, cfg.RequestTimeout, log.Named("http"))
		srv = &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      h.NewRouter(handler, log.Named("http")),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: cfg.RequestTimeout + 5*time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			log.Info("control API starting", zap.String("addr", cfg.HTTPAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("control API stopped", zap.Error(err))
				stop()
			}
		}()
	}

	con := console.New(sess, push, os.Stdin, os.Stdout, log.Named("console"))
	go func() {
		if err := con.Run(ctx); err != nil {
			log.Warn("console input closed", zap.Error(err))
		}
		// :quit or EOF ends the terminal as well
		stop()
	}()

	return waitForShutdown(ctx, sessionDone, srv, cfg.ShutdownTimeout, log)
}

// waitForShutdown blocks until ctx is done or the session stops on its own,
// for example when the decode source cannot be subscribed. It then shuts the
// control API down and returns the session's error.
func waitForShutdown(ctx context.Context, sessionDone <-chan error, srv *http.Server, timeout time.Duration, log *zap.Logger) error {
	var sessionErr error
	stopped := false
	select {
	case sessionErr = <-sessionDone:
		stopped = true
		log.Info("session stopped, shutting down", zap.Error(sessionErr))
	case <-ctx.Done():
		log.Info("shutting down")
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("control API forced to shutdown", zap.Error(err))
		}
	}

	if !stopped {
		sessionErr = <-sessionDone
	}
	return sessionErr
}

// multiSource fans several decode sources into one subscription.
type multiSource []scanner.Source

func (m multiSource) Subscribe(onDecode func(string), onError func(error)) error {
	for i, s := range m {
		if err := s.Subscribe(onDecode, onError); err != nil {
			for _, prev := range m[:i] {
				_ = prev.Unsubscribe()
			}
			return err
		}
	}
	return nil
}

func (m multiSource) Unsubscribe() error {
	var errs []error
	for _, s := range m {
		if err := s.Unsubscribe(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
