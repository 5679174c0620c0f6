// Package circuitbreaker wraps gobreaker for outbound calls. An open breaker
// fails fast; it never re-sends a request.
package circuitbreaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

type Config struct {
	Name string
	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Zero disables the breaker.
	MaxFailures uint32
	// OpenTimeout is how long the breaker stays open before letting a
	// single trial request through.
	OpenTimeout time.Duration
	// IsSuccessful decides whether an error counts against the breaker.
	// Nil means only a nil error is a success.
	IsSuccessful func(err error) bool
}

type Breaker struct {
	cb *gobreaker.CircuitBreaker[struct{}]
}

// New returns nil when cfg.MaxFailures is zero; a nil *Breaker runs calls
// directly.
func New(cfg Config, log *zap.Logger) *Breaker {
	if cfg.MaxFailures == 0 {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}

	st := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: cfg.IsSuccessful,
	}

	return &Breaker{cb: gobreaker.NewCircuitBreaker[struct{}](st)}
}

func (b *Breaker) Do(fn func() error) error {
	if b == nil {
		return fn()
	}
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func (b *Breaker) State() string {
	if b == nil {
		return "disabled"
	}
	return b.cb.State().String()
}

// IsOpen reports whether err was produced by the breaker refusing a call.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
