// Package scanner gates decoded barcode events so that one physical scan
// produces at most one product lookup, and adapts external decoders into
// decode event sources.
package scanner

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ReopenPolicy decides when a closed gate opens again on its own.
type ReopenPolicy string

const (
	// ReopenManual keeps the gate closed after a scan until Open is called.
	ReopenManual ReopenPolicy = "manual"
	// ReopenTimed also reopens the gate a fixed delay after a lookup settles.
	ReopenTimed ReopenPolicy = "timed"
)

const DefaultReopenDelay = 3 * time.Second

// Cycle identifies one accepted scan. A settle reported for an older cycle
// is ignored.
type Cycle uint64

func ParseReopenPolicy(s string) (ReopenPolicy, error) {
	switch p := ReopenPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case ReopenManual, ReopenTimed:
		return p, nil
	case "":
		return ReopenTimed, nil
	default:
		return "", fmt.Errorf("unknown reopen policy %q", s)
	}
}

// Controller owns the "accepting scans" gate. onScan runs synchronously on
// the caller's goroutine for every accepted code and must not block. Gate
// transitions happen under mu; accepting is only read without it.
type Controller struct {
	accepting atomic.Bool

	policy ReopenPolicy
	delay  time.Duration
	onScan func(code string, cycle Cycle)
	log    *zap.Logger

	mu    sync.Mutex
	cycle Cycle
	gen   uint64
	timer *time.Timer
}

// NewController starts open under ReopenTimed and closed under ReopenManual,
// where the operator arms the first scan.
func NewController(policy ReopenPolicy, delay time.Duration, onScan func(code string, cycle Cycle), log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Controller{
		policy: policy,
		delay:  delay,
		onScan: onScan,
		log:    log,
	}
	c.accepting.Store(policy != ReopenManual)
	return c
}

func (c *Controller) Policy() ReopenPolicy {
	return c.policy
}

func (c *Controller) Accepting() bool {
	return c.accepting.Load()
}

// SubmitDecodedCode closes the gate and hands code to the lookup callback if
// the gate was open. It reports whether the code was accepted.
func (c *Controller) SubmitDecodedCode(code string) bool {
	if strings.TrimSpace(code) == "" {
		return false
	}

	c.mu.Lock()
	if !c.accepting.CompareAndSwap(true, false) {
		c.mu.Unlock()
		c.log.Debug("decode ignored, gate closed", zap.String("code", code))
		return false
	}
	c.cycle++
	cycle := c.cycle
	c.cancelReopenLocked()
	c.mu.Unlock()

	c.onScan(code, cycle)
	return true
}

// Open opens the gate now and drops any pending timed reopen.
func (c *Controller) Open() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelReopenLocked()
	c.accepting.Store(true)
}

// Close shuts the gate without triggering a lookup.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelReopenLocked()
	c.accepting.Store(false)
}

// LookupSettled tells the controller that the lookup started for cycle has
// finished, successfully or not. Once a newer code has been accepted the
// call does nothing.
func (c *Controller) LookupSettled(cycle Cycle) {
	if c.policy != ReopenTimed {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if cycle != c.cycle {
		c.log.Debug("stale lookup settle ignored", zap.Uint64("cycle", uint64(cycle)))
		return
	}
	c.cancelReopenLocked()
	if c.delay <= 0 {
		c.accepting.Store(true)
		return
	}

	gen := c.gen
	c.timer = time.AfterFunc(c.delay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen == gen {
			c.accepting.Store(true)
			c.timer = nil
		}
	})
}

// Stop cancels a pending reopen. The gate state itself is left unchanged.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelReopenLocked()
}

func (c *Controller) cancelReopenLocked() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
