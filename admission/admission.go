package admission

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/isdmx/playbuild/config"
	"github.com/isdmx/playbuild/logger"
)

// Class is the outcome of a finished request, which picks the next window.
type Class int

const (
	// ClassSuccess is a build that produced an artifact or a cache hit.
	ClassSuccess Class = iota
	// ClassFailure is a user build error or a server-side fault.
	ClassFailure
	// ClassInvalid is malformed input or disallowed content.
	ClassInvalid
)

func (c Class) String() string {
	switch c {
	case ClassSuccess:
		return "success"
	case ClassFailure:
		return "failure"
	case ClassInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// ErrAlreadyActive rejects a client that already has a request in flight.
var ErrAlreadyActive = errors.New("client already has an active request")

// RateLimitedError rejects a client still inside its window.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %ds", Seconds(e.RetryAfter))
}

// CoolingDownError rejects every client while the sandbox recovers from overload.
type CoolingDownError struct {
	RetryAfter time.Duration
}

func (e *CoolingDownError) Error() string {
	return fmt.Sprintf("server cooling down, retry after %ds", Seconds(e.RetryAfter))
}

// Seconds rounds d up to whole seconds.
func Seconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}

type window struct {
	start  time.Time
	length time.Duration
}

func (w window) remaining(now time.Time) time.Duration {
	return w.start.Add(w.length).Sub(now)
}

// Controller tracks rate-limit windows and in-flight requests per client.
// All methods are safe for concurrent use.
type Controller struct {
	logger   *zap.Logger
	clock    clockwork.Clock
	windows  map[Class]time.Duration
	cooldown time.Duration
	sweep    time.Duration

	mu            sync.Mutex
	limits        map[string]window
	active        map[string]struct{}
	cooldownUntil time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces the wall clock.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Controller) {
		c.clock = clock
	}
}

// NewController creates a controller with the configured windows.
func NewController(log *zap.Logger, cfg *config.Config, opts ...Option) *Controller {
	rl := cfg.RateLimit
	c := &Controller{
		logger: log,
		clock:  clockwork.NewRealClock(),
		windows: map[Class]time.Duration{
			ClassSuccess: rl.SuccessWindow,
			ClassFailure: rl.FailureWindow,
			ClassInvalid: rl.InvalidWindow,
		},
		cooldown: rl.OverloadCooldown,
		sweep:    rl.SweepInterval,
		limits:   make(map[string]window),
		active:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Admit marks client as active or explains why it may not start a request.
// A nil return must be paired with exactly one Complete.
func (c *Controller) Admit(client string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if now.Before(c.cooldownUntil) {
		return &CoolingDownError{RetryAfter: c.cooldownUntil.Sub(now)}
	}

	if w, ok := c.limits[client]; ok {
		if left := w.remaining(now); left > 0 {
			return &RateLimitedError{RetryAfter: left}
		}
		delete(c.limits, client)
	}

	if _, ok := c.active[client]; ok {
		return ErrAlreadyActive
	}
	c.active[client] = struct{}{}
	return nil
}

// Complete releases client and starts the window for class.
func (c *Controller) Complete(client string, class Class) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.active, client)
	c.startWindow(client, class)
}

// Penalize starts the invalid window for a client that was never admitted,
// e.g. one probing unknown paths.
func (c *Controller) Penalize(client string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.startWindow(client, ClassInvalid)
}

func (c *Controller) startWindow(client string, class Class) {
	length := c.windows[class]
	if length <= 0 {
		delete(c.limits, client)
		return
	}
	c.limits[client] = window{start: c.clock.Now(), length: length}
}

// TriggerCooldown refuses all admissions for the configured cool-down.
func (c *Controller) TriggerCooldown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	until := c.clock.Now().Add(c.cooldown)
	if until.After(c.cooldownUntil) {
		c.cooldownUntil = until
	}
	c.logger.Warn("Sandbox overloaded, pausing admissions", logger.Duration(c.cooldown))
}

// Sweep drops elapsed windows and returns how many were removed.
func (c *Controller) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	removed := 0
	for client, w := range c.limits {
		if w.remaining(now) <= 0 {
			delete(c.limits, client)
			removed++
		}
	}
	return removed
}

// Run sweeps on the configured interval until ctx is done.
func (c *Controller) Run(ctx context.Context) {
	ticker := c.clock.NewTicker(c.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if n := c.Sweep(); n > 0 {
				c.logger.Debug("Swept rate limit windows", zap.Int("removed", n))
			}
		}
	}
}

// Stats reports the number of tracked windows and active clients.
func (c *Controller) Stats() (limited, active int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.limits), len(c.active)
}
