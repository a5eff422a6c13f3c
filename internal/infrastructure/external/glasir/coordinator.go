package glasir

import (
	"context"
	"sync"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONCURRENCY COORDINATOR - AIMD parallelism control
// ══════════════════════════════════════════════════════════════════════════════

// Coordinator lets the fetcher feed request outcomes back to an outer
// parallelism policy. A nil-safe null implementation is always acceptable.
type Coordinator interface {
	// ReportSuccess records a successful upstream request.
	ReportSuccess()

	// ReportFailure records a throttle-class upstream failure (429/503,
	// transport error).
	ReportFailure()
}

// NullCoordinator performs no adaptation.
type NullCoordinator struct{}

func (NullCoordinator) ReportSuccess() {}
func (NullCoordinator) ReportFailure() {}

// AIMDCoordinator bounds in-flight upstream requests with an
// additive-increase / multiplicative-decrease window: every successWindow
// consecutive successes raise the limit by one, any reported failure halves
// it. This protects against the site throttling bulk week fetches.
type AIMDCoordinator struct {
	mu       sync.Mutex
	cond     *sync.Cond
	limit    int
	inFlight int

	minLimit      int
	maxLimit      int
	successWindow int
	successStreak int
}

// AIMDConfig contains configuration for the coordinator.
type AIMDConfig struct {
	// InitialLimit is the starting number of concurrent requests
	InitialLimit int

	// MinLimit is the floor the limit never drops below
	MinLimit int

	// MaxLimit is the ceiling the limit never grows above
	MaxLimit int

	// SuccessWindow is how many consecutive successes earn one extra slot
	SuccessWindow int
}

// DefaultAIMDConfig returns conservative defaults for the Glasir site.
func DefaultAIMDConfig() AIMDConfig {
	return AIMDConfig{
		InitialLimit:  10,
		MinLimit:      2,
		MaxLimit:      20,
		SuccessWindow: 5,
	}
}

// NewAIMDCoordinator creates a coordinator with the given configuration.
func NewAIMDCoordinator(config AIMDConfig) *AIMDCoordinator {
	if config.InitialLimit < 1 {
		config.InitialLimit = 1
	}
	if config.MinLimit < 1 {
		config.MinLimit = 1
	}
	if config.MaxLimit < config.MinLimit {
		config.MaxLimit = config.MinLimit
	}
	if config.SuccessWindow < 1 {
		config.SuccessWindow = 1
	}
	c := &AIMDCoordinator{
		limit:         config.InitialLimit,
		minLimit:      config.MinLimit,
		maxLimit:      config.MaxLimit,
		successWindow: config.SuccessWindow,
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Acquire blocks until a request slot is free or the context is done.
func (c *AIMDCoordinator) Acquire(ctx context.Context) error {
	// Wake waiters when the context is cancelled; cond has no native
	// context support.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.cond.Broadcast()
		case <-done:
		}
	}()

	c.mu.Lock()
	defer c.mu.Unlock()
	for c.inFlight >= c.limit {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.cond.Wait()
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	c.inFlight++
	return nil
}

// Release returns a request slot.
func (c *AIMDCoordinator) Release() {
	c.mu.Lock()
	if c.inFlight > 0 {
		c.inFlight--
	}
	c.mu.Unlock()
	c.cond.Broadcast()
}

// ReportSuccess implements Coordinator: additive increase.
func (c *AIMDCoordinator) ReportSuccess() {
	c.mu.Lock()
	c.successStreak++
	if c.successStreak >= c.successWindow && c.limit < c.maxLimit {
		c.limit++
		c.successStreak = 0
	}
	c.mu.Unlock()
	c.cond.Broadcast()
}

// ReportFailure implements Coordinator: multiplicative decrease.
func (c *AIMDCoordinator) ReportFailure() {
	c.mu.Lock()
	c.successStreak = 0
	c.limit /= 2
	if c.limit < c.minLimit {
		c.limit = c.minLimit
	}
	c.mu.Unlock()
}

// Limit returns the current concurrency limit.
func (c *AIMDCoordinator) Limit() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limit
}
