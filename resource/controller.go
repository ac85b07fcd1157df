// Package resource bounds the memory, CPU and network an extraction pipeline
// may use at once.
package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits. Zero values mean unlimited.
type Config struct {
	// DecodeMemoryBytes caps the memory reserved for decoded images.
	// If 0, usage is only tracked.
	DecodeMemoryBytes int64

	// MaxExtractions is the maximum number of network forward passes running
	// at the same time.
	MaxExtractions int64

	// FetchesPerSecond limits how often remote images are requested.
	FetchesPerSecond float64

	// FetchBytesPerSecond limits download throughput across all fetches.
	FetchBytesPerSecond int64
}

// Controller manages shared resources. A nil *Controller imposes no limits.
type Controller struct {
	cfg Config

	// Memory
	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	// Concurrency
	extractSem *semaphore.Weighted // nil if unlimited
	inFlight   atomic.Int64

	// Network
	fetchLimiter *rate.Limiter
	ioLimiter    *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	c := &Controller{cfg: cfg}

	if cfg.DecodeMemoryBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.DecodeMemoryBytes)
	}
	if cfg.MaxExtractions > 0 {
		c.extractSem = semaphore.NewWeighted(cfg.MaxExtractions)
	}
	if cfg.FetchesPerSecond > 0 {
		burst := max(1, int(cfg.FetchesPerSecond))
		c.fetchLimiter = rate.NewLimiter(rate.Limit(cfg.FetchesPerSecond), burst)
	}
	if cfg.FetchBytesPerSecond > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.FetchBytesPerSecond), int(cfg.FetchBytesPerSecond))
	}

	return c
}

// Config returns the limits the controller was built with.
func (c *Controller) Config() Config {
	if c == nil {
		return Config{}
	}
	return c.cfg
}

// AcquireMemory attempts to reserve memory.
// If a hard limit is configured and usage would exceed it,
// this blocks until memory is available or ctx is canceled.
// A request larger than the whole budget fails immediately.
func (c *Controller) AcquireMemory(ctx context.Context, bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}

	if c.memSem != nil {
		if bytes > c.cfg.DecodeMemoryBytes {
			return &ErrBudgetExceeded{Requested: bytes, Limit: c.cfg.DecodeMemoryBytes}
		}
		if err := c.memSem.Acquire(ctx, bytes); err != nil {
			return err
		}
	}

	c.memUsed.Add(bytes)
	return nil
}

// TryAcquireMemory attempts to reserve memory without blocking.
// Returns true if acquired, false if limit would be exceeded.
func (c *Controller) TryAcquireMemory(bytes int64) bool {
	if c == nil || bytes <= 0 {
		return true
	}

	if c.memSem != nil {
		if !c.memSem.TryAcquire(bytes) {
			return false
		}
	}

	c.memUsed.Add(bytes)
	return true
}

// ReleaseMemory releases reserved memory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the currently reserved decode memory in bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// AcquireExtraction reserves a forward-pass slot, blocking while all slots
// are busy.
func (c *Controller) AcquireExtraction(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if c.extractSem != nil {
		if err := c.extractSem.Acquire(ctx, 1); err != nil {
			return err
		}
	}
	c.inFlight.Add(1)
	return nil
}

// TryAcquireExtraction reserves a slot without blocking.
func (c *Controller) TryAcquireExtraction() bool {
	if c == nil {
		return true
	}
	if c.extractSem != nil && !c.extractSem.TryAcquire(1) {
		return false
	}
	c.inFlight.Add(1)
	return true
}

// ReleaseExtraction releases a forward-pass slot.
func (c *Controller) ReleaseExtraction() {
	if c == nil {
		return
	}
	if c.extractSem != nil {
		c.extractSem.Release(1)
	}
	c.inFlight.Add(-1)
}

// Extractions returns the number of forward passes holding a slot.
func (c *Controller) Extractions() int64 {
	if c == nil {
		return 0
	}
	return c.inFlight.Load()
}

// WaitFetch blocks until another image request is allowed.
func (c *Controller) WaitFetch(ctx context.Context) error {
	if c == nil || c.fetchLimiter == nil {
		return nil
	}
	return c.fetchLimiter.Wait(ctx)
}

// AcquireIO waits until the throughput limit allows the specified number of bytes.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil {
		return nil
	}
	return c.ioLimiter.WaitN(ctx, bytes)
}

// ioBurst is the largest single AcquireIO request the limiter accepts.
func (c *Controller) ioBurst() int {
	if c == nil || c.ioLimiter == nil {
		return 0
	}
	return c.ioLimiter.Burst()
}
