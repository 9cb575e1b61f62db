package core

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrEngineBusy is returned when no engine slot frees up within the wait time.
var ErrEngineBusy = errors.New("too many concurrent engine runs, please try again later")

const (
	DefaultMaxConcurrentEngines = 2
	DefaultMaxWaitTime          = 30 * time.Second
)

// EngineLimiter bounds how many engine processes run at once. Each engine is a
// whole OS process, so the bound protects the host rather than the handler.
type EngineLimiter struct {
	sem     *semaphore.Weighted
	max     int
	maxWait time.Duration
	active  atomic.Int64
}

// NewEngineLimiter allows at most maxConcurrent engine runs. Waiters give up
// with ErrEngineBusy after maxWait.
func NewEngineLimiter(maxConcurrent int, maxWait time.Duration) *EngineLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentEngines
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	return &EngineLimiter{
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		max:     maxConcurrent,
		maxWait: maxWait,
	}
}

// Acquire waits for a slot. The caller must Release it (use defer).
func (l *EngineLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	if err := l.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrEngineBusy
	}
	l.active.Add(1)
	return nil
}

// Release returns a slot taken by Acquire.
func (l *EngineLimiter) Release() {
	l.active.Add(-1)
	l.sem.Release(1)
}

// ActiveCount returns the number of running engines.
func (l *EngineLimiter) ActiveCount() int {
	return int(l.active.Load())
}

// MaxConcurrent returns the configured bound.
func (l *EngineLimiter) MaxConcurrent() int {
	return l.max
}

// WaitForDrain blocks until no engine is running or ctx is done. Used during
// graceful shutdown.
func (l *EngineLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// LimiterStatus is a snapshot for the status endpoint.
type LimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

func (l *EngineLimiter) Status() LimiterStatus {
	active := l.ActiveCount()
	return LimiterStatus{
		Active:        active,
		Available:     l.max - active,
		MaxConcurrent: l.max,
	}
}
