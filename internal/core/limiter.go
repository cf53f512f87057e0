package core

// limiter.go bounds how many pipeline stages run at once.
//
// Analyze and extract hold an external-service connection for their whole
// duration, so the service acquires a slot before the begin transition. When
// all slots are occupied, callers wait up to maxWait before failing with
// ErrTooManyStages. WaitForDrain blocks until running stages finish and is
// used on shutdown.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyStages is returned when all stage slots are occupied and the
// wait timeout expires. Clients should retry after a short delay.
var ErrTooManyStages = errors.New("too many concurrent pipeline stages, please try again later")

// DefaultMaxConcurrentStages is the default limit for parallel stages.
const DefaultMaxConcurrentStages = 4

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 30 * time.Second

// StageLimiter controls concurrent stage execution using a semaphore.
type StageLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu      sync.RWMutex
	active  int
	byStage map[Stage]int
}

// NewStageLimiter creates a limiter that allows at most maxConcurrent
// simultaneous stages. Requests that cannot acquire a slot within maxWait
// receive ErrTooManyStages.
func NewStageLimiter(maxConcurrent int, maxWait time.Duration) *StageLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentStages
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}

	return &StageLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
		byStage:   make(map[Stage]int),
	}
}

// Acquire waits for a slot for stage.
// The caller MUST call Release with the same stage when done.
func (l *StageLimiter) Acquire(ctx context.Context, stage Stage) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.semaphore <- struct{}{}:
		l.track(stage, 1)
		return nil

	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyStages
	}
}

// TryAcquire takes a slot without blocking.
func (l *StageLimiter) TryAcquire(stage Stage) bool {
	select {
	case l.semaphore <- struct{}{}:
		l.track(stage, 1)
		return true
	default:
		return false
	}
}

// Release returns a slot taken by Acquire or TryAcquire.
func (l *StageLimiter) Release(stage Stage) {
	l.track(stage, -1)
	<-l.semaphore
}

func (l *StageLimiter) track(stage Stage, delta int) {
	l.mu.Lock()
	l.active += delta
	l.byStage[stage] += delta
	if l.byStage[stage] == 0 {
		delete(l.byStage, stage)
	}
	l.mu.Unlock()
}

// ActiveCount returns the number of running stages.
func (l *StageLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// MaxConcurrent returns the maximum allowed concurrent stages.
func (l *StageLimiter) MaxConcurrent() int {
	return cap(l.semaphore)
}

// Available returns the number of free slots.
func (l *StageLimiter) Available() int {
	return cap(l.semaphore) - len(l.semaphore)
}

// WaitForDrain blocks until all running stages complete or ctx is cancelled.
func (l *StageLimiter) WaitForDrain(ctx context.Context) error {
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

// LimiterStatus is a snapshot of the limiter's state.
type LimiterStatus struct {
	Active        int           `json:"active"`
	Available     int           `json:"available"`
	MaxConcurrent int           `json:"max_concurrent"`
	ByStage       map[Stage]int `json:"by_stage"`
}

// Status returns the current limiter state for monitoring.
func (l *StageLimiter) Status() LimiterStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()

	byStage := make(map[Stage]int, len(l.byStage))
	for k, v := range l.byStage {
		byStage[k] = v
	}
	return LimiterStatus{
		Active:        l.active,
		Available:     cap(l.semaphore) - len(l.semaphore),
		MaxConcurrent: cap(l.semaphore),
		ByStage:       byStage,
	}
}
