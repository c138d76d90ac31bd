package gpib

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Rand is the random source drivers draw handshake outcomes and readings from.
type Rand interface {
	Float64() float64
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Env carries the simulated bus environment shared by drivers.
type Env struct {
	Rand  Rand
	Sleep SleepFunc
}

// DefaultEnv returns an environment with a time-seeded random source and
// real-time latencies.
func DefaultEnv() Env {
	return Env{
		Rand:  NewRand(time.Now().UnixNano()),
		Sleep: ScaledSleep(1),
	}
}

func (e Env) withDefaults() Env {
	if e.Rand == nil {
		e.Rand = NewRand(time.Now().UnixNano())
	}
	if e.Sleep == nil {
		e.Sleep = ScaledSleep(1)
	}
	return e
}

// lockedRand makes a *rand.Rand safe for concurrent drivers.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewRand returns a goroutine-safe random source seeded with seed.
func NewRand(seed int64) Rand {
	return &lockedRand{r: rand.New(rand.NewSource(seed))}
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

// ScaledSleep returns a SleepFunc that waits d*scale. A scale of zero
// disables simulated latency.
func ScaledSleep(scale float64) SleepFunc {
	return func(ctx context.Context, d time.Duration) error {
		wait := time.Duration(float64(d) * scale)
		if wait <= 0 {
			return ctx.Err()
		}

		timer := time.NewTimer(wait)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}
}

// uniform draws from [lo, hi).
func uniform(r Rand, lo, hi float64) float64 {
	return lo + (hi-lo)*r.Float64()
}
