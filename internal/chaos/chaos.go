// Package chaos injects faults into ICMP transports for testing.
package chaos

import (
	"errors"
	"math/rand"
	"sync"
	"time"
)

// FaultType represents the type of fault to inject.
type FaultType int

const (
	// FaultDrop loses a reply; the receive reports a timeout.
	FaultDrop FaultType = iota
	// FaultDelay holds a reply back before it is delivered.
	FaultDelay
	// FaultError makes a send fail.
	FaultError
	// FaultCorrupt truncates a reply below the minimum datagram size.
	FaultCorrupt
)

// String returns the fault name.
func (t FaultType) String() string {
	switch t {
	case FaultDrop:
		return "drop"
	case FaultDelay:
		return "delay"
	case FaultError:
		return "error"
	case FaultCorrupt:
		return "corrupt"
	default:
		return "none"
	}
}

// noFault is returned by MaybeInject when nothing fires.
const noFault FaultType = -1

// ErrInjected is returned by operations failed by FaultError.
var ErrInjected = errors.New("chaos: injected failure")

// FaultConfig configures fault injection behavior.
type FaultConfig struct {
	// Probability is the chance of fault injection (0.0 to 1.0).
	Probability float64

	// Type is the type of fault to inject.
	Type FaultType

	// Skip exempts the first Skip eligible operations.
	Skip int

	// MinDelay is the minimum delay to add for FaultDelay.
	MinDelay time.Duration

	// MaxDelay is the maximum delay to add for FaultDelay.
	MaxDelay time.Duration
}

// FaultInjector decides when faults fire. Safe for concurrent use.
type FaultInjector struct {
	configs   []FaultConfig
	seen      []int
	enabled   bool
	mu        sync.Mutex
	rng       *rand.Rand
	faultHits map[FaultType]int64
}

// NewFaultInjector creates an enabled fault injector. The same seed yields
// the same sequence of faults.
func NewFaultInjector(seed int64, configs ...FaultConfig) *FaultInjector {
	return &FaultInjector{
		configs:   configs,
		seen:      make([]int, len(configs)),
		enabled:   true,
		rng:       rand.New(rand.NewSource(seed)),
		faultHits: make(map[FaultType]int64),
	}
}

// Enable enables fault injection.
func (f *FaultInjector) Enable() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = true
}

// Disable disables fault injection.
func (f *FaultInjector) Disable() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = false
}

// IsEnabled returns whether fault injection is enabled.
func (f *FaultInjector) IsEnabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

// MaybeInject picks the first configured fault among types that fires, and
// the delay to apply for FaultDelay. It returns -1 when none fires.
func (f *FaultInjector) MaybeInject(types ...FaultType) (FaultType, time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.enabled {
		return noFault, 0
	}

	for i, cfg := range f.configs {
		if !containsType(types, cfg.Type) {
			continue
		}
		f.seen[i]++
		if f.seen[i] <= cfg.Skip {
			continue
		}
		if f.rng.Float64() >= cfg.Probability {
			continue
		}
		f.faultHits[cfg.Type]++
		if cfg.Type == FaultDelay {
			return cfg.Type, f.randomDelay(cfg.MinDelay, cfg.MaxDelay)
		}
		return cfg.Type, 0
	}

	return noFault, 0
}

// Stats returns the number of times each fault fired.
func (f *FaultInjector) Stats() map[FaultType]int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := make(map[FaultType]int64, len(f.faultHits))
	for k, v := range f.faultHits {
		stats[k] = v
	}
	return stats
}

// Reset clears statistics and Skip progress.
func (f *FaultInjector) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faultHits = make(map[FaultType]int64)
	f.seen = make([]int, len(f.configs))
}

// randomDelay must be called with f.mu held.
func (f *FaultInjector) randomDelay(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(f.rng.Int63n(int64(max-min)))
}

func containsType(types []FaultType, t FaultType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}
