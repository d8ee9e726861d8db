// Package engine provides the tick-based simulation loop: the contact
// simulation state machine and the scheduler that drives it.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval paces ticks at roughly 60 per wall-clock second.
const DefaultInterval = time.Second / 60

// Engine drives the simulation forward. Ticks run strictly one after
// another on the goroutine that called Run; Stop is observed between ticks.
type Engine struct {
	Interval time.Duration // Base wall-clock pause between ticks

	// OnTick runs once per scheduling step.
	OnTick func(tick uint64)

	mu      sync.Mutex
	tick    uint64  // Scheduler steps since creation (monotonic)
	speed   float64 // Multiplier: 1.0 = real-time, 0 = paused
	running bool
	stopped bool // latched by Stop; Run returns immediately once set
}

// NewEngine creates a simulation engine with default settings.
func NewEngine() *Engine {
	return &Engine{
		Interval: DefaultInterval,
		speed:    1.0,
	}
}

// Speed returns the current pacing multiplier.
func (e *Engine) Speed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// SetSpeed changes the pacing multiplier. 0 pauses the loop.
func (e *Engine) SetSpeed(speed float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if speed < 0 {
		speed = 0
	}
	e.speed = speed
}

// Running reports whether Run is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Tick returns the number of scheduler steps taken.
func (e *Engine) Tick() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tick
}

// Run starts the scheduling loop. Blocks until Stop is called or ctx is done.
// An Engine runs at most once: after Stop, including a Stop issued before
// Run, Run returns without ticking.
func (e *Engine) Run(ctx context.Context) {
	e.mu.Lock()
	if e.stopped || e.running {
		e.mu.Unlock()
		slog.Warn("simulation engine not started", "stopped", e.stopped)
		return
	}
	e.running = true
	e.mu.Unlock()
	slog.Info("simulation engine started", "tick", e.Tick(), "speed", e.Speed())

	for e.Running() {
		if ctx.Err() != nil {
			break
		}

		speed := e.Speed()
		if speed <= 0 {
			// Paused: sleep briefly and check again.
			if !sleepCtx(ctx, 100*time.Millisecond) {
				break
			}
			continue
		}

		start := time.Now()

		e.step()

		// Sleep for the remainder of the tick interval, adjusted for speed.
		elapsed := time.Since(start)
		target := time.Duration(float64(e.Interval) / speed)
		if elapsed < target {
			if !sleepCtx(ctx, target-elapsed) {
				break
			}
		}
	}

	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
	slog.Info("simulation engine stopped", "tick", e.Tick())
}

// Stop halts the loop after the tick in flight completes.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = true
	e.running = false
}

// step advances the scheduler by one tick.
func (e *Engine) step() {
	e.mu.Lock()
	e.tick++
	tick := e.tick
	e.mu.Unlock()

	if e.OnTick != nil {
		e.OnTick(tick)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// SimTime formats elapsed simulated seconds as m:ss.s.
func SimTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	minutes := int(seconds) / 60
	return fmt.Sprintf("%d:%04.1f", minutes, seconds-float64(minutes*60))
}
