// Package engine provides the tick-based simulation loop and the Simulation
// that ties the colony, the decision engine and the cognition engine together.
package engine

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// TickSchedule defines when the slower systems run relative to the tick counter.
const (
	TicksPerSimHour = 60   // 60 ticks = 1 sim-hour
	TicksPerSimDay  = 1440 // 24 hours × 60
)

// Engine drives the simulation forward.
type Engine struct {
	Tick     uint64        // Current tick counter (monotonic, never resets)
	Interval time.Duration // Base tick interval

	speed   atomic.Uint64 // math.Float64bits of the speed multiplier
	running atomic.Bool
	logger  *zap.Logger

	// Callbacks for each tick layer, populated during setup.
	OnTick  func(tick uint64) // Every tick
	OnHour  func(tick uint64) // Every 60 ticks
	OnDay   func(tick uint64) // Every 1440 ticks
	OnFrame func()            // Every loop iteration, paused or not
}

// NewEngine creates a simulation engine that ticks every interval.
func NewEngine(interval time.Duration, logger *zap.Logger) *Engine {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{Interval: interval, logger: logger}
	e.SetSpeed(1)
	return e
}

// Speed returns the speed multiplier: 1 is real time, 0 is paused.
func (e *Engine) Speed() float64 {
	return math.Float64frombits(e.speed.Load())
}

// SetSpeed changes the speed multiplier. Safe from any goroutine.
func (e *Engine) SetSpeed(s float64) {
	if s < 0 {
		s = 0
	}
	e.speed.Store(math.Float64bits(s))
}

// Running reports whether Run is active.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Run starts the simulation loop. Blocks until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	e.running.Store(true)
	defer e.running.Store(false)
	e.logger.Info("simulation engine started", zap.Uint64("tick", e.Tick), zap.Float64("speed", e.Speed()))

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("simulation engine stopped", zap.Uint64("tick", e.Tick))
			return
		default:
		}

		if e.OnFrame != nil {
			e.OnFrame()
		}

		speed := e.Speed()
		if speed <= 0 {
			// Paused: timers and results still drain through OnFrame.
			sleep(ctx, 100*time.Millisecond)
			continue
		}

		start := time.Now()
		e.Step()

		// Sleep for the remainder of the tick interval, adjusted for speed.
		elapsed := time.Since(start)
		target := time.Duration(float64(e.Interval) / speed)
		if elapsed < target {
			sleep(ctx, target-elapsed)
		}
	}
}

// Step advances the simulation by one tick.
func (e *Engine) Step() {
	e.Tick++

	if e.OnTick != nil {
		e.OnTick(e.Tick)
	}
	if e.Tick%TicksPerSimHour == 0 && e.OnHour != nil {
		e.OnHour(e.Tick)
	}
	if e.Tick%TicksPerSimDay == 0 && e.OnDay != nil {
		e.OnDay(e.Tick)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// SimTime returns a human-readable colony date from a tick number.
func SimTime(tick uint64) string {
	minutes := tick % 60
	totalHours := tick / 60
	hours := totalHours % 24
	totalDays := totalHours / 24
	day := totalDays%28 + 1
	totalMonths := totalDays / 28
	month := totalMonths % 12
	year := totalMonths/12 + 1

	return fmt.Sprintf("%d %s, %d:%02d Year %d", day, monthNames[month], hours, minutes, year)
}

var monthNames = [12]string{
	"Granite", "Slate", "Felsite", "Hematite", "Malachite", "Galena",
	"Limestone", "Sandstone", "Timber", "Moonstone", "Opal", "Obsidian",
}
