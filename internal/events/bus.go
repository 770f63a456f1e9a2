// Package events carries tick-scoped simulation events from the world to its
// observers. Events published during a tick are queued and delivered together
// when the tick flushes, so subscribers always see a consistent world.
package events

import (
	"github.com/talgya/dwarfhold/internal/agents"
	"github.com/talgya/dwarfhold/internal/world"
)

// Kind identifies the type of an event.
type Kind uint8

const (
	KindTick Kind = iota
	KindFoodFound
	KindHungerThreshold
	KindMoodShift
	KindNewTerrain
)

func (k Kind) String() string {
	switch k {
	case KindTick:
		return "tick"
	case KindFoodFound:
		return "food_found"
	case KindHungerThreshold:
		return "hunger_threshold"
	case KindMoodShift:
		return "mood_shift"
	case KindNewTerrain:
		return "new_terrain"
	default:
		return "unknown"
	}
}

// Event is a single occurrence. Fields beyond Kind and Tick are filled in
// only where the kind uses them.
type Event struct {
	Kind    Kind
	Tick    uint64
	DwarfID agents.DwarfID
	Pos     world.Point
	Before  float64
	After   float64
	Terrain world.Terrain
}

// Handler receives delivered events.
type Handler func(Event)

// Bus is a synchronous publish/subscribe queue. Not safe for concurrent use;
// it belongs to the simulation goroutine.
type Bus struct {
	handlers []Handler
	queued   []Event
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers h for every event.
func (b *Bus) Subscribe(h Handler) {
	b.handlers = append(b.handlers, h)
}

// Publish queues an event for the next Flush.
func (b *Bus) Publish(e Event) {
	b.queued = append(b.queued, e)
}

// Flush delivers queued events in publish order. Events published by handlers
// during delivery are delivered in the same flush.
func (b *Bus) Flush() int {
	n := 0
	for len(b.queued) > 0 {
		batch := b.queued
		b.queued = nil
		for _, e := range batch {
			for _, h := range b.handlers {
				h(e)
			}
			n++
		}
	}
	return n
}

// Pending returns the number of undelivered events.
func (b *Bus) Pending() int {
	return len(b.queued)
}
