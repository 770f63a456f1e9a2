// Package behavior is the per-dwarf decision engine: it scores candidate
// tasks from needs, skills and aspiration, picks one, and drives it each tick
// through the colony's capability contracts.
package behavior

import (
	"time"

	"github.com/talgya/dwarfhold/internal/agents"
	"github.com/talgya/dwarfhold/internal/events"
	"github.com/talgya/dwarfhold/internal/world"
)

// Ref points at a colony entity. IDs are stable for the entity's lifetime.
type Ref struct {
	ID  uint64
	Pos world.Point
}

// HostileRef describes a hostile creature.
type HostileRef struct {
	Ref
	Health   float64
	Strength float64
}

// Movement moves dwarves over the map.
type Movement interface {
	// StepToward returns the next tile on a path from from to any tile within
	// Manhattan distance within of to. ok is false when no path exists.
	StepToward(from, to world.Point, within int) (next world.Point, ok bool)
	// StepAway returns the passable neighbor farthest from threat.
	StepAway(from, threat world.Point) world.Point
	// RandomDestination picks a passable tile within radius of from.
	RandomDestination(from world.Point, radius int) (world.Point, bool)
	// Unexplored returns the nearest reachable passable tile whose area
	// has not been visited.
	Unexplored(from world.Point, visited func(world.Point) bool) (world.Point, bool)
}

// Foraging finds and consumes food.
type Foraging interface {
	NearestFood(from world.Point) (Ref, bool)
	FoodExists(id uint64) bool
	// Eat consumes the food and returns its nutrition.
	Eat(id uint64) (nutrition float64, ok bool)
}

// Digging works dig designations.
type Digging interface {
	NearestDesignation(from world.Point) (Ref, bool)
	Designated(id uint64) bool
	// Dig applies power to the designation. done is true when the tile
	// is cleared.
	Dig(id uint64, power float64) (done, ok bool)
}

// Construction works build projects, which need hauled materials.
type Construction interface {
	NearestProject(from world.Point) (Ref, bool)
	ProjectActive(id uint64) bool
	NeedsMaterial(id uint64) bool
	NearestMaterial(from world.Point) (Ref, bool)
	TakeMaterial(id uint64) bool
	DeliverMaterial(project uint64) bool
	Build(id uint64, power float64) (done, ok bool)
}

// Crafting works jobs at workshops.
type Crafting interface {
	NextJob(from world.Point) (Ref, bool)
	JobActive(id uint64) bool
	Craft(id uint64, power float64) (done, ok bool)
}

// Combat finds and fights hostiles.
type Combat interface {
	NearestHostile(from world.Point, within int) (HostileRef, bool)
	Hostile(id uint64) (HostileRef, bool)
	Strike(id uint64, power float64) (killed, ok bool)
}

// Capabilities bundles the collaborators the decider drives.
type Capabilities struct {
	Movement     Movement
	Foraging     Foraging
	Digging      Digging
	Construction Construction
	Crafting     Crafting
	Combat       Combat
}

// View is the read side of the world the decider needs.
type View interface {
	Dwarves() []*agents.Dwarf
	Dwarf(id agents.DwarfID) *agents.Dwarf
	Map() *world.Map
	Tick() uint64
	// Now is the time stamped on memories.
	Now() time.Time
}

// Publisher queues simulation events.
type Publisher interface {
	Publish(events.Event)
}
