package behavior

import (
	"github.com/talgya/dwarfhold/internal/agents"
	"github.com/talgya/dwarfhold/internal/world"
)

// The task variants. Each carries its own typed target; the decider
// dispatches on the concrete type.

// ForageTask walks to a food source and eats it.
type ForageTask struct {
	Food     Ref
	priority float64
}

// SocializeTask seeks out another dwarf and spends time near them.
type SocializeTask struct {
	Partner  agents.DwarfID
	priority float64
	elapsed  int
}

// ExploreTask walks to a destination, preferably in an unvisited area.
type ExploreTask struct {
	Dest     world.Point
	priority float64
}

// DigTask works a dig designation.
type DigTask struct {
	Designation Ref
	priority    float64
}

// BuildTask hauls materials to a project and builds it.
type BuildTask struct {
	Project  Ref
	Material Ref // Material being fetched, zero while none is chosen
	priority float64
}

// CraftTask works a job at a workshop.
type CraftTask struct {
	Job      Ref
	priority float64
}

// IdleTask wanders to a nearby tile, or rests in place when Rest is set.
type IdleTask struct {
	Dest     world.Point
	Rest     bool
	priority float64
	elapsed  int
}

func (t *ForageTask) Kind() agents.TaskKind    { return agents.TaskForage }
func (t *SocializeTask) Kind() agents.TaskKind { return agents.TaskSocialize }
func (t *ExploreTask) Kind() agents.TaskKind   { return agents.TaskExplore }
func (t *DigTask) Kind() agents.TaskKind       { return agents.TaskDig }
func (t *BuildTask) Kind() agents.TaskKind     { return agents.TaskBuild }
func (t *CraftTask) Kind() agents.TaskKind     { return agents.TaskCraft }
func (t *IdleTask) Kind() agents.TaskKind      { return agents.TaskIdle }

func (t *ForageTask) Priority() float64    { return t.priority }
func (t *SocializeTask) Priority() float64 { return t.priority }
func (t *ExploreTask) Priority() float64   { return t.priority }
func (t *DigTask) Priority() float64       { return t.priority }
func (t *BuildTask) Priority() float64     { return t.priority }
func (t *CraftTask) Priority() float64     { return t.priority }
func (t *IdleTask) Priority() float64      { return t.priority }

// Target returns where a task is headed, for display.
func Target(t agents.Task) (world.Point, bool) {
	switch t := t.(type) {
	case *ForageTask:
		return t.Food.Pos, true
	case *ExploreTask:
		return t.Dest, true
	case *DigTask:
		return t.Designation.Pos, true
	case *BuildTask:
		if t.Material.ID != 0 {
			return t.Material.Pos, true
		}
		return t.Project.Pos, true
	case *CraftTask:
		return t.Job.Pos, true
	case *IdleTask:
		return t.Dest, !t.Rest
	default:
		return world.Point{}, false
	}
}

// Describe returns a short label for a task, for display and prompts.
func Describe(t agents.Task) string {
	if t == nil {
		return "nothing in particular"
	}
	switch t := t.(type) {
	case *ForageTask:
		return "looking for food"
	case *SocializeTask:
		return "looking for company"
	case *ExploreTask:
		return "exploring"
	case *DigTask:
		return "digging"
	case *BuildTask:
		if t.Material.ID != 0 {
			return "hauling stone"
		}
		return "building"
	case *CraftTask:
		return "crafting"
	case *IdleTask:
		if t.Rest {
			return "resting"
		}
		return "wandering"
	default:
		return "busy"
	}
}
