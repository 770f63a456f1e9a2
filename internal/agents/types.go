// Package agents provides the dwarf data model: vitals, fulfillment needs,
// personality, skills, aspiration, relationships, and bounded memory.
package agents

import (
	"time"

	"github.com/talgya/dwarfhold/internal/world"
)

// DwarfID is a unique identifier for a dwarf.
type DwarfID uint64

// Trait is a personality dimension. Values range 0.0–1.0.
type Trait string

const (
	TraitFriendliness Trait = "friendliness"
	TraitCuriosity    Trait = "curiosity"
	TraitCreativity   Trait = "creativity"
	TraitBravery      Trait = "bravery"
	TraitHumor        Trait = "humor"
	TraitMelancholy   Trait = "melancholy"
	TraitPatience     Trait = "patience"
)

// AllTraits lists every trait in a fixed order.
var AllTraits = []Trait{
	TraitFriendliness, TraitCuriosity, TraitCreativity, TraitBravery,
	TraitHumor, TraitMelancholy, TraitPatience,
}

// Personality maps traits to strengths. It is set at spawn and never mutated.
type Personality map[Trait]float64

// Get returns the trait strength, 0 if absent.
func (p Personality) Get(t Trait) float64 {
	return p[t]
}

// Skill is a learnable capability. Values range 0.0–1.0.
type Skill string

const (
	SkillMining   Skill = "mining"
	SkillBuilding Skill = "building"
	SkillCrafting Skill = "crafting"
	SkillCombat   Skill = "combat"
	SkillSocial   Skill = "social"
)

// SkillSet tracks a dwarf's capabilities.
type SkillSet map[Skill]float64

// Get returns the skill level, 0 if untrained.
func (s SkillSet) Get(k Skill) float64 {
	return s[k]
}

// Improve raises a skill by amount, capped at 1.0.
func (s SkillSet) Improve(k Skill, amount float64) {
	v := s[k] + amount
	if v > 1 {
		v = 1
	}
	s[k] = v
}

// Aspiration is a lifelong behavioral bias fixed at spawn.
type Aspiration uint8

const (
	AspirationMasterCraftsman Aspiration = iota
	AspirationGreatBuilder
	AspirationDeepDelver
	AspirationExplorer
	AspirationSocialite
)

// NumAspirations is the number of aspiration values.
const NumAspirations = 5

func (a Aspiration) String() string {
	switch a {
	case AspirationMasterCraftsman:
		return "master craftsman"
	case AspirationGreatBuilder:
		return "great builder"
	case AspirationDeepDelver:
		return "deep delver"
	case AspirationExplorer:
		return "explorer"
	case AspirationSocialite:
		return "socialite"
	default:
		return "unknown"
	}
}

// Activity is the visible behavior state of a dwarf.
type Activity uint8

const (
	ActivityIdle Activity = iota
	ActivityWandering
	ActivitySeekingFood
	ActivityEating
	ActivitySeekingSocial
	ActivitySocializing
	ActivityExploring
	ActivityWorkingDig
	ActivityWorkingBuild
	ActivityWorkingCraft
	ActivityHauling
	ActivityFighting
	ActivityFleeingCombat
)

var activityNames = [...]string{
	"idle", "wandering", "seeking_food", "eating", "seeking_social", "socializing",
	"exploring", "working_dig", "working_build", "working_craft", "hauling",
	"fighting", "fleeing_combat",
}

func (a Activity) String() string {
	if int(a) < len(activityNames) {
		return activityNames[a]
	}
	return "unknown"
}

// TaskKind identifies the variant of a task.
type TaskKind uint8

const (
	TaskForage TaskKind = iota
	TaskSocialize
	TaskExplore
	TaskDig
	TaskBuild
	TaskCraft
	TaskIdle
)

var taskNames = [...]string{"forage", "socialize", "explore", "dig", "build", "craft", "idle"}

func (k TaskKind) String() string {
	if int(k) < len(taskNames) {
		return taskNames[k]
	}
	return "unknown"
}

// Task is an ephemeral unit of work owned by a single dwarf. The concrete
// variants live in the behavior package.
type Task interface {
	Kind() TaskKind
	Priority() float64
}

// Plan is the decision engine's per-dwarf bookkeeping. Not persisted.
type Plan struct {
	ReconsiderIn int     // Ticks until the current task is re-evaluated
	Fleeing      bool    // Running from ThreatID
	ThreatID     uint64  // Hostile being fought or fled
	Carrying     bool    // Hauling a building material
	LastScore    float64 // Priority of the task when it was chosen
}

// Dwarf is the core entity representing a colonist.
type Dwarf struct {
	ID   DwarfID `json:"id"`
	Name string  `json:"name"`

	Pos world.Point `json:"pos"`

	// Vitals, 0–100.
	Hunger float64 `json:"hunger"`
	Mood   float64 `json:"mood"`
	Health float64 `json:"health"`

	Fulfillment Fulfillment `json:"fulfillment"`
	Personality Personality `json:"personality"`
	Skills      SkillSet    `json:"skills"`
	Aspiration  Aspiration  `json:"aspiration"`

	Activity    Activity `json:"activity"`
	CurrentTask Task     `json:"-"`
	Plan        Plan     `json:"-"`

	Relationships map[DwarfID]*Relationship `json:"relationships"`
	Memory        Memory                    `json:"memory"`

	CurrentThought string    `json:"current_thought,omitempty"`
	ThoughtAt      time.Time `json:"thought_at,omitempty"`
	ThoughtTick    uint64    `json:"thought_tick,omitempty"`

	Alive bool `json:"alive"`
}

// NewDwarf returns a dwarf with initialized collections and full health.
func NewDwarf(id DwarfID, name string, pos world.Point, personality Personality, aspiration Aspiration) *Dwarf {
	if personality == nil {
		personality = Personality{}
	}
	return &Dwarf{
		ID:            id,
		Name:          name,
		Pos:           pos,
		Mood:          60,
		Health:        100,
		Fulfillment:   Fulfillment{70, 70, 70, 70},
		Personality:   personality,
		Skills:        SkillSet{},
		Aspiration:    aspiration,
		Relationships: make(map[DwarfID]*Relationship),
		Memory:        NewMemory(),
		Alive:         true,
	}
}

// Restore re-establishes collections and caps after decoding from storage.
func (d *Dwarf) Restore() {
	if d.Personality == nil {
		d.Personality = Personality{}
	}
	if d.Skills == nil {
		d.Skills = SkillSet{}
	}
	if d.Relationships == nil {
		d.Relationships = make(map[DwarfID]*Relationship)
	}
	for _, r := range d.Relationships {
		r.ConversationLog.setCap(ConversationLogCap)
	}
	d.Memory.restoreCaps()
	ClampVitals(d)
}

// DominantTrait returns the strongest of the given traits. Ties resolve to the
// earliest trait in the argument list.
func (d *Dwarf) DominantTrait(traits ...Trait) Trait {
	best := traits[0]
	for _, t := range traits[1:] {
		if d.Personality.Get(t) > d.Personality.Get(best) {
			best = t
		}
	}
	return best
}

// Clone returns a deep copy safe to read after the simulation moves on.
// The current task and plan are not copied.
func (d *Dwarf) Clone() *Dwarf {
	c := *d
	c.CurrentTask = nil
	c.Plan = Plan{}

	c.Personality = make(Personality, len(d.Personality))
	for k, v := range d.Personality {
		c.Personality[k] = v
	}
	c.Skills = make(SkillSet, len(d.Skills))
	for k, v := range d.Skills {
		c.Skills[k] = v
	}
	c.Relationships = make(map[DwarfID]*Relationship, len(d.Relationships))
	for id, r := range d.Relationships {
		rc := *r
		rc.ConversationLog = r.ConversationLog.clone()
		c.Relationships[id] = &rc
	}

	c.Memory = Memory{
		RecentThoughts:      d.Memory.RecentThoughts.clone(),
		RecentConversations: d.Memory.RecentConversations.clone(),
		SignificantEvents:   d.Memory.SignificantEvents.clone(),
		VisitedAreas:        make(map[string]bool, len(d.Memory.VisitedAreas)),
	}
	for k, v := range d.Memory.VisitedAreas {
		c.Memory.VisitedAreas[k] = v
	}
	return &c
}
