// Package colony holds the fortress's physical work: food sources, dig
// designations, construction projects, workshop jobs and hostile creatures.
// It implements the capability contracts the decision engine drives.
package colony

import (
	"math/rand"

	"github.com/talgya/dwarfhold/internal/agents"
	"github.com/talgya/dwarfhold/internal/behavior"
	"github.com/talgya/dwarfhold/internal/world"
)

// Food is a forageable plant. Eaten plants regrow after a delay.
type Food struct {
	ID        uint64      `json:"id"`
	Pos       world.Point `json:"pos"`
	Nutrition float64     `json:"nutrition"`
	RegrowIn  int         `json:"regrow_in"` // Ticks until edible again, 0 when ripe
}

// Designation marks a rock tile to be dug out.
type Designation struct {
	ID       uint64      `json:"id"`
	Pos      world.Point `json:"pos"`
	Work     float64     `json:"work"`
	Progress float64     `json:"progress"`
}

// Project is a construction waiting for materials and labor.
type Project struct {
	ID        uint64      `json:"id"`
	Name      string      `json:"name"`
	Pos       world.Point `json:"pos"`
	Needed    int         `json:"needed"`
	Delivered int         `json:"delivered"`
	Work      float64     `json:"work"`
	Progress  float64     `json:"progress"`
}

// Material is a loose stone that can be hauled to a project.
type Material struct {
	ID  uint64      `json:"id"`
	Pos world.Point `json:"pos"`
}

// Job is a crafting order at a workshop.
type Job struct {
	ID       uint64      `json:"id"`
	Item     string      `json:"item"`
	Pos      world.Point `json:"pos"`
	Work     float64     `json:"work"`
	Progress float64     `json:"progress"`
}

// Hostile is a creature that attacks dwarves.
type Hostile struct {
	ID       uint64      `json:"id"`
	Kind     string      `json:"kind"`
	Pos      world.Point `json:"pos"`
	Health   float64     `json:"health"`
	Strength float64     `json:"strength"`
}

// Stats counts finished work.
type Stats struct {
	Eaten   int `json:"eaten"`
	Dug     int `json:"dug"`
	Built   int `json:"built"`
	Crafted int `json:"crafted"`
	Slain   int `json:"slain"`
}

// Config controls how much work the colony keeps available.
type Config struct {
	FoodCount         int
	FoodRegrowTicks   int
	Nutrition         float64
	DesignationTarget int
	ProjectTarget     int
	JobTarget         int
	StockpileStones   int
	ReplenishEvery    int     // Ticks between work replenishment passes
	HostileEvery      int     // Ticks between hostile spawn rolls
	HostileChance     float64 // Chance per roll
	MaxHostiles       int
	HostileSight      int // Tiles within which hostiles chase dwarves
}

func DefaultConfig() Config {
	return Config{
		FoodCount:         14,
		FoodRegrowTicks:   600,
		Nutrition:         45,
		DesignationTarget: 6,
		ProjectTarget:     2,
		JobTarget:         2,
		StockpileStones:   4,
		ReplenishEvery:    50,
		HostileEvery:      400,
		HostileChance:     0.35,
		MaxHostiles:       2,
		HostileSight:      12,
	}
}

// Colony owns every work entity on the map. Not safe for concurrent use; it
// belongs to the simulation goroutine.
type Colony struct {
	m      *world.Map
	center world.Point
	cfg    Config
	rng    *rand.Rand
	nextID uint64

	foods        []*Food
	designations []*Designation
	projects     []*Project
	materials    []*Material
	jobs         []*Job
	hostiles     []*Hostile
	goods        []string

	stats Stats
}

// New creates a colony around center and seeds its initial work.
func New(m *world.Map, center world.Point, cfg Config, seed int64) *Colony {
	c := &Colony{
		m:      m,
		center: center,
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(seed + 500)),
		nextID: 1,
	}
	c.seedFood()
	for i := 0; i < cfg.StockpileStones; i++ {
		if p, ok := c.randomPassable(center, 3); ok {
			c.materials = append(c.materials, &Material{ID: c.newID(), Pos: p})
		}
	}
	c.replenish()
	return c
}

// Map returns the tile grid the colony works on.
func (c *Colony) Map() *world.Map {
	return c.m
}

func (c *Colony) newID() uint64 {
	id := c.nextID
	c.nextID++
	return id
}

// Tick advances food regrowth, hostiles and work replenishment by one tick.
func (c *Colony) Tick(tick uint64, dwarves []*agents.Dwarf) {
	for _, f := range c.foods {
		if f.RegrowIn > 0 {
			f.RegrowIn--
		}
	}

	if c.cfg.ReplenishEvery > 0 && tick%uint64(c.cfg.ReplenishEvery) == 0 {
		c.replenish()
	}

	if c.cfg.HostileEvery > 0 && tick > 0 && tick%uint64(c.cfg.HostileEvery) == 0 &&
		len(c.hostiles) < c.cfg.MaxHostiles && c.rng.Float64() < c.cfg.HostileChance {
		c.SpawnHostile()
	}

	c.moveHostiles(tick, dwarves)

	for _, d := range dwarves {
		if d.Alive && d.Activity != agents.ActivityFighting && d.Health < 100 {
			d.Health += 0.05
			if d.Health > 100 {
				d.Health = 100
			}
		}
	}
}

// Stats returns the counts of finished work.
func (c *Colony) Stats() Stats {
	return c.stats
}

// Snapshot is a copy of the colony's entities for display.
type Snapshot struct {
	Foods        []Food        `json:"foods"`
	Designations []Designation `json:"designations"`
	Projects     []Project     `json:"projects"`
	Materials    []Material    `json:"materials"`
	Jobs         []Job         `json:"jobs"`
	Hostiles     []Hostile     `json:"hostiles"`
	Goods        []string      `json:"goods"`
	Stats        Stats         `json:"stats"`
}

func (c *Colony) Snapshot() Snapshot {
	s := Snapshot{Stats: c.stats, Goods: append([]string(nil), c.goods...)}
	for _, f := range c.foods {
		s.Foods = append(s.Foods, *f)
	}
	for _, d := range c.designations {
		s.Designations = append(s.Designations, *d)
	}
	for _, p := range c.projects {
		s.Projects = append(s.Projects, *p)
	}
	for _, m := range c.materials {
		s.Materials = append(s.Materials, *m)
	}
	for _, j := range c.jobs {
		s.Jobs = append(s.Jobs, *j)
	}
	for _, h := range c.hostiles {
		s.Hostiles = append(s.Hostiles, *h)
	}
	return s
}

var (
	_ behavior.Movement     = (*Colony)(nil)
	_ behavior.Foraging     = (*Colony)(nil)
	_ behavior.Digging      = (*Colony)(nil)
	_ behavior.Construction = (*Colony)(nil)
	_ behavior.Crafting     = (*Colony)(nil)
	_ behavior.Combat       = (*Colony)(nil)
)

// Capabilities returns the colony as the decision engine's collaborators.
func (c *Colony) Capabilities() behavior.Capabilities {
	return behavior.Capabilities{
		Movement:     c,
		Foraging:     c,
		Digging:      c,
		Construction: c,
		Crafting:     c,
		Combat:       c,
	}
}
