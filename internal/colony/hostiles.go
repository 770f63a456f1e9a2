package colony

import (
	"github.com/talgya/dwarfhold/internal/agents"
	"github.com/talgya/dwarfhold/internal/behavior"
	"github.com/talgya/dwarfhold/internal/world"
)

var hostileKinds = []struct {
	name     string
	health   float64
	strength float64
}{
	{"giant rat", 25, 4},
	{"goblin", 45, 7},
	{"cave crawler", 60, 9},
}

// SpawnHostile places a hostile creature on a passable tile far from the
// center. Returns false when no spot is found.
func (c *Colony) SpawnHostile() (Hostile, bool) {
	radius := (c.m.Width + c.m.Height) / 4
	for i := 0; i < 64; i++ {
		p, ok := c.randomPassable(c.center, radius)
		if !ok || world.Manhattan(p, c.center) < radius/2 {
			continue
		}
		k := hostileKinds[c.rng.Intn(len(hostileKinds))]
		h := &Hostile{ID: c.newID(), Kind: k.name, Pos: p, Health: k.health, Strength: k.strength}
		c.hostiles = append(c.hostiles, h)
		return *h, true
	}
	return Hostile{}, false
}

// AddHostile places a specific hostile, for scenarios and tests.
func (c *Colony) AddHostile(kind string, pos world.Point, health, strength float64) Hostile {
	h := &Hostile{ID: c.newID(), Kind: kind, Pos: pos, Health: health, Strength: strength}
	c.hostiles = append(c.hostiles, h)
	return *h
}

func (c *Colony) hostile(id uint64) (int, *Hostile) {
	for i, h := range c.hostiles {
		if h.ID == id {
			return i, h
		}
	}
	return -1, nil
}

func toRef(h *Hostile) behavior.HostileRef {
	return behavior.HostileRef{
		Ref:      behavior.Ref{ID: h.ID, Pos: h.Pos},
		Health:   h.Health,
		Strength: h.Strength,
	}
}

func (c *Colony) NearestHostile(from world.Point, within int) (behavior.HostileRef, bool) {
	var best *Hostile
	for _, h := range c.hostiles {
		d := world.Manhattan(from, h.Pos)
		if d > within {
			continue
		}
		if best == nil || d < world.Manhattan(from, best.Pos) {
			best = h
		}
	}
	if best == nil {
		return behavior.HostileRef{}, false
	}
	return toRef(best), true
}

func (c *Colony) Hostile(id uint64) (behavior.HostileRef, bool) {
	_, h := c.hostile(id)
	if h == nil {
		return behavior.HostileRef{}, false
	}
	return toRef(h), true
}

// Strike damages a hostile and reports whether it died.
func (c *Colony) Strike(id uint64, power float64) (bool, bool) {
	i, h := c.hostile(id)
	if h == nil {
		return false, false
	}
	h.Health -= power
	if h.Health > 0 {
		return false, true
	}
	c.hostiles = append(c.hostiles[:i], c.hostiles[i+1:]...)
	c.stats.Slain++
	return true, true
}

// moveHostiles chases the nearest living dwarf in sight and attacks when
// adjacent. Hostiles act every other tick.
func (c *Colony) moveHostiles(tick uint64, dwarves []*agents.Dwarf) {
	if tick%2 != 0 {
		return
	}
	for _, h := range c.hostiles {
		var prey *agents.Dwarf
		for _, d := range dwarves {
			if !d.Alive {
				continue
			}
			if dist := world.Manhattan(h.Pos, d.Pos); dist <= c.cfg.HostileSight &&
				(prey == nil || dist < world.Manhattan(h.Pos, prey.Pos)) {
				prey = d
			}
		}

		if prey == nil {
			if p, ok := c.RandomDestination(h.Pos, 1); ok {
				h.Pos = p
			}
			continue
		}
		if world.Manhattan(h.Pos, prey.Pos) <= 1 {
			agents.Damage(prey, h.Strength*0.5)
			continue
		}
		if next, ok := c.StepToward(h.Pos, prey.Pos, 1); ok {
			h.Pos = next
		}
	}
}
