package colony

import (
	"github.com/talgya/dwarfhold/internal/behavior"
	"github.com/talgya/dwarfhold/internal/world"
)

var (
	projectNames = []string{"stone table", "wall segment", "statue plinth", "storage bin", "well"}
	craftItems   = []string{"stone mug", "rock crown", "figurine", "door", "goblet", "bracelet"}
)

const (
	digWorkStone = 12.0
	digWorkOre   = 18.0
	buildWork    = 14.0
	craftWork    = 10.0
	goodsCap     = 50
)

func (c *Colony) seedFood() {
	for i := 0; i < c.cfg.FoodCount; i++ {
		p, ok := c.randomPassable(c.center, 14)
		if !ok || c.foodAt(p) {
			continue
		}
		c.foods = append(c.foods, &Food{ID: c.newID(), Pos: p, Nutrition: c.cfg.Nutrition})
	}
}

func (c *Colony) foodAt(p world.Point) bool {
	for _, f := range c.foods {
		if f.Pos == p {
			return true
		}
	}
	return false
}

// replenish tops up designations, projects and jobs.
func (c *Colony) replenish() {
	if len(c.designations) < c.cfg.DesignationTarget {
		c.designate(c.cfg.DesignationTarget - len(c.designations))
	}
	for len(c.projects) < c.cfg.ProjectTarget {
		p, ok := c.randomPassable(c.center, 6)
		if !ok {
			break
		}
		c.projects = append(c.projects, &Project{
			ID:     c.newID(),
			Name:   projectNames[c.rng.Intn(len(projectNames))],
			Pos:    p,
			Needed: 1 + c.rng.Intn(3),
			Work:   buildWork,
		})
	}
	for len(c.jobs) < c.cfg.JobTarget {
		c.jobs = append(c.jobs, &Job{
			ID:   c.newID(),
			Item: craftItems[c.rng.Intn(len(craftItems))],
			Pos:  c.workshop(),
			Work: craftWork,
		})
	}
}

// workshop is the passable tile nearest the map center offset used for
// crafting.
func (c *Colony) workshop() world.Point {
	spot := c.center.Add(2, 2)
	if c.m.Passable(spot) {
		return spot
	}
	return c.center
}

// designate marks up to n diggable tiles that border open ground, nearest to
// the center first.
func (c *Colony) designate(n int) {
	marked := make(map[world.Point]bool, len(c.designations))
	for _, d := range c.designations {
		marked[d.Pos] = true
	}

	visited := map[world.Point]bool{c.center: true}
	queue := []world.Point{c.center}
	for len(queue) > 0 && n > 0 && len(visited) < maxSearch {
		cur := queue[0]
		queue = queue[1:]
		for _, nb := range cur.Neighbors() {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			t, ok := c.m.TerrainAt(nb)
			if !ok {
				continue
			}
			if t.Passable() {
				queue = append(queue, nb)
				continue
			}
			if t.Diggable() && !marked[nb] && n > 0 {
				work := digWorkStone
				if t == world.TerrainOre {
					work = digWorkOre
				}
				c.designations = append(c.designations, &Designation{ID: c.newID(), Pos: nb, Work: work})
				marked[nb] = true
				n--
			}
		}
	}
}

// Foraging.

func (c *Colony) NearestFood(from world.Point) (behavior.Ref, bool) {
	var best *Food
	for _, f := range c.foods {
		if f.RegrowIn > 0 {
			continue
		}
		if best == nil || world.Manhattan(from, f.Pos) < world.Manhattan(from, best.Pos) {
			best = f
		}
	}
	if best == nil {
		return behavior.Ref{}, false
	}
	return behavior.Ref{ID: best.ID, Pos: best.Pos}, true
}

func (c *Colony) food(id uint64) *Food {
	for _, f := range c.foods {
		if f.ID == id {
			return f
		}
	}
	return nil
}

func (c *Colony) FoodExists(id uint64) bool {
	f := c.food(id)
	return f != nil && f.RegrowIn == 0
}

func (c *Colony) Eat(id uint64) (float64, bool) {
	f := c.food(id)
	if f == nil || f.RegrowIn > 0 {
		return 0, false
	}
	f.RegrowIn = c.cfg.FoodRegrowTicks
	c.stats.Eaten++
	return f.Nutrition, true
}

// Digging.

func (c *Colony) NearestDesignation(from world.Point) (behavior.Ref, bool) {
	var best *Designation
	for _, d := range c.designations {
		if best == nil || world.Manhattan(from, d.Pos) < world.Manhattan(from, best.Pos) {
			best = d
		}
	}
	if best == nil {
		return behavior.Ref{}, false
	}
	return behavior.Ref{ID: best.ID, Pos: best.Pos}, true
}

func (c *Colony) designation(id uint64) (int, *Designation) {
	for i, d := range c.designations {
		if d.ID == id {
			return i, d
		}
	}
	return -1, nil
}

func (c *Colony) Designated(id uint64) bool {
	_, d := c.designation(id)
	return d != nil
}

// Dig works a designation. A finished tile becomes floor and leaves a loose
// stone behind.
func (c *Colony) Dig(id uint64, power float64) (bool, bool) {
	i, d := c.designation(id)
	if d == nil {
		return false, false
	}
	d.Progress += power
	if d.Progress < d.Work {
		return false, true
	}
	c.m.SetTerrain(d.Pos, world.TerrainFloor)
	c.designations = append(c.designations[:i], c.designations[i+1:]...)
	c.materials = append(c.materials, &Material{ID: c.newID(), Pos: d.Pos})
	c.stats.Dug++
	return true, true
}

// Construction.

func (c *Colony) project(id uint64) (int, *Project) {
	for i, p := range c.projects {
		if p.ID == id {
			return i, p
		}
	}
	return -1, nil
}

func (c *Colony) NearestProject(from world.Point) (behavior.Ref, bool) {
	var best *Project
	for _, p := range c.projects {
		if best == nil || world.Manhattan(from, p.Pos) < world.Manhattan(from, best.Pos) {
			best = p
		}
	}
	if best == nil {
		return behavior.Ref{}, false
	}
	return behavior.Ref{ID: best.ID, Pos: best.Pos}, true
}

func (c *Colony) ProjectActive(id uint64) bool {
	_, p := c.project(id)
	return p != nil
}

func (c *Colony) NeedsMaterial(id uint64) bool {
	_, p := c.project(id)
	return p != nil && p.Delivered < p.Needed
}

func (c *Colony) NearestMaterial(from world.Point) (behavior.Ref, bool) {
	var best *Material
	for _, m := range c.materials {
		if best == nil || world.Manhattan(from, m.Pos) < world.Manhattan(from, best.Pos) {
			best = m
		}
	}
	if best == nil {
		return behavior.Ref{}, false
	}
	return behavior.Ref{ID: best.ID, Pos: best.Pos}, true
}

func (c *Colony) TakeMaterial(id uint64) bool {
	for i, m := range c.materials {
		if m.ID == id {
			c.materials = append(c.materials[:i], c.materials[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Colony) DeliverMaterial(project uint64) bool {
	_, p := c.project(project)
	if p == nil || p.Delivered >= p.Needed {
		return false
	}
	p.Delivered++
	return true
}

// Build works a project whose materials have all arrived.
func (c *Colony) Build(id uint64, power float64) (bool, bool) {
	i, p := c.project(id)
	if p == nil {
		return false, false
	}
	if p.Delivered < p.Needed {
		return false, true
	}
	p.Progress += power
	if p.Progress < p.Work {
		return false, true
	}
	c.projects = append(c.projects[:i], c.projects[i+1:]...)
	c.stats.Built++
	return true, true
}

// Crafting.

func (c *Colony) job(id uint64) (int, *Job) {
	for i, j := range c.jobs {
		if j.ID == id {
			return i, j
		}
	}
	return -1, nil
}

func (c *Colony) NextJob(from world.Point) (behavior.Ref, bool) {
	if len(c.jobs) == 0 {
		return behavior.Ref{}, false
	}
	j := c.jobs[0]
	return behavior.Ref{ID: j.ID, Pos: j.Pos}, true
}

func (c *Colony) JobActive(id uint64) bool {
	_, j := c.job(id)
	return j != nil
}

func (c *Colony) Craft(id uint64, power float64) (bool, bool) {
	i, j := c.job(id)
	if j == nil {
		return false, false
	}
	j.Progress += power
	if j.Progress < j.Work {
		return false, true
	}
	c.jobs = append(c.jobs[:i], c.jobs[i+1:]...)
	c.goods = append(c.goods, j.Item)
	if len(c.goods) > goodsCap {
		c.goods = c.goods[len(c.goods)-goodsCap:]
	}
	c.stats.Crafted++
	return true, true
}
