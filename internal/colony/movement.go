package colony

import (
	"github.com/talgya/dwarfhold/internal/world"
)

// maxSearch bounds breadth-first searches on large maps.
const maxSearch = 6000

// StepToward returns the first step of a shortest path from from to any
// passable tile within Manhattan distance within of to.
func (c *Colony) StepToward(from, to world.Point, within int) (world.Point, bool) {
	if world.Manhattan(from, to) <= within {
		return from, true
	}
	goal, parent, ok := c.search(from, func(p world.Point) bool {
		return world.Manhattan(p, to) <= within
	})
	if !ok {
		return from, false
	}
	return firstStep(from, goal, parent), true
}

// StepAway returns the passable neighbor that most increases the distance
// from threat, or from itself when cornered.
func (c *Colony) StepAway(from, threat world.Point) world.Point {
	best := from
	bestDist := world.Manhattan(from, threat)
	for _, n := range from.Neighbors() {
		if !c.m.Passable(n) {
			continue
		}
		if d := world.Manhattan(n, threat); d > bestDist {
			best, bestDist = n, d
		}
	}
	return best
}

// RandomDestination picks a passable tile within radius of from, other
// than from.
func (c *Colony) RandomDestination(from world.Point, radius int) (world.Point, bool) {
	for i := 0; i < 24; i++ {
		p := from.Add(c.rng.Intn(2*radius+1)-radius, c.rng.Intn(2*radius+1)-radius)
		if p != from && c.m.Passable(p) {
			return p, true
		}
	}
	return from, false
}

// Unexplored returns the nearest reachable tile whose area is unvisited.
func (c *Colony) Unexplored(from world.Point, visited func(world.Point) bool) (world.Point, bool) {
	goal, _, ok := c.search(from, func(p world.Point) bool { return !visited(p) })
	return goal, ok
}

// search runs a breadth-first search over passable tiles from start until
// a tile satisfies goal. Neighbors are expanded in a fixed order, so results
// are reproducible.
func (c *Colony) search(start world.Point, goal func(world.Point) bool) (world.Point, map[world.Point]world.Point, bool) {
	parent := map[world.Point]world.Point{start: start}
	queue := []world.Point{start}
	for len(queue) > 0 && len(parent) < maxSearch {
		cur := queue[0]
		queue = queue[1:]
		if cur != start && goal(cur) {
			return cur, parent, true
		}
		for _, n := range cur.Neighbors() {
			if _, seen := parent[n]; seen || !c.m.Passable(n) {
				continue
			}
			parent[n] = cur
			queue = append(queue, n)
		}
	}
	return start, parent, false
}

func firstStep(start, goal world.Point, parent map[world.Point]world.Point) world.Point {
	step := goal
	for parent[step] != start {
		step = parent[step]
	}
	return step
}

// randomPassable picks a passable tile within radius of center.
func (c *Colony) randomPassable(center world.Point, radius int) (world.Point, bool) {
	for i := 0; i < 64; i++ {
		p := center.Add(c.rng.Intn(2*radius+1)-radius, c.rng.Intn(2*radius+1)-radius)
		if c.m.Passable(p) {
			return p, true
		}
	}
	return center, false
}
