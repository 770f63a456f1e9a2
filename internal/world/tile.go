// Package world provides the tile grid, terrain, and spatial helpers.
// Coordinates are integer (x, y) with the origin at the top-left corner.
package world

import "fmt"

// Point is a tile coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Add returns p offset by (dx, dy).
func (p Point) Add(dx, dy int) Point {
	return Point{X: p.X + dx, Y: p.Y + dy}
}

func (p Point) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// Manhattan returns the grid distance between two points.
func Manhattan(a, b Point) int {
	return abs(a.X-b.X) + abs(a.Y-b.Y)
}

// Directions are the four orthogonal neighbor offsets, in a fixed order so
// that movement choices are reproducible.
var Directions = [4]Point{
	{X: 0, Y: -1},
	{X: 1, Y: 0},
	{X: 0, Y: 1},
	{X: -1, Y: 0},
}

// Neighbors returns the four orthogonally adjacent points.
func (p Point) Neighbors() [4]Point {
	var out [4]Point
	for i, d := range Directions {
		out[i] = p.Add(d.X, d.Y)
	}
	return out
}

// AreaSize is the edge length of an exploration area in tiles.
const AreaSize = 8

// Area identifies a coarse AreaSize×AreaSize region of the map.
type Area struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// AreaOf returns the area containing p.
func AreaOf(p Point) Area {
	return Area{X: floorDiv(p.X, AreaSize), Y: floorDiv(p.Y, AreaSize)}
}

// Key is the string form used in memory sets.
func (a Area) Key() string {
	return fmt.Sprintf("%d:%d", a.X, a.Y)
}

// Terrain types for tiles.
type Terrain uint8

const (
	TerrainGrass Terrain = iota // Open surface
	TerrainSoil                 // Bare earth
	TerrainFloor                // Dug-out stone floor
	TerrainStone                // Solid rock wall
	TerrainOre                  // Rock wall with a vein
	TerrainWater                // Pools and streams, impassable
	TerrainTree                 // Trunks block movement
)

// Passable reports whether a dwarf can stand on the terrain.
func (t Terrain) Passable() bool {
	switch t {
	case TerrainGrass, TerrainSoil, TerrainFloor:
		return true
	default:
		return false
	}
}

// Diggable reports whether the terrain can be mined out.
func (t Terrain) Diggable() bool {
	return t == TerrainStone || t == TerrainOre
}

// TerrainName returns a human-readable name for a terrain type.
func TerrainName(t Terrain) string {
	switch t {
	case TerrainGrass:
		return "Grass"
	case TerrainSoil:
		return "Soil"
	case TerrainFloor:
		return "Stone floor"
	case TerrainStone:
		return "Stone"
	case TerrainOre:
		return "Ore vein"
	case TerrainWater:
		return "Water"
	case TerrainTree:
		return "Tree"
	default:
		return "Unknown"
	}
}

// Tile is a single cell on the map.
type Tile struct {
	Terrain   Terrain `json:"terrain"`
	Elevation float64 `json:"elevation"` // 0.0 (lowland) to 1.0 (peak)
	Moisture  float64 `json:"moisture"`
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
