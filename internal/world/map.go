package world

import (
	"fmt"
	"strings"
)

// Map holds the tile grid in row-major order.
type Map struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Tiles  []Tile `json:"-"`
}

// NewMap creates a map of the given size filled with grass.
func NewMap(width, height int) *Map {
	return &Map{
		Width:  width,
		Height: height,
		Tiles:  make([]Tile, width*height),
	}
}

// InBounds returns true if the point lies on the map.
func (m *Map) InBounds(p Point) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < m.Width && p.Y < m.Height
}

// At returns the tile at p, or nil if out of bounds.
func (m *Map) At(p Point) *Tile {
	if !m.InBounds(p) {
		return nil
	}
	return &m.Tiles[p.Y*m.Width+p.X]
}

// SetTerrain changes the terrain at p. Out-of-bounds points are ignored.
func (m *Map) SetTerrain(p Point, t Terrain) {
	if tile := m.At(p); tile != nil {
		tile.Terrain = t
	}
}

// Passable reports whether a dwarf can stand at p.
func (m *Map) Passable(p Point) bool {
	tile := m.At(p)
	return tile != nil && tile.Terrain.Passable()
}

// TerrainAt returns the terrain at p and whether p is on the map.
func (m *Map) TerrainAt(p Point) (Terrain, bool) {
	tile := m.At(p)
	if tile == nil {
		return 0, false
	}
	return tile.Terrain, true
}

// Describe returns a short description of the tile at p and its surroundings,
// suitable for thought context.
func (m *Map) Describe(p Point) string {
	tile := m.At(p)
	if tile == nil {
		return "the edge of the world"
	}

	counts := make(map[Terrain]int)
	for dy := -2; dy <= 2; dy++ {
		for dx := -2; dx <= 2; dx++ {
			if t := m.At(p.Add(dx, dy)); t != nil {
				counts[t.Terrain]++
			}
		}
	}

	var parts []string
	for t := TerrainGrass; t <= TerrainTree; t++ {
		if t == tile.Terrain || counts[t] < 3 {
			continue
		}
		parts = append(parts, strings.ToLower(TerrainName(t)))
	}

	desc := "standing on " + strings.ToLower(TerrainName(tile.Terrain))
	if len(parts) > 0 {
		desc += " near " + strings.Join(parts, ", ")
	}
	return desc
}

// TerrainCounts returns a summary of terrain type distribution.
func (m *Map) TerrainCounts() map[Terrain]int {
	counts := make(map[Terrain]int)
	for _, t := range m.Tiles {
		counts[t.Terrain]++
	}
	return counts
}

// String returns a summary of the map.
func (m *Map) String() string {
	return fmt.Sprintf("Map(%dx%d)", m.Width, m.Height)
}

var glyphs = [...]rune{
	TerrainGrass: '"',
	TerrainSoil:  ',',
	TerrainFloor: '.',
	TerrainStone: '#',
	TerrainOre:   '%',
	TerrainWater: '~',
	TerrainTree:  'T',
}

// Render draws the map one row per line. Marks override the terrain glyph.
func (m *Map) Render(marks map[Point]rune) string {
	var b strings.Builder
	b.Grow((m.Width + 1) * m.Height)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			p := Point{X: x, Y: y}
			if r, ok := marks[p]; ok {
				b.WriteRune(r)
				continue
			}
			t := m.Tiles[y*m.Width+x].Terrain
			if int(t) < len(glyphs) {
				b.WriteRune(glyphs[t])
			} else {
				b.WriteRune('?')
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}
