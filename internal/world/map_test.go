package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManhattan(t *testing.T) {
	assert.Equal(t, 0, Manhattan(Point{3, 4}, Point{3, 4}))
	assert.Equal(t, 7, Manhattan(Point{0, 0}, Point{3, 4}))
	assert.Equal(t, 7, Manhattan(Point{3, 4}, Point{0, 0}))
	assert.Equal(t, 2, Manhattan(Point{-1, 0}, Point{0, 1}))
}

func TestAreaOf_HandlesNegativeCoordinates(t *testing.T) {
	assert.Equal(t, Area{0, 0}, AreaOf(Point{0, 7}))
	assert.Equal(t, Area{1, 0}, AreaOf(Point{8, 0}))
	assert.Equal(t, Area{-1, -1}, AreaOf(Point{-1, -8}))
	assert.Equal(t, "1:2", Area{1, 2}.Key())
}

func TestMap_BoundsAndPassability(t *testing.T) {
	m := NewMap(4, 3)
	assert.True(t, m.InBounds(Point{3, 2}))
	assert.False(t, m.InBounds(Point{4, 0}))
	assert.Nil(t, m.At(Point{-1, 0}))

	m.SetTerrain(Point{1, 1}, TerrainStone)
	assert.False(t, m.Passable(Point{1, 1}))
	assert.True(t, m.Passable(Point{0, 0}))

	m.SetTerrain(Point{9, 9}, TerrainStone) // ignored
	terrain, ok := m.TerrainAt(Point{1, 1})
	require.True(t, ok)
	assert.True(t, terrain.Diggable())
}

func TestGenerate_DeterministicWithClearEmbark(t *testing.T) {
	cfg := SmallTestConfig()
	a := Generate(cfg)
	b := Generate(cfg)

	require.Equal(t, cfg.Width*cfg.Height, len(a.Tiles))
	for i := range a.Tiles {
		require.Equal(t, a.Tiles[i].Terrain, b.Tiles[i].Terrain, "tile %d", i)
	}

	center := Center(a)
	for _, n := range center.Neighbors() {
		assert.True(t, a.Passable(n))
	}
	assert.True(t, a.Passable(center))
}

func TestDescribe(t *testing.T) {
	m := NewMap(5, 5)
	for x := 0; x < 5; x++ {
		m.SetTerrain(Point{x, 0}, TerrainStone)
	}
	desc := m.Describe(Point{2, 2})
	assert.Contains(t, desc, "standing on grass")
	assert.Contains(t, desc, "stone")
	assert.Equal(t, "the edge of the world", m.Describe(Point{9, 9}))
}

func TestRender(t *testing.T) {
	m := NewMap(3, 2)
	m.SetTerrain(Point{1, 0}, TerrainStone)
	m.SetTerrain(Point{2, 1}, TerrainWater)

	assert.Equal(t, "\"#\"\n\"@~\n", m.Render(map[Point]rune{{1, 1}: '@'}))
}
