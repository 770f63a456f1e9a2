// World generation using layered simplex noise.
// Generates elevation and moisture fields, then derives terrain and carves
// an open embark site in the middle of the map.
package world

import (
	"math"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// GenConfig holds world generation parameters.
type GenConfig struct {
	Width      int
	Height     int
	Seed       int64   // Random seed (0 = random)
	WaterLevel float64 // Elevation below which tiles flood (0.0–1.0)
	StoneLevel float64 // Elevation above which tiles are rock (0.0–1.0)
	EmbarkSize int     // Radius of the cleared starting area
}

// DefaultGenConfig returns a reasonable starting configuration.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Width:      64,
		Height:     40,
		Seed:       0,
		WaterLevel: 0.22,
		StoneLevel: 0.62,
		EmbarkSize: 5,
	}
}

// SmallTestConfig returns a tiny world for tests.
func SmallTestConfig() GenConfig {
	return GenConfig{
		Width:      24,
		Height:     16,
		Seed:       42,
		WaterLevel: 0.2,
		StoneLevel: 0.65,
		EmbarkSize: 4,
	}
}

// Generate creates a complete map. The same seed always yields the same map.
func Generate(cfg GenConfig) *Map {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}

	elevNoise := opensimplex.NewNormalized(seed)
	moistNoise := opensimplex.NewNormalized(seed + 1)
	oreNoise := opensimplex.NewNormalized(seed + 2)

	m := NewMap(cfg.Width, cfg.Height)

	for y := 0; y < cfg.Height; y++ {
		for x := 0; x < cfg.Width; x++ {
			fx, fy := float64(x), float64(y)

			elev := octaveNoise(elevNoise, fx, fy, 4, 0.07, 0.5)
			moist := octaveNoise(moistNoise, fx, fy, 3, 0.09, 0.5)

			// Mountains rise toward the map border.
			dx := (fx - float64(cfg.Width)/2) / (float64(cfg.Width) / 2)
			dy := (fy - float64(cfg.Height)/2) / (float64(cfg.Height) / 2)
			edge := math.Sqrt(dx*dx+dy*dy) / math.Sqrt2
			elev = elev*0.7 + math.Pow(edge, 2)*0.45
			if elev > 1 {
				elev = 1
			}

			tile := m.At(Point{X: x, Y: y})
			tile.Elevation = elev
			tile.Moisture = moist
			tile.Terrain = deriveTerrain(elev, moist, oreNoise.Eval2(fx*0.3, fy*0.3), cfg)
		}
	}

	carveEmbark(m, cfg.EmbarkSize)
	return m
}

// deriveTerrain determines terrain type from environmental parameters.
func deriveTerrain(elev, moist, ore float64, cfg GenConfig) Terrain {
	if elev > cfg.StoneLevel {
		if ore > 0.78 {
			return TerrainOre
		}
		return TerrainStone
	}
	if elev < cfg.WaterLevel {
		return TerrainWater
	}
	if moist > 0.68 {
		return TerrainTree
	}
	if moist < 0.32 {
		return TerrainSoil
	}
	return TerrainGrass
}

// carveEmbark clears a diamond of grass at the map center so the colony
// always has somewhere to stand.
func carveEmbark(m *Map, radius int) {
	center := Center(m)
	for y := center.Y - radius; y <= center.Y+radius; y++ {
		for x := center.X - radius; x <= center.X+radius; x++ {
			p := Point{X: x, Y: y}
			if Manhattan(p, center) <= radius {
				m.SetTerrain(p, TerrainGrass)
			}
		}
	}
}

// Center returns the middle tile of the map.
func Center(m *Map) Point {
	return Point{X: m.Width / 2, Y: m.Height / 2}
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
