// Dwarf spawning. Creates the founding colony with personalities, skills,
// and aspirations.
package agents

import (
	"math/rand"

	"github.com/talgya/dwarfhold/internal/world"
)

// Spawner creates dwarves for the simulation.
type Spawner struct {
	rng    *rand.Rand
	nextID DwarfID
}

// NewSpawner creates a dwarf spawner with the given seed.
func NewSpawner(seed int64) *Spawner {
	return &Spawner{
		rng:    rand.New(rand.NewSource(seed + 300)),
		nextID: 1,
	}
}

// SetNextID sets the next dwarf ID to be issued (used when restoring from DB).
func (s *Spawner) SetNextID(id DwarfID) {
	s.nextID = id
}

// SpawnColony creates count dwarves on passable tiles around center.
func (s *Spawner) SpawnColony(count int, m *world.Map, center world.Point) []*Dwarf {
	spots := passableAround(m, center, count)
	dwarves := make([]*Dwarf, 0, count)
	for i := 0; i < count; i++ {
		pos := center
		if i < len(spots) {
			pos = spots[i]
		}
		dwarves = append(dwarves, s.spawnOne(pos))
	}
	return dwarves
}

func (s *Spawner) spawnOne(pos world.Point) *Dwarf {
	id := s.nextID
	s.nextID++

	personality := make(Personality, len(AllTraits))
	for _, t := range AllTraits {
		personality[t] = clampUnit(0.5 + s.rng.NormFloat64()*0.22)
	}

	aspiration := Aspiration(s.rng.Intn(NumAspirations))

	d := NewDwarf(id, s.generateName(), pos, personality, aspiration)
	d.Skills = s.skillsFor(aspiration)
	d.Hunger = 10 + s.rng.Float64()*25
	d.Mood = 55 + s.rng.Float64()*25
	for n := range d.Fulfillment {
		d.Fulfillment[n] = 55 + s.rng.Float64()*35
	}
	Visit(d, pos)
	return d
}

// skillsFor gives every dwarf a little of everything and a head start in the
// skill matching their aspiration.
func (s *Spawner) skillsFor(a Aspiration) SkillSet {
	skills := SkillSet{
		SkillMining:   0.1 + s.rng.Float64()*0.15,
		SkillBuilding: 0.1 + s.rng.Float64()*0.15,
		SkillCrafting: 0.1 + s.rng.Float64()*0.15,
		SkillCombat:   0.05 + s.rng.Float64()*0.15,
		SkillSocial:   0.1 + s.rng.Float64()*0.15,
	}
	switch a {
	case AspirationMasterCraftsman:
		skills.Improve(SkillCrafting, 0.25)
	case AspirationGreatBuilder:
		skills.Improve(SkillBuilding, 0.25)
	case AspirationDeepDelver:
		skills.Improve(SkillMining, 0.25)
	case AspirationSocialite:
		skills.Improve(SkillSocial, 0.25)
	}
	return skills
}

var (
	namePrefixes = []string{
		"Urist", "Bomrek", "Kadol", "Litast", "Mafol", "Dodok", "Ingiz", "Rigoth",
		"Zasit", "Tobul", "Asmel", "Erith", "Kogan", "Udib", "Sibrek", "Fikod",
	}
	clanNames = []string{
		"Stonebeard", "Copperhand", "Deepdelver", "Ironfist", "Mugbreaker",
		"Anvilsong", "Gemcutter", "Ashvault", "Boulderback", "Oakheart",
	}
)

func (s *Spawner) generateName() string {
	return namePrefixes[s.rng.Intn(len(namePrefixes))] + " " + clanNames[s.rng.Intn(len(clanNames))]
}

// passableAround returns up to n distinct passable tiles, nearest first.
func passableAround(m *world.Map, center world.Point, n int) []world.Point {
	var out []world.Point
	for r := 0; len(out) < n && r < m.Width+m.Height; r++ {
		for dy := -r; dy <= r && len(out) < n; dy++ {
			for dx := -r; dx <= r && len(out) < n; dx++ {
				p := center.Add(dx, dy)
				if world.Manhattan(p, center) != r || !m.Passable(p) {
					continue
				}
				out = append(out, p)
			}
		}
	}
	return out
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
