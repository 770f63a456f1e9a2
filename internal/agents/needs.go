// Vitals and the four-dimensional fulfillment model.
// Hunger rises over time but is capped below a lethal value; it only degrades
// mood and decision quality. Fulfillment decays and is restored by activities.
package agents

// Need is one of the fulfillment dimensions.
type Need uint8

const (
	NeedSocial Need = iota
	NeedExploration
	NeedCreativity
	NeedTranquility
)

// NumNeeds is the number of fulfillment dimensions.
const NumNeeds = 4

// Fulfillment is a fixed-size array indexed by Need, each 0–100.
type Fulfillment [NumNeeds]float64

// Get returns the level of a need.
func (f Fulfillment) Get(n Need) float64 {
	return f[n]
}

type needDef struct {
	name    string
	decay   float64 // Points lost per decay step
	satisfy float64 // Points gained per Satisfy at multiplier 1
	trait   Trait   // Correlated personality trait
}

var needDefs = [NumNeeds]needDef{
	NeedSocial:      {name: "social", decay: 1.2, satisfy: 25, trait: TraitFriendliness},
	NeedExploration: {name: "exploration", decay: 0.8, satisfy: 15, trait: TraitCuriosity},
	NeedCreativity:  {name: "creativity", decay: 0.6, satisfy: 20, trait: TraitCreativity},
	NeedTranquility: {name: "tranquility", decay: 0.5, satisfy: 15, trait: TraitMelancholy},
}

func (n Need) String() string {
	if int(n) < NumNeeds {
		return needDefs[n].name
	}
	return "unknown"
}

// SatisfyAmount is the points gained by Satisfy at multiplier 1.
func (n Need) SatisfyAmount() float64 {
	return needDefs[n].satisfy
}

// Trait returns the personality trait correlated with the need.
func (n Need) Trait() Trait {
	return needDefs[n].trait
}

const (
	HungryThreshold   = 60.0
	CriticalThreshold = 85.0
	// HungerCap keeps hunger below a lethal level.
	HungerCap = 95.0

	// HungerPerTick is the hunger gained each tick.
	HungerPerTick = 0.08

	// PressingThreshold is the minimum urgency for a need to drive behavior.
	PressingThreshold = 30.0

	strongTrait     = 0.6
	strongTraitRate = 1.5
	moodShare       = 0.3
)

// DecayFulfillment lowers every fulfillment dimension by its decay rate,
// scaled up when the correlated trait is strong. Floors at zero.
func DecayFulfillment(d *Dwarf) {
	for n := Need(0); n < NumNeeds; n++ {
		ns := needDefs[n]
		rate := ns.decay
		if d.Personality.Get(ns.trait) > strongTrait {
			rate *= strongTraitRate
		}
		d.Fulfillment[n] = clamp(d.Fulfillment[n] - rate)
	}
}

// Satisfy raises a need by its satisfy amount times multiplier, capped at 100,
// and lifts mood by a share of the actual gain.
func Satisfy(d *Dwarf, n Need, multiplier float64) {
	before := d.Fulfillment[n]
	d.Fulfillment[n] = clamp(before + needDefs[n].satisfy*multiplier)
	AdjustMood(d, (d.Fulfillment[n]-before)*moodShare)
}

// MostPressingNeed returns the need with the highest urgency, where
// urgency = (100 - level) × (0.5 + trait). Returns false when no need exceeds
// PressingThreshold. Ties resolve to the lower Need value.
func MostPressingNeed(d *Dwarf) (Need, float64, bool) {
	best := Need(0)
	bestUrgency := -1.0
	for n := Need(0); n < NumNeeds; n++ {
		urgency := (100 - d.Fulfillment[n]) * (0.5 + d.Personality.Get(needDefs[n].trait))
		if urgency > bestUrgency {
			best, bestUrgency = n, urgency
		}
	}
	if bestUrgency <= PressingThreshold {
		return 0, 0, false
	}
	return best, bestUrgency, true
}

// IsHungry reports hunger at or above HungryThreshold.
func IsHungry(d *Dwarf) bool {
	return d.Hunger >= HungryThreshold
}

// IsCritical reports hunger at or above CriticalThreshold.
func IsCritical(d *Dwarf) bool {
	return d.Hunger >= CriticalThreshold
}

// Metabolize advances hunger by one tick. Hunger past the hungry threshold
// slowly erodes mood.
func Metabolize(d *Dwarf) {
	d.Hunger += HungerPerTick
	if d.Hunger > HungerCap {
		d.Hunger = HungerCap
	}
	if IsHungry(d) {
		AdjustMood(d, -0.02)
	}
}

// Feed lowers hunger by the given nutrition.
func Feed(d *Dwarf, nutrition float64) {
	d.Hunger = clamp(d.Hunger - nutrition)
}

// AdjustMood changes mood by delta, clamped to [0, 100].
func AdjustMood(d *Dwarf, delta float64) {
	d.Mood = clamp(d.Mood + delta)
}

// Damage lowers health. A dwarf at zero health dies.
func Damage(d *Dwarf, amount float64) {
	d.Health = clamp(d.Health - amount)
	if d.Health <= 0 {
		d.Alive = false
	}
}

// ClampVitals forces every bounded field back into [0, 100].
func ClampVitals(d *Dwarf) {
	d.Hunger = clamp(d.Hunger)
	if d.Hunger > HungerCap {
		d.Hunger = HungerCap
	}
	d.Mood = clamp(d.Mood)
	d.Health = clamp(d.Health)
	for n := range d.Fulfillment {
		d.Fulfillment[n] = clamp(d.Fulfillment[n])
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
