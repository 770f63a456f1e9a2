package cognition

import (
	"math/rand"

	"github.com/talgya/dwarfhold/internal/agents"
)

// Category groups the events that prompt a thought.
type Category string

const (
	CategoryMeeting     Category = "meeting"
	CategoryFoodFound   Category = "food_found"
	CategoryHunger      Category = "hunger"
	CategoryObservation Category = "observation"
)

var thoughtLines = map[Category][]string{
	CategoryMeeting: {
		"Good to see a familiar beard.",
		"Another dwarf! Perhaps they have news.",
		"I wonder what they have been digging.",
		"Company makes the tunnels feel less empty.",
	},
	CategoryFoodFound: {
		"Food at last. My belly thanks the mountain.",
		"Not a feast, but it will do.",
		"That hit the spot.",
		"A meal like that could make a dwarf sing.",
	},
	CategoryHunger: {
		"My stomach is grumbling louder than a cave-in.",
		"I could eat a whole plump helmet right now.",
		"Hard to swing a pick on an empty belly.",
		"When did I last eat? Too long ago.",
	},
	CategoryObservation: {
		"The stone here has a good feel to it.",
		"Strange how the light falls in this place.",
		"I should remember this spot.",
		"There is always more to see under the mountain.",
	},
}

// Speech lines by dominant trait.
var speechLines = map[agents.Trait][]string{
	agents.TraitFriendliness: {
		"Hello, friend! How goes the work?",
		"Always glad to run into you.",
		"Come, tell me what you have been up to.",
		"We should share an ale after this shift.",
	},
	agents.TraitHumor: {
		"Did you hear about the dwarf who dug too deep? Me neither, nobody came back to tell it.",
		"I would tell you a joke about stone, but it might fall flat.",
		"Careful, your beard is showing.",
		"They say rocks do not talk. They have clearly never met you.",
	},
	agents.TraitMelancholy: {
		"The mountain is heavy today.",
		"Do you ever wonder if the tunnels end?",
		"Everything crumbles eventually, even granite.",
		"I suppose it is good to see you. I suppose.",
	},
}

// ThoughtLines returns the fallback thoughts for a category. Unknown
// categories use the observation set.
func ThoughtLines(c Category) []string {
	if lines, ok := thoughtLines[c]; ok {
		return lines
	}
	return thoughtLines[CategoryObservation]
}

// SpeechLines returns the fallback speech for a dominant trait.
func SpeechLines(t agents.Trait) []string {
	if lines, ok := speechLines[t]; ok {
		return lines
	}
	return speechLines[agents.TraitFriendliness]
}

// FallbackThought picks a canned thought for the category. Never empty.
func FallbackThought(rng *rand.Rand, d *agents.Dwarf, c Category) string {
	lines := ThoughtLines(c)
	return lines[rng.Intn(len(lines))]
}

// FallbackSpeech picks a canned line in the voice of the speaker's
// strongest social trait. Never empty.
func FallbackSpeech(rng *rand.Rand, d *agents.Dwarf) string {
	lines := SpeechLines(d.DominantTrait(agents.TraitFriendliness, agents.TraitHumor, agents.TraitMelancholy))
	return lines[rng.Intn(len(lines))]
}
