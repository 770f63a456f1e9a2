package cognition

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/talgya/dwarfhold/internal/agents"
	"github.com/talgya/dwarfhold/internal/world"
)

func TestFallbackThought_AlwaysFromCategorySet(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	d := agents.NewDwarf(1, "Urist", world.Point{}, nil, agents.AspirationExplorer)

	for _, c := range []Category{CategoryMeeting, CategoryFoodFound, CategoryHunger, CategoryObservation, "unknown"} {
		for i := 0; i < 20; i++ {
			text := FallbackThought(rng, d, c)
			assert.NotEmpty(t, text)
			assert.Contains(t, ThoughtLines(c), text)
		}
	}
}

func TestFallbackSpeech_FollowsDominantTrait(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	tests := []struct {
		name   string
		traits agents.Personality
		want   agents.Trait
	}{
		{"friendly", agents.Personality{agents.TraitFriendliness: 0.9, agents.TraitHumor: 0.2}, agents.TraitFriendliness},
		{"funny", agents.Personality{agents.TraitFriendliness: 0.3, agents.TraitHumor: 0.8}, agents.TraitHumor},
		{"gloomy", agents.Personality{agents.TraitMelancholy: 0.7}, agents.TraitMelancholy},
		{"flat", agents.Personality{}, agents.TraitFriendliness},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := agents.NewDwarf(1, "Urist", world.Point{}, tt.traits, agents.AspirationExplorer)
			for i := 0; i < 10; i++ {
				assert.Contains(t, SpeechLines(tt.want), FallbackSpeech(rng, d))
			}
		})
	}
}
