package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccessors_Defaults(t *testing.T) {
	t.Setenv("SERVER_PORT", "")
	t.Setenv("GENERATION_URL", "")
	t.Setenv("TALK_RPS", "-1")
	t.Setenv("COLONY_SIZE", "zero")
	t.Setenv("WORLD_SEED", "")

	assert.Equal(t, ":8080", ServerAddr())
	assert.Equal(t, "http://localhost:11434", GenerationURL())
	assert.Equal(t, 0.5, TalkRPS())
	assert.Equal(t, 7, ColonySize())
	assert.Equal(t, int64(42), WorldSeed())
}

func TestAccessors_Overrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("GENERATION_URL", "none")
	t.Setenv("WORLD_SEED", "-7")
	t.Setenv("CORS_ORIGINS", " https://a.example , ,https://b.example")

	assert.Equal(t, ":9000", ServerAddr())
	assert.Empty(t, GenerationURL())
	assert.Equal(t, int64(-7), WorldSeed())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, CORSOrigins())
}
