package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/dwarfhold/internal/agents"
	"github.com/talgya/dwarfhold/internal/cognition"
	"github.com/talgya/dwarfhold/internal/engine"
	"github.com/talgya/dwarfhold/internal/world"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDwarves_SaveAndLoad(t *testing.T) {
	db := openTemp(t)
	assert.False(t, db.HasWorldState())

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := agents.NewDwarf(1, "Urist Stonebeard", world.Point{X: 3, Y: 4},
		agents.Personality{agents.TraitCuriosity: 0.8}, agents.AspirationDeepDelver)
	b := agents.NewDwarf(2, "Bomrek Ironfist", world.Point{X: 4, Y: 4}, nil, agents.AspirationSocialite)
	a.Skills[agents.SkillMining] = 0.45
	a.Hunger = 42.5
	a.CurrentThought = "The rock sings."
	agents.RememberThought(a, 10, now, "The rock sings.")
	agents.RecordInteraction(a, b, 3, 10, agents.LogLine{SpeakerID: 1, Text: "Hail.", At: now})
	agents.RememberConversation(a, b, 4, now)
	agents.Visit(a, a.Pos)
	b.Alive = false

	require.NoError(t, db.SaveDwarves([]*agents.Dwarf{a, b}))
	assert.True(t, db.HasWorldState())

	loaded, err := db.LoadDwarves()
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	got := loaded[0]
	assert.Equal(t, a.Name, got.Name)
	assert.Equal(t, a.Pos, got.Pos)
	assert.Equal(t, agents.AspirationDeepDelver, got.Aspiration)
	assert.Equal(t, 42.5, got.Hunger)
	assert.Equal(t, 0.8, got.Personality.Get(agents.TraitCuriosity))
	assert.Equal(t, 0.45, got.Skills.Get(agents.SkillMining))
	assert.Equal(t, "The rock sings.", got.CurrentThought)
	assert.Equal(t, 3, agents.Affinity(got, 2))
	assert.Equal(t, 1, got.Relationships[2].ConversationLog.Len())
	assert.Equal(t, agents.ConversationLogCap, got.Relationships[2].ConversationLog.Cap)
	assert.Equal(t, agents.RecentThoughtsCap, got.Memory.RecentThoughts.Cap)
	assert.True(t, agents.HasVisited(got, a.Pos))
	assert.True(t, got.Alive)
	assert.False(t, loaded[1].Alive)

	// Full replace.
	require.NoError(t, db.SaveDwarves([]*agents.Dwarf{a}))
	loaded, err = db.LoadDwarves()
	require.NoError(t, err)
	assert.Len(t, loaded, 1)
}

func TestConversations_SaveAndRecent(t *testing.T) {
	db := openTemp(t)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var convs []cognition.Conversation
	for i := 0; i < 3; i++ {
		convs = append(convs, cognition.Conversation{
			ID:           cognition.PairKey(1, 2),
			Participants: [2]agents.DwarfID{1, 2},
			Turns:        2,
			StartTime:    start.Add(time.Duration(i) * time.Minute),
			EndTime:      start.Add(time.Duration(i)*time.Minute + 10*time.Second),
			Messages: []cognition.Message{
				{SpeakerID: 1, Speaker: "Urist", Text: "Hail."},
				{SpeakerID: 2, Speaker: "Bomrek", Text: "Well met."},
			},
		})
	}
	require.NoError(t, db.SaveConversations(convs))
	require.NoError(t, db.SaveConversations(nil))

	got, err := db.RecentConversations(2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.NotEqual(t, got[0].ID, got[1].ID)
	assert.Equal(t, convs[2].EndTime, got[0].Conversation.EndTime)
	assert.Equal(t, [2]string{"Urist", "Bomrek"}, got[0].Conversation.Names)
	assert.Equal(t, "1-2", got[0].Conversation.ID)
}

func TestMeta(t *testing.T) {
	db := openTemp(t)

	v, err := db.GetMeta("missing")
	require.NoError(t, err)
	assert.Empty(t, v)
	assert.Zero(t, db.LastTick())

	require.NoError(t, db.SaveWorldState(engine.Checkpoint{Tick: 1234}, 42))
	assert.Equal(t, uint64(1234), db.LastTick())

	seed, err := db.GetMeta("seed")
	require.NoError(t, err)
	assert.Equal(t, "42", seed)
}

func TestSaveWorldState_FailureWritesNothing(t *testing.T) {
	db := openTemp(t)
	a := agents.NewDwarf(1, "Urist Stonebeard", world.Point{X: 3, Y: 4}, nil, agents.AspirationDeepDelver)
	b := agents.NewDwarf(2, "Bomrek Ironfist", world.Point{X: 4, Y: 4}, nil, agents.AspirationSocialite)
	require.NoError(t, db.SaveWorldState(engine.Checkpoint{Tick: 10, Dwarves: []*agents.Dwarf{a}}, 42))

	// Make the conversation insert, the second write, fail.
	_, err := db.conn.Exec("DROP TABLE conversations")
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	err = db.SaveWorldState(engine.Checkpoint{
		Tick:    20,
		Dwarves: []*agents.Dwarf{a, b},
		Conversations: []cognition.Conversation{{
			ID:           cognition.PairKey(1, 2),
			Participants: [2]agents.DwarfID{1, 2},
			StartTime:    now,
			EndTime:      now,
		}},
	}, 43)
	require.Error(t, err)

	loaded, err := db.LoadDwarves()
	require.NoError(t, err)
	assert.Len(t, loaded, 1, "dwarves rolled back")
	assert.Equal(t, uint64(10), db.LastTick())
	seed, err := db.GetMeta("seed")
	require.NoError(t, err)
	assert.Equal(t, "42", seed)
}

func TestRecentConversations_CorruptTimestamp(t *testing.T) {
	db := openTemp(t)
	_, err := db.conn.Exec(`INSERT INTO conversations
		(id, pair_key, speaker_a, speaker_b, turns, started_at, ended_at, messages_json)
		VALUES ('x', '1-2', 1, 2, 2, 'yesterday', '2026-03-01T12:00:00.000000000Z', '[]')`)
	require.NoError(t, err)

	_, err = db.RecentConversations(5)
	assert.ErrorContains(t, err, "started_at")
}
