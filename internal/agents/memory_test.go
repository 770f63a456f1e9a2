package agents

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/dwarfhold/internal/world"
)

func TestRing_EvictsOldest(t *testing.T) {
	r := NewRing[int](3)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}
	assert.Equal(t, []int{3, 4, 5}, r.All())
	last, ok := r.Last()
	require.True(t, ok)
	assert.Equal(t, 5, last)
}

func TestMemoryBuffersNeverExceedCaps(t *testing.T) {
	d := testDwarf(nil)
	partner := NewDwarf(2, "Bomrek Ironfist", world.Point{}, nil, AspirationSocialite)
	now := time.Now()

	for i := 0; i < 25; i++ {
		RememberThought(d, uint64(i), now, fmt.Sprintf("thought %d", i))
		RememberEvent(d, uint64(i), now, fmt.Sprintf("event %d", i))
		RememberConversation(d, partner, i, now)
	}

	assert.Equal(t, RecentThoughtsCap, d.Memory.RecentThoughts.Len())
	assert.Equal(t, RecentConversationsCap, d.Memory.RecentConversations.Len())
	assert.Equal(t, SignificantEventsCap, d.Memory.SignificantEvents.Len())

	last, _ := d.Memory.RecentThoughts.Last()
	assert.Equal(t, "thought 24", last.Text)
	conv, _ := d.Memory.RecentConversations.Last()
	assert.Equal(t, "talked with Bomrek Ironfist", conv.Summary)
}

func TestVisit(t *testing.T) {
	d := testDwarf(nil)
	assert.True(t, Visit(d, world.Point{X: 1, Y: 1}))
	assert.False(t, Visit(d, world.Point{X: 2, Y: 5}), "same area")
	assert.True(t, Visit(d, world.Point{X: 20, Y: 1}))
	assert.False(t, Visit(d, world.Point{X: 21, Y: 2}))
	assert.True(t, HasVisited(d, world.Point{X: 17, Y: 7}))
}

func TestRecordInteraction_Symmetric(t *testing.T) {
	a := testDwarf(nil)
	b := NewDwarf(2, "Kadol Ashvault", world.Point{}, nil, AspirationGreatBuilder)

	for i := 0; i < 12; i++ {
		RecordInteraction(a, b, 2, uint64(i), LogLine{SpeakerID: a.ID, Text: fmt.Sprintf("line %d", i)})
	}

	for _, side := range []*Relationship{a.Relationships[b.ID], b.Relationships[a.ID]} {
		require.NotNil(t, side)
		assert.Equal(t, 24, side.Affinity)
		assert.Equal(t, 12, side.Interactions)
		assert.Equal(t, uint64(11), side.LastInteractionTick)
		assert.Equal(t, ConversationLogCap, side.ConversationLog.Len())
	}
}

func TestRestore_AfterJSONRoundTrip(t *testing.T) {
	d := testDwarf(Personality{TraitHumor: 0.8})
	other := NewDwarf(2, "Litast Gemcutter", world.Point{}, nil, AspirationDeepDelver)
	RecordInteraction(d, other, 3, 1, LogLine{SpeakerID: other.ID, Text: "hail"})
	d.Mood = 140 // out of range on purpose

	raw, err := json.Marshal(d)
	require.NoError(t, err)

	var back Dwarf
	require.NoError(t, json.Unmarshal(raw, &back))
	back.Restore()

	assert.Equal(t, 100.0, back.Mood)
	assert.Equal(t, 3, Affinity(&back, other.ID))
	assert.Equal(t, ConversationLogCap, back.Relationships[other.ID].ConversationLog.Cap)
	assert.Equal(t, RecentThoughtsCap, back.Memory.RecentThoughts.Cap)
	assert.Equal(t, 0.8, back.Personality.Get(TraitHumor))
}

func TestRestore_TrimsOverlongConversationLog(t *testing.T) {
	d := testDwarf(nil)
	rel := &Relationship{}
	for i := 0; i < ConversationLogCap+4; i++ {
		rel.ConversationLog.Items = append(rel.ConversationLog.Items, LogLine{SpeakerID: 2, Text: fmt.Sprint(i)})
	}
	d.Relationships[2] = rel

	d.Restore()

	log := d.Relationships[2].ConversationLog
	assert.Equal(t, ConversationLogCap, log.Cap)
	require.Equal(t, ConversationLogCap, log.Len())
	last, ok := log.Last()
	require.True(t, ok)
	assert.Equal(t, fmt.Sprint(ConversationLogCap+3), last.Text, "oldest lines dropped")
	assert.Equal(t, "4", log.Items[0].Text)
}

func TestClone_IsIndependent(t *testing.T) {
	d := testDwarf(nil)
	partner := NewDwarf(2, "Bomrek Ironfist", world.Point{}, nil, AspirationSocialite)
	RecordInteraction(d, partner, 3, 1, LogLine{SpeakerID: d.ID, Text: "Hail."})
	RememberThought(d, 1, time.Now(), "first")
	d.Skills[SkillMining] = 0.4

	c := d.Clone()
	RecordInteraction(d, partner, 3, 2, LogLine{SpeakerID: d.ID, Text: "Again."})
	RememberThought(d, 2, time.Now(), "second")
	d.Skills[SkillMining] = 0.9
	Visit(d, world.Point{X: 40, Y: 40})

	assert.Equal(t, 3, c.Relationships[partner.ID].Affinity)
	assert.Equal(t, 1, c.Relationships[partner.ID].ConversationLog.Len())
	assert.Equal(t, 1, c.Memory.RecentThoughts.Len())
	assert.Equal(t, 0.4, c.Skills.Get(SkillMining))
	assert.False(t, HasVisited(c, world.Point{X: 40, Y: 40}))
	assert.Nil(t, c.CurrentTask)
}
