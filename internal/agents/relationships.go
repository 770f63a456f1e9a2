package agents

import "time"

// ConversationLogCap bounds the per-relationship conversation log.
const ConversationLogCap = 10

// LogLine is one line of conversation kept on a relationship.
type LogLine struct {
	SpeakerID DwarfID   `json:"speaker_id"`
	Text      string    `json:"text"`
	At        time.Time `json:"at"`
}

// Relationship is one side of a bond between two dwarves. Both sides are
// updated together by RecordInteraction.
type Relationship struct {
	Affinity            int           `json:"affinity"`
	Interactions        int           `json:"interactions"`
	LastInteractionTick uint64        `json:"last_interaction_tick"`
	ConversationLog     Ring[LogLine] `json:"conversation_log"`
}

// RelationshipWith returns d's relationship toward other, creating it if needed.
func RelationshipWith(d *Dwarf, other DwarfID) *Relationship {
	r, ok := d.Relationships[other]
	if !ok {
		r = &Relationship{ConversationLog: NewRing[LogLine](ConversationLogCap)}
		d.Relationships[other] = r
	}
	return r
}

// RecordInteraction applies an affinity change to both sides of the pair,
// bumps their interaction counters, and appends line to both logs.
func RecordInteraction(a, b *Dwarf, affinity int, tick uint64, line LogLine) {
	for _, pair := range [2][2]*Dwarf{{a, b}, {b, a}} {
		r := RelationshipWith(pair[0], pair[1].ID)
		r.Affinity += affinity
		r.Interactions++
		r.LastInteractionTick = tick
		if line.Text != "" {
			r.ConversationLog.Push(line)
		}
	}
}

// Affinity returns d's affinity toward other, 0 if they have never met.
func Affinity(d *Dwarf, other DwarfID) int {
	if r, ok := d.Relationships[other]; ok {
		return r.Affinity
	}
	return 0
}
