// Dwarf memory: bounded buffers of recent thoughts, conversations and
// significant events, plus the set of explored areas.
package agents

import (
	"time"

	"github.com/talgya/dwarfhold/internal/world"
)

const (
	RecentThoughtsCap      = 5
	RecentConversationsCap = 3
	SignificantEventsCap   = 10
)

// MemoryEntry is a single remembered line.
type MemoryEntry struct {
	Tick uint64    `json:"tick"`
	At   time.Time `json:"at"`
	Text string    `json:"text"`
}

// ConversationMemory summarizes a finished conversation.
type ConversationMemory struct {
	PartnerID DwarfID   `json:"partner_id"`
	Partner   string    `json:"partner"`
	Turns     int       `json:"turns"`
	Summary   string    `json:"summary"`
	At        time.Time `json:"at"`
}

// Memory holds everything a dwarf remembers.
type Memory struct {
	RecentThoughts      Ring[MemoryEntry]        `json:"recent_thoughts"`
	RecentConversations Ring[ConversationMemory] `json:"recent_conversations"`
	SignificantEvents   Ring[MemoryEntry]        `json:"significant_events"`
	VisitedAreas        map[string]bool          `json:"visited_areas"`
}

// NewMemory returns empty buffers at their fixed capacities.
func NewMemory() Memory {
	return Memory{
		RecentThoughts:      NewRing[MemoryEntry](RecentThoughtsCap),
		RecentConversations: NewRing[ConversationMemory](RecentConversationsCap),
		SignificantEvents:   NewRing[MemoryEntry](SignificantEventsCap),
		VisitedAreas:        make(map[string]bool),
	}
}

func (m *Memory) restoreCaps() {
	m.RecentThoughts.setCap(RecentThoughtsCap)
	m.RecentConversations.setCap(RecentConversationsCap)
	m.SignificantEvents.setCap(SignificantEventsCap)
	if m.VisitedAreas == nil {
		m.VisitedAreas = make(map[string]bool)
	}
}

// RememberThought records a thought.
func RememberThought(d *Dwarf, tick uint64, at time.Time, text string) {
	d.Memory.RecentThoughts.Push(MemoryEntry{Tick: tick, At: at, Text: text})
}

// RememberEvent records a significant event.
func RememberEvent(d *Dwarf, tick uint64, at time.Time, text string) {
	d.Memory.SignificantEvents.Push(MemoryEntry{Tick: tick, At: at, Text: text})
}

// RememberConversation records a finished conversation with partner.
func RememberConversation(d *Dwarf, partner *Dwarf, turns int, at time.Time) {
	d.Memory.RecentConversations.Push(ConversationMemory{
		PartnerID: partner.ID,
		Partner:   partner.Name,
		Turns:     turns,
		Summary:   "talked with " + partner.Name,
		At:        at,
	})
}

// Visit marks the area containing p as explored. Returns true the first time.
func Visit(d *Dwarf, p world.Point) bool {
	key := world.AreaOf(p).Key()
	if d.Memory.VisitedAreas[key] {
		return false
	}
	d.Memory.VisitedAreas[key] = true
	return true
}

// HasVisited reports whether the area containing p has been explored.
func HasVisited(d *Dwarf, p world.Point) bool {
	return d.Memory.VisitedAreas[world.AreaOf(p).Key()]
}
