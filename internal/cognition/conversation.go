package cognition

import (
	"fmt"
	"time"

	"github.com/talgya/dwarfhold/internal/agents"
)

// PairKey identifies an unordered pair of dwarves.
func PairKey(a, b agents.DwarfID) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d-%d", a, b)
}

// Message is one line of a conversation.
type Message struct {
	SpeakerID agents.DwarfID `json:"speaker_id"`
	Speaker   string         `json:"speaker"`
	Text      string         `json:"text"`
	Fallback  bool           `json:"fallback"`
	At        time.Time      `json:"at"`
}

// Conversation is a turn-limited exchange between two dwarves. Its ID is the
// pair key, so a pair has at most one active conversation.
type Conversation struct {
	ID           string            `json:"id"`
	Participants [2]agents.DwarfID `json:"participants"`
	Names        [2]string         `json:"names"`
	Messages     []Message         `json:"messages"`
	Turns        int               `json:"turns"`
	StartTime    time.Time         `json:"start_time"`
	EndTime      time.Time         `json:"end_time,omitempty"`
}

func (c *Conversation) clone() Conversation {
	out := *c
	out.Messages = append([]Message(nil), c.Messages...)
	return out
}

// Last returns the most recent message.
func (c *Conversation) Last() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// history renders the last few lines for a prompt.
func (c *Conversation) history(n int) []string {
	start := len(c.Messages) - n
	if start < 0 {
		start = 0
	}
	out := make([]string, 0, len(c.Messages)-start)
	for _, m := range c.Messages[start:] {
		out = append(out, m.Speaker+": "+m.Text)
	}
	return out
}
