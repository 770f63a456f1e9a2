package cognition

import (
	"time"

	"github.com/talgya/dwarfhold/internal/agents"
	"github.com/talgya/dwarfhold/internal/llm"
)

// TalkConversationID tags visitor exchanges in speech notifications.
const TalkConversationID = "visitor"

// TalkReply is a dwarf's answer to a visitor.
type TalkReply struct {
	DwarfID  agents.DwarfID `json:"dwarf_id"`
	Name     string         `json:"name"`
	Message  string         `json:"message"`
	Reply    string         `json:"reply"`
	Fallback bool           `json:"fallback"`
	At       time.Time      `json:"at"`
}

// TalkRequest builds the generation request for answering a visitor. It only
// reads d, so callers may run it under a read lock.
func (e *Engine) TalkRequest(d *agents.Dwarf, message string) llm.Request {
	tc := llm.TalkContext{
		Name:       d.Name,
		Traits:     describeTraits(d),
		Aspiration: d.Aspiration.String(),
		Mood:       d.Mood,
		Activity:   d.Activity.String(),
		Message:    message,
	}
	for _, m := range d.Memory.RecentThoughts.All() {
		tc.Recent = append(tc.Recent, m.Text)
	}
	return llm.Request{Prompt: llm.TalkPrompt(tc), Options: e.cfg.Options}
}

// RecordTalk stores a visitor exchange on the dwarf. An empty reply is
// replaced by a fallback line. Must run on the simulation goroutine.
func (e *Engine) RecordTalk(d *agents.Dwarf, message, reply string) TalkReply {
	now := e.clock.Now()
	fallback := reply == ""
	if fallback {
		reply = FallbackSpeech(e.rng, d)
	}
	agents.RememberEvent(d, e.world.Tick(), now, "a stranger said: "+message)

	e.stats.Speeches++
	e.out.OnSpeech(SpeechNote{
		ConversationID: TalkConversationID,
		SpeakerID:      d.ID,
		Speaker:        d.Name,
		Listener:       "stranger",
		Text:           reply,
		Fallback:       fallback,
		At:             now,
	})
	return TalkReply{DwarfID: d.ID, Name: d.Name, Message: message, Reply: reply, Fallback: fallback, At: now}
}
