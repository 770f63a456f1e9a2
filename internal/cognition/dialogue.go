package cognition

import (
	"sort"

	"go.uber.org/zap"

	"github.com/talgya/dwarfhold/internal/agents"
	"github.com/talgya/dwarfhold/internal/llm"
	"github.com/talgya/dwarfhold/internal/world"
)

// spoken is the outcome of one speech request.
type spoken struct {
	text     string
	fallback bool
	ok       bool
}

// initiate opens a conversation if the pair is still together and free.
func (e *Engine) initiate(speakerID, listenerID agents.DwarfID) {
	key := PairKey(speakerID, listenerID)
	s, l, ok := e.pair(speakerID, listenerID)
	if !ok || e.active[key] != nil {
		delete(e.starting, key)
		return
	}

	e.speak(s, l, nil, func(out spoken) {
		delete(e.starting, key)
		s, l, ok := e.pair(speakerID, listenerID)
		if !out.ok || !ok || e.active[key] != nil {
			return
		}
		conv := &Conversation{
			ID:           key,
			Participants: [2]agents.DwarfID{s.ID, l.ID},
			Names:        [2]string{s.Name, l.Name},
			StartTime:    e.clock.Now(),
		}
		e.active[key] = conv
		e.stats.ConversationsStarted++
		e.logger.Debug("conversation started", zap.String("id", key), zap.String("speaker", s.Name), zap.String("listener", l.Name))

		e.addTurn(conv, s, l, out, true)
		e.scheduleReply(conv, l.ID, s.ID)
	})
}

func (e *Engine) scheduleReply(conv *Conversation, speakerID, listenerID agents.DwarfID) {
	e.sched.After(e.jitter(responseMin, responseSpan), func() { e.respond(conv, speakerID, listenerID) })
}

// respond takes the next turn. A conversation that hit its turn limit, lost
// a participant, or drifted apart ends instead.
func (e *Engine) respond(conv *Conversation, speakerID, listenerID agents.DwarfID) {
	if e.active[conv.ID] != conv {
		return
	}
	if conv.Turns >= e.cfg.MaxTurns {
		e.end(conv)
		return
	}
	s, l, ok := e.pair(speakerID, listenerID)
	if !ok {
		e.end(conv)
		return
	}

	e.speak(s, l, conv, func(out spoken) {
		if e.active[conv.ID] != conv {
			return
		}
		s, l, ok := e.pair(speakerID, listenerID)
		if !out.ok || !ok || conv.Turns >= e.cfg.MaxTurns {
			e.end(conv)
			return
		}
		e.addTurn(conv, s, l, out, false)

		if conv.Turns < e.cfg.MaxTurns && e.rng.Float64() < e.cfg.ContinueChance {
			e.scheduleReply(conv, listenerID, speakerID)
			return
		}
		e.sched.After(endDelay, func() { e.end(conv) })
	})
}

// pair looks both dwarves up again and checks they can still talk.
func (e *Engine) pair(aID, bID agents.DwarfID) (*agents.Dwarf, *agents.Dwarf, bool) {
	a, b := e.world.Dwarf(aID), e.world.Dwarf(bID)
	if a == nil || b == nil || !a.Alive || !b.Alive {
		return nil, nil, false
	}
	if world.Manhattan(a.Pos, b.Pos) > e.cfg.ExtendedRange {
		return nil, nil, false
	}
	return a, b, true
}

// speak produces a line for s addressed to l. Offline it answers at once
// with a fallback line; online the answer arrives through the scheduler and
// a failed generation reports !ok.
func (e *Engine) speak(s, l *agents.Dwarf, conv *Conversation, done func(spoken)) {
	if !e.Online() {
		done(spoken{text: FallbackSpeech(e.rng, s), fallback: true, ok: true})
		return
	}

	sc := llm.SpeechContext{
		Speaker:       s.Name,
		SpeakerTraits: describeTraits(s),
		Listener:      l.Name,
		Affinity:      agents.Affinity(s, l.ID),
		Activity:      s.Activity.String(),
	}
	if m := e.world.Map(); m != nil {
		sc.Tile = m.Describe(s.Pos)
	}
	if conv != nil {
		sc.Turn = conv.Turns
		if last, ok := conv.Last(); ok {
			sc.LastLine = last.Text
		}
		sc.History = conv.history(historyLines)
	}

	name := s.Name
	req := llm.Request{Prompt: llm.SpeechPrompt(sc), Options: e.cfg.Options}
	e.queue.Submit(req, func(r llm.Result) {
		e.sched.Post(func() {
			if !r.OK() {
				e.logger.Debug("speech generation failed", zap.String("speaker", name), zap.Error(r.Err))
				done(spoken{})
				return
			}
			text := llm.Clean(r.Text, name)
			done(spoken{text: text, ok: text != ""})
		})
	})
}

func (e *Engine) addTurn(conv *Conversation, s, l *agents.Dwarf, out spoken, opening bool) {
	now := e.clock.Now()
	tick := e.world.Tick()

	conv.Messages = append(conv.Messages, Message{SpeakerID: s.ID, Speaker: s.Name, Text: out.text, Fallback: out.fallback, At: now})
	conv.Turns++
	agents.RecordInteraction(s, l, affinityDelta(s, l, opening), tick, agents.LogLine{SpeakerID: s.ID, Text: out.text, At: now})
	e.stats.Speeches++

	e.out.OnSpeech(SpeechNote{
		ConversationID: conv.ID,
		SpeakerID:      s.ID,
		Speaker:        s.Name,
		ListenerID:     l.ID,
		Listener:       l.Name,
		Text:           out.text,
		Turn:           conv.Turns,
		Fallback:       out.fallback,
		At:             now,
	})
}

// end removes a conversation. Conversations of two or more turns are
// remembered by both participants.
func (e *Engine) end(conv *Conversation) {
	if e.active[conv.ID] != conv {
		return
	}
	delete(e.active, conv.ID)
	conv.EndTime = e.clock.Now()

	if conv.Turns >= 2 {
		a, b := e.world.Dwarf(conv.Participants[0]), e.world.Dwarf(conv.Participants[1])
		if a != nil && b != nil {
			agents.RememberConversation(a, b, conv.Turns, conv.EndTime)
			agents.RememberConversation(b, a, conv.Turns, conv.EndTime)
		}
	}

	done := conv.clone()
	e.ended = appendCapped(e.ended, done)
	e.unsaved = appendCapped(e.unsaved, done)
	e.stats.ConversationsEnded++
	e.logger.Debug("conversation ended", zap.String("id", conv.ID), zap.Int("turns", conv.Turns))
	e.out.OnConversationEnd(done)
}

func appendCapped(list []Conversation, c Conversation) []Conversation {
	list = append(list, c)
	if len(list) > endedCap {
		list = append([]Conversation(nil), list[len(list)-endedCap:]...)
	}
	return list
}

// ActiveConversations returns copies of the running conversations ordered by
// start time.
func (e *Engine) ActiveConversations() []Conversation {
	out := make([]Conversation, 0, len(e.active))
	for _, c := range e.active {
		out = append(out, c.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// InConversation reports whether the pair currently has an active
// conversation.
func (e *Engine) InConversation(a, b agents.DwarfID) bool {
	return e.active[PairKey(a, b)] != nil
}

// RecentConversations returns up to n finished conversations, newest last.
func (e *Engine) RecentConversations(n int) []Conversation {
	if n <= 0 || n > len(e.ended) {
		n = len(e.ended)
	}
	return append([]Conversation(nil), e.ended[len(e.ended)-n:]...)
}

// DrainEnded returns the conversations finished since the last call.
func (e *Engine) DrainEnded() []Conversation {
	out := e.unsaved
	e.unsaved = nil
	return out
}

// RequeueEnded puts conversations taken by DrainEnded back ahead of any
// finished since, for a checkpoint that failed to save.
func (e *Engine) RequeueEnded(list []Conversation) {
	if len(list) == 0 {
		return
	}
	merged := append(append([]Conversation(nil), list...), e.unsaved...)
	if len(merged) > endedCap {
		merged = merged[len(merged)-endedCap:]
	}
	e.unsaved = merged
}
