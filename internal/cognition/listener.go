package cognition

import (
	"time"

	"go.uber.org/zap"

	"github.com/talgya/dwarfhold/internal/agents"
)

// ThoughtNote is a thought as presented to listeners.
type ThoughtNote struct {
	DwarfID  agents.DwarfID `json:"dwarf_id"`
	Name     string         `json:"name"`
	Text     string         `json:"text"`
	Category Category       `json:"category"`
	Fallback bool           `json:"fallback"`
	Tick     uint64         `json:"tick"`
	At       time.Time      `json:"at"`
}

// SpeechNote is one line of conversation as presented to listeners.
type SpeechNote struct {
	ConversationID string         `json:"conversation_id"`
	SpeakerID      agents.DwarfID `json:"speaker_id"`
	Speaker        string         `json:"speaker"`
	ListenerID     agents.DwarfID `json:"listener_id"`
	Listener       string         `json:"listener"`
	Text           string         `json:"text"`
	Turn           int            `json:"turn"`
	Fallback       bool           `json:"fallback"`
	At             time.Time      `json:"at"`
}

// Listener receives fire-and-forget notifications. Listeners get copies and
// must not touch dwarves. Calls happen on the simulation goroutine, so
// implementations should hand slow work off.
type Listener interface {
	OnThought(ThoughtNote)
	OnSpeech(SpeechNote)
	OnSidebarUpdate([]ThoughtNote)
	OnConversationEnd(Conversation)
}

// NopListener ignores everything. Embed it to implement part of Listener.
type NopListener struct{}

func (NopListener) OnThought(ThoughtNote)          {}
func (NopListener) OnSpeech(SpeechNote)            {}
func (NopListener) OnSidebarUpdate([]ThoughtNote)  {}
func (NopListener) OnConversationEnd(Conversation) {}

// Listeners fans notifications out to several listeners. A panicking
// listener is logged and skipped; the others still run.
type Listeners struct {
	list   []Listener
	logger *zap.Logger
}

func NewListeners(logger *zap.Logger, ls ...Listener) *Listeners {
	return &Listeners{list: ls, logger: logger}
}

// Add registers another listener.
func (l *Listeners) Add(ls Listener) {
	l.list = append(l.list, ls)
}

func (l *Listeners) each(event string, fn func(Listener)) {
	for _, ls := range l.list {
		l.call(event, ls, fn)
	}
}

func (l *Listeners) call(event string, ls Listener, fn func(Listener)) {
	defer func() {
		if p := recover(); p != nil {
			l.logger.Error("listener panicked", zap.String("event", event), zap.Any("panic", p))
		}
	}()
	fn(ls)
}

func (l *Listeners) OnThought(n ThoughtNote) {
	l.each("thought", func(ls Listener) { ls.OnThought(n) })
}

func (l *Listeners) OnSpeech(n SpeechNote) {
	l.each("speech", func(ls Listener) { ls.OnSpeech(n) })
}

func (l *Listeners) OnSidebarUpdate(list []ThoughtNote) {
	l.each("sidebar", func(ls Listener) { ls.OnSidebarUpdate(list) })
}

func (l *Listeners) OnConversationEnd(c Conversation) {
	l.each("conversation_end", func(ls Listener) { ls.OnConversationEnd(c) })
}
