package cognition

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/talgya/dwarfhold/internal/agents"
	"github.com/talgya/dwarfhold/internal/events"
	"github.com/talgya/dwarfhold/internal/llm"
	"github.com/talgya/dwarfhold/internal/world"
)

type fakeWorld struct {
	dwarves []*agents.Dwarf
	tick    uint64
}

func (w *fakeWorld) Dwarves() []*agents.Dwarf { return w.dwarves }
func (w *fakeWorld) Map() *world.Map          { return nil }
func (w *fakeWorld) Tick() uint64             { return w.tick }

func (w *fakeWorld) Dwarf(id agents.DwarfID) *agents.Dwarf {
	for _, d := range w.dwarves {
		if d.ID == id {
			return d
		}
	}
	return nil
}

// instantQueue answers every request synchronously.
type instantQueue struct {
	mu      sync.Mutex
	answer  func(prompt string) llm.Result
	prompts []string
}

func (q *instantQueue) Submit(req llm.Request, done func(llm.Result)) {
	q.mu.Lock()
	q.prompts = append(q.prompts, req.Prompt)
	q.mu.Unlock()
	done(q.answer(req.Prompt))
}

func answerWith(text string) func(string) llm.Result {
	return func(string) llm.Result { return llm.Result{Text: text} }
}

func failWith(kind llm.ErrorKind) func(string) llm.Result {
	return func(string) llm.Result { return llm.Result{Err: &llm.GenerationError{Kind: kind}} }
}

type recorder struct {
	NopListener
	thoughts []ThoughtNote
	speeches []SpeechNote
	ended    []Conversation
	sidebar  []ThoughtNote
}

func (r *recorder) OnThought(n ThoughtNote)            { r.thoughts = append(r.thoughts, n) }
func (r *recorder) OnSpeech(n SpeechNote)              { r.speeches = append(r.speeches, n) }
func (r *recorder) OnSidebarUpdate(list []ThoughtNote) { r.sidebar = list }
func (r *recorder) OnConversationEnd(c Conversation)   { r.ended = append(r.ended, c) }

type panicker struct{ NopListener }

func (panicker) OnThought(ThoughtNote) { panic("listener exploded") }

func testConfig() Config {
	return Config{
		ThoughtCooldown:    12 * time.Second,
		MeetingCooldown:    15 * time.Second,
		ConversationChance: 1,
		ContinueChance:     1,
		MaxTurns:           6,
		InteractionRange:   3,
		ExtendedRange:      6,
	}
}

type harness struct {
	engine *Engine
	clock  *ManualClock
	world  *fakeWorld
	bus    *events.Bus
	out    *recorder
	queue  *instantQueue
}

func newHarness(t *testing.T, cfg Config, dwarves ...*agents.Dwarf) *harness {
	t.Helper()
	h := &harness{
		clock: NewManualClock(epoch),
		world: &fakeWorld{dwarves: dwarves},
		bus:   events.NewBus(),
		out:   &recorder{},
		queue: &instantQueue{answer: answerWith("A fine day for stone.")},
	}
	h.engine = New(cfg, Deps{
		World:    h.world,
		Queue:    h.queue,
		Clock:    h.clock,
		Listener: h.out,
		Logger:   zap.NewNop(),
		Rand:     rand.New(rand.NewSource(7)),
	})
	h.engine.Attach(h.bus)
	return h
}

// tick publishes a world tick and delivers it.
func (h *harness) tick() {
	h.world.tick++
	h.bus.Publish(events.Event{Kind: events.KindTick, Tick: h.world.tick})
	h.bus.Flush()
	h.engine.Scheduler().Drain()
}

// run advances the clock in steps, draining after each.
func (h *harness) run(total, step time.Duration) {
	for elapsed := time.Duration(0); elapsed < total; elapsed += step {
		h.clock.Advance(step)
		h.engine.Scheduler().Drain()
	}
}

func dwarfAt(id agents.DwarfID, name string, x, y int) *agents.Dwarf {
	return agents.NewDwarf(id, name, world.Point{X: x, Y: y}, agents.Personality{agents.TraitFriendliness: 0.6}, agents.AspirationSocialite)
}

func TestRequestThought_OfflineUsesHungerFallback(t *testing.T) {
	d := dwarfAt(1, "Urist", 0, 0)
	h := newHarness(t, testConfig(), d)
	require.False(t, h.engine.Online())

	text := h.engine.RequestThought(d, CategoryHunger, "hunger rose from 59 to 61")

	assert.NotEmpty(t, text)
	assert.Contains(t, ThoughtLines(CategoryHunger), text)
	assert.Equal(t, text, d.CurrentThought)
	assert.Equal(t, 1, d.Memory.RecentThoughts.Len())
	require.Len(t, h.out.thoughts, 1)
	assert.True(t, h.out.thoughts[0].Fallback)
	assert.Empty(t, h.queue.prompts)
}

func TestRequestThought_RespectsCooldown(t *testing.T) {
	for _, online := range []bool{false, true} {
		d := dwarfAt(1, "Urist", 0, 0)
		h := newHarness(t, testConfig(), d)
		h.engine.SetOnline(online)

		for i := 0; i < 120; i++ {
			h.engine.RequestThought(d, CategoryObservation, "looked around")
			h.clock.Advance(time.Second)
			h.engine.Scheduler().Drain()
		}

		require.Len(t, h.out.thoughts, 10, "online=%v", online)
		for i := 1; i < len(h.out.thoughts); i++ {
			gap := h.out.thoughts[i].At.Sub(h.out.thoughts[i-1].At)
			assert.GreaterOrEqual(t, gap, 12*time.Second)
		}
	}
}

func TestRequestThought_OnlineCleansGeneratedText(t *testing.T) {
	d := dwarfAt(1, "Urist", 0, 0)
	h := newHarness(t, testConfig(), d)
	h.queue.answer = answerWith("Urist thinks: \"The stone hums today.\"\nmore")
	h.engine.SetOnline(true)

	assert.Empty(t, h.engine.RequestThought(d, CategoryFoodFound, "found a mushroom"))
	assert.Empty(t, d.CurrentThought, "text lands when the scheduler drains")

	h.engine.Scheduler().Drain()

	assert.Equal(t, "The stone hums today.", d.CurrentThought)
	require.Len(t, h.out.thoughts, 1)
	assert.False(t, h.out.thoughts[0].Fallback)
	require.Len(t, h.queue.prompts, 1)
	assert.True(t, strings.HasSuffix(h.queue.prompts[0], "Urist thinks:"))
}

func TestRequestThought_OnlineFailureFallsBack(t *testing.T) {
	for _, kind := range []llm.ErrorKind{llm.KindTimeout, llm.KindStatus, llm.KindUnavailable} {
		t.Run(string(kind), func(t *testing.T) {
			d := dwarfAt(1, "Urist", 0, 0)
			h := newHarness(t, testConfig(), d)
			h.queue.answer = failWith(kind)
			h.engine.SetOnline(true)

			h.engine.RequestThought(d, CategoryHunger, "hunger rose")
			h.engine.Scheduler().Drain()

			assert.Contains(t, ThoughtLines(CategoryHunger), d.CurrentThought)
			assert.Equal(t, 1, h.engine.Stats().FallbackThoughts)
		})
	}
}

func TestRequestThought_OneInFlightPerDwarf(t *testing.T) {
	d := dwarfAt(1, "Urist", 0, 0)
	h := newHarness(t, testConfig(), d)
	h.engine.SetOnline(true)

	h.engine.RequestThought(d, CategoryObservation, "a")
	h.engine.RequestThought(d, CategoryObservation, "b")

	assert.Len(t, h.queue.prompts, 1)
}

func TestRequestThought_DeadDwarfIgnored(t *testing.T) {
	d := dwarfAt(1, "Urist", 0, 0)
	d.Alive = false
	h := newHarness(t, testConfig(), d)

	assert.Empty(t, h.engine.RequestThought(d, CategoryHunger, ""))
	assert.Empty(t, h.out.thoughts)
}

func TestSidebar_CappedNewestFirst(t *testing.T) {
	var dwarves []*agents.Dwarf
	for i := 1; i <= 25; i++ {
		dwarves = append(dwarves, dwarfAt(agents.DwarfID(i), "Dwarf", i*10, 0))
	}
	h := newHarness(t, testConfig(), dwarves...)

	for _, d := range dwarves {
		h.engine.RequestThought(d, CategoryObservation, "")
	}

	side := h.engine.Sidebar()
	assert.Len(t, side, 20)
	assert.Equal(t, agents.DwarfID(25), side[0].DwarfID)
	assert.Equal(t, side, h.out.sidebar)
}

func TestConversation_Lifecycle(t *testing.T) {
	a := dwarfAt(1, "Urist", 0, 0)
	b := dwarfAt(2, "Bomrek", 1, 0)
	h := newHarness(t, testConfig(), a, b)

	h.tick()
	assert.NotEmpty(t, a.CurrentThought, "meeting prompts a thought")
	assert.NotEmpty(t, b.CurrentThought)

	h.run(3*time.Second, 100*time.Millisecond)
	require.Len(t, h.engine.ActiveConversations(), 1)
	assert.True(t, h.engine.InConversation(1, 2))

	h.run(40*time.Second, 100*time.Millisecond)

	assert.Empty(t, h.engine.ActiveConversations())
	require.Len(t, h.out.ended, 1)
	conv := h.out.ended[0]
	assert.Equal(t, 6, conv.Turns)
	assert.Len(t, conv.Messages, 6)
	assert.Len(t, h.out.speeches, 6)

	for _, pair := range [][2]*agents.Dwarf{{a, b}, {b, a}} {
		last, ok := pair[0].Memory.RecentConversations.Last()
		require.True(t, ok)
		assert.Equal(t, "talked with "+pair[1].Name, last.Summary)
		assert.Equal(t, 6, pair[0].Relationships[pair[1].ID].Interactions)
		assert.Positive(t, agents.Affinity(pair[0], pair[1].ID))
	}

	// Speakers alternate.
	for i := 1; i < len(conv.Messages); i++ {
		assert.NotEqual(t, conv.Messages[i-1].SpeakerID, conv.Messages[i].SpeakerID)
	}

	drained := h.engine.DrainEnded()
	assert.Len(t, drained, 1)
	assert.Empty(t, h.engine.DrainEnded())
	assert.Len(t, h.engine.RecentConversations(0), 1)

	// A failed save puts them back.
	h.engine.RequeueEnded(drained)
	assert.Equal(t, drained, h.engine.DrainEnded())
}

func TestConversation_TurnBound(t *testing.T) {
	for _, limit := range []int{1, 2, 3} {
		cfg := testConfig()
		cfg.MaxTurns = limit
		a := dwarfAt(1, "Urist", 0, 0)
		b := dwarfAt(2, "Bomrek", 0, 1)
		h := newHarness(t, cfg, a, b)

		h.tick()
		h.run(60*time.Second, 250*time.Millisecond)

		require.Len(t, h.out.ended, 1)
		assert.Equal(t, limit, h.out.ended[0].Turns)
		assert.LessOrEqual(t, len(h.out.speeches), limit)
	}
}

func TestConversation_EndsWhenParticipantsSeparate(t *testing.T) {
	a := dwarfAt(1, "Urist", 0, 0)
	b := dwarfAt(2, "Bomrek", 1, 0)
	h := newHarness(t, testConfig(), a, b)

	h.tick()
	h.run(3*time.Second, 100*time.Millisecond)
	require.Len(t, h.engine.ActiveConversations(), 1)

	b.Pos = world.Point{X: 20}
	h.run(5*time.Second, 100*time.Millisecond)

	assert.Empty(t, h.engine.ActiveConversations())
	require.Len(t, h.out.ended, 1)
	assert.Equal(t, 1, h.out.ended[0].Turns)
	assert.Zero(t, a.Memory.RecentConversations.Len(), "one line is not a conversation")
}

func TestConversation_NotStartedWhenPartnerLeavesFirst(t *testing.T) {
	a := dwarfAt(1, "Urist", 0, 0)
	b := dwarfAt(2, "Bomrek", 1, 0)
	h := newHarness(t, testConfig(), a, b)

	h.tick()
	b.Alive = false
	h.run(5*time.Second, 100*time.Millisecond)

	assert.Empty(t, h.engine.ActiveConversations())
	assert.Empty(t, h.out.speeches)
	assert.Zero(t, h.engine.Stats().ConversationsStarted)
}

func TestConversation_OnlineFailureEndsIt(t *testing.T) {
	a := dwarfAt(1, "Urist", 0, 0)
	b := dwarfAt(2, "Bomrek", 1, 0)
	h := newHarness(t, testConfig(), a, b)
	h.queue.answer = func(prompt string) llm.Result {
		if strings.HasSuffix(prompt, "replies:") {
			return llm.Result{Err: &llm.GenerationError{Kind: llm.KindTimeout}}
		}
		return llm.Result{Text: "Well met."}
	}
	h.engine.SetOnline(true)

	h.tick()
	h.run(10*time.Second, 100*time.Millisecond)

	assert.Empty(t, h.engine.ActiveConversations())
	require.Len(t, h.out.ended, 1)
	assert.Equal(t, 1, h.out.ended[0].Turns)
	assert.Equal(t, "Well met.", h.out.ended[0].Messages[0].Text)
}

func TestConversation_OnlineFailureAbortsOpening(t *testing.T) {
	a := dwarfAt(1, "Urist", 0, 0)
	b := dwarfAt(2, "Bomrek", 1, 0)
	h := newHarness(t, testConfig(), a, b)
	h.queue.answer = failWith(llm.KindUnavailable)
	h.engine.SetOnline(true)

	h.tick()
	h.run(5*time.Second, 100*time.Millisecond)

	assert.Empty(t, h.engine.ActiveConversations())
	assert.Empty(t, h.out.ended)
	assert.Empty(t, h.engine.starting)
}

func TestMeeting_CooldownPerPair(t *testing.T) {
	cfg := testConfig()
	cfg.ConversationChance = 0
	a := dwarfAt(1, "Urist", 0, 0)
	b := dwarfAt(2, "Bomrek", 1, 0)
	h := newHarness(t, cfg, a, b)
	key := PairKey(1, 2)

	h.tick()
	assert.Equal(t, epoch, h.engine.meetings[key])

	h.clock.Advance(5 * time.Second)
	h.tick()
	assert.Equal(t, epoch, h.engine.meetings[key], "still cooling down")

	h.clock.Advance(11 * time.Second)
	h.tick()
	assert.Equal(t, epoch.Add(16*time.Second), h.engine.meetings[key])
	assert.Empty(t, h.engine.ActiveConversations())
}

func TestMeeting_OutOfRangeIgnored(t *testing.T) {
	a := dwarfAt(1, "Urist", 0, 0)
	b := dwarfAt(2, "Bomrek", 4, 0)
	h := newHarness(t, testConfig(), a, b)

	h.tick()

	assert.Empty(t, h.engine.meetings)
	assert.Empty(t, h.out.thoughts)
}

func TestEvents_HungerThresholdPromptsThought(t *testing.T) {
	d := dwarfAt(1, "Urist", 0, 0)
	h := newHarness(t, testConfig(), d)

	h.bus.Publish(events.Event{Kind: events.KindHungerThreshold, DwarfID: 1, Before: 59, After: 60.1})
	h.bus.Flush()

	require.Len(t, h.out.thoughts, 1)
	assert.Equal(t, CategoryHunger, h.out.thoughts[0].Category)
}

func TestListeners_PanicDoesNotStopOthers(t *testing.T) {
	d := dwarfAt(1, "Urist", 0, 0)
	out := &recorder{}
	e := New(testConfig(), Deps{
		World:    &fakeWorld{dwarves: []*agents.Dwarf{d}},
		Clock:    NewManualClock(epoch),
		Listener: NewListeners(zap.NewNop(), panicker{}, out),
	})

	assert.NotPanics(t, func() { e.RequestThought(d, CategoryMeeting, "") })
	assert.Len(t, out.thoughts, 1)
}

func TestSetOnline_RequiresQueue(t *testing.T) {
	e := New(testConfig(), Deps{World: &fakeWorld{}})
	e.SetOnline(true)
	assert.False(t, e.Online())
}

type fixedProber bool

func (p fixedProber) CheckConnection(context.Context, time.Duration) bool { return bool(p) }

func TestRefreshHealth(t *testing.T) {
	for _, up := range []bool{true, false} {
		e := New(testConfig(), Deps{World: &fakeWorld{}, Queue: &instantQueue{}, Prober: fixedProber(up)})
		assert.Equal(t, up, e.RefreshHealth(context.Background()))
		assert.Equal(t, up, e.Online())
	}
}

func TestRecordTalk(t *testing.T) {
	d := dwarfAt(1, "Urist", 0, 0)
	h := newHarness(t, testConfig(), d)

	req := h.engine.TalkRequest(d, "How is the digging?")
	assert.Contains(t, req.Prompt, "A stranger says: How is the digging?")

	reply := h.engine.RecordTalk(d, "How is the digging?", "")
	assert.True(t, reply.Fallback)
	assert.NotEmpty(t, reply.Reply)
	assert.Equal(t, 1, d.Memory.SignificantEvents.Len())

	reply = h.engine.RecordTalk(d, "And the ale?", "Plentiful.")
	assert.False(t, reply.Fallback)
	assert.Equal(t, "Plentiful.", reply.Reply)
	assert.Len(t, h.out.speeches, 2)
}
