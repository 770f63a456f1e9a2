// Package cognition turns simulation events into dwarf thoughts and runs
// conversations between pairs of dwarves. Text comes from the generation
// queue when the service is reachable and from canned fallbacks otherwise.
//
// All engine state is owned by the simulation goroutine. Generation results
// arrive on queue goroutines and are posted to the Scheduler, which the
// simulation drains between ticks; every scheduled step re-checks that the
// world still allows it before acting.
package cognition

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/talgya/dwarfhold/internal/agents"
	"github.com/talgya/dwarfhold/internal/config"
	"github.com/talgya/dwarfhold/internal/events"
	"github.com/talgya/dwarfhold/internal/llm"
	"github.com/talgya/dwarfhold/internal/world"
)

// Config holds cooldowns, conversation odds and ranges.
type Config struct {
	ThoughtCooldown    time.Duration
	MeetingCooldown    time.Duration
	ConversationChance float64
	ContinueChance     float64
	MaxTurns           int
	InteractionRange   int
	ExtendedRange      int
	HealthTTL          time.Duration
	HealthTimeout      time.Duration
	Options            llm.Options
}

// ConfigFromTuning extracts the engine settings from the tuning document.
func ConfigFromTuning(t config.Tuning) Config {
	return Config{
		ThoughtCooldown:    t.Cognition.ThoughtCooldown(),
		MeetingCooldown:    t.Cognition.MeetingCooldown(),
		ConversationChance: t.Cognition.ConversationChance,
		ContinueChance:     t.Cognition.ContinueChance,
		MaxTurns:           t.Cognition.MaxConversationTurns,
		InteractionRange:   t.Cognition.InteractionRange,
		ExtendedRange:      t.Cognition.ExtendedRange,
		HealthTTL:          t.Generation.HealthTTL(),
		HealthTimeout:      t.Generation.HealthTimeout(),
		Options: llm.Options{
			NumPredict:  t.Generation.NumPredict,
			Temperature: t.Generation.Temperature,
			TopP:        t.Generation.TopP,
			Stop:        t.Generation.Stop,
		},
	}
}

// Conversation pacing.
const (
	initiateMin   = 1500 * time.Millisecond
	initiateSpan  = time.Second
	responseMin   = 2 * time.Second
	responseSpan  = 2 * time.Second
	endDelay      = 3 * time.Second
	sidebarCap    = 20
	endedCap      = 200
	historyLines  = 4
	terrainChance = 0.25
)

// World is the read side of the simulation the engine observes.
type World interface {
	Dwarves() []*agents.Dwarf
	Dwarf(id agents.DwarfID) *agents.Dwarf
	Map() *world.Map
	Tick() uint64
}

// Submitter queues generation requests. *llm.Queue implements it.
type Submitter interface {
	Submit(req llm.Request, done func(llm.Result))
}

// Prober checks whether the generation service is reachable.
// *llm.Client implements it.
type Prober interface {
	CheckConnection(ctx context.Context, timeout time.Duration) bool
}

// Deps are the engine's collaborators. Prober may be nil, in which case the
// engine stays in whatever mode SetOnline last chose.
type Deps struct {
	World     World
	Queue     Submitter
	Prober    Prober
	Scheduler *Scheduler
	Clock     Clock
	Listener  Listener
	Logger    *zap.Logger
	Rand      *rand.Rand
}

// Stats are cumulative engine counters.
type Stats struct {
	Thoughts             int `json:"thoughts"`
	FallbackThoughts     int `json:"fallback_thoughts"`
	Speeches             int `json:"speeches"`
	ConversationsStarted int `json:"conversations_started"`
	ConversationsEnded   int `json:"conversations_ended"`
}

// Engine is the thought and conversation engine.
type Engine struct {
	cfg    Config
	world  World
	queue  Submitter
	prober Prober
	sched  *Scheduler
	clock  Clock
	out    Listener
	logger *zap.Logger
	rng    *rand.Rand

	online atomic.Bool

	lastThought map[agents.DwarfID]time.Time
	thinking    map[agents.DwarfID]bool
	meetings    map[string]time.Time
	starting    map[string]bool
	active      map[string]*Conversation
	ended       []Conversation
	unsaved     []Conversation
	sidebar     []ThoughtNote
	lastTerrain map[agents.DwarfID]world.Terrain

	stats Stats
}

// New creates an engine. It starts offline until SetOnline or a health probe
// says otherwise.
func New(cfg Config, deps Deps) *Engine {
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Scheduler == nil {
		deps.Scheduler = NewScheduler(deps.Clock)
	}
	if deps.Listener == nil {
		deps.Listener = NopListener{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Rand == nil {
		deps.Rand = rand.New(rand.NewSource(1))
	}
	return &Engine{
		cfg:         cfg,
		world:       deps.World,
		queue:       deps.Queue,
		prober:      deps.Prober,
		sched:       deps.Scheduler,
		clock:       deps.Clock,
		out:         deps.Listener,
		logger:      deps.Logger,
		rng:         deps.Rand,
		lastThought: make(map[agents.DwarfID]time.Time),
		thinking:    make(map[agents.DwarfID]bool),
		meetings:    make(map[string]time.Time),
		starting:    make(map[string]bool),
		active:      make(map[string]*Conversation),
		lastTerrain: make(map[agents.DwarfID]world.Terrain),
	}
}

// Attach subscribes the engine to a simulation event bus.
func (e *Engine) Attach(bus *events.Bus) {
	bus.Subscribe(e.handle)
}

// Scheduler returns the engine's timer queue.
func (e *Engine) Scheduler() *Scheduler {
	return e.sched
}

// Online reports whether generation requests go to the service. Safe from
// any goroutine.
func (e *Engine) Online() bool {
	return e.online.Load()
}

// SetOnline switches between service and fallback text. Safe from any
// goroutine.
func (e *Engine) SetOnline(ok bool) {
	if e.queue == nil {
		ok = false
	}
	if e.online.Swap(ok) != ok {
		e.logger.Info("generation service availability changed", zap.Bool("online", ok))
	}
}

// RefreshHealth probes the service once and records the result.
func (e *Engine) RefreshHealth(ctx context.Context) bool {
	if e.prober == nil {
		return e.Online()
	}
	ok := e.prober.CheckConnection(ctx, e.cfg.HealthTimeout)
	e.SetOnline(ok)
	return ok
}

// MonitorHealth probes the service every HealthTTL until ctx ends, so the
// tick path never polls it.
func (e *Engine) MonitorHealth(ctx context.Context) {
	if e.prober == nil || e.cfg.HealthTTL <= 0 {
		return
	}
	e.RefreshHealth(ctx)
	ticker := time.NewTicker(e.cfg.HealthTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.RefreshHealth(ctx)
		}
	}
}

func (e *Engine) handle(ev events.Event) {
	switch ev.Kind {
	case events.KindTick:
		e.detectMeetings()
		e.detectTerrainChanges()
	case events.KindFoodFound:
		if d := e.world.Dwarf(ev.DwarfID); d != nil {
			e.RequestThought(d, CategoryFoodFound, fmt.Sprintf("found food, hunger fell from %.0f to %.0f", ev.Before, ev.After))
		}
	case events.KindHungerThreshold:
		if d := e.world.Dwarf(ev.DwarfID); d != nil {
			e.RequestThought(d, CategoryHunger, fmt.Sprintf("hunger rose from %.0f to %.0f", ev.Before, ev.After))
		}
	case events.KindMoodShift:
		if d := e.world.Dwarf(ev.DwarfID); d != nil {
			dir := "lifted"
			if ev.After < ev.Before {
				dir = "sank"
			}
			e.RequestThought(d, CategoryObservation, fmt.Sprintf("mood %s from %.0f to %.0f", dir, ev.Before, ev.After))
		}
	case events.KindNewTerrain:
		if d := e.world.Dwarf(ev.DwarfID); d != nil {
			e.RequestThought(d, CategoryObservation, "wandered into unexplored ground: "+world.TerrainName(ev.Terrain))
		}
	}
}

// detectMeetings finds pairs of living dwarves within interaction range
// whose meeting cooldown has elapsed.
func (e *Engine) detectMeetings() {
	now := e.clock.Now()
	dwarves := e.world.Dwarves()
	for i, a := range dwarves {
		if !a.Alive {
			continue
		}
		for _, b := range dwarves[i+1:] {
			if !b.Alive || world.Manhattan(a.Pos, b.Pos) > e.cfg.InteractionRange {
				continue
			}
			key := PairKey(a.ID, b.ID)
			if last, ok := e.meetings[key]; ok && now.Sub(last) < e.cfg.MeetingCooldown {
				continue
			}
			e.meetings[key] = now
			e.meet(a, b)
		}
	}
}

func (e *Engine) meet(a, b *agents.Dwarf) {
	e.RequestThought(a, CategoryMeeting, "ran into "+b.Name)
	e.RequestThought(b, CategoryMeeting, "ran into "+a.Name)

	key := PairKey(a.ID, b.ID)
	if _, busy := e.active[key]; busy || e.starting[key] {
		return
	}
	if e.rng.Float64() >= e.cfg.ConversationChance {
		return
	}

	// The friendlier dwarf speaks first.
	speaker, listener := a, b
	if b.Personality.Get(agents.TraitFriendliness) > a.Personality.Get(agents.TraitFriendliness) {
		speaker, listener = b, a
	}
	e.starting[key] = true
	sid, lid := speaker.ID, listener.ID
	e.sched.After(e.jitter(initiateMin, initiateSpan), func() { e.initiate(sid, lid) })
}

// detectTerrainChanges occasionally prompts a thought when a dwarf steps
// onto a different kind of ground.
func (e *Engine) detectTerrainChanges() {
	m := e.world.Map()
	if m == nil {
		return
	}
	for _, d := range e.world.Dwarves() {
		if !d.Alive {
			continue
		}
		t, ok := m.TerrainAt(d.Pos)
		if !ok {
			continue
		}
		prev, seen := e.lastTerrain[d.ID]
		e.lastTerrain[d.ID] = t
		if !seen || prev == t || e.rng.Float64() >= terrainChance {
			continue
		}
		e.RequestThought(d, CategoryObservation, fmt.Sprintf("stepped from %s onto %s", world.TerrainName(prev), world.TerrainName(t)))
	}
}

func (e *Engine) jitter(min, span time.Duration) time.Duration {
	return min + time.Duration(e.rng.Int63n(int64(span)+1))
}

// RequestThought asks for a thought about an event, subject to the dwarf's
// thought cooldown. Offline, the fallback thought is recorded at once and
// returned. Online, the request is queued and "" is returned; the text lands
// on the dwarf when the result is drained. Gated requests return "".
func (e *Engine) RequestThought(d *agents.Dwarf, c Category, detail string) string {
	if !d.Alive || e.thinking[d.ID] {
		return ""
	}
	now := e.clock.Now()
	if last, ok := e.lastThought[d.ID]; ok && now.Sub(last) < e.cfg.ThoughtCooldown {
		return ""
	}

	if !e.Online() {
		text := FallbackThought(e.rng, d, c)
		e.recordThought(d, text, c, true)
		return text
	}

	e.thinking[d.ID] = true
	id := d.ID
	req := llm.Request{Prompt: llm.ThoughtPrompt(e.thoughtContext(d, c, detail)), Options: e.cfg.Options}
	e.queue.Submit(req, func(r llm.Result) {
		e.sched.Post(func() { e.resolveThought(id, c, r) })
	})
	return ""
}

func (e *Engine) resolveThought(id agents.DwarfID, c Category, r llm.Result) {
	delete(e.thinking, id)
	d := e.world.Dwarf(id)
	if d == nil || !d.Alive {
		return
	}
	text := ""
	if r.OK() {
		text = llm.Clean(r.Text, d.Name)
	} else {
		e.logger.Debug("thought generation failed", zap.Uint64("dwarf", uint64(id)), zap.Error(r.Err))
	}
	if text == "" {
		e.recordThought(d, FallbackThought(e.rng, d, c), c, true)
		return
	}
	e.recordThought(d, text, c, false)
}

func (e *Engine) recordThought(d *agents.Dwarf, text string, c Category, fallback bool) {
	now := e.clock.Now()
	tick := e.world.Tick()

	d.CurrentThought = text
	d.ThoughtAt = now
	d.ThoughtTick = tick
	agents.RememberThought(d, tick, now, text)
	e.lastThought[d.ID] = now

	e.stats.Thoughts++
	if fallback {
		e.stats.FallbackThoughts++
	}

	note := ThoughtNote{DwarfID: d.ID, Name: d.Name, Text: text, Category: c, Fallback: fallback, Tick: tick, At: now}
	e.sidebar = append([]ThoughtNote{note}, e.sidebar...)
	if len(e.sidebar) > sidebarCap {
		e.sidebar = e.sidebar[:sidebarCap]
	}
	e.out.OnThought(note)
	e.out.OnSidebarUpdate(e.Sidebar())
}

// Sidebar returns the most recent thoughts across the colony, newest first.
func (e *Engine) Sidebar() []ThoughtNote {
	return append([]ThoughtNote(nil), e.sidebar...)
}

func (e *Engine) thoughtContext(d *agents.Dwarf, c Category, detail string) llm.ThoughtContext {
	tc := llm.ThoughtContext{
		Name:       d.Name,
		Traits:     describeTraits(d),
		Aspiration: d.Aspiration.String(),
		Mood:       d.Mood,
		Hunger:     d.Hunger,
		Activity:   d.Activity.String(),
		Event:      string(c),
		Detail:     detail,
	}
	if m := e.world.Map(); m != nil {
		tc.Tile = m.Describe(d.Pos)
	}
	for _, o := range e.world.Dwarves() {
		if o.ID != d.ID && o.Alive && world.Manhattan(o.Pos, d.Pos) <= e.cfg.ExtendedRange {
			tc.Nearby = append(tc.Nearby, o.Name)
		}
	}
	for _, m := range d.Memory.RecentThoughts.All() {
		tc.Recent = append(tc.Recent, m.Text)
	}
	return tc
}

// describeTraits lists the traits strong enough to color a prompt.
func describeTraits(d *agents.Dwarf) string {
	out := ""
	for _, t := range agents.AllTraits {
		if d.Personality.Get(t) < 0.65 {
			continue
		}
		if out != "" {
			out += ", "
		}
		out += traitAdjectives[t]
	}
	return out
}

var traitAdjectives = map[agents.Trait]string{
	agents.TraitFriendliness: "friendly",
	agents.TraitCuriosity:    "curious",
	agents.TraitCreativity:   "inventive",
	agents.TraitBravery:      "brave",
	agents.TraitHumor:        "witty",
	agents.TraitMelancholy:   "melancholy",
	agents.TraitPatience:     "patient",
}

// Stats returns the engine counters.
func (e *Engine) Stats() Stats {
	return e.stats
}

// affinityDelta scales a base gain by the pair's mutual friendliness.
func affinityDelta(a, b *agents.Dwarf, opening bool) int {
	base := 1.0
	if opening {
		base = 2
	}
	mutual := (a.Personality.Get(agents.TraitFriendliness) + b.Personality.Get(agents.TraitFriendliness)) / 2
	delta := int(math.Round(base * (0.5 + mutual)))
	if delta < 1 {
		delta = 1
	}
	return delta
}
