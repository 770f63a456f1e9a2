// Simulation ties together the colony, the dwarves, the decision engine and
// the cognition engine, and runs them each tick.
package engine

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/talgya/dwarfhold/internal/agents"
	"github.com/talgya/dwarfhold/internal/behavior"
	"github.com/talgya/dwarfhold/internal/cognition"
	"github.com/talgya/dwarfhold/internal/colony"
	"github.com/talgya/dwarfhold/internal/config"
	"github.com/talgya/dwarfhold/internal/events"
	"github.com/talgya/dwarfhold/internal/llm"
	"github.com/talgya/dwarfhold/internal/world"
)

// MoodShiftThreshold is the mood change since the last reported value that
// counts as a shift.
const MoodShiftThreshold = 15.0

var (
	ErrNoSuchDwarf = errors.New("no such dwarf")
	ErrDwarfDead   = errors.New("dwarf is dead")
)

// Generator is the generation queue as the simulation uses it.
// *llm.Queue implements it.
type Generator interface {
	cognition.Submitter
	Do(ctx context.Context, req llm.Request) llm.Result
}

// Options configures a Simulation.
type Options struct {
	Tuning   config.Tuning
	Seed     int64
	Map      *world.Map
	Center   world.Point
	Dwarves  []*agents.Dwarf
	Colony   colony.Config
	Queue    Generator          // nil runs offline
	Prober   cognition.Prober   // nil skips health probes
	Listener cognition.Listener // nil discards notifications
	Clock    cognition.Clock    // nil uses the system clock
	Logger   *zap.Logger
}

// SimStats tracks aggregate colony statistics.
type SimStats struct {
	Alive       int     `json:"alive"`
	Deaths      int     `json:"deaths"`
	AvgMood     float64 `json:"avg_mood"`
	AvgHunger   float64 `json:"avg_hunger"`
	AvgHealth   float64 `json:"avg_health"`
	HungryCount int     `json:"hungry_count"`
}

// Simulation holds the complete colony state. Step and Frame run on the
// simulation goroutine; the read methods are safe from any goroutine.
type Simulation struct {
	mu sync.RWMutex

	tuning    config.Tuning
	worldMap  *world.Map
	colony    *colony.Colony
	dwarves   []*agents.Dwarf
	index     map[agents.DwarfID]*agents.Dwarf
	bus       *events.Bus
	decider   *behavior.Decider
	cognition *cognition.Engine
	queue     Generator
	clock     cognition.Clock
	logger    *zap.Logger

	moodMark map[agents.DwarfID]float64
	lastTick uint64
	stats    SimStats
}

// NewSimulation wires a simulation from its parts.
func NewSimulation(opts Options) *Simulation {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = cognition.SystemClock{}
	}
	s := &Simulation{
		clock:    opts.Clock,
		tuning:   opts.Tuning,
		worldMap: opts.Map,
		colony:   colony.New(opts.Map, opts.Center, opts.Colony, opts.Seed),
		dwarves:  opts.Dwarves,
		index:    make(map[agents.DwarfID]*agents.Dwarf, len(opts.Dwarves)),
		bus:      events.NewBus(),
		queue:    opts.Queue,
		logger:   opts.Logger,
		moodMark: make(map[agents.DwarfID]float64, len(opts.Dwarves)),
	}
	for _, d := range opts.Dwarves {
		s.index[d.ID] = d
		s.moodMark[d.ID] = d.Mood
	}

	view := simView{s}
	s.decider = behavior.NewDecider(
		behavior.ConfigFromTuning(opts.Tuning.Behavior),
		s.colony.Capabilities(),
		view,
		s.bus,
		rand.New(rand.NewSource(opts.Seed+700)),
		opts.Logger.Named("behavior"),
	)

	deps := cognition.Deps{
		World:    view,
		Prober:   opts.Prober,
		Clock:    opts.Clock,
		Listener: opts.Listener,
		Logger:   opts.Logger.Named("cognition"),
		Rand:     rand.New(rand.NewSource(opts.Seed + 800)),
	}
	if opts.Queue != nil {
		deps.Queue = opts.Queue
	}
	s.cognition = cognition.New(cognition.ConfigFromTuning(opts.Tuning), deps)
	s.cognition.Attach(s.bus)

	s.updateStats()
	return s
}

// simView exposes simulation state to the decider and cognition engine
// without locking; they only run inside Step and Frame, which hold the lock.
type simView struct{ s *Simulation }

func (v simView) Dwarves() []*agents.Dwarf              { return v.s.dwarves }
func (v simView) Dwarf(id agents.DwarfID) *agents.Dwarf { return v.s.index[id] }
func (v simView) Map() *world.Map                       { return v.s.worldMap }
func (v simView) Tick() uint64                          { return v.s.lastTick }
func (v simView) Now() time.Time                        { return v.s.clock.Now() }

// Cognition returns the thought and conversation engine.
func (s *Simulation) Cognition() *cognition.Engine {
	return s.cognition
}

// SetLastTick restores the tick counter after loading saved state.
func (s *Simulation) SetLastTick(tick uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTick = tick
}

// Step runs one tick: world upkeep, metabolism, decisions, then the tick's
// events, then any cognition work that became due.
func (s *Simulation) Step(tick uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastTick = tick
	alive := make(map[agents.DwarfID]bool, len(s.dwarves))
	for _, d := range s.dwarves {
		alive[d.ID] = d.Alive
	}

	s.colony.Tick(tick, s.dwarves)

	decayEvery := uint64(s.tuning.Behavior.FulfillmentDecayEvery)
	decay := decayEvery > 0 && tick%decayEvery == 0

	for _, d := range s.dwarves {
		if !d.Alive {
			if alive[d.ID] {
				s.died(d, tick)
			}
			continue
		}

		hungerBefore := d.Hunger
		agents.Metabolize(d)
		if decay {
			agents.DecayFulfillment(d)
		}
		s.decider.Update(d)
		agents.ClampVitals(d)

		if !d.Alive {
			s.died(d, tick)
			continue
		}
		s.checkThresholds(d, tick, hungerBefore)
	}

	s.bus.Publish(events.Event{Kind: events.KindTick, Tick: tick})
	s.bus.Flush()
	s.cognition.Scheduler().Drain()
}

// checkThresholds publishes hunger crossings and mood shifts.
func (s *Simulation) checkThresholds(d *agents.Dwarf, tick uint64, hungerBefore float64) {
	for _, threshold := range []float64{agents.HungryThreshold, agents.CriticalThreshold} {
		if hungerBefore < threshold && d.Hunger >= threshold {
			s.bus.Publish(events.Event{Kind: events.KindHungerThreshold, Tick: tick, DwarfID: d.ID, Pos: d.Pos, Before: hungerBefore, After: d.Hunger})
			break
		}
	}

	mark, ok := s.moodMark[d.ID]
	if !ok {
		s.moodMark[d.ID] = d.Mood
		return
	}
	if math.Abs(d.Mood-mark) >= MoodShiftThreshold {
		s.bus.Publish(events.Event{Kind: events.KindMoodShift, Tick: tick, DwarfID: d.ID, Pos: d.Pos, Before: mark, After: d.Mood})
		s.moodMark[d.ID] = d.Mood
	}
}

func (s *Simulation) died(d *agents.Dwarf, tick uint64) {
	d.CurrentTask = nil
	d.Activity = agents.ActivityIdle
	s.logger.Warn("dwarf died", zap.String("name", d.Name), zap.Uint64("tick", tick), zap.String("time", SimTime(tick)))

	now := s.cognition.Scheduler().Now()
	for _, o := range s.dwarves {
		if o.Alive && o.ID != d.ID && agents.Affinity(o, d.ID) > 0 {
			agents.RememberEvent(o, tick, now, "mourned "+d.Name)
		}
	}
}

// Frame runs cognition work that became due between ticks: generation
// results and conversation timers.
func (s *Simulation) Frame() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cognition.Scheduler().Drain()
}

// Hour refreshes aggregate statistics.
func (s *Simulation) Hour(tick uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateStats()
}

// Day logs a colony report.
func (s *Simulation) Day(tick uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cs := s.colony.Stats()
	es := s.cognition.Stats()
	s.logger.Info("daily report",
		zap.Uint64("tick", tick),
		zap.String("time", SimTime(tick)),
		zap.Int("alive", s.stats.Alive),
		zap.Int("deaths", s.stats.Deaths),
		zap.Float64("avg_mood", s.stats.AvgMood),
		zap.Float64("avg_hunger", s.stats.AvgHunger),
		zap.Int("eaten", cs.Eaten),
		zap.Int("dug", cs.Dug),
		zap.Int("built", cs.Built),
		zap.Int("crafted", cs.Crafted),
		zap.Int("slain", cs.Slain),
		zap.Int("thoughts", es.Thoughts),
		zap.Int("conversations", es.ConversationsEnded),
	)
}

func (s *Simulation) updateStats() {
	var st SimStats
	var mood, hunger, health float64
	for _, d := range s.dwarves {
		if !d.Alive {
			st.Deaths++
			continue
		}
		st.Alive++
		mood += d.Mood
		hunger += d.Hunger
		health += d.Health
		if agents.IsHungry(d) {
			st.HungryCount++
		}
	}
	if st.Alive > 0 {
		n := float64(st.Alive)
		st.AvgMood = mood / n
		st.AvgHunger = hunger / n
		st.AvgHealth = health / n
	}
	s.stats = st
}

// Status is a summary of the simulation for the API.
type Status struct {
	Tick          uint64          `json:"tick"`
	SimTime       string          `json:"sim_time"`
	Online        bool            `json:"online"`
	Stats         SimStats        `json:"stats"`
	Colony        colony.Stats    `json:"colony"`
	Cognition     cognition.Stats `json:"cognition"`
	Conversations int             `json:"active_conversations"`
}

// Status returns a summary snapshot.
func (s *Simulation) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		Tick:          s.lastTick,
		SimTime:       SimTime(s.lastTick),
		Online:        s.cognition.Online(),
		Stats:         s.stats,
		Colony:        s.colony.Stats(),
		Cognition:     s.cognition.Stats(),
		Conversations: len(s.cognition.ActiveConversations()),
	}
}

// DwarfView is a dwarf snapshot with its current task described.
type DwarfView struct {
	*agents.Dwarf
	Task         string `json:"task"`
	TaskPriority int    `json:"task_priority"`
}

// Dwarves returns snapshots of every dwarf ordered by ID.
func (s *Simulation) Dwarves() []DwarfView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]DwarfView, 0, len(s.dwarves))
	for _, d := range s.dwarves {
		out = append(out, viewOf(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Dwarf returns a snapshot of one dwarf.
func (s *Simulation) Dwarf(id agents.DwarfID) (DwarfView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.index[id]
	if !ok {
		return DwarfView{}, false
	}
	return viewOf(d), true
}

func viewOf(d *agents.Dwarf) DwarfView {
	v := DwarfView{Dwarf: d.Clone(), Task: behavior.Describe(d.CurrentTask)}
	if d.CurrentTask != nil {
		v.TaskPriority = int(math.Round(d.CurrentTask.Priority()))
	}
	return v
}

// Colony returns a snapshot of the colony's work and hostiles.
func (s *Simulation) Colony() colony.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.colony.Snapshot()
}

// Thoughts returns the colony thought sidebar, newest first.
func (s *Simulation) Thoughts() []cognition.ThoughtNote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cognition.Sidebar()
}

// Conversations returns the running conversations and up to recent finished
// ones.
func (s *Simulation) Conversations(recent int) (active, ended []cognition.Conversation) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cognition.ActiveConversations(), s.cognition.RecentConversations(recent)
}

// MapText renders the tile grid with living dwarves as @ and hostiles as h.
func (s *Simulation) MapText() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	marks := make(map[world.Point]rune)
	for _, h := range s.colony.Snapshot().Hostiles {
		marks[h.Pos] = 'h'
	}
	for _, d := range s.dwarves {
		if d.Alive {
			marks[d.Pos] = '@'
		}
	}
	return s.worldMap.Render(marks)
}

// Talk answers a visitor's message in the dwarf's voice. Generation runs on
// the caller's goroutine; the exchange is recorded on the simulation
// goroutine at the next frame. Falls back to a canned line when offline or
// when generation fails.
func (s *Simulation) Talk(ctx context.Context, id agents.DwarfID, message string) (cognition.TalkReply, error) {
	s.mu.RLock()
	d, ok := s.index[id]
	if !ok {
		s.mu.RUnlock()
		return cognition.TalkReply{}, ErrNoSuchDwarf
	}
	if !d.Alive {
		s.mu.RUnlock()
		return cognition.TalkReply{}, ErrDwarfDead
	}
	req := s.cognition.TalkRequest(d, message)
	name := d.Name
	s.mu.RUnlock()

	text := ""
	if s.queue != nil && s.cognition.Online() {
		if r := s.queue.Do(ctx, req); r.OK() {
			text = llm.Clean(r.Text, name)
		} else {
			s.logger.Debug("talk generation failed", zap.String("dwarf", name), zap.Error(r.Err))
		}
	}

	done := make(chan cognition.TalkReply, 1)
	s.cognition.Scheduler().Post(func() {
		done <- s.cognition.RecordTalk(d, message, text)
	})
	select {
	case reply := <-done:
		return reply, nil
	case <-ctx.Done():
		return cognition.TalkReply{}, ctx.Err()
	}
}

// Checkpoint is a consistent copy of the state worth saving.
type Checkpoint struct {
	Tick          uint64
	Dwarves       []*agents.Dwarf
	Conversations []cognition.Conversation // Finished since the previous checkpoint
}

// Checkpoint copies the dwarves and takes the conversations finished since
// the last checkpoint.
func (s *Simulation) Checkpoint() Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := Checkpoint{Tick: s.lastTick, Conversations: s.cognition.DrainEnded()}
	for _, d := range s.dwarves {
		cp.Dwarves = append(cp.Dwarves, d.Clone())
	}
	return cp
}

// SaveCheckpoint takes a checkpoint and hands it to save. When save fails the
// checkpoint's conversations are queued again for the next attempt.
func (s *Simulation) SaveCheckpoint(save func(Checkpoint) error) error {
	cp := s.Checkpoint()
	if err := save(cp); err != nil {
		s.mu.Lock()
		s.cognition.RequeueEnded(cp.Conversations)
		s.mu.Unlock()
		return err
	}
	return nil
}
