package behavior

import (
	"math/rand"
	"sort"

	"go.uber.org/zap"

	"github.com/talgya/dwarfhold/internal/agents"
	"github.com/talgya/dwarfhold/internal/config"
	"github.com/talgya/dwarfhold/internal/events"
	"github.com/talgya/dwarfhold/internal/world"
)

// Config holds the decider's ranges and cadence, in tiles and ticks.
type Config struct {
	ReconsiderInterval int
	ThreatRange        int
	WorkRange          int
	SocialRange        int
}

// ConfigFromTuning extracts the decider settings from the tuning document.
func ConfigFromTuning(t config.BehaviorTuning) Config {
	return Config{
		ReconsiderInterval: t.ReconsiderInterval,
		ThreatRange:        t.ThreatRange,
		WorkRange:          t.WorkRange,
		SocialRange:        t.SocialRange,
	}
}

// Priority constants.
const (
	IdlePriority = 10.0
	forageBase   = 60.0
	needBase     = 20.0
	needWeight   = 0.4
	digBase      = 40.0
	buildBase    = 40.0
	craftBase    = 35.0
	leisureBase  = 25.0 // explore and socialize
	skillWeight  = 20.0
)

const (
	courageThreshold = 0.5
	strikeDamage     = 6.0
	skillGain        = 0.02
	socializeTicks   = 8
	restTicks        = 10
	wanderRadius     = 5
	exploreRadius    = 12
)

var aspirationBoosts = [agents.NumAspirations]struct {
	kind  agents.TaskKind
	boost float64
}{
	agents.AspirationMasterCraftsman: {agents.TaskCraft, 55},
	agents.AspirationGreatBuilder:    {agents.TaskBuild, 50},
	agents.AspirationDeepDelver:      {agents.TaskDig, 50},
	agents.AspirationExplorer:        {agents.TaskExplore, 45},
	agents.AspirationSocialite:       {agents.TaskSocialize, 45},
}

// AspirationBoost returns the task kind an aspiration favors and by how much.
func AspirationBoost(a agents.Aspiration) (agents.TaskKind, float64) {
	if int(a) >= len(aspirationBoosts) {
		return agents.TaskIdle, 0
	}
	b := aspirationBoosts[a]
	return b.kind, b.boost
}

// ShouldFight decides fight-or-flee from bravery and relative health.
func ShouldFight(d *agents.Dwarf, h HostileRef) bool {
	rel := 1.0
	if total := d.Health + h.Health; total > 0 {
		rel = d.Health / total
	}
	courage := 0.6*d.Personality.Get(agents.TraitBravery) + 0.4*rel
	return courage >= courageThreshold
}

// Decider runs the per-dwarf task state machine. It belongs to the
// simulation goroutine.
type Decider struct {
	cfg    Config
	caps   Capabilities
	view   View
	pub    Publisher
	rng    *rand.Rand
	logger *zap.Logger
}

// NewDecider creates a decider over the given collaborators.
func NewDecider(cfg Config, caps Capabilities, view View, pub Publisher, rng *rand.Rand, logger *zap.Logger) *Decider {
	return &Decider{
		cfg:    cfg,
		caps:   caps,
		view:   view,
		pub:    pub,
		rng:    rng,
		logger: logger,
	}
}

// Update advances one dwarf by one tick.
func (dc *Decider) Update(d *agents.Dwarf) {
	if !d.Alive {
		d.CurrentTask = nil
		return
	}

	// Threats override everything.
	if h, ok := dc.caps.Combat.NearestHostile(d.Pos, dc.cfg.ThreatRange); ok {
		dc.respondToThreat(d, h)
		return
	}

	if d.Plan.Fleeing {
		if h, ok := dc.caps.Combat.Hostile(d.Plan.ThreatID); ok && world.Manhattan(d.Pos, h.Pos) <= 2*dc.cfg.ThreatRange {
			dc.flee(d, h)
			return
		}
		d.Plan.Fleeing = false
	}
	if d.Activity == agents.ActivityFighting || d.Activity == agents.ActivityFleeingCombat {
		d.Plan.ThreatID = 0
		d.Activity = agents.ActivityIdle
	}

	// Critical hunger pins the dwarf to food while any is reachable;
	// reconsideration does not apply.
	if agents.IsCritical(d) {
		if _, foraging := d.CurrentTask.(*ForageTask); foraging {
			if d.Plan.ReconsiderIn > 0 {
				d.Plan.ReconsiderIn--
			}
			dc.work(d)
			return
		}
		if t := dc.propose(d, agents.TaskForage, forageBase+(d.Hunger-agents.HungryThreshold)); t != nil {
			dc.start(d, t)
			return
		}
	}

	if d.CurrentTask != nil && d.Plan.ReconsiderIn > 0 {
		d.Plan.ReconsiderIn--
		dc.work(d)
		return
	}

	// The current task survives unless a different kind scores above what
	// the current one scored when it started.
	best := dc.FindNewTask(d)
	if cur := d.CurrentTask; cur != nil && (cur.Kind() == best.Kind() || best.Priority() <= d.Plan.LastScore) {
		d.Plan.ReconsiderIn = dc.cfg.ReconsiderInterval
		dc.work(d)
		return
	}
	dc.start(d, best)
}

// FindNewTask returns the highest-priority candidate. Idle is always a
// candidate, so the result is never nil.
func (dc *Decider) FindNewTask(d *agents.Dwarf) agents.Task {
	return dc.Candidates(d)[0]
}

// Candidates returns every task the dwarf could take up, highest priority
// first. Equal priorities keep insertion order: forage, need-driven,
// aspiration, dig, build, craft, idle.
func (dc *Decider) Candidates(d *agents.Dwarf) []agents.Task {
	var out []agents.Task
	add := func(t agents.Task) {
		if t != nil {
			out = append(out, t)
		}
	}

	if agents.IsHungry(d) {
		add(dc.propose(d, agents.TaskForage, forageBase+(d.Hunger-agents.HungryThreshold)))
	}

	if n, urgency, ok := agents.MostPressingNeed(d); ok {
		p := needBase + needWeight*urgency
		switch n {
		case agents.NeedSocial:
			add(dc.propose(d, agents.TaskSocialize, p))
		case agents.NeedExploration:
			add(dc.propose(d, agents.TaskExplore, p))
		case agents.NeedCreativity:
			add(dc.propose(d, agents.TaskCraft, p))
		case agents.NeedTranquility:
			add(&IdleTask{Dest: d.Pos, Rest: true, priority: p})
		}
	}

	if kind, boost := AspirationBoost(d.Aspiration); boost > 0 {
		add(dc.propose(d, kind, dc.basePriority(d, kind)+boost))
	}

	for _, kind := range []agents.TaskKind{agents.TaskDig, agents.TaskBuild, agents.TaskCraft} {
		add(dc.propose(d, kind, dc.basePriority(d, kind)))
	}

	add(dc.propose(d, agents.TaskIdle, IdlePriority))

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority() > out[j].Priority()
	})
	return out
}

func (dc *Decider) basePriority(d *agents.Dwarf, kind agents.TaskKind) float64 {
	switch kind {
	case agents.TaskDig:
		return digBase + skillWeight*d.Skills.Get(agents.SkillMining)
	case agents.TaskBuild:
		return buildBase + skillWeight*d.Skills.Get(agents.SkillBuilding)
	case agents.TaskCraft:
		return craftBase + skillWeight*d.Skills.Get(agents.SkillCrafting)
	case agents.TaskExplore, agents.TaskSocialize:
		return leisureBase
	default:
		return IdlePriority
	}
}

// propose builds a task of the given kind with a concrete target, or returns
// nil when no target exists.
func (dc *Decider) propose(d *agents.Dwarf, kind agents.TaskKind, priority float64) agents.Task {
	switch kind {
	case agents.TaskForage:
		if food, ok := dc.caps.Foraging.NearestFood(d.Pos); ok {
			return &ForageTask{Food: food, priority: priority}
		}
	case agents.TaskSocialize:
		if partner := dc.nearestPartner(d); partner != nil {
			return &SocializeTask{Partner: partner.ID, priority: priority}
		}
	case agents.TaskExplore:
		dest, ok := dc.caps.Movement.Unexplored(d.Pos, func(p world.Point) bool { return agents.HasVisited(d, p) })
		if !ok {
			dest, ok = dc.caps.Movement.RandomDestination(d.Pos, exploreRadius)
		}
		if ok {
			return &ExploreTask{Dest: dest, priority: priority}
		}
	case agents.TaskDig:
		if ref, ok := dc.caps.Digging.NearestDesignation(d.Pos); ok {
			return &DigTask{Designation: ref, priority: priority}
		}
	case agents.TaskBuild:
		ref, ok := dc.caps.Construction.NearestProject(d.Pos)
		if !ok {
			return nil
		}
		if dc.caps.Construction.NeedsMaterial(ref.ID) && !d.Plan.Carrying {
			if _, ok := dc.caps.Construction.NearestMaterial(d.Pos); !ok {
				return nil
			}
		}
		return &BuildTask{Project: ref, priority: priority}
	case agents.TaskCraft:
		if ref, ok := dc.caps.Crafting.NextJob(d.Pos); ok {
			return &CraftTask{Job: ref, priority: priority}
		}
	case agents.TaskIdle:
		if dest, ok := dc.caps.Movement.RandomDestination(d.Pos, wanderRadius); ok {
			return &IdleTask{Dest: dest, priority: priority}
		}
		return &IdleTask{Dest: d.Pos, Rest: true, priority: priority}
	}
	return nil
}

// nearestPartner returns the closest other living dwarf. Ties go to the
// earlier dwarf in view order.
func (dc *Decider) nearestPartner(d *agents.Dwarf) *agents.Dwarf {
	var best *agents.Dwarf
	bestDist := 0
	for _, o := range dc.view.Dwarves() {
		if o.ID == d.ID || !o.Alive {
			continue
		}
		if dist := world.Manhattan(d.Pos, o.Pos); best == nil || dist < bestDist {
			best, bestDist = o, dist
		}
	}
	return best
}

func (dc *Decider) start(d *agents.Dwarf, t agents.Task) {
	d.CurrentTask = t
	d.Plan.LastScore = t.Priority()
	d.Plan.ReconsiderIn = dc.cfg.ReconsiderInterval

	switch t := t.(type) {
	case *ForageTask:
		d.Activity = agents.ActivitySeekingFood
	case *SocializeTask:
		d.Activity = agents.ActivitySeekingSocial
	case *ExploreTask:
		d.Activity = agents.ActivityExploring
	case *DigTask:
		d.Activity = agents.ActivityWorkingDig
	case *BuildTask:
		if dc.caps.Construction.NeedsMaterial(t.Project.ID) {
			d.Activity = agents.ActivityHauling
		} else {
			d.Activity = agents.ActivityWorkingBuild
		}
	case *CraftTask:
		d.Activity = agents.ActivityWorkingCraft
	case *IdleTask:
		if t.Rest {
			d.Activity = agents.ActivityIdle
		} else {
			d.Activity = agents.ActivityWandering
		}
	}

	dc.logger.Debug("task selected",
		zap.Uint64("dwarf", uint64(d.ID)),
		zap.String("task", t.Kind().String()),
		zap.Float64("priority", t.Priority()),
	)
}

func (dc *Decider) work(d *agents.Dwarf) {
	switch t := d.CurrentTask.(type) {
	case *ForageTask:
		dc.workForage(d, t)
	case *SocializeTask:
		dc.workSocialize(d, t)
	case *ExploreTask:
		dc.workExplore(d, t)
	case *DigTask:
		dc.workDig(d, t)
	case *BuildTask:
		dc.workBuild(d, t)
	case *CraftTask:
		dc.workCraft(d, t)
	case *IdleTask:
		dc.workIdle(d, t)
	default:
		dc.abandon(d)
	}
}

// complete ends a finished task. The visible state is kept for this tick.
func (dc *Decider) complete(d *agents.Dwarf) {
	d.CurrentTask = nil
	d.Plan.ReconsiderIn = 0
}

// abandon drops a task whose target is gone or unreachable.
func (dc *Decider) abandon(d *agents.Dwarf) {
	dc.complete(d)
	d.Activity = agents.ActivityIdle
}

// approach moves d one step toward to. It reports whether d is already
// within range, and false for reachable when no path exists.
func (dc *Decider) approach(d *agents.Dwarf, to world.Point, within int) (arrived, reachable bool) {
	if world.Manhattan(d.Pos, to) <= within {
		return true, true
	}
	next, ok := dc.caps.Movement.StepToward(d.Pos, to, within)
	if !ok {
		return false, false
	}
	// Moving uses up the tick.
	dc.moveTo(d, next)
	return false, true
}

func (dc *Decider) moveTo(d *agents.Dwarf, p world.Point) {
	d.Pos = p
	if !agents.Visit(d, p) {
		return
	}
	agents.Satisfy(d, agents.NeedExploration, 0.6)
	e := events.Event{Kind: events.KindNewTerrain, Tick: dc.view.Tick(), DwarfID: d.ID, Pos: p}
	if m := dc.view.Map(); m != nil {
		e.Terrain, _ = m.TerrainAt(p)
	}
	dc.pub.Publish(e)
}

func (dc *Decider) power(d *agents.Dwarf, s agents.Skill) float64 {
	return 1 + 2*d.Skills.Get(s)
}

// skillRoll occasionally improves a skill through use. Less practiced
// skills improve more often.
func (dc *Decider) skillRoll(d *agents.Dwarf, s agents.Skill) {
	chance := 0.05 + 0.07*(1-d.Skills.Get(s))
	if dc.rng.Float64() < chance {
		d.Skills.Improve(s, skillGain)
	}
}

func (dc *Decider) workForage(d *agents.Dwarf, t *ForageTask) {
	if !dc.caps.Foraging.FoodExists(t.Food.ID) {
		dc.abandon(d)
		return
	}
	arrived, ok := dc.approach(d, t.Food.Pos, dc.cfg.WorkRange)
	if !ok {
		dc.abandon(d)
		return
	}
	if !arrived {
		d.Activity = agents.ActivitySeekingFood
		return
	}

	nutrition, ok := dc.caps.Foraging.Eat(t.Food.ID)
	if !ok {
		dc.abandon(d)
		return
	}
	before := d.Hunger
	agents.Feed(d, nutrition)
	agents.AdjustMood(d, 3)
	d.Activity = agents.ActivityEating
	dc.pub.Publish(events.Event{
		Kind:    events.KindFoodFound,
		Tick:    dc.view.Tick(),
		DwarfID: d.ID,
		Pos:     t.Food.Pos,
		Before:  before,
		After:   d.Hunger,
	})
	dc.complete(d)
}

func (dc *Decider) workSocialize(d *agents.Dwarf, t *SocializeTask) {
	partner := dc.view.Dwarf(t.Partner)
	if partner == nil || !partner.Alive || partner.ID == d.ID {
		dc.abandon(d)
		return
	}
	arrived, ok := dc.approach(d, partner.Pos, dc.cfg.SocialRange)
	if !ok {
		dc.abandon(d)
		return
	}
	if !arrived {
		d.Activity = agents.ActivitySeekingSocial
		return
	}

	d.Activity = agents.ActivitySocializing
	t.elapsed++
	if t.elapsed < socializeTicks {
		return
	}
	agents.Satisfy(d, agents.NeedSocial, 1)
	dc.skillRoll(d, agents.SkillSocial)
	dc.complete(d)
}

func (dc *Decider) workExplore(d *agents.Dwarf, t *ExploreTask) {
	arrived, ok := dc.approach(d, t.Dest, 0)
	if !ok {
		dc.abandon(d)
		return
	}
	d.Activity = agents.ActivityExploring
	if !arrived {
		return
	}
	agents.Satisfy(d, agents.NeedExploration, 0.5)
	dc.complete(d)
}

func (dc *Decider) workDig(d *agents.Dwarf, t *DigTask) {
	if !dc.caps.Digging.Designated(t.Designation.ID) {
		dc.abandon(d)
		return
	}
	arrived, ok := dc.approach(d, t.Designation.Pos, dc.cfg.WorkRange)
	if !ok {
		dc.abandon(d)
		return
	}
	d.Activity = agents.ActivityWorkingDig
	if !arrived {
		return
	}

	done, ok := dc.caps.Digging.Dig(t.Designation.ID, dc.power(d, agents.SkillMining))
	if !ok {
		dc.abandon(d)
		return
	}
	dc.skillRoll(d, agents.SkillMining)
	if !done {
		return
	}
	agents.AdjustMood(d, 2)
	agents.Satisfy(d, agents.NeedCreativity, 0.3)
	if d.Aspiration == agents.AspirationDeepDelver {
		agents.AdjustMood(d, 3)
	}
	agents.RememberEvent(d, dc.view.Tick(), dc.view.Now(), "dug out "+t.Designation.Pos.String())
	dc.complete(d)
}

func (dc *Decider) workBuild(d *agents.Dwarf, t *BuildTask) {
	c := dc.caps.Construction
	if !c.ProjectActive(t.Project.ID) {
		dc.abandon(d)
		return
	}
	needs := c.NeedsMaterial(t.Project.ID)

	switch {
	case needs && d.Plan.Carrying:
		arrived, ok := dc.approach(d, t.Project.Pos, dc.cfg.WorkRange)
		if !ok {
			dc.abandon(d)
			return
		}
		d.Activity = agents.ActivityHauling
		if arrived && c.DeliverMaterial(t.Project.ID) {
			d.Plan.Carrying = false
		}

	case needs:
		if t.Material.ID == 0 {
			m, ok := c.NearestMaterial(d.Pos)
			if !ok {
				dc.abandon(d)
				return
			}
			t.Material = m
		}
		arrived, ok := dc.approach(d, t.Material.Pos, dc.cfg.WorkRange)
		if !ok {
			dc.abandon(d)
			return
		}
		d.Activity = agents.ActivityHauling
		if !arrived {
			return
		}
		if c.TakeMaterial(t.Material.ID) {
			d.Plan.Carrying = true
		}
		// Taken or not, pick a fresh material next time one is needed.
		t.Material = Ref{}

	default:
		arrived, ok := dc.approach(d, t.Project.Pos, dc.cfg.WorkRange)
		if !ok {
			dc.abandon(d)
			return
		}
		d.Activity = agents.ActivityWorkingBuild
		if !arrived {
			return
		}
		done, ok := c.Build(t.Project.ID, dc.power(d, agents.SkillBuilding))
		if !ok {
			dc.abandon(d)
			return
		}
		dc.skillRoll(d, agents.SkillBuilding)
		if done {
			agents.Satisfy(d, agents.NeedCreativity, 0.8)
			agents.AdjustMood(d, 5)
			agents.RememberEvent(d, dc.view.Tick(), dc.view.Now(), "finished a construction")
			dc.complete(d)
		}
	}
}

func (dc *Decider) workCraft(d *agents.Dwarf, t *CraftTask) {
	if !dc.caps.Crafting.JobActive(t.Job.ID) {
		dc.abandon(d)
		return
	}
	arrived, ok := dc.approach(d, t.Job.Pos, dc.cfg.WorkRange)
	if !ok {
		dc.abandon(d)
		return
	}
	d.Activity = agents.ActivityWorkingCraft
	if !arrived {
		return
	}
	done, ok := dc.caps.Crafting.Craft(t.Job.ID, dc.power(d, agents.SkillCrafting))
	if !ok {
		dc.abandon(d)
		return
	}
	dc.skillRoll(d, agents.SkillCrafting)
	if done {
		agents.Satisfy(d, agents.NeedCreativity, 1)
		agents.AdjustMood(d, 4)
		dc.complete(d)
	}
}

func (dc *Decider) workIdle(d *agents.Dwarf, t *IdleTask) {
	if t.Rest {
		d.Activity = agents.ActivityIdle
		t.elapsed++
		if t.elapsed >= restTicks {
			agents.Satisfy(d, agents.NeedTranquility, 1)
			dc.complete(d)
		}
		return
	}
	arrived, ok := dc.approach(d, t.Dest, 0)
	if !ok {
		dc.abandon(d)
		return
	}
	d.Activity = agents.ActivityWandering
	if arrived {
		agents.Satisfy(d, agents.NeedTranquility, 0.2)
		dc.complete(d)
	}
}

func (dc *Decider) respondToThreat(d *agents.Dwarf, h HostileRef) {
	if d.CurrentTask != nil {
		dc.complete(d)
	}
	d.Plan.ThreatID = h.ID
	if ShouldFight(d, h) {
		d.Plan.Fleeing = false
		dc.fight(d, h)
		return
	}
	d.Plan.Fleeing = true
	dc.flee(d, h)
}

func (dc *Decider) fight(d *agents.Dwarf, h HostileRef) {
	d.Activity = agents.ActivityFighting
	arrived, ok := dc.approach(d, h.Pos, 1)
	if !ok || !arrived {
		return
	}
	killed, ok := dc.caps.Combat.Strike(h.ID, strikeDamage*dc.power(d, agents.SkillCombat))
	if !ok {
		return
	}
	dc.skillRoll(d, agents.SkillCombat)
	if killed {
		agents.AdjustMood(d, 5)
		agents.RememberEvent(d, dc.view.Tick(), dc.view.Now(), "slew a hostile creature")
		d.Plan.ThreatID = 0
	}
}

func (dc *Decider) flee(d *agents.Dwarf, h HostileRef) {
	d.Activity = agents.ActivityFleeingCombat
	if next := dc.caps.Movement.StepAway(d.Pos, h.Pos); next != d.Pos {
		dc.moveTo(d, next)
	}
}
