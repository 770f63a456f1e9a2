package cognition

import (
	"container/heap"
	"sync"
	"time"
)

// Scheduler is a cooperative timer queue. Timers and posted closures run
// only inside Drain, on the goroutine that owns the simulation state. Other
// goroutines hand work over with Post.
type Scheduler struct {
	clock Clock

	mu     sync.Mutex
	inbox  []func()
	timers timerHeap
	seq    uint64
}

type timer struct {
	fireAt time.Time
	seq    uint64
	action func()
}

// timerHeap orders timers by fire time, then by scheduling order.
type timerHeap []timer

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].fireAt.Equal(h[j].fireAt) {
		return h[i].seq < h[j].seq
	}
	return h[i].fireAt.Before(h[j].fireAt)
}
func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)   { *h = append(*h, x.(timer)) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = timer{}
	*h = old[:n-1]
	return t
}

func NewScheduler(clock Clock) *Scheduler {
	return &Scheduler{clock: clock}
}

// Now returns the scheduler's clock time.
func (s *Scheduler) Now() time.Time {
	return s.clock.Now()
}

// After runs action once d has elapsed on the clock.
func (s *Scheduler) After(d time.Duration, action func()) {
	s.At(s.clock.Now().Add(d), action)
}

// At runs action at or after t.
func (s *Scheduler) At(t time.Time, action func()) {
	s.mu.Lock()
	s.seq++
	heap.Push(&s.timers, timer{fireAt: t, seq: s.seq, action: action})
	s.mu.Unlock()
}

// Post queues action for the next Drain. Safe to call from any goroutine.
func (s *Scheduler) Post(action func()) {
	s.mu.Lock()
	s.inbox = append(s.inbox, action)
	s.mu.Unlock()
}

// Drain runs posted closures and every timer due by now, in order, until
// nothing runnable remains. Work scheduled while draining runs in the same
// call if it is already due. Returns the number of actions run.
func (s *Scheduler) Drain() int {
	n := 0
	for {
		action, ok := s.next()
		if !ok {
			return n
		}
		action()
		n++
	}
}

func (s *Scheduler) next() (func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.inbox) > 0 {
		a := s.inbox[0]
		s.inbox[0] = nil
		s.inbox = s.inbox[1:]
		return a, true
	}
	if len(s.timers) > 0 && !s.timers[0].fireAt.After(s.clock.Now()) {
		t := heap.Pop(&s.timers).(timer)
		return t.action, true
	}
	return nil, false
}

// Len returns the number of pending timers and posted closures.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers) + len(s.inbox)
}

// NextAt returns when the earliest timer fires.
func (s *Scheduler) NextAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.timers) == 0 {
		return time.Time{}, false
	}
	return s.timers[0].fireAt, true
}
