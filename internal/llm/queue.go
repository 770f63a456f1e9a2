package llm

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Result is the outcome of a queued generation. Exactly one of Text and Err
// is meaningful: Err is nil iff Text is usable.
type Result struct {
	Text string
	Err  error
}

// OK reports whether the result carries text.
func (r Result) OK() bool {
	return r.Err == nil && r.Text != ""
}

// Stats are cumulative queue counters.
type Stats struct {
	Submitted int `json:"submitted"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Timeouts  int `json:"timeouts"`
	MaxActive int `json:"max_active"`
}

type entry struct {
	req  Request
	done func(Result)
}

// Queue dispatches generation requests FIFO with at most limit in flight.
// Each call runs under its own deadline, so every submission resolves even if
// the generator hangs. Safe for concurrent use.
type Queue struct {
	gen     Generator
	limit   int
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	pending []*entry
	active  int
	stats   Stats
}

// NewQueue creates a queue over gen. limit and timeout fall back to 10 and 5s
// when not positive.
func NewQueue(gen Generator, limit int, timeout time.Duration, logger *zap.Logger) *Queue {
	if limit <= 0 {
		limit = 10
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Queue{
		gen:     gen,
		limit:   limit,
		timeout: timeout,
		logger:  logger,
	}
}

// Submit enqueues req. done is called exactly once, from a worker goroutine,
// with the result.
func (q *Queue) Submit(req Request, done func(Result)) {
	q.mu.Lock()
	q.pending = append(q.pending, &entry{req: req, done: done})
	q.stats.Submitted++
	q.mu.Unlock()

	q.dispatch()
}

// Do submits req and waits for its result or for ctx to end, whichever is
// first. The queued call keeps its slot until its own deadline.
func (q *Queue) Do(ctx context.Context, req Request) Result {
	ch := make(chan Result, 1)
	q.Submit(req, func(r Result) { ch <- r })
	select {
	case r := <-ch:
		return r
	case <-ctx.Done():
		return Result{Err: classify(ctx.Err())}
	}
}

// dispatch starts pending entries while slots are free.
func (q *Queue) dispatch() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.active < q.limit && len(q.pending) > 0 {
		e := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.active++
		if q.active > q.stats.MaxActive {
			q.stats.MaxActive = q.active
		}
		go q.run(e)
	}
}

func (q *Queue) run(e *entry) {
	r := q.call(e.req)
	if r.Err != nil {
		q.logger.Debug("generation failed", zap.String("kind", string(KindOf(r.Err))), zap.Error(r.Err))
	}

	// Resolve before freeing the slot so Idle implies every callback ran.
	q.resolve(e, r)

	q.mu.Lock()
	q.active--
	q.stats.Completed++
	if r.Err != nil {
		q.stats.Failed++
		if KindOf(r.Err) == KindTimeout {
			q.stats.Timeouts++
		}
	}
	q.mu.Unlock()

	q.dispatch()
}

// call runs one generation under the queue deadline. A generator that ignores
// its context is abandoned when the deadline passes.
func (q *Queue) call(req Request) Result {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	ch := make(chan Result, 1)
	go func() {
		text, err := q.gen.Generate(ctx, req)
		ch <- Result{Text: text, Err: err}
	}()

	var r Result
	select {
	case r = <-ch:
	case <-ctx.Done():
		return Result{Err: &GenerationError{Kind: KindTimeout, Err: ctx.Err()}}
	}

	if r.Err != nil {
		return Result{Err: classify(r.Err)}
	}
	if strings.TrimSpace(r.Text) == "" {
		return Result{Err: &GenerationError{Kind: KindEmpty}}
	}
	return r
}

func (q *Queue) resolve(e *entry, r Result) {
	defer func() {
		if p := recover(); p != nil {
			q.logger.Error("generation callback panicked", zap.Any("panic", p))
		}
	}()
	if e.done != nil {
		e.done(r)
	}
}

// Active returns the number of calls in flight.
func (q *Queue) Active() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}

// Pending returns the number of requests waiting for a slot.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Idle reports whether nothing is queued or in flight.
func (q *Queue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active == 0 && len(q.pending) == 0
}

func (q *Queue) Limit() int {
	return q.limit
}

func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}
