package llm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// generatorFunc adapts a function to Generator.
type generatorFunc func(ctx context.Context, req Request) (string, error)

func (f generatorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// slowGenerator answers after delay and records peak concurrency.
type slowGenerator struct {
	delay   time.Duration
	current atomic.Int32
	peak    atomic.Int32
}

func (g *slowGenerator) Generate(ctx context.Context, req Request) (string, error) {
	n := g.current.Add(1)
	defer g.current.Add(-1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	select {
	case <-time.After(g.delay):
		return "echo " + req.Prompt, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestQueue_Saturation(t *testing.T) {
	gen := &slowGenerator{delay: 100 * time.Millisecond}
	q := NewQueue(gen, 10, time.Second, zap.NewNop())

	var resolved atomic.Int32
	start := time.Now()
	for i := 0; i < 15; i++ {
		q.Submit(Request{Prompt: "p"}, func(r Result) {
			if r.OK() {
				resolved.Add(1)
			}
		})
	}

	assert.Equal(t, 10, q.Active())
	assert.Equal(t, 5, q.Pending())

	require.Eventually(t, func() bool { return resolved.Load() == 15 }, 2*time.Second, 5*time.Millisecond)
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond, "second wave waits for a free slot")
	assert.Less(t, elapsed, time.Second)

	require.Eventually(t, q.Idle, time.Second, 5*time.Millisecond)
	assert.LessOrEqual(t, int(gen.peak.Load()), 10)

	stats := q.Stats()
	assert.Equal(t, 15, stats.Submitted)
	assert.Equal(t, 15, stats.Completed)
	assert.Equal(t, 10, stats.MaxActive)
	assert.Zero(t, stats.Failed)
}

func TestQueue_FIFODispatch(t *testing.T) {
	var mu sync.Mutex
	var started []string
	gen := generatorFunc(func(ctx context.Context, req Request) (string, error) {
		mu.Lock()
		started = append(started, req.Prompt)
		mu.Unlock()
		return req.Prompt, nil
	})
	q := NewQueue(gen, 1, time.Second, zap.NewNop())

	for _, p := range []string{"a", "b", "c", "d"} {
		q.Submit(Request{Prompt: p}, nil)
	}
	require.Eventually(t, q.Idle, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b", "c", "d"}, started)
}

func TestQueue_TimeoutResolvesWithError(t *testing.T) {
	gen := generatorFunc(func(ctx context.Context, req Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	q := NewQueue(gen, 2, 30*time.Millisecond, zap.NewNop())

	r := q.Do(context.Background(), Request{Prompt: "x"})
	require.Error(t, r.Err)
	assert.False(t, r.OK())
	assert.Equal(t, KindTimeout, KindOf(r.Err))
	require.Eventually(t, func() bool { return q.Stats().Timeouts == 1 }, time.Second, time.Millisecond)
}

func TestQueue_GeneratorIgnoringContextStillResolves(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	gen := generatorFunc(func(ctx context.Context, req Request) (string, error) {
		<-release
		return "too late", nil
	})
	q := NewQueue(gen, 3, 30*time.Millisecond, zap.NewNop())

	var resolved atomic.Int32
	for i := 0; i < 9; i++ {
		q.Submit(Request{}, func(r Result) {
			if KindOf(r.Err) == KindTimeout {
				resolved.Add(1)
			}
		})
	}

	// Three waves of hung calls, each abandoned at its deadline.
	require.Eventually(t, func() bool { return resolved.Load() == 9 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, q.Idle, time.Second, 5*time.Millisecond)
}

func TestQueue_FailuresBecomeResults(t *testing.T) {
	tests := []struct {
		name string
		gen  generatorFunc
		want ErrorKind
	}{
		{
			name: "network error",
			gen: func(ctx context.Context, req Request) (string, error) {
				return "", errors.New("connection refused")
			},
			want: KindUnavailable,
		},
		{
			name: "typed status error",
			gen: func(ctx context.Context, req Request) (string, error) {
				return "", &GenerationError{Kind: KindStatus, Err: errors.New("status 500")}
			},
			want: KindStatus,
		},
		{
			name: "blank text",
			gen: func(ctx context.Context, req Request) (string, error) {
				return "  \n ", nil
			},
			want: KindEmpty,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewQueue(tt.gen, 1, time.Second, zap.NewNop())
			r := q.Do(context.Background(), Request{})
			assert.Equal(t, tt.want, KindOf(r.Err))
			assert.Empty(t, r.Text)
		})
	}
}

func TestQueue_PanickingCallbackDoesNotStall(t *testing.T) {
	gen := generatorFunc(func(ctx context.Context, req Request) (string, error) {
		return "ok", nil
	})
	q := NewQueue(gen, 1, time.Second, zap.NewNop())

	q.Submit(Request{}, func(Result) { panic("listener bug") })
	r := q.Do(context.Background(), Request{})
	assert.True(t, r.OK())
	require.Eventually(t, q.Idle, time.Second, time.Millisecond)
}

func TestQueue_DoHonorsCallerContext(t *testing.T) {
	gen := &slowGenerator{delay: 200 * time.Millisecond}
	q := NewQueue(gen, 1, time.Second, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	r := q.Do(ctx, Request{})
	assert.Equal(t, KindTimeout, KindOf(r.Err))
}
