package chronicle

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/talgya/dwarfhold/internal/cognition"
)

// Record kinds.
const (
	KindThought         = "thought"
	KindSpeech          = "speech"
	KindConversationEnd = "conversation_end"
)

// Record is one chronicle line.
type Record struct {
	ID   string          `json:"id"`
	Kind string          `json:"kind"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

// Recorder is a cognition listener that chronicles thoughts, speech and
// finished conversations. Records are written on a background goroutine so
// the simulation never waits on disk; when the buffer is full, records are
// dropped and counted.
type Recorder struct {
	cognition.NopListener

	w      *Writer
	logger *zap.Logger
	ch     chan Record

	wg      sync.WaitGroup
	mu      sync.Mutex
	dropped int
	closed  bool
}

// NewRecorder starts a recorder writing to w.
func NewRecorder(w *Writer, buffer int, logger *zap.Logger) *Recorder {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recorder{w: w, logger: logger, ch: make(chan Record, buffer)}
	r.wg.Add(1)
	go r.loop()
	return r
}

func (r *Recorder) loop() {
	defer r.wg.Done()
	for rec := range r.ch {
		if err := r.w.Write(rec); err != nil {
			r.logger.Warn("chronicle write failed", zap.String("kind", rec.Kind), zap.Error(err))
		}
	}
}

func (r *Recorder) OnThought(n cognition.ThoughtNote) {
	r.enqueue(KindThought, n.At, n)
}

func (r *Recorder) OnSpeech(n cognition.SpeechNote) {
	r.enqueue(KindSpeech, n.At, n)
}

func (r *Recorder) OnConversationEnd(c cognition.Conversation) {
	r.enqueue(KindConversationEnd, c.EndTime, c)
}

func (r *Recorder) enqueue(kind string, at time.Time, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		r.logger.Warn("chronicle encode failed", zap.String("kind", kind), zap.Error(err))
		return
	}
	rec := Record{ID: uuid.NewString(), Kind: kind, At: at, Data: data}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.ch <- rec:
	default:
		r.dropped++
	}
}

// Dropped returns how many records were discarded because the buffer was full.
func (r *Recorder) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Close writes out buffered records and closes the file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.ch)
	r.mu.Unlock()

	r.wg.Wait()
	return r.w.Close()
}
