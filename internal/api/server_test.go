package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/dwarfhold/internal/agents"
	"github.com/talgya/dwarfhold/internal/cognition"
	"github.com/talgya/dwarfhold/internal/colony"
	"github.com/talgya/dwarfhold/internal/config"
	"github.com/talgya/dwarfhold/internal/engine"
	"github.com/talgya/dwarfhold/internal/persistence"
	"github.com/talgya/dwarfhold/internal/world"
)

type fakeArchive struct {
	list []persistence.Transcript
	err  error
	n    int
}

func (f *fakeArchive) RecentConversations(n int) ([]persistence.Transcript, error) {
	f.n = n
	return f.list, f.err
}

type fixture struct {
	srv     *Server
	handler http.Handler
	dwarves []*agents.Dwarf
}

// newFixture builds an offline colony of three; the third dwarf is dead.
// A goroutine pumps frames so talk requests complete.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	m := world.Generate(world.SmallTestConfig())
	center := world.Center(m)
	dwarves := agents.NewSpawner(7).SpawnColony(3, m, center)
	dwarves[2].Alive = false

	sim := engine.NewSimulation(engine.Options{
		Tuning:  config.DefaultTuning(),
		Seed:    7,
		Map:     m,
		Center:  center,
		Dwarves: dwarves,
		Colony:  colony.DefaultConfig(),
		Clock:   cognition.NewManualClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
	})

	stop := make(chan struct{})
	t.Cleanup(func() { close(stop) })
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				sim.Frame()
				time.Sleep(time.Millisecond)
			}
		}
	}()

	srv := &Server{
		Sim:      sim,
		Eng:      engine.NewEngine(time.Second, nil),
		AdminKey: "secret",
		Talk:     NewRateLimiter(100, 100),
	}
	return &fixture{srv: srv, handler: srv.Router(), dwarves: dwarves}
}

func (f *fixture) do(t *testing.T, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	body := decode[map[string]any](t, rec)
	assert.Equal(t, false, body["online"])
	assert.Equal(t, 1.0, body["speed"])
	assert.Contains(t, body, "cognition")
	assert.Contains(t, body, "sim_time")
}

func TestDwarves(t *testing.T) {
	f := newFixture(t)

	list := decode[[]map[string]any](t, f.do(t, http.MethodGet, "/api/v1/dwarves", ""))
	assert.Len(t, list, 3)

	alive := decode[[]map[string]any](t, f.do(t, http.MethodGet, "/api/v1/dwarves?alive=true", ""))
	assert.Len(t, alive, 2)

	id := f.dwarves[0].ID
	rec := f.do(t, http.MethodGet, "/api/v1/dwarves/"+itoa(id), "")
	require.Equal(t, http.StatusOK, rec.Code)
	one := decode[map[string]any](t, rec)
	assert.Equal(t, f.dwarves[0].Name, one["name"])
	assert.Contains(t, one, "task")

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/v1/dwarves/999", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/dwarves/abc", "").Code)
}

func TestTalk(t *testing.T) {
	f := newFixture(t)
	id := f.dwarves[0].ID

	rec := f.do(t, http.MethodPost, "/api/v1/dwarves/"+itoa(id)+"/talk", `{"message":"  Found any gems?  "}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	reply := decode[cognition.TalkReply](t, rec)
	assert.Equal(t, id, reply.DwarfID)
	assert.Equal(t, "Found any gems?", reply.Message)
	assert.NotEmpty(t, reply.Reply)
	assert.True(t, reply.Fallback)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"unknown dwarf", "/api/v1/dwarves/999/talk", `{"message":"hi"}`, http.StatusNotFound},
		{"dead dwarf", "/api/v1/dwarves/" + itoa(f.dwarves[2].ID) + "/talk", `{"message":"hi"}`, http.StatusConflict},
		{"empty message", "/api/v1/dwarves/" + itoa(id) + "/talk", `{"message":"   "}`, http.StatusBadRequest},
		{"bad json", "/api/v1/dwarves/" + itoa(id) + "/talk", `{`, http.StatusBadRequest},
		{"too long", "/api/v1/dwarves/" + itoa(id) + "/talk", `{"message":"` + strings.Repeat("a", maxTalkLength+1) + `"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.do(t, http.MethodPost, tt.path, tt.body).Code)
		})
	}
}

func TestTalk_RateLimited(t *testing.T) {
	f := newFixture(t)
	f.srv.Talk = NewRateLimiter(0.001, 1)
	f.handler = f.srv.Router()
	path := "/api/v1/dwarves/" + itoa(f.dwarves[0].ID) + "/talk"

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPost, path, `{"message":"hi"}`).Code)
	rec := f.do(t, http.MethodPost, path, `{"message":"hi"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Read endpoints are not limited.
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/thoughts", "").Code)
}

func TestSpeed_RequiresAdminKey(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, "/api/v1/speed", `{"speed":5}`).Code)
	assert.Equal(t, http.StatusUnauthorized,
		f.do(t, http.MethodPost, "/api/v1/speed", `{"speed":5}`, "Authorization", "Bearer wrong").Code)
	assert.Equal(t, http.StatusBadRequest,
		f.do(t, http.MethodPost, "/api/v1/speed", `{"speed":5000}`, "Authorization", "Bearer secret").Code)

	rec := f.do(t, http.MethodPost, "/api/v1/speed", `{"speed":5}`, "Authorization", "Bearer secret")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5.0, f.srv.Eng.Speed())
	assert.Equal(t, map[string]float64{"speed": 5}, decode[map[string]float64](t, f.do(t, http.MethodGet, "/api/v1/speed", "")))

	f.srv.AdminKey = ""
	f.handler = f.srv.Router()
	assert.Equal(t, http.StatusForbidden,
		f.do(t, http.MethodPost, "/api/v1/speed", `{"speed":5}`, "Authorization", "Bearer secret").Code)
}

func TestMapAndConversations(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/map", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "@")

	body := decode[map[string]json.RawMessage](t, f.do(t, http.MethodGet, "/api/v1/conversations?recent=5", ""))
	assert.Contains(t, body, "active")
	assert.Contains(t, body, "recent")

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/conversations?recent=x", "").Code)
}

func TestArchive(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/api/v1/conversations/archive", "").Code)

	arch := &fakeArchive{list: []persistence.Transcript{{ID: "abc", Conversation: cognition.Conversation{ID: "1-2", Turns: 2}}}}
	f.srv.Archive = arch
	f.handler = f.srv.Router()

	rec := f.do(t, http.MethodGet, "/api/v1/conversations/archive?limit=1000", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, maxRecent, arch.n)
	list := decode[[]persistence.Transcript](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "abc", list[0].ID)

	arch.err = errors.New("disk gone")
	assert.Equal(t, http.StatusInternalServerError, f.do(t, http.MethodGet, "/api/v1/conversations/archive", "").Code)
}

func TestCORS(t *testing.T) {
	f := newFixture(t)
	f.srv.Origins = []string{"https://hold.example"}
	f.handler = f.srv.Router()

	rec := f.do(t, http.MethodOptions, "/api/v1/status", "", "Origin", "https://hold.example")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://hold.example", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = f.do(t, http.MethodGet, "/api/v1/status", "", "Origin", "https://evil.example")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStream(t *testing.T) {
	f := newFixture(t)
	hub := NewHub(nil)
	f.srv.Hub = hub
	ts := httptest.NewServer(f.srv.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var hello Envelope
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "hello", hello.Type)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	hub.OnThought(cognition.ThoughtNote{DwarfID: 1, Name: "Urist", Text: "The rock sings."})

	var msg struct {
		Type string                `json:"type"`
		Data cognition.ThoughtNote `json:"data"`
	}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "thought", msg.Type)
	assert.Equal(t, "The rock sings.", msg.Data.Text)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.Equal(t, 1, rl.RetryAfter("10.0.0.1"))

	now = now.Add(time.Hour)
	rl.Cleanup(time.Minute)
	assert.Empty(t, rl.visitors)
	assert.True(t, rl.Allow("10.0.0.1"))
}

func itoa(id agents.DwarfID) string {
	return strconv.FormatUint(uint64(id), 10)
}
