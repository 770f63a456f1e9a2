// Package api serves the colony over HTTP.
// GET endpoints are public and read-only. Talking to a dwarf is public but
// rate limited. Changing the sim speed requires a bearer token.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/talgya/dwarfhold/internal/agents"
	"github.com/talgya/dwarfhold/internal/engine"
	"github.com/talgya/dwarfhold/internal/persistence"
)

const (
	maxTalkLength   = 500
	talkTimeout     = 90 * time.Second
	defaultRecent   = 20
	maxRecent       = 200
	limiterIdle     = 10 * time.Minute
	shutdownTimeout = 5 * time.Second
)

// Archive serves finished conversations from storage.
type Archive interface {
	RecentConversations(n int) ([]persistence.Transcript, error)
}

// Server serves the colony state over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine
	Archive  Archive // Optional
	Hub      *Hub    // Optional; enables /stream
	AdminKey string  // Bearer token for POST /speed. Empty = disabled.
	Origins  []string
	Talk     *RateLimiter
	Logger   *zap.Logger
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}
	if s.Talk == nil {
		s.Talk = NewRateLimiter(0.5, 3)
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(logging(s.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors(s.Origins))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/colony", s.handleColony)
		r.Get("/map", s.handleMap)
		r.Get("/thoughts", s.handleThoughts)
		r.Get("/conversations", s.handleConversations)
		r.Get("/conversations/archive", s.handleArchive)

		r.Route("/dwarves", func(r chi.Router) {
			r.Get("/", s.handleDwarves)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleDwarf)
				r.With(s.Talk.Middleware).Post("/talk", s.handleTalk)
			})
		})

		r.Get("/speed", s.handleSpeed)
		r.With(s.adminOnly).Post("/speed", s.handleSpeed)

		if s.Hub != nil {
			r.Get("/stream", s.Hub.ServeHTTP)
		}
	})
	return r
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		ticker := time.NewTicker(limiterIdle)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Talk.Cleanup(limiterIdle)
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		s.Logger.Info("HTTP API starting", zap.String("addr", addr), zap.Bool("admin_auth", s.AdminKey != ""))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	if s.Hub != nil {
		s.Hub.Close()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// adminOnly requires the admin bearer token.
func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			writeError(w, http.StatusForbidden, "admin endpoints disabled (no ADMIN_KEY set)")
			return
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != s.AdminKey {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"online": s.Sim.Cognition().Online(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		engine.Status
		Speed   float64 `json:"speed"`
		Running bool    `json:"running"`
		Clients int     `json:"stream_clients"`
	}{Status: s.Sim.Status()}
	if s.Eng != nil {
		resp.Speed = s.Eng.Speed()
		resp.Running = s.Eng.Running()
	}
	if s.Hub != nil {
		resp.Clients = s.Hub.Clients()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleColony(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Sim.Colony())
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(s.Sim.MapText()))
}

func (s *Server) handleThoughts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Sim.Thoughts())
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	n, err := limitParam(r, "recent")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	active, ended := s.Sim.Conversations(n)
	writeJSON(w, http.StatusOK, map[string]any{
		"active": active,
		"recent": ended,
	})
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	if s.Archive == nil {
		writeError(w, http.StatusServiceUnavailable, "no archive configured")
		return
	}
	n, err := limitParam(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	list, err := s.Archive.RecentConversations(n)
	if err != nil {
		s.Logger.Error("archive query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load conversations")
		return
	}
	if list == nil {
		list = []persistence.Transcript{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleDwarves(w http.ResponseWriter, r *http.Request) {
	list := s.Sim.Dwarves()
	if r.URL.Query().Get("alive") == "true" {
		kept := list[:0]
		for _, v := range list {
			if v.Alive {
				kept = append(kept, v)
			}
		}
		list = kept
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleDwarf(w http.ResponseWriter, r *http.Request) {
	id, ok := dwarfID(w, r)
	if !ok {
		return
	}
	v, found := s.Sim.Dwarf(id)
	if !found {
		writeError(w, http.StatusNotFound, "dwarf not found")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type talkRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleTalk(w http.ResponseWriter, r *http.Request) {
	id, ok := dwarfID(w, r)
	if !ok {
		return
	}

	var req talkRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 8*1024)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if len(req.Message) > maxTalkLength {
		writeError(w, http.StatusBadRequest, "message too long")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), talkTimeout)
	defer cancel()

	reply, err := s.Sim.Talk(ctx, id, req.Message)
	switch {
	case errors.Is(err, engine.ErrNoSuchDwarf):
		writeError(w, http.StatusNotFound, "dwarf not found")
	case errors.Is(err, engine.ErrDwarfDead):
		writeError(w, http.StatusConflict, "dwarf is dead")
	case err != nil:
		s.Logger.Warn("talk failed", zap.Uint64("dwarf", uint64(id)), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "the dwarf is not listening")
	default:
		writeJSON(w, http.StatusOK, reply)
	}
}

type speedRequest struct {
	Speed float64 `json:"speed"`
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if s.Eng == nil {
		writeError(w, http.StatusServiceUnavailable, "engine not attached")
		return
	}
	if r.Method == http.MethodPost {
		var req speedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Speed < 0 || req.Speed > 1000 {
			writeError(w, http.StatusBadRequest, "speed must be 0-1000")
			return
		}
		s.Eng.SetSpeed(req.Speed)
		s.Logger.Info("speed changed", zap.Float64("speed", req.Speed))
	}
	writeJSON(w, http.StatusOK, map[string]float64{"speed": s.Eng.Speed()})
}

func dwarfID(w http.ResponseWriter, r *http.Request) (agents.DwarfID, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid dwarf id")
		return 0, false
	}
	return agents.DwarfID(id), true
}

func limitParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return defaultRecent, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("invalid " + name)
	}
	return min(n, maxRecent), nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
