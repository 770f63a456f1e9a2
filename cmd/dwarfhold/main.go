// Command dwarfhold runs the dwarf colony simulation with its thought and
// conversation engine, and serves it over HTTP.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/talgya/dwarfhold/internal/agents"
	"github.com/talgya/dwarfhold/internal/api"
	"github.com/talgya/dwarfhold/internal/chronicle"
	"github.com/talgya/dwarfhold/internal/cognition"
	"github.com/talgya/dwarfhold/internal/colony"
	"github.com/talgya/dwarfhold/internal/config"
	"github.com/talgya/dwarfhold/internal/engine"
	"github.com/talgya/dwarfhold/internal/llm"
	"github.com/talgya/dwarfhold/internal/persistence"
	"github.com/talgya/dwarfhold/internal/world"
)

func main() {
	if err := config.Load(); err != nil {
		panic(err)
	}
	logger := newLogger(config.LogLevel())
	defer func() { _ = logger.Sync() }()

	tuning, err := config.LoadTuning(config.TuningPath())
	if err != nil {
		logger.Fatal("failed to load tuning", zap.String("path", config.TuningPath()), zap.Error(err))
	}

	// ── Database ──────────────────────────────────────────────────────
	dbPath := config.DatabasePath()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		logger.Fatal("failed to create data directory", zap.Error(err))
	}
	db, err := persistence.Open(dbPath, logger)
	if err != nil {
		logger.Fatal("failed to open database", zap.String("path", dbPath), zap.Error(err))
	}
	defer db.Close()

	// A saved world keeps the seed it was generated with.
	seed := config.WorldSeed()
	if stored, err := db.GetMeta("seed"); err == nil && stored != "" {
		if v, err := strconv.ParseInt(stored, 10, 64); err == nil {
			seed = v
		}
	}

	// ── World map (always regenerated, deterministic from seed) ──────
	genCfg := world.DefaultGenConfig()
	genCfg.Seed = seed
	worldMap := world.Generate(genCfg)
	center := world.Center(worldMap)
	for t, c := range worldMap.TerrainCounts() {
		logger.Debug("terrain", zap.String("type", world.TerrainName(t)), zap.Int("count", c))
	}

	// ── Load or spawn the colony ─────────────────────────────────────
	spawner := agents.NewSpawner(seed)
	var dwarves []*agents.Dwarf
	var startTick uint64

	if db.HasWorldState() {
		dwarves, err = db.LoadDwarves()
		if err != nil {
			logger.Fatal("failed to load dwarves", zap.Error(err))
		}
		startTick = db.LastTick()

		var maxID agents.DwarfID
		for _, d := range dwarves {
			maxID = max(maxID, d.ID)
		}
		spawner.SetNextID(maxID + 1)
		logger.Info("colony restored",
			zap.Int("dwarves", len(dwarves)),
			zap.Uint64("tick", startTick),
			zap.String("sim_time", engine.SimTime(startTick)),
		)
	} else {
		dwarves = spawner.SpawnColony(config.ColonySize(), worldMap, center)
		for _, d := range dwarves {
			logger.Info("dwarf arrives",
				zap.String("name", d.Name),
				zap.Stringer("aspiration", d.Aspiration),
				zap.Stringer("pos", d.Pos),
			)
		}
	}

	// ── Text generation ──────────────────────────────────────────────
	// Leave both nil when disabled; a typed nil would read as configured.
	var queue engine.Generator
	var prober cognition.Prober
	if client := llm.NewClient(config.GenerationURL(), config.GenerationModel(), logger); client != nil {
		queue = llm.NewQueue(client, tuning.Generation.Concurrency, tuning.Generation.Timeout(), logger)
		prober = client
		logger.Info("generation enabled", zap.String("model", config.GenerationModel()))
	} else {
		logger.Warn("GENERATION_URL is none, thoughts and speech use the fallback library")
	}

	// ── Listeners ─────────────────────────────────────────────────────
	recorder := chronicle.NewRecorder(chronicle.NewWriter(config.ChronicleDir(), "chronicle"), 1024, logger)
	hub := api.NewHub(logger)
	listeners := cognition.NewListeners(logger, recorder, hub)

	// ── Simulation ────────────────────────────────────────────────────
	sim := engine.NewSimulation(engine.Options{
		Tuning:   tuning,
		Seed:     seed,
		Map:      worldMap,
		Center:   center,
		Dwarves:  dwarves,
		Colony:   colony.DefaultConfig(),
		Queue:    queue,
		Prober:   prober,
		Listener: listeners,
		Logger:   logger,
	})
	sim.SetLastTick(startTick)

	save := func(reason string) {
		err := sim.SaveCheckpoint(func(cp engine.Checkpoint) error {
			return db.SaveWorldState(cp, seed)
		})
		if err != nil {
			logger.Error("save failed", zap.String("reason", reason), zap.Error(err))
		}
	}
	if startTick == 0 {
		save("initial")
	}

	eng := engine.NewEngine(tuning.TickInterval(), logger)
	eng.Tick = startTick
	eng.OnTick = sim.Step
	eng.OnFrame = sim.Frame
	eng.OnHour = func(tick uint64) {
		sim.Hour(tick)
		save("hourly")
	}
	eng.OnDay = sim.Day

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sim.Cognition().MonitorHealth(ctx)

	// ── HTTP API ──────────────────────────────────────────────────────
	adminKey := config.AdminKey()
	if adminKey == "" {
		logger.Warn("ADMIN_KEY not set, speed control is disabled")
	}
	server := &api.Server{
		Sim:      sim,
		Eng:      eng,
		Archive:  db,
		Hub:      hub,
		AdminKey: adminKey,
		Origins:  config.CORSOrigins(),
		Talk:     api.NewRateLimiter(config.TalkRPS(), config.TalkBurst()),
		Logger:   logger,
	}
	go func() {
		if err := server.ListenAndServe(ctx, config.ServerAddr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(err))
			stop()
		}
	}()

	logger.Info("the hold is awake",
		zap.Int("dwarves", len(dwarves)),
		zap.String("api", "http://localhost"+config.ServerAddr()+"/api/v1/status"),
		zap.Duration("tick", tuning.TickInterval()),
	)

	eng.Run(ctx)

	logger.Info("final save")
	save("shutdown")
	if err := recorder.Close(); err != nil {
		logger.Error("chronicle close failed", zap.Error(err))
	}
	logger.Info("simulation stopped, colony saved")
}

func newLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
