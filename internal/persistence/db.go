// Package persistence provides SQLite-based colony state storage.
// The tile map and colony work are regenerated from the world seed; only the
// dwarves, finished conversations and world metadata are stored.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/talgya/dwarfhold/internal/agents"
	"github.com/talgya/dwarfhold/internal/cognition"
	"github.com/talgya/dwarfhold/internal/engine"
	"github.com/talgya/dwarfhold/internal/world"
)

// DB wraps a SQLite connection for colony state persistence.
type DB struct {
	conn   *sqlx.DB
	logger *zap.Logger
}

// Open opens or creates a SQLite database at the given path.
func Open(path string, logger *zap.Logger) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db := &DB{conn: conn, logger: logger}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS dwarves (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		alive INTEGER NOT NULL,
		pos_x INTEGER NOT NULL,
		pos_y INTEGER NOT NULL,
		hunger REAL NOT NULL,
		mood REAL NOT NULL,
		health REAL NOT NULL,
		aspiration INTEGER NOT NULL,
		current_thought TEXT NOT NULL DEFAULT '',
		fulfillment_json TEXT NOT NULL,
		personality_json TEXT NOT NULL,
		skills_json TEXT NOT NULL,
		relationships_json TEXT NOT NULL,
		memory_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		pair_key TEXT NOT NULL,
		speaker_a INTEGER NOT NULL,
		speaker_b INTEGER NOT NULL,
		turns INTEGER NOT NULL,
		started_at TEXT NOT NULL,
		ended_at TEXT NOT NULL,
		messages_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_conversations_pair ON conversations(pair_key);
	CREATE INDEX IF NOT EXISTS idx_conversations_ended ON conversations(ended_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

type dwarfRow struct {
	ID                uint64  `db:"id"`
	Name              string  `db:"name"`
	Alive             bool    `db:"alive"`
	PosX              int     `db:"pos_x"`
	PosY              int     `db:"pos_y"`
	Hunger            float64 `db:"hunger"`
	Mood              float64 `db:"mood"`
	Health            float64 `db:"health"`
	Aspiration        uint8   `db:"aspiration"`
	CurrentThought    string  `db:"current_thought"`
	FulfillmentJSON   string  `db:"fulfillment_json"`
	PersonalityJSON   string  `db:"personality_json"`
	SkillsJSON        string  `db:"skills_json"`
	RelationshipsJSON string  `db:"relationships_json"`
	MemoryJSON        string  `db:"memory_json"`
}

// inTx runs fn in a single transaction, committing only if fn succeeds.
func (db *DB) inTx(fn func(tx *sqlx.Tx) error) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveDwarves writes all dwarves to the database (full replace).
func (db *DB) SaveDwarves(list []*agents.Dwarf) error {
	return db.inTx(func(tx *sqlx.Tx) error { return saveDwarves(tx, list) })
}

func saveDwarves(tx *sqlx.Tx, list []*agents.Dwarf) error {
	if _, err := tx.Exec("DELETE FROM dwarves"); err != nil {
		return err
	}

	for _, d := range list {
		row := dwarfRow{
			ID:             uint64(d.ID),
			Name:           d.Name,
			Alive:          d.Alive,
			PosX:           d.Pos.X,
			PosY:           d.Pos.Y,
			Hunger:         d.Hunger,
			Mood:           d.Mood,
			Health:         d.Health,
			Aspiration:     uint8(d.Aspiration),
			CurrentThought: d.CurrentThought,
		}
		for _, f := range []struct {
			dst *string
			src any
		}{
			{&row.FulfillmentJSON, d.Fulfillment},
			{&row.PersonalityJSON, d.Personality},
			{&row.SkillsJSON, d.Skills},
			{&row.RelationshipsJSON, d.Relationships},
			{&row.MemoryJSON, d.Memory},
		} {
			b, err := json.Marshal(f.src)
			if err != nil {
				return fmt.Errorf("encode dwarf %d: %w", d.ID, err)
			}
			*f.dst = string(b)
		}

		_, err := tx.NamedExec(`INSERT INTO dwarves
			(id, name, alive, pos_x, pos_y, hunger, mood, health, aspiration, current_thought,
			 fulfillment_json, personality_json, skills_json, relationships_json, memory_json)
			VALUES (:id, :name, :alive, :pos_x, :pos_y, :hunger, :mood, :health, :aspiration, :current_thought,
			 :fulfillment_json, :personality_json, :skills_json, :relationships_json, :memory_json)`, row)
		if err != nil {
			return fmt.Errorf("insert dwarf %d: %w", d.ID, err)
		}
	}
	return nil
}

// LoadDwarves reads all dwarves, restoring ring capacities and clamping
// vitals into range.
func (db *DB) LoadDwarves() ([]*agents.Dwarf, error) {
	var rows []dwarfRow
	if err := db.conn.Select(&rows, "SELECT * FROM dwarves ORDER BY id"); err != nil {
		return nil, fmt.Errorf("select dwarves: %w", err)
	}

	out := make([]*agents.Dwarf, 0, len(rows))
	for _, r := range rows {
		d := agents.NewDwarf(agents.DwarfID(r.ID), r.Name, world.Point{X: r.PosX, Y: r.PosY}, nil, agents.Aspiration(r.Aspiration))
		d.Alive = r.Alive
		d.Hunger = r.Hunger
		d.Mood = r.Mood
		d.Health = r.Health
		d.CurrentThought = r.CurrentThought

		for _, f := range []struct {
			src string
			dst any
		}{
			{r.FulfillmentJSON, &d.Fulfillment},
			{r.PersonalityJSON, &d.Personality},
			{r.SkillsJSON, &d.Skills},
			{r.RelationshipsJSON, &d.Relationships},
			{r.MemoryJSON, &d.Memory},
		} {
			if err := json.Unmarshal([]byte(f.src), f.dst); err != nil {
				return nil, fmt.Errorf("decode dwarf %d: %w", r.ID, err)
			}
		}
		d.Restore()
		out = append(out, d)
	}
	return out, nil
}

// HasWorldState returns true if the database contains saved dwarves.
func (db *DB) HasWorldState() bool {
	var count int
	if err := db.conn.Get(&count, "SELECT COUNT(*) FROM dwarves"); err != nil {
		return false
	}
	return count > 0
}

// timeLayout sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type conversationRow struct {
	ID           string `db:"id"`
	PairKey      string `db:"pair_key"`
	SpeakerA     uint64 `db:"speaker_a"`
	SpeakerB     uint64 `db:"speaker_b"`
	Turns        int    `db:"turns"`
	StartedAt    string `db:"started_at"`
	EndedAt      string `db:"ended_at"`
	MessagesJSON string `db:"messages_json"`
}

// SaveConversations appends finished conversations. Each gets a fresh
// transcript ID since pair keys repeat.
func (db *DB) SaveConversations(list []cognition.Conversation) error {
	if len(list) == 0 {
		return nil
	}
	return db.inTx(func(tx *sqlx.Tx) error { return saveConversations(tx, list) })
}

func saveConversations(tx *sqlx.Tx, list []cognition.Conversation) error {
	for _, c := range list {
		msgs, err := json.Marshal(c.Messages)
		if err != nil {
			return fmt.Errorf("encode conversation %s: %w", c.ID, err)
		}
		_, err = tx.NamedExec(`INSERT INTO conversations
			(id, pair_key, speaker_a, speaker_b, turns, started_at, ended_at, messages_json)
			VALUES (:id, :pair_key, :speaker_a, :speaker_b, :turns, :started_at, :ended_at, :messages_json)`,
			conversationRow{
				ID:           uuid.NewString(),
				PairKey:      c.ID,
				SpeakerA:     uint64(c.Participants[0]),
				SpeakerB:     uint64(c.Participants[1]),
				Turns:        c.Turns,
				StartedAt:    c.StartTime.UTC().Format(timeLayout),
				EndedAt:      c.EndTime.UTC().Format(timeLayout),
				MessagesJSON: string(msgs),
			})
		if err != nil {
			return fmt.Errorf("insert conversation %s: %w", c.ID, err)
		}
	}
	return nil
}

// Transcript is a stored conversation.
type Transcript struct {
	ID           string                 `json:"id"`
	Conversation cognition.Conversation `json:"conversation"`
}

// RecentConversations returns the most recent n stored conversations, newest
// first.
func (db *DB) RecentConversations(n int) ([]Transcript, error) {
	var rows []conversationRow
	if err := db.conn.Select(&rows, "SELECT * FROM conversations ORDER BY ended_at DESC LIMIT ?", n); err != nil {
		return nil, fmt.Errorf("select conversations: %w", err)
	}

	out := make([]Transcript, 0, len(rows))
	for _, r := range rows {
		c := cognition.Conversation{
			ID:           r.PairKey,
			Participants: [2]agents.DwarfID{agents.DwarfID(r.SpeakerA), agents.DwarfID(r.SpeakerB)},
			Turns:        r.Turns,
		}
		var err error
		if c.StartTime, err = time.Parse(timeLayout, r.StartedAt); err != nil {
			return nil, fmt.Errorf("decode conversation %s: started_at: %w", r.ID, err)
		}
		if c.EndTime, err = time.Parse(timeLayout, r.EndedAt); err != nil {
			return nil, fmt.Errorf("decode conversation %s: ended_at: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(r.MessagesJSON), &c.Messages); err != nil {
			return nil, fmt.Errorf("decode conversation %s: %w", r.ID, err)
		}
		for _, m := range c.Messages {
			for i, id := range c.Participants {
				if m.SpeakerID == id {
					c.Names[i] = m.Speaker
				}
			}
		}
		out = append(out, Transcript{ID: r.ID, Conversation: c})
	}
	return out, nil
}

// SaveMeta stores a key-value pair in world metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(upsertMeta, key, value)
	return err
}

const upsertMeta = "INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)"

// GetMeta retrieves a metadata value. A missing key returns "" and no error.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// LastTick returns the saved tick counter, 0 if none.
func (db *DB) LastTick() uint64 {
	v, err := db.GetMeta("last_tick")
	if err != nil || v == "" {
		return 0
	}
	t, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0
	}
	return t
}

// SaveWorldState performs a full save of a checkpoint in one transaction.
// On error nothing is written.
func (db *DB) SaveWorldState(cp engine.Checkpoint, seed int64) error {
	err := db.inTx(func(tx *sqlx.Tx) error {
		if err := saveDwarves(tx, cp.Dwarves); err != nil {
			return fmt.Errorf("save dwarves: %w", err)
		}
		if err := saveConversations(tx, cp.Conversations); err != nil {
			return fmt.Errorf("save conversations: %w", err)
		}
		for key, value := range map[string]string{
			"last_tick": strconv.FormatUint(cp.Tick, 10),
			"seed":      strconv.FormatInt(seed, 10),
		} {
			if _, err := tx.Exec(upsertMeta, key, value); err != nil {
				return fmt.Errorf("save meta %s: %w", key, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	db.logger.Info("world state saved",
		zap.Uint64("tick", cp.Tick),
		zap.Int("dwarves", len(cp.Dwarves)),
		zap.Int("conversations", len(cp.Conversations)),
	)
	return nil
}
