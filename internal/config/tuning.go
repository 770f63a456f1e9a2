package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed tuning.schema.json
var tuningSchema string

// Tuning holds the gameplay constants. Durations are stored in milliseconds
// to keep the YAML flat.
type Tuning struct {
	TickIntervalMs int `yaml:"tick_interval_ms"`

	Generation GenerationTuning `yaml:"generation"`
	Cognition  CognitionTuning  `yaml:"cognition"`
	Behavior   BehaviorTuning   `yaml:"behavior"`
}

type GenerationTuning struct {
	Concurrency     int      `yaml:"concurrency"`
	TimeoutMs       int      `yaml:"timeout_ms"`
	HealthTimeoutMs int      `yaml:"health_timeout_ms"`
	HealthTTLMs     int      `yaml:"health_ttl_ms"`
	NumPredict      int      `yaml:"num_predict"`
	Temperature     float64  `yaml:"temperature"`
	TopP            float64  `yaml:"top_p"`
	Stop            []string `yaml:"stop"`
}

type CognitionTuning struct {
	ThoughtCooldownMs    int     `yaml:"thought_cooldown_ms"`
	MeetingCooldownMs    int     `yaml:"meeting_cooldown_ms"`
	ConversationChance   float64 `yaml:"conversation_chance"`
	ContinueChance       float64 `yaml:"continue_chance"`
	MaxConversationTurns int     `yaml:"max_conversation_turns"`
	InteractionRange     int     `yaml:"interaction_range"`
	ExtendedRange        int     `yaml:"extended_range"`
}

type BehaviorTuning struct {
	ReconsiderInterval    int `yaml:"reconsider_interval"`
	ThreatRange           int `yaml:"threat_range"`
	WorkRange             int `yaml:"work_range"`
	SocialRange           int `yaml:"social_range"`
	FulfillmentDecayEvery int `yaml:"fulfillment_decay_every"`
}

// DefaultTuning returns the built-in constants used when no tuning file exists.
func DefaultTuning() Tuning {
	return Tuning{
		TickIntervalMs: 250,
		Generation: GenerationTuning{
			Concurrency:     10,
			TimeoutMs:       5000,
			HealthTimeoutMs: 3000,
			HealthTTLMs:     30000,
			NumPredict:      48,
			Temperature:     0.9,
			TopP:            0.9,
			Stop:            []string{"\n\n", "###"},
		},
		Cognition: CognitionTuning{
			ThoughtCooldownMs:    12000,
			MeetingCooldownMs:    15000,
			ConversationChance:   0.7,
			ContinueChance:       0.5,
			MaxConversationTurns: 6,
			InteractionRange:     3,
			ExtendedRange:        6,
		},
		Behavior: BehaviorTuning{
			ReconsiderInterval:    20,
			ThreatRange:           6,
			WorkRange:             1,
			SocialRange:           2,
			FulfillmentDecayEvery: 10,
		},
	}
}

// LoadTuning reads a tuning document and overlays it on DefaultTuning.
// A missing file is not an error.
func LoadTuning(path string) (Tuning, error) {
	t := DefaultTuning()
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return t, nil
	}
	if err != nil {
		return t, err
	}
	if err := ValidateTuning(raw); err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// ValidateTuning checks a YAML tuning document against the embedded schema.
func ValidateTuning(raw []byte) error {
	schema, err := jsonschema.CompileString("tuning.schema.json", tuningSchema)
	if err != nil {
		return fmt.Errorf("compile tuning schema: %w", err)
	}

	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("tuning.yaml: %w", err)
	}
	if doc == nil {
		return nil
	}

	// The validator expects encoding/json shaped values.
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("tuning.yaml: %w", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("tuning.yaml: %w", err)
	}
	return nil
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func (t Tuning) TickInterval() time.Duration { return ms(t.TickIntervalMs) }

func (g GenerationTuning) Timeout() time.Duration       { return ms(g.TimeoutMs) }
func (g GenerationTuning) HealthTimeout() time.Duration { return ms(g.HealthTimeoutMs) }
func (g GenerationTuning) HealthTTL() time.Duration     { return ms(g.HealthTTLMs) }

func (c CognitionTuning) ThoughtCooldown() time.Duration { return ms(c.ThoughtCooldownMs) }
func (c CognitionTuning) MeetingCooldown() time.Duration { return ms(c.MeetingCooldownMs) }
