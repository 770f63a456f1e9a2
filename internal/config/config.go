// Package config loads process configuration from the environment and
// gameplay tuning from a YAML document.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Load reads the .env file named by DWARFHOLD_ENV (or .env by default), then
// the matching .secret sidecar if it exists. Everything else is read through
// the accessor functions below.
func Load() error {
	envFile := os.Getenv("DWARFHOLD_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Both files are optional.
	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil || port <= 0 {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabasePath() string {
	return envOrDefault("DATABASE_PATH", "data/dwarfhold.db")
}

// GenerationURL is the base URL of the local inference service.
// An explicit empty value ("none") disables generation entirely.
func GenerationURL() string {
	v := envOrDefault("GENERATION_URL", "http://localhost:11434")
	if v == "none" {
		return ""
	}
	return v
}

func GenerationModel() string {
	return envOrDefault("GENERATION_MODEL", "llama3.2")
}

func TuningPath() string {
	return envOrDefault("TUNING_PATH", "configs/tuning.yaml")
}

func ChronicleDir() string {
	return envOrDefault("CHRONICLE_DIR", "data/chronicle")
}

// LogLevel returns the log level (debug, info, warn, error).
func LogLevel() string {
	return envOrDefault("LOG_LEVEL", "info")
}

func WorldSeed() int64 {
	seed, err := strconv.ParseInt(os.Getenv("WORLD_SEED"), 10, 64)
	if err != nil {
		return 42
	}
	return seed
}

// ColonySize is the number of dwarves spawned into a fresh world.
func ColonySize() int {
	n, err := strconv.Atoi(os.Getenv("COLONY_SIZE"))
	if err != nil || n <= 0 {
		return 7
	}
	return n
}

// TalkRPS returns the per-client request rate for the talk endpoint.
func TalkRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("TALK_RPS"), 64)
	if err != nil || rps <= 0 {
		return 0.5
	}
	return rps
}

func TalkBurst() int {
	burst, err := strconv.Atoi(os.Getenv("TALK_BURST"))
	if err != nil || burst <= 0 {
		return 3
	}
	return burst
}

// AdminKey is the bearer token for control endpoints. Empty disables them.
func AdminKey() string {
	return os.Getenv("ADMIN_KEY")
}

// CORSOrigins returns extra allowed browser origins from the comma-separated
// CORS_ORIGINS variable.
func CORSOrigins() []string {
	var out []string
	for _, o := range strings.Split(os.Getenv("CORS_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
