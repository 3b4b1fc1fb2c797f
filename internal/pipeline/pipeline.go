package pipeline

import (
	"os"
	"strings"

	"github.com/aimorme/datewise-backend/internal/clients/openai"
	"github.com/aimorme/datewise-backend/internal/clients/qloo"
	"github.com/aimorme/datewise-backend/internal/domain"
	"github.com/aimorme/datewise-backend/internal/pkg/logger"
)

// Config tunes the stage components' call budget.
type Config struct {
	// MaxAttempts bounds each reasoning call including retries. The
	// speed-first mode sets this to 1.
	MaxAttempts int
}

// LoadConfig reads the pipeline tuning from the environment.
func LoadConfig() Config {
	attempts := 3
	if v := strings.ToLower(strings.TrimSpace(os.Getenv("PIPELINE_FAST_MODE"))); v == "1" || v == "true" {
		attempts = 1
	}
	return Config{MaxAttempts: attempts}
}

// Pipeline owns the four physical stage components behind the six logical
// steps. It is stateless between runs; all per-run data lives in State.
type Pipeline struct {
	ai  openai.Client
	tg  qloo.Client
	log *logger.Logger
	cfg Config
}

func New(ai openai.Client, tg qloo.Client, cfg Config, log *logger.Logger) *Pipeline {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Pipeline{
		ai:  ai,
		tg:  tg,
		log: log.With("service", "Pipeline"),
		cfg: cfg,
	}
}

// State carries one run's intermediate payloads between stages. Each slot is
// the payload of the outcome that produced it.
type State struct {
	Context domain.Context

	AnalysisA map[string]any
	AnalysisB map[string]any
	EnrichedA map[string]any
	EnrichedB map[string]any
	Plan      map[string]any
	Venues    map[string]any
	Final     map[string]any
}
