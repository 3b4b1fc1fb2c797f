package app

import (
	"github.com/aimorme/datewise-backend/internal/jobs/gateway"
	"github.com/aimorme/datewise-backend/internal/jobs/orchestrator"
	"github.com/aimorme/datewise-backend/internal/pipeline"
	"github.com/aimorme/datewise-backend/internal/pkg/logger"
	"github.com/aimorme/datewise-backend/internal/utils"
)

type Config struct {
	Port     string
	Pipeline pipeline.Config
	Jobs     orchestrator.Config
	Gateway  gateway.Config
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		Port:     utils.GetEnv("PORT", "8080", log),
		Pipeline: pipeline.LoadConfig(),
		Jobs:     orchestrator.LoadConfig(log),
		Gateway:  gateway.LoadConfig(log),
	}
}
