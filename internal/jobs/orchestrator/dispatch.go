package orchestrator

import (
	"context"

	"github.com/aimorme/datewise-backend/internal/pkg/logger"
)

// Dispatcher schedules pipeline runs as in-process background goroutines,
// one per accepted request. Dispatch may fire more than once for an id
// without harm: Run's lock/marker protocol absorbs duplicates.
type Dispatcher struct {
	orch *Orchestrator
	log  *logger.Logger
}

func NewDispatcher(orch *Orchestrator, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		orch: orch,
		log:  log.With("service", "Dispatcher"),
	}
}

// Dispatch fires the job and returns immediately; the HTTP response never
// waits for pipeline work.
func (d *Dispatcher) Dispatch(requestID string) {
	d.log.Info("Scheduling pipeline run", "request_id", requestID)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.orch.cfg.JobTimeout)
		defer cancel()
		d.orch.Run(ctx, requestID)
	}()
}
