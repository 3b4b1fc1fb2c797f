package orchestrator

import (
	"context"
	"time"

	"github.com/aimorme/datewise-backend/internal/domain"
	"github.com/aimorme/datewise-backend/internal/pipeline"
	"github.com/aimorme/datewise-backend/internal/store"
)

// Progress writes are full read-modify-write cycles. Safe because only one
// orchestrator invocation holds the lock for a given request id; the read
// path never touches stage fields.

func (o *Orchestrator) loadProgress(ctx context.Context, requestID string) (*domain.Progress, error) {
	var prog domain.Progress
	if err := store.GetJSON(ctx, o.store, store.ProgressKey(requestID), &prog); err != nil {
		return nil, err
	}
	return &prog, nil
}

func (o *Orchestrator) saveProgress(ctx context.Context, prog *domain.Progress, ttl time.Duration) error {
	return store.SetJSON(ctx, o.store, store.ProgressKey(prog.RequestID), prog, ttl)
}

func (o *Orchestrator) markStepStarted(ctx context.Context, requestID string, step int) error {
	prog, err := o.loadProgress(ctx, requestID)
	if err != nil {
		return err
	}
	prog.Status = domain.StatusProcessing
	prog.CurrentStep = step
	prog.Steps[step-1].Status = domain.StepProcessing
	prog.LastUpdated = time.Now().UTC()
	return o.saveProgress(ctx, prog, o.cfg.ProgressTTL)
}

// markStepComplete records the finished step and raises overall progress.
// The cap at 95 leaves the final 5 points for result persistence.
func (o *Orchestrator) markStepComplete(ctx context.Context, requestID string, step int, elapsed float64, out pipeline.Outcome) error {
	prog, err := o.loadProgress(ctx, requestID)
	if err != nil {
		return err
	}
	sp := &prog.Steps[step-1]
	sp.Status = domain.StepComplete
	sp.DurationSeconds = elapsed
	sp.Preview = out.Preview

	prog.AddCulturalPreviews(out.CulturalPreviews...)
	pct := float64(step) / float64(domain.StepCount) * 100
	if pct > 95 {
		pct = 95
	}
	prog.SetOverall(pct)
	prog.LastUpdated = time.Now().UTC()
	return o.saveProgress(ctx, prog, o.cfg.ProgressTTL)
}
