package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aimorme/datewise-backend/internal/domain"
	"github.com/aimorme/datewise-backend/internal/observability"
	"github.com/aimorme/datewise-backend/internal/pipeline"
	"github.com/aimorme/datewise-backend/internal/pkg/logger"
	"github.com/aimorme/datewise-backend/internal/store"
	"github.com/aimorme/datewise-backend/internal/utils"
)

// StageRunner is the pipeline surface the orchestrator drives. Satisfied by
// *pipeline.Pipeline; tests substitute stubs.
type StageRunner interface {
	AnalyzeProfiles(ctx context.Context, rec *domain.RequestRecord, st *pipeline.State) pipeline.Outcome
	EnrichProfiles(ctx context.Context, st *pipeline.State) pipeline.Outcome
	PlanDate(ctx context.Context, st *pipeline.State) pipeline.Outcome
	DiscoverVenues(ctx context.Context, st *pipeline.State) pipeline.Outcome
	OptimizePlan(ctx context.Context, st *pipeline.State) pipeline.Outcome
}

// Config holds the TTL contract for every record the orchestrator writes.
// The completed marker must outlive the progress document so a late
// re-dispatch cannot rerun a finished job whose progress already expired.
type Config struct {
	ProgressTTL    time.Duration
	ResultTTL      time.Duration
	ErrorResultTTL time.Duration
	LockTTL        time.Duration
	CompletedTTL   time.Duration
	JobTimeout     time.Duration
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		ProgressTTL:    utils.GetEnvAsSeconds("PROGRESS_TTL", 7200, log),
		ResultTTL:      utils.GetEnvAsSeconds("RESULT_TTL", 86400, log),
		ErrorResultTTL: utils.GetEnvAsSeconds("ERROR_RESULT_TTL", 3600, log),
		LockTTL:        utils.GetEnvAsSeconds("PROCESSING_LOCK_TTL", 300, log),
		CompletedTTL:   utils.GetEnvAsSeconds("COMPLETED_TTL", 7200, log),
		JobTimeout:     utils.GetEnvAsSeconds("JOB_TIMEOUT", 900, log),
	}
	if cfg.CompletedTTL < cfg.ProgressTTL {
		cfg.CompletedTTL = cfg.ProgressTTL
	}
	return cfg
}

// Orchestrator runs the six-step pipeline for one request id, exactly once
// under at-least-once dispatch.
type Orchestrator struct {
	store  store.Store
	stages StageRunner
	cfg    Config
	log    *logger.Logger
}

func New(st store.Store, stages StageRunner, cfg Config, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		store:  st,
		stages: stages,
		cfg:    cfg,
		log:    log.With("service", "Orchestrator"),
	}
}

// -------------------- run protocol --------------------

// Run executes the pipeline for requestID. Safe to call any number of times
// for the same id: the completed marker and processing lock guarantee only
// one invocation performs work.
func (o *Orchestrator) Run(ctx context.Context, requestID string) {
	log := o.log.With("request_id", requestID)

	if done, err := o.store.Exists(ctx, store.CompletedKey(requestID)); err != nil {
		log.Error("Completed-marker check failed", "error", err.Error())
		return
	} else if done {
		log.Info("Request already completed, skipping")
		return
	}

	if locked, err := o.store.Exists(ctx, store.LockKey(requestID)); err != nil {
		log.Error("Lock check failed", "error", err.Error())
		return
	} else if locked {
		log.Info("Request already processing, skipping")
		return
	}

	acquired, err := o.store.SetNX(ctx, store.LockKey(requestID), []byte("1"), o.cfg.LockTTL)
	if err != nil {
		log.Error("Lock acquisition failed", "error", err.Error())
		return
	}
	if !acquired {
		log.Info("Lost lock race, skipping")
		return
	}
	// Release happens on every exit path, against a fresh context so a
	// cancelled job cannot leak its lock.
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.store.Delete(releaseCtx, store.LockKey(requestID)); err != nil {
			log.Error("Lock release failed", "error", err.Error())
		}
	}()

	currentStep := 1
	defer func() {
		if r := recover(); r != nil {
			log.Error("Pipeline panicked", "step", currentStep, "panic", fmt.Sprintf("%v", r))
			o.failJob(requestID, currentStep, fmt.Errorf("internal error: %v", r))
		}
	}()

	var rec domain.RequestRecord
	if err := store.GetJSON(ctx, o.store, store.RequestKey(requestID), &rec); err != nil {
		log.Error("Request record unavailable", "error", err.Error())
		o.failJob(requestID, 1, fmt.Errorf("request record unavailable: %w", err))
		return
	}

	st := &pipeline.State{Context: rec.Context}
	timings := make([]domain.StepTiming, 0, domain.StepCount)

	type stage struct {
		step int
		run  func(ctx context.Context) pipeline.Outcome
	}
	stages := []stage{
		{1, func(ctx context.Context) pipeline.Outcome { return o.stages.AnalyzeProfiles(ctx, &rec, st) }},
		{2, func(ctx context.Context) pipeline.Outcome { return o.stages.EnrichProfiles(ctx, st) }},
		{3, func(ctx context.Context) pipeline.Outcome { return o.stages.PlanDate(ctx, st) }},
		{4, func(context.Context) pipeline.Outcome {
			return pipeline.Success(nil, "Activity planning included in compatibility analysis")
		}},
		{5, func(ctx context.Context) pipeline.Outcome { return o.stages.DiscoverVenues(ctx, st) }},
		{6, func(ctx context.Context) pipeline.Outcome { return o.stages.OptimizePlan(ctx, st) }},
	}
	tracer := otel.Tracer(observability.TracerName)

	log.Info("Pipeline starting", "location", rec.Context.Location, "duration", rec.Context.Duration)

	for _, s := range stages {
		currentStep = s.step

		if o.cancelled(ctx, requestID) {
			log.Info("Cancellation observed, stopping", "step", s.step)
			return
		}

		if err := o.markStepStarted(ctx, requestID, s.step); err != nil {
			log.Warn("Progress write failed", "step", s.step, "error", err.Error())
		}

		stageCtx, span := tracer.Start(ctx, "pipeline."+domain.StepNames[s.step-1],
			trace.WithAttributes(
				attribute.Int("pipeline.step", s.step),
				attribute.String("request.id", requestID),
			))
		started := time.Now()
		out := s.run(stageCtx)
		elapsed := time.Since(started).Seconds()

		if out.Failed() {
			span.RecordError(out.Err)
			span.SetStatus(codes.Error, "stage failed")
			span.End()
			log.Error("Stage failed", "step", s.step, "error", out.Err.Error())
			o.failJob(requestID, s.step, out.Err)
			return
		}
		span.SetAttributes(attribute.Bool("pipeline.fallback_used", out.FallbackUsed()))
		span.End()
		if out.FallbackUsed() {
			log.Warn("Stage degraded to fallback", "step", s.step, "reason", out.Reason)
		}

		timings = append(timings, domain.StepTiming{
			Step:            s.step,
			Name:            domain.StepNames[s.step-1],
			DurationSeconds: elapsed,
			FallbackUsed:    out.FallbackUsed(),
		})

		if err := o.markStepComplete(ctx, requestID, s.step, elapsed, out); err != nil {
			log.Warn("Progress write failed", "step", s.step, "error", err.Error())
		}
	}

	if err := o.finishJob(ctx, requestID, st, timings); err != nil {
		log.Error("Result write failed", "error", err.Error())
		o.failJob(requestID, domain.StepCount, fmt.Errorf("result write failed: %w", err))
		return
	}
	log.Info("Pipeline complete")
}

// cancelled reads the stored progress status. Cancellation is cooperative:
// it only takes effect at these checks, never mid-stage.
func (o *Orchestrator) cancelled(ctx context.Context, requestID string) bool {
	prog, err := o.loadProgress(ctx, requestID)
	if err != nil {
		return false
	}
	return prog.Status == domain.StatusCancelled
}

// -------------------- termination --------------------

func (o *Orchestrator) finishJob(ctx context.Context, requestID string, st *pipeline.State, timings []domain.StepTiming) error {
	result := &domain.Result{
		Success:         true,
		RequestID:       requestID,
		Message:         "Date plan ready",
		FinalDatePlan:   st.Final,
		CulturalSummary: culturalSummary(st),
		Performance:     timings,
		CompletedAt:     time.Now().UTC(),
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	// Dual write: result key first, then a redundant copy embedded in the
	// progress document so either surviving record can serve the plan.
	if err := o.store.Set(ctx, store.ResultKey(requestID), raw, o.cfg.ResultTTL); err != nil {
		return fmt.Errorf("store result: %w", err)
	}

	prog, err := o.loadProgress(ctx, requestID)
	if err != nil {
		return fmt.Errorf("load progress: %w", err)
	}
	prog.Status = domain.StatusComplete
	prog.CurrentStep = domain.StepCount
	prog.SetOverall(100)
	prog.ResultsEmbedded = true
	prog.EmbeddedResult = raw
	prog.LastUpdated = time.Now().UTC()
	if err := o.saveProgress(ctx, prog, o.cfg.ProgressTTL); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}

	if err := o.store.Set(ctx, store.CompletedKey(requestID), []byte("1"), o.cfg.CompletedTTL); err != nil {
		return fmt.Errorf("set completed marker: %w", err)
	}
	return nil
}

// failJob records a terminal failure: error result under the result key and
// progress flipped to error. Uses a fresh context so failures caused by
// cancellation or timeout still get recorded.
func (o *Orchestrator) failJob(requestID string, step int, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	result := domain.NewErrorResult(requestID, step, "date plan generation failed", detail, time.Now().UTC())
	if err := store.SetJSON(ctx, o.store, store.ResultKey(requestID), result, o.cfg.ErrorResultTTL); err != nil {
		o.log.Error("Error-result write failed", "request_id", requestID, "error", err.Error())
	}

	prog, err := o.loadProgress(ctx, requestID)
	if err != nil {
		return
	}
	prog.Status = domain.StatusError
	prog.CurrentStep = step
	prog.Error = detail
	if step >= 1 && step <= domain.StepCount {
		prog.Steps[step-1].Status = domain.StepFailed
	}
	prog.LastUpdated = time.Now().UTC()
	if err := o.saveProgress(ctx, prog, o.cfg.ProgressTTL); err != nil {
		o.log.Error("Error-progress write failed", "request_id", requestID, "error", err.Error())
	}
}

func culturalSummary(st *pipeline.State) map[string]any {
	count := func(enriched map[string]any) int {
		if enriched == nil {
			return 0
		}
		if s, ok := enriched["cultural_discoveries"].([]any); ok {
			return len(s)
		}
		return 0
	}
	return map[string]any{
		"person_a_discoveries": count(st.EnrichedA),
		"person_b_discoveries": count(st.EnrichedB),
	}
}
