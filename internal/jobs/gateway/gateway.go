package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aimorme/datewise-backend/internal/domain"
	pkgerrors "github.com/aimorme/datewise-backend/internal/pkg/errors"
	"github.com/aimorme/datewise-backend/internal/pkg/logger"
	"github.com/aimorme/datewise-backend/internal/store"
	"github.com/aimorme/datewise-backend/internal/utils"
)

// Scheduler hands an accepted request to the background pipeline.
// Satisfied by orchestrator.Dispatcher.
type Scheduler interface {
	Dispatch(requestID string)
}

// Config carries the read-path TTLs and the ETA schedule. ETABudgets is
// indexed by current_step (0..6): the whole-job time estimate remaining at
// that step. It must be non-increasing so polled ETAs never grow as steps
// advance.
type Config struct {
	RequestTTL         time.Duration
	ProgressTTL        time.Duration
	ProgressRefreshTTL time.Duration
	ETABudgets         []int
}

var defaultETABudgets = []int{120, 120, 100, 80, 80, 50, 30}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		RequestTTL:         utils.GetEnvAsSeconds("REQUEST_TTL", 7200, log),
		ProgressTTL:        utils.GetEnvAsSeconds("PROGRESS_TTL", 7200, log),
		ProgressRefreshTTL: utils.GetEnvAsSeconds("PROGRESS_REFRESH_TTL", 600, log),
		ETABudgets:         parseETABudgets(utils.GetEnv("ETA_BUDGETS_SECONDS", "", log)),
	}
}

func parseETABudgets(raw string) []int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultETABudgets
	}
	parts := strings.Split(raw, ",")
	if len(parts) != domain.StepCount+1 {
		return defaultETABudgets
	}
	out := make([]int, len(parts))
	prev := int(^uint(0) >> 1)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 || n > prev {
			return defaultETABudgets
		}
		out[i] = n
		prev = n
	}
	return out
}

// Service is the client-facing side of the job system: submission and the
// read path. It never mutates stage results, only derived/refresh fields of
// the progress document.
type Service struct {
	store store.Store
	sched Scheduler
	cfg   Config
	log   *logger.Logger
	now   func() time.Time
}

func NewService(st store.Store, sched Scheduler, cfg Config, log *logger.Logger) *Service {
	if len(cfg.ETABudgets) != domain.StepCount+1 {
		cfg.ETABudgets = defaultETABudgets
	}
	return &Service{
		store: st,
		sched: sched,
		cfg:   cfg,
		log:   log.With("service", "DatePlanGateway"),
		now:   time.Now,
	}
}

// -------------------- submission --------------------

type SubmitRequest struct {
	PersonA domain.ProfileInput `json:"person_a"`
	PersonB domain.ProfileInput `json:"person_b"`
	Context domain.Context      `json:"context"`
}

type SubmitResponse struct {
	RequestID        string         `json:"request_id"`
	Status           domain.Status  `json:"status"`
	Context          domain.Context `json:"context"`
	EstimatedSeconds int            `json:"estimated_seconds"`
	ProgressURL      string         `json:"progress_url"`
	ResultURL        string         `json:"result_url"`
}

// Submit validates the profiles, persists the request record plus initial
// progress, and schedules the pipeline. It returns before any pipeline work
// happens.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	if !req.PersonA.HasContent() {
		return nil, fmt.Errorf("%w: person_a requires text or image data", pkgerrors.ErrInvalidArgument)
	}
	if !req.PersonB.HasContent() {
		return nil, fmt.Errorf("%w: person_b requires text or image data", pkgerrors.ErrInvalidArgument)
	}

	now := s.now().UTC()
	requestID := uuid.NewString()
	rec := domain.RequestRecord{
		RequestID: requestID,
		PersonA:   req.PersonA,
		PersonB:   req.PersonB,
		Context:   domain.NormalizeContext(req.Context, now),
		CreatedAt: now,
	}

	if err := store.SetJSON(ctx, s.store, store.RequestKey(requestID), rec, s.cfg.RequestTTL); err != nil {
		return nil, fmt.Errorf("store request: %w", err)
	}
	if err := store.SetJSON(ctx, s.store, store.ProgressKey(requestID), domain.NewProgress(requestID, now), s.cfg.ProgressTTL); err != nil {
		return nil, fmt.Errorf("store progress: %w", err)
	}

	s.sched.Dispatch(requestID)
	s.log.Info("Request accepted", "request_id", requestID, "location", rec.Context.Location)

	return &SubmitResponse{
		RequestID:        requestID,
		Status:           domain.StatusStarting,
		Context:          rec.Context,
		EstimatedSeconds: s.cfg.ETABudgets[0],
		ProgressURL:      "/api/date-plans/" + requestID + "/progress",
		ResultURL:        "/api/date-plans/" + requestID + "/result",
	}, nil
}

// -------------------- progress --------------------

// Result source labels, in precedence order.
const (
	SourceEmbedded  = "embedded"
	SourceSecondary = "redis_fallback"
	SourceCorrupted = "corrupted"
)

type ProgressView struct {
	domain.Progress
	ElapsedSeconds        float64        `json:"elapsed_seconds"`
	ETASeconds            float64        `json:"eta_seconds"`
	FinalResultsAvailable bool           `json:"final_results_available"`
	Results               *domain.Result `json:"results,omitempty"`
	ResultsSource         string         `json:"results_source,omitempty"`
}

// Progress returns the live progress document with derived timing fields
// and, once complete, the resolved result. Each poll refreshes the document
// TTL so it stays alive only while someone is watching.
func (s *Service) Progress(ctx context.Context, requestID string) (*ProgressView, error) {
	var prog domain.Progress
	if err := store.GetJSON(ctx, s.store, store.ProgressKey(requestID), &prog); err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			return nil, pkgerrors.ErrNotFound
		}
		return nil, err
	}

	now := s.now().UTC()
	elapsed := now.Sub(prog.ProcessingStart).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}

	view := &ProgressView{
		Progress:       prog,
		ElapsedSeconds: elapsed,
		ETASeconds:     s.eta(prog, elapsed),
	}

	if prog.Status == domain.StatusComplete {
		result, source := s.resolveResult(ctx, &prog)
		view.Results = result
		view.ResultsSource = source
		view.FinalResultsAvailable = result != nil
	}

	prog.LastUpdated = now
	if err := store.SetJSON(ctx, s.store, store.ProgressKey(requestID), &prog, s.cfg.ProgressRefreshTTL); err != nil {
		s.log.Warn("Progress refresh failed", "request_id", requestID, "error", err.Error())
	}

	return view, nil
}

// eta maps the current step to its remaining whole-job budget and burns
// down the time already spent. Completed and failed jobs report zero.
func (s *Service) eta(prog domain.Progress, elapsed float64) float64 {
	if prog.Status.Terminal() {
		return 0
	}
	step := prog.CurrentStep
	if step < 0 {
		step = 0
	}
	if step > domain.StepCount {
		step = domain.StepCount
	}
	eta := float64(s.cfg.ETABudgets[step]) - elapsed
	if eta < 0 {
		return 0
	}
	return eta
}

// resolveResult applies the result precedence: embedded copy, then the
// result record, then the defined corrupted state.
func (s *Service) resolveResult(ctx context.Context, prog *domain.Progress) (*domain.Result, string) {
	if prog.ResultsEmbedded && len(prog.EmbeddedResult) > 0 {
		var result domain.Result
		if err := json.Unmarshal(prog.EmbeddedResult, &result); err == nil {
			return &result, SourceEmbedded
		}
		s.log.Warn("Embedded result unreadable, trying result record", "request_id", prog.RequestID)
	}

	var result domain.Result
	if err := store.GetJSON(ctx, s.store, store.ResultKey(prog.RequestID), &result); err == nil && result.Success {
		return &result, SourceSecondary
	}

	return nil, SourceCorrupted
}

// -------------------- result --------------------

type ResultView struct {
	RequestID string         `json:"request_id"`
	Status    domain.Status  `json:"status"`
	Result    *domain.Result `json:"result,omitempty"`
	Source    string         `json:"results_source,omitempty"`

	// Set while the pipeline is still running.
	CurrentStep int     `json:"current_step,omitempty"`
	ETASeconds  float64 `json:"eta_seconds,omitempty"`

	ElapsedSeconds float64 `json:"elapsed_seconds"`
	StepsCompleted int     `json:"steps_completed"`
	StorageBackend string  `json:"storage_backend"`
}

// Result serves the final document once the job reached a terminal state.
// Sentinel errors tell the callers apart: ErrNotFound (unknown/expired),
// ErrNotReady (keep polling), ErrCancelled, and ErrResultMissing (terminal
// status but no retrievable result — the defined inconsistency signal).
func (s *Service) Result(ctx context.Context, requestID string) (*ResultView, error) {
	var prog domain.Progress
	if err := store.GetJSON(ctx, s.store, store.ProgressKey(requestID), &prog); err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			return nil, pkgerrors.ErrNotFound
		}
		return nil, err
	}

	now := s.now().UTC()
	elapsed := now.Sub(prog.ProcessingStart).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	view := &ResultView{
		RequestID:      requestID,
		Status:         prog.Status,
		ElapsedSeconds: elapsed,
		StepsCompleted: stepsCompleted(prog),
		StorageBackend: s.store.Name(),
	}

	switch prog.Status {
	case domain.StatusCancelled:
		return view, pkgerrors.ErrCancelled

	case domain.StatusComplete:
		result, source := s.resolveResult(ctx, &prog)
		if result == nil {
			return view, pkgerrors.ErrResultMissing
		}
		view.Result = result
		view.Source = source
		return view, nil

	case domain.StatusError:
		var result domain.Result
		if err := store.GetJSON(ctx, s.store, store.ResultKey(requestID), &result); err != nil {
			return view, pkgerrors.ErrResultMissing
		}
		view.Result = &result
		view.Source = SourceSecondary
		return view, nil

	default:
		view.CurrentStep = prog.CurrentStep
		view.ETASeconds = s.eta(prog, elapsed)
		return view, pkgerrors.ErrNotReady
	}
}

func stepsCompleted(prog domain.Progress) int {
	n := 0
	for _, sp := range prog.Steps {
		if sp.Status == domain.StepComplete {
			n++
		}
	}
	return n
}

// -------------------- cancel --------------------

// Cancel flips the progress status; the orchestrator observes it at its
// next between-stage check. Already-terminal jobs cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, requestID string) error {
	var prog domain.Progress
	if err := store.GetJSON(ctx, s.store, store.ProgressKey(requestID), &prog); err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			return pkgerrors.ErrNotFound
		}
		return err
	}
	if prog.Status.Terminal() {
		return fmt.Errorf("%w: request already %s", pkgerrors.ErrInvalidArgument, prog.Status)
	}

	prog.Status = domain.StatusCancelled
	prog.LastUpdated = s.now().UTC()
	if err := store.SetJSON(ctx, s.store, store.ProgressKey(requestID), &prog, s.cfg.ProgressTTL); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	s.log.Info("Request cancelled", "request_id", requestID)
	return nil
}

// -------------------- maintenance --------------------

// CleanupOrphans backfills a TTL on progress documents that lost theirs, so
// abandoned records cannot pile up forever. Runs at boot.
func (s *Service) CleanupOrphans(ctx context.Context) (int, error) {
	keys, err := s.store.Keys(ctx, store.ProgressPrefix())
	if err != nil {
		return 0, err
	}
	fixed := 0
	for _, key := range keys {
		ttl, err := s.store.TTL(ctx, key)
		if err != nil {
			continue
		}
		if ttl < 0 {
			if ok, err := s.store.Expire(ctx, key, s.cfg.ProgressTTL); err == nil && ok {
				fixed++
			}
		}
	}
	if fixed > 0 {
		s.log.Info("Backfilled TTLs on orphaned progress documents", "count", fixed)
	}
	return fixed, nil
}
