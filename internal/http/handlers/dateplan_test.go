package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aimorme/datewise-backend/internal/domain"
	"github.com/aimorme/datewise-backend/internal/jobs/gateway"
	"github.com/aimorme/datewise-backend/internal/pkg/logger"
	"github.com/aimorme/datewise-backend/internal/store"
)

type noopScheduler struct{ dispatched []string }

func (s *noopScheduler) Dispatch(requestID string) { s.dispatched = append(s.dispatched, requestID) }

func newTestRouter(m *store.Memory) (*gin.Engine, *noopScheduler) {
	gin.SetMode(gin.TestMode)
	sched := &noopScheduler{}
	gw := gateway.NewService(m, sched, gateway.Config{
		RequestTTL:         2 * time.Hour,
		ProgressTTL:        2 * time.Hour,
		ProgressRefreshTTL: 10 * time.Minute,
		ETABudgets:         []int{120, 120, 100, 80, 80, 50, 30},
	}, logger.NewNop())

	h := NewDatePlanHandler(gw)
	r := gin.New()
	r.POST("/api/date-plans", h.Create)
	r.GET("/api/date-plans/:id/progress", h.Progress)
	r.GET("/api/date-plans/:id/result", h.Result)
	r.DELETE("/api/date-plans/:id", h.Cancel)
	return r, sched
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateRejectsEmptyProfiles(t *testing.T) {
	r, sched := newTestRouter(store.NewMemory(nil))

	w := do(r, http.MethodPost, "/api/date-plans", `{
		"person_a": {"text": ""},
		"person_b": {"text": "loves books"},
		"context": {"location": "rotterdam"}
	}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", w.Code, w.Body.String())
	}
	if len(sched.dispatched) != 0 {
		t.Fatalf("rejected request was dispatched")
	}
}

func TestCreateAcceptsAndDispatches(t *testing.T) {
	r, sched := newTestRouter(store.NewMemory(nil))

	w := do(r, http.MethodPost, "/api/date-plans", `{
		"person_a": {"text": "loves jazz"},
		"person_b": {"text": "loves books"},
		"context": {"location": "Rotterdam", "duration": "full day", "time_of_day": "morning"}
	}`)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", w.Code, w.Body.String())
	}
	var resp gateway.SubmitResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if resp.RequestID == "" || resp.ProgressURL == "" {
		t.Fatalf("incomplete response: %+v", resp)
	}
	if len(sched.dispatched) != 1 {
		t.Fatalf("dispatched = %v", sched.dispatched)
	}
}

func TestProgressUnknownRequest(t *testing.T) {
	r, _ := newTestRouter(store.NewMemory(nil))
	if w := do(r, http.MethodGet, "/api/date-plans/nope/progress", ""); w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestResultNotReadyReturns202(t *testing.T) {
	m := store.NewMemory(nil)
	r, _ := newTestRouter(m)

	prog := domain.NewProgress("r1", time.Now().UTC())
	prog.Status = domain.StatusProcessing
	prog.CurrentStep = 2
	if err := store.SetJSON(context.Background(), m, store.ProgressKey("r1"), prog, time.Hour); err != nil {
		t.Fatalf("seed: %v", err)
	}

	w := do(r, http.MethodGet, "/api/date-plans/r1/result", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", w.Code, w.Body.String())
	}
	var view gateway.ResultView
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if view.CurrentStep != 2 {
		t.Fatalf("current_step = %d, want 2", view.CurrentStep)
	}
}

func TestResultCompletePlanReturns200(t *testing.T) {
	m := store.NewMemory(nil)
	r, _ := newTestRouter(m)
	ctx := context.Background()

	result := &domain.Result{Success: true, RequestID: "r1", FinalDatePlan: map[string]any{"theme": "jazz night"}}
	raw, _ := json.Marshal(result)
	prog := domain.NewProgress("r1", time.Now().UTC())
	prog.Status = domain.StatusComplete
	prog.ResultsEmbedded = true
	prog.EmbeddedResult = raw
	if err := store.SetJSON(ctx, m, store.ProgressKey("r1"), prog, time.Hour); err != nil {
		t.Fatalf("seed: %v", err)
	}

	w := do(r, http.MethodGet, "/api/date-plans/r1/result", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
}

func TestResultInconsistencyReturns500(t *testing.T) {
	m := store.NewMemory(nil)
	r, _ := newTestRouter(m)

	prog := domain.NewProgress("r1", time.Now().UTC())
	prog.Status = domain.StatusComplete
	if err := store.SetJSON(context.Background(), m, store.ProgressKey("r1"), prog, time.Hour); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if w := do(r, http.MethodGet, "/api/date-plans/r1/result", ""); w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}

func TestCancelThenCancelAgainConflicts(t *testing.T) {
	m := store.NewMemory(nil)
	r, _ := newTestRouter(m)

	prog := domain.NewProgress("r1", time.Now().UTC())
	prog.Status = domain.StatusProcessing
	if err := store.SetJSON(context.Background(), m, store.ProgressKey("r1"), prog, time.Hour); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if w := do(r, http.MethodDelete, "/api/date-plans/r1", ""); w.Code != http.StatusOK {
		t.Fatalf("first cancel status = %d, want 200", w.Code)
	}
	if w := do(r, http.MethodDelete, "/api/date-plans/r1", ""); w.Code != http.StatusConflict {
		t.Fatalf("second cancel status = %d, want 409", w.Code)
	}
}

func TestCancelledResultReturns410(t *testing.T) {
	m := store.NewMemory(nil)
	r, _ := newTestRouter(m)

	prog := domain.NewProgress("r1", time.Now().UTC())
	prog.Status = domain.StatusCancelled
	if err := store.SetJSON(context.Background(), m, store.ProgressKey("r1"), prog, time.Hour); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if w := do(r, http.MethodGet, "/api/date-plans/r1/result", ""); w.Code != http.StatusGone {
		t.Fatalf("status = %d, want 410", w.Code)
	}
}
