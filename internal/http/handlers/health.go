package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aimorme/datewise-backend/internal/http/response"
	"github.com/aimorme/datewise-backend/internal/store"
)

type HealthHandler struct {
	store           store.Store
	aiConfigured    bool
	tasteConfigured bool
}

func NewHealthHandler(st store.Store, aiConfigured, tasteConfigured bool) *HealthHandler {
	return &HealthHandler{
		store:           st,
		aiConfigured:    aiConfigured,
		tasteConfigured: tasteConfigured,
	}
}

// GET /health
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx := c.Request.Context()

	storeStatus := "ok"
	if err := h.store.Ping(ctx); err != nil {
		storeStatus = "unreachable"
	}
	activeJobs := 0
	if keys, err := h.store.Keys(ctx, store.ProgressPrefix()); err == nil {
		activeJobs = len(keys)
	}
	storedResults := 0
	if keys, err := h.store.Keys(ctx, store.ResultPrefix()); err == nil {
		storedResults = len(keys)
	}

	status := http.StatusOK
	overall := "healthy"
	if storeStatus != "ok" {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}

	c.JSON(status, gin.H{
		"status": overall,
		"time":   time.Now().UTC().Format(time.RFC3339),
		"storage": gin.H{
			"backend": h.store.Name(),
			"status":  storeStatus,
		},
		"services": gin.H{
			"ai_configured":          h.aiConfigured,
			"taste_graph_configured": h.tasteConfigured,
		},
		"jobs": gin.H{
			"active_progress_documents": activeJobs,
			"stored_results":            storedResults,
		},
	})
}

// GET /
func (h *HealthHandler) ServiceInfo(c *gin.Context) {
	response.RespondOK(c, gin.H{
		"service": "datewise-backend",
		"version": "1.0.0",
		"endpoints": gin.H{
			"submit":   "POST /api/date-plans",
			"progress": "GET /api/date-plans/:id/progress",
			"result":   "GET /api/date-plans/:id/result",
			"cancel":   "DELETE /api/date-plans/:id",
			"health":   "GET /health",
		},
	})
}
