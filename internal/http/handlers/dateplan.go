package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aimorme/datewise-backend/internal/http/response"
	"github.com/aimorme/datewise-backend/internal/jobs/gateway"
	pkgerrors "github.com/aimorme/datewise-backend/internal/pkg/errors"
)

type DatePlanHandler struct {
	gw *gateway.Service
}

func NewDatePlanHandler(gw *gateway.Service) *DatePlanHandler {
	return &DatePlanHandler{gw: gw}
}

// POST /api/date-plans
func (h *DatePlanHandler) Create(c *gin.Context) {
	var req gateway.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
		return
	}
	resp, err := h.gw.Submit(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrInvalidArgument) {
			response.RespondError(c, http.StatusBadRequest, "invalid_profiles", err)
			return
		}
		response.RespondError(c, http.StatusInternalServerError, "submit_failed", err)
		return
	}
	response.RespondAccepted(c, resp)
}

// GET /api/date-plans/:id/progress
func (h *DatePlanHandler) Progress(c *gin.Context) {
	view, err := h.gw.Progress(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			response.RespondError(c, http.StatusNotFound, "request_not_found", err)
			return
		}
		response.RespondError(c, http.StatusInternalServerError, "progress_failed", err)
		return
	}
	response.RespondOK(c, view)
}

// GET /api/date-plans/:id/result
func (h *DatePlanHandler) Result(c *gin.Context) {
	view, err := h.gw.Result(c.Request.Context(), c.Param("id"))
	switch {
	case err == nil:
		response.RespondOK(c, view)
	case errors.Is(err, pkgerrors.ErrNotFound):
		response.RespondError(c, http.StatusNotFound, "request_not_found", err)
	case errors.Is(err, pkgerrors.ErrNotReady):
		// Still processing; the body carries the current step and ETA.
		response.RespondAccepted(c, view)
	case errors.Is(err, pkgerrors.ErrCancelled):
		response.RespondError(c, http.StatusGone, "request_cancelled", err)
	case errors.Is(err, pkgerrors.ErrResultMissing):
		response.RespondError(c, http.StatusInternalServerError, "result_unretrievable", err)
	default:
		response.RespondError(c, http.StatusInternalServerError, "result_failed", err)
	}
}

// DELETE /api/date-plans/:id
func (h *DatePlanHandler) Cancel(c *gin.Context) {
	err := h.gw.Cancel(c.Request.Context(), c.Param("id"))
	switch {
	case err == nil:
		response.RespondOK(c, gin.H{"request_id": c.Param("id"), "status": "cancelled"})
	case errors.Is(err, pkgerrors.ErrNotFound):
		response.RespondError(c, http.StatusNotFound, "request_not_found", err)
	case errors.Is(err, pkgerrors.ErrInvalidArgument):
		response.RespondError(c, http.StatusConflict, "request_already_finished", err)
	default:
		response.RespondError(c, http.StatusInternalServerError, "cancel_failed", err)
	}
}
