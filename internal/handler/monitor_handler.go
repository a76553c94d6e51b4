package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/edusync/proctor/internal/model"
	"github.com/edusync/proctor/internal/response"
	"github.com/edusync/proctor/internal/service"
	"github.com/edusync/proctor/internal/validator"
)

const (
	refreshInterval   = 5 * time.Second
	keepAliveInterval = 30 * time.Second
)

// SessionLister reports the sessions currently running.
type SessionLister interface {
	List() []model.Snapshot
}

// MonitorHandler serves instructor views of live sessions and recorded
// violations.
type MonitorHandler struct {
	sessions   SessionLister
	violations *service.ViolationService
	log        zerolog.Logger
}

func NewMonitorHandler(sessions SessionLister, violations *service.ViolationService, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		sessions:   sessions,
		violations: violations,
		log:        log.With().Str("component", "monitor_handler").Logger(),
	}
}

// ListSessions godoc
// GET /api/v1/sessions
func (h *MonitorHandler) ListSessions(c *gin.Context) {
	snaps := h.sessions.List()
	response.Success(c, http.StatusOK, gin.H{"sessions": snaps, "count": len(snaps)})
}

// StreamSessions godoc
// GET /api/v1/sessions/stream
// Server-sent events with the full session list every refreshInterval.
func (h *MonitorHandler) StreamSessions(c *gin.Context) {
	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.sendSessions(c)

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()
	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	h.log.Info().Msg("Instructor attached to live session stream")
	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Msg("Instructor detached from live session stream")
			return
		case <-refreshTicker.C:
			h.sendSessions(c)
		case <-keepAliveTicker.C:
			writeEvent(c, pingPayload)
		}
	}
}

func (h *MonitorHandler) sendSessions(c *gin.Context) {
	payload, err := json.Marshal(gin.H{"type": "sessions", "sessions": h.sessions.List()})
	if err != nil {
		h.log.Error().Err(err).Msg("Marshal session list failed")
		return
	}
	writeEvent(c, payload)
}

func writeEvent(c *gin.Context, payload []byte) {
	c.Writer.Write([]byte("data: "))
	c.Writer.Write(payload)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}

type violationQuery struct {
	Page    int `form:"page" json:"page" binding:"omitempty,min=1"`
	PerPage int `form:"per_page" json:"per_page" binding:"omitempty,min=1,max=100"`
}

// ListViolations godoc
// GET /api/v1/assessments/:assessment_id/violations?page=&per_page=
func (h *MonitorHandler) ListViolations(c *gin.Context) {
	assessmentID := strings.TrimSpace(c.Param("assessment_id"))
	if assessmentID == "" || len(assessmentID) > 64 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var q violationQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	violations, pagination, err := h.violations.ListViolations(c.Request.Context(), assessmentID, q.Page, q.PerPage)
	if err != nil {
		h.log.Error().Err(err).Str("assessment_id", assessmentID).Msg("List violations failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"violations": violations}, pagination)
}
