package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/edusync/proctor/internal/middleware"
	"github.com/edusync/proctor/internal/response"
	"github.com/edusync/proctor/internal/service"
	"github.com/edusync/proctor/internal/session"
	ws "github.com/edusync/proctor/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// SessionOpener starts assessment sessions.
type SessionOpener interface {
	Open(ctx context.Context, req service.OpenRequest) (*session.Session, error)
}

// SessionHandler streams one assessment session over a WebSocket.
type SessionHandler struct {
	sessions SessionOpener
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions SessionOpener, log zerolog.Logger, allowedOrigins []string) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		log:      log.With().Str("component", "session_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// Stream godoc
// WS /ws/v1/assessments/:assessment_id/session?token=...
// Upgrades to WebSocket and runs one proctored attempt for the connection.
func (h *SessionHandler) Stream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	assessmentID := strings.TrimSpace(c.Param("assessment_id"))
	if assessmentID == "" || len(assessmentID) > 64 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewConn(raw)
	defer conn.Close()

	wsLog := h.log.With().
		Str("request_id", response.RequestID(c)).
		Str("user_id", claims.UserID).
		Str("assessment_id", assessmentID).
		Logger()

	sess, err := h.sessions.Open(c.Request.Context(), service.OpenRequest{
		AssessmentID: assessmentID,
		UserID:       claims.UserID,
		Token:        middleware.GetToken(c),
		Environment:  ws.NewEnvironment(conn),
	})
	if err != nil {
		if errors.Is(err, service.ErrAttemptActive) {
			conn.WriteError(response.GetMessage(response.ErrAttemptActive))
		} else {
			wsLog.Error().Err(err).Msg("Opening session failed")
			conn.WriteError(response.GetMessage(response.ErrInternal))
		}
		return
	}
	defer sess.Close()

	wsLog = wsLog.With().Str("session_id", sess.ID()).Logger()
	wsLog.Info().Msg("Student connected")

	for {
		var msg ws.Request
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		if err := h.dispatch(conn, sess, &msg); err != nil {
			if errors.Is(err, session.ErrSessionClosed) {
				return
			}
			wsLog.Debug().Err(err).Str("action", string(msg.Action)).Msg("Command rejected")
			conn.WriteError(err.Error())
		}
	}
}

var errMissingIndex = errors.New("question and option are required")

func (h *SessionHandler) dispatch(conn *ws.Conn, sess *session.Session, msg *ws.Request) error {
	switch msg.Action {
	case ws.ActionStart:
		return sess.Start()
	case ws.ActionSelect:
		if msg.Question == nil || msg.Option == nil {
			return errMissingIndex
		}
		return sess.SelectAnswer(*msg.Question, *msg.Option)
	case ws.ActionAdvance:
		return sess.Advance()
	case ws.ActionSubmit:
		return sess.Submit()
	case ws.ActionSignal:
		return sess.ReportSignal(msg.Signal, msg.Key)
	case ws.ActionPing:
		return conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
	default:
		return errors.New("unknown action: " + string(msg.Action))
	}
}
