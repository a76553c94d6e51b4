package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/edusync/proctor/internal/config"
	"github.com/edusync/proctor/internal/middleware"
	"github.com/edusync/proctor/internal/model"
	"github.com/edusync/proctor/internal/service"
	"github.com/edusync/proctor/internal/session"
	"github.com/edusync/proctor/internal/validator"
)

const testSecret = "handler-secret"

func init() {
	gin.SetMode(gin.TestMode)
	validator.Setup()
}

type lmsStub struct {
	mu      sync.Mutex
	results []model.Result
}

func (l *lmsStub) FetchAssessment(_ context.Context, id string) (*model.AssessmentRecord, error) {
	return &model.AssessmentRecord{
		ID:                  id,
		Title:               "Arithmetic",
		SerializedQuestions: `[{"questionText":"1+1","options":["1","2"],"correctOptionIndex":1},{"questionText":"2+2","options":["4","5"],"correctOption":0}]`,
	}, nil
}

func (l *lmsStub) SubmitResult(_ context.Context, r model.Result) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results = append(l.results, r)
	return nil
}

func token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		UserID:           userID,
		Role:             role,
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func newServer(t *testing.T, lms *lmsStub) (*httptest.Server, *service.ProctorService) {
	t.Helper()
	cfg := &config.Config{
		QuestionTimeLimit:     25 * time.Second,
		MaxWarnings:           2,
		WarningBannerDuration: 3 * time.Second,
	}
	svc := service.NewProctorService(cfg, func(string) session.Backend { return lms }, nil, nil, zerolog.Nop())
	h := NewSessionHandler(svc, zerolog.Nop(), nil)

	r := gin.New()
	r.GET("/ws/v1/assessments/:assessment_id/session", middleware.RequireStudentWSAuth(middleware.NewVerifier(testSecret)), h.Stream)

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		svc.Shutdown()
	})
	return srv, svc
}

type client struct {
	t    *testing.T
	conn *websocket.Conn
}

func dial(t *testing.T, srv *httptest.Server, tok string) *client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/assessments/asm-1/session?token=" + tok
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &client{t: t, conn: conn}
}

func (c *client) send(v interface{}) {
	c.t.Helper()
	if err := c.conn.WriteJSON(v); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

type event struct {
	Event   string         `json:"event"`
	State   model.Snapshot `json:"state"`
	Enabled bool           `json:"enabled"`
	Mode    string         `json:"mode"`
	Error   string         `json:"error"`
}

// until reads events until match returns true.
func (c *client) until(what string, match func(event) bool) event {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var ev event
		if err := c.conn.ReadJSON(&ev); err != nil {
			c.t.Fatalf("waiting for %s: %v", what, err)
		}
		if match(ev) {
			return ev
		}
	}
}

func isState(pred func(model.Snapshot) bool) func(event) bool {
	return func(ev event) bool { return ev.Event == "state" && pred(ev.State) }
}

func TestSessionStreamEndToEnd(t *testing.T) {
	lms := &lmsStub{}
	srv, _ := newServer(t, lms)
	c := dial(t, srv, token(t, "stu-1", "Student"))

	c.until("loaded state", isState(func(s model.Snapshot) bool { return !s.Loading && s.QuestionCount == 2 }))

	c.send(map[string]interface{}{"action": "start"})
	c.until("fullscreen request", func(ev event) bool { return ev.Event == "fullscreen" && ev.Mode == "request" })
	c.until("guard", func(ev event) bool { return ev.Event == "guard" && ev.Enabled })

	c.send(map[string]interface{}{"action": "select", "question": 0, "option": 1})
	c.send(map[string]interface{}{"action": "advance"})
	c.until("second question", isState(func(s model.Snapshot) bool { return s.CurrentIndex == 1 }))

	c.send(map[string]interface{}{"action": "submit"})
	c.until("unanswered rejection", func(ev event) bool {
		return ev.Event == "error" && ev.Error == session.ErrUnanswered.Error()
	})

	c.send(map[string]interface{}{"action": "select", "question": 1, "option": 0})
	c.send(map[string]interface{}{"action": "submit"})
	done := c.until("submitted", isState(func(s model.Snapshot) bool { return s.Submitted }))
	if done.State.Score == nil || *done.State.Score != 100 {
		t.Fatalf("unexpected score %v", done.State.Score)
	}

	lms.mu.Lock()
	defer lms.mu.Unlock()
	if len(lms.results) != 1 || lms.results[0].UserID != "stu-1" || lms.results[0].AssessmentID != "asm-1" {
		t.Fatalf("unexpected results %+v", lms.results)
	}
}

func TestSessionStreamPingAndUnknownAction(t *testing.T) {
	srv, _ := newServer(t, &lmsStub{})
	c := dial(t, srv, token(t, "stu-2", "student"))

	c.send(map[string]interface{}{"action": "ping"})
	c.until("pong", func(ev event) bool { return ev.Event == "pong" })

	c.send(map[string]interface{}{"action": "dance"})
	c.until("error", func(ev event) bool { return ev.Event == "error" && strings.Contains(ev.Error, "dance") })

	c.send(map[string]interface{}{"action": "select"})
	c.until("missing index", func(ev event) bool { return ev.Event == "error" && ev.Error == errMissingIndex.Error() })
}

func TestSessionStreamDisconnectTearsDown(t *testing.T) {
	srv, svc := newServer(t, &lmsStub{})
	c := dial(t, srv, token(t, "stu-3", "student"))
	c.until("loaded", isState(func(s model.Snapshot) bool { return s.QuestionCount == 2 }))

	if svc.Count() != 1 {
		t.Fatalf("expected 1 live session, got %d", svc.Count())
	}
	c.conn.Close()

	deadline := time.Now().Add(3 * time.Second)
	for svc.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("session not torn down after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSessionStreamRejectsWithoutToken(t *testing.T) {
	srv, _ := newServer(t, &lmsStub{})
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/assessments/asm-1/session"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", resp)
	}
}

type listerStub []model.Snapshot

func (l listerStub) List() []model.Snapshot { return l }

type storeStub struct {
	assessmentID string
	limit        int
}

func (s *storeStub) ListByAssessment(_ context.Context, assessmentID string, limit, _ int) ([]model.Violation, int, error) {
	s.assessmentID, s.limit = assessmentID, limit
	return []model.Violation{{ID: 1, AssessmentID: assessmentID, Signal: model.SignalPaste}}, 1, nil
}

func TestMonitorEndpoints(t *testing.T) {
	store := &storeStub{}
	h := NewMonitorHandler(listerStub{{SessionID: "s1"}, {SessionID: "s2"}}, service.NewViolationService(store), zerolog.Nop())

	r := gin.New()
	r.GET("/api/v1/sessions", h.ListSessions)
	r.GET("/api/v1/assessments/:assessment_id/violations", h.ListViolations)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil))
	var sessions struct {
		Data struct {
			Count    int              `json:"count"`
			Sessions []model.Snapshot `json:"sessions"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &sessions); err != nil || w.Code != http.StatusOK {
		t.Fatalf("sessions: %d %v", w.Code, err)
	}
	if sessions.Data.Count != 2 || sessions.Data.Sessions[1].SessionID != "s2" {
		t.Fatalf("unexpected body %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/assessments/asm-9/violations?per_page=5", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("violations: %d %s", w.Code, w.Body.String())
	}
	if store.assessmentID != "asm-9" || store.limit != 5 {
		t.Fatalf("store called with %+v", store)
	}
	if !strings.Contains(w.Body.String(), `"total_items":1`) {
		t.Fatalf("pagination missing: %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/assessments/asm-9/violations?per_page=1000", nil))
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "VALIDATION_ERROR") {
		t.Fatalf("expected validation error, got %d %s", w.Code, w.Body.String())
	}
}
