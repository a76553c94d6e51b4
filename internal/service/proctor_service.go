package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edusync/proctor/internal/config"
	"github.com/edusync/proctor/internal/model"
	"github.com/edusync/proctor/internal/session"
)

// BackendFactory returns an LMS backend that acts with the student's token.
type BackendFactory func(token string) session.Backend

// OpenRequest describes a new assessment attempt.
type OpenRequest struct {
	AssessmentID string
	UserID       string
	Token        string
	Environment  session.Environment
}

// ProctorService opens assessment sessions and keeps the registry of the
// ones still running.
type ProctorService struct {
	cfg      *config.Config
	backends BackendFactory
	lock     AttemptLock
	sink     session.ViolationSink
	log      zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*session.Session
	wg       sync.WaitGroup
}

// NewProctorService creates a new ProctorService. lock may be nil to allow
// concurrent attempts.
func NewProctorService(cfg *config.Config, backends BackendFactory, lock AttemptLock, sink session.ViolationSink, log zerolog.Logger) *ProctorService {
	return &ProctorService{
		cfg:      cfg,
		backends: backends,
		lock:     lock,
		sink:     sink,
		log:      log.With().Str("component", "proctor_service").Logger(),
		sessions: make(map[string]*session.Session),
	}
}

// Open acquires the attempt lock, starts a session and begins loading the
// assessment. The session stays registered until it is closed or ctx ends.
func (s *ProctorService) Open(ctx context.Context, req OpenRequest) (*session.Session, error) {
	sessionID := uuid.New().String()

	if s.lock != nil {
		if err := s.lock.Acquire(ctx, req.AssessmentID, req.UserID, sessionID); err != nil {
			return nil, err
		}
	}

	sess := session.Open(ctx, s.options(sessionID, req), session.Deps{
		Backend:     s.backends(req.Token),
		Environment: req.Environment,
		Sink:        s.sink,
		Logger:      s.log,
	})

	s.mu.Lock()
	s.sessions[sessionID] = sess
	s.mu.Unlock()

	s.wg.Add(1)
	go s.reap(sess, req)

	if err := sess.Load(); err != nil {
		sess.Close()
		return nil, err
	}

	s.log.Info().
		Str("session_id", sessionID).
		Str("assessment_id", req.AssessmentID).
		Str("user_id", req.UserID).
		Msg("Session opened")
	return sess, nil
}

// reap unregisters a session once it has been torn down and frees the
// attempt lock.
func (s *ProctorService) reap(sess *session.Session, req OpenRequest) {
	defer s.wg.Done()
	<-sess.Done()

	s.mu.Lock()
	delete(s.sessions, sess.ID())
	s.mu.Unlock()

	if s.lock == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.lock.Release(ctx, req.AssessmentID, req.UserID, sess.ID()); err != nil {
		s.log.Error().Err(err).Str("session_id", sess.ID()).Msg("Attempt lock release failed")
	}
}

// List returns snapshots of every registered session ordered by start time.
// Sessions that close while being listed are skipped.
func (s *ProctorService) List() []model.Snapshot {
	s.mu.RLock()
	open := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.RUnlock()

	snaps := make([]model.Snapshot, 0, len(open))
	for _, sess := range open {
		snap, err := sess.Snapshot()
		if errors.Is(err, session.ErrSessionClosed) {
			continue
		}
		snaps = append(snaps, snap)
	}

	sort.Slice(snaps, func(i, j int) bool {
		a, b := snaps[i].StartedAt, snaps[j].StartedAt
		switch {
		case a == nil && b == nil:
			return snaps[i].SessionID < snaps[j].SessionID
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.Before(*b)
	})
	return snaps
}

// Count returns the number of registered sessions.
func (s *ProctorService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Shutdown closes every session and waits until their locks are released.
func (s *ProctorService) Shutdown() {
	s.mu.RLock()
	open := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.RUnlock()

	for _, sess := range open {
		sess.Close()
	}
	s.wg.Wait()
	s.log.Info().Int("closed", len(open)).Msg("All sessions closed")
}

func (s *ProctorService) options(sessionID string, req OpenRequest) session.Options {
	return session.Options{
		SessionID:         sessionID,
		AssessmentID:      req.AssessmentID,
		UserID:            req.UserID,
		QuestionTimeLimit: s.cfg.QuestionTimeLimit,
		BannerDuration:    s.cfg.WarningBannerDuration,
		Policy: session.Policy{
			MaxWarnings:     s.cfg.MaxWarnings,
			CountSuppressed: s.cfg.CountSuppressedViolations,
		},
	}
}
