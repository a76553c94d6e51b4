package service

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/edusync/proctor/internal/config"
	"github.com/edusync/proctor/internal/model"
)

// queuePusher is the subset of *redis.Client the sink needs.
type queuePusher interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// RedisViolationSink queues violations for the violation worker. Record
// never blocks the session loop: when the buffer is full the violation is
// dropped and logged.
type RedisViolationSink struct {
	rdb    queuePusher
	events chan model.Violation
	log    zerolog.Logger
}

func NewRedisViolationSink(rdb queuePusher, buffer int, log zerolog.Logger) *RedisViolationSink {
	return &RedisViolationSink{
		rdb:    rdb,
		events: make(chan model.Violation, buffer),
		log:    log.With().Str("component", "violation_sink").Logger(),
	}
}

// Record implements session.ViolationSink.
func (s *RedisViolationSink) Record(v model.Violation) {
	select {
	case s.events <- v:
	default:
		s.log.Warn().
			Str("session_id", v.SessionID).
			Str("signal", string(v.Signal)).
			Msg("Violation buffer full, dropping event")
	}
}

// Run pushes buffered violations until ctx is cancelled, then drains what
// is left with a fresh context.
func (s *RedisViolationSink) Run(ctx context.Context) {
	for {
		select {
		case v := <-s.events:
			s.push(ctx, v)
		case <-ctx.Done():
			s.drain()
			return
		}
	}
}

func (s *RedisViolationSink) drain() {
	for {
		select {
		case v := <-s.events:
			s.push(context.Background(), v)
		default:
			return
		}
	}
}

func (s *RedisViolationSink) push(ctx context.Context, v model.Violation) {
	payload, err := json.Marshal(v)
	if err != nil {
		s.log.Error().Err(err).Msg("Marshal violation failed")
		return
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, payload).Err(); err != nil {
		s.log.Error().Err(err).Str("session_id", v.SessionID).Msg("Queue violation failed")
	}
}
