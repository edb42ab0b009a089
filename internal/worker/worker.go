// Package worker consumes attendance events published by the API.
package worker

import (
	"context"

	"github.com/rs/zerolog/log"

	"geoattend/internal/attendance"
	"geoattend/internal/identity"
	"geoattend/internal/metrics"
	"geoattend/internal/queue"
)

// SessionToucher records activity on a device session.
type SessionToucher interface {
	Touch(ctx context.Context, ref identity.Ref, deviceID string) error
}

// Worker refreshes the device session of every student who marks attendance.
type Worker struct {
	queue    queue.Queue
	sessions SessionToucher
}

func New(q queue.Queue, sessions SessionToucher) *Worker {
	return &Worker{queue: q, sessions: sessions}
}

// Run processes messages until ctx is done or the queue closes.
func (w *Worker) Run(ctx context.Context) error {
	messages, err := w.queue.Consume(ctx)
	if err != nil {
		return err
	}
	log.Info().Msg("worker started, waiting for messages")
	for msg := range messages {
		w.Handle(ctx, msg)
	}
	log.Info().Msg("worker stopped")
	return nil
}

// Handle processes one message. Failures are logged and counted, never retried.
func (w *Worker) Handle(ctx context.Context, msg queue.Message) {
	if msg.Type != attendance.TypeMarked {
		metrics.QueueMessages.WithLabelValues(msg.Type, "ignored").Inc()
		return
	}
	evt, err := attendance.DecodeMarked(msg.Body)
	if err != nil {
		log.Warn().Err(err).Msg("malformed attendance event")
		metrics.QueueMessages.WithLabelValues(msg.Type, "malformed").Inc()
		return
	}
	ref := identity.Ref{ID: evt.StudentID, Role: identity.RoleStudent}
	if err := w.sessions.Touch(ctx, ref, evt.DeviceID); err != nil {
		log.Error().Err(err).Str("record_id", evt.RecordID).Msg("touch session failed")
		metrics.QueueMessages.WithLabelValues(msg.Type, "failed").Inc()
		return
	}
	log.Debug().Str("record_id", evt.RecordID).Int64("identity_id", evt.StudentID).Msg("session touched")
	metrics.QueueMessages.WithLabelValues(msg.Type, "ok").Inc()
}
