// Package service implements the dispatch pipeline: validation, channel
// routing, bounded concurrent dispatch and batch aggregation.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hispgo/program-messaging/internal/cache"
	"github.com/hispgo/program-messaging/internal/message"
	"github.com/hispgo/program-messaging/internal/metrics"
	"github.com/hispgo/program-messaging/internal/repo"
)

// Service runs submitted batches end to end and persists the results.
type Service struct {
	router     *Router
	dispatcher *Dispatcher
	messages   repo.MessageRepository
	receipts   cache.ReceiptCache // optional
	recorder   *metrics.Recorder  // optional
}

func New(router *Router, dispatcher *Dispatcher, messages repo.MessageRepository) *Service {
	return &Service{
		router:     router,
		dispatcher: dispatcher,
		messages:   messages,
	}
}

// WithReceiptCache records gateway receipts for sent destinations.
func (s *Service) WithReceiptCache(c cache.ReceiptCache) *Service {
	s.receipts = c
	return s
}

// WithMetrics records per-destination counters and dispatch timing.
func (s *Service) WithMetrics(r *metrics.Recorder) *Service {
	s.recorder = r
	return s
}

// SendMessages runs one batch through the pipeline. Per-message problems
// (validation, missing gateway, gateway failures, timeouts) are folded
// into the returned BatchResponseStatus; only collaborator faults produce
// an error, and then the whole call fails.
func (s *Service) SendMessages(ctx context.Context, msgs []message.ProgramMessage) (message.BatchResponseStatus, error) {
	started := time.Now()

	// Batch messages may arrive without a uid; assign one up front so
	// outcomes, receipts and stored copies all share the same reference.
	for i := range msgs {
		if msgs[i].UID == "" {
			msgs[i].UID = uuid.NewString()
		}
	}

	preFailed := make(map[int]message.MessageOutcome)
	var plans []Plan

	batchRouter := s.router.ForBatch()
	for i, m := range msgs {
		if err := Validate(m); err != nil {
			ve, _ := AsValidationError(err)
			preFailed[i] = message.MessageOutcome{
				Status: message.Failed,
				Reason: message.ReasonValidationFailed,
				Detail: ve.Reason,
			}
			continue
		}

		plan, err := batchRouter.Route(ctx, i, m)
		switch {
		case err == nil:
			plans = append(plans, plan)
		case errors.Is(err, ErrNoGateway):
			preFailed[i] = message.MessageOutcome{
				Status: message.Failed,
				Reason: message.ReasonNoGateway,
				Detail: err.Error(),
			}
		default:
			if ve, ok := AsValidationError(err); ok {
				preFailed[i] = message.MessageOutcome{
					Status: message.Failed,
					Reason: message.ReasonValidationFailed,
					Detail: ve.Reason,
				}
				continue
			}
			// Collaborator fault: abort the whole call.
			return message.BatchResponseStatus{}, fmt.Errorf("route message %s: %w", m.UID, err)
		}
	}

	outcomes, cancelled := s.dispatcher.Dispatch(ctx, plans)
	s.recordOutcomes(ctx, msgs, outcomes)

	resp := Aggregate(msgs, preFailed, outcomes, cancelled)

	if err := s.persistResults(ctx, msgs, resp); err != nil {
		return message.BatchResponseStatus{}, err
	}

	s.recorder.ObserveDispatch(time.Since(started))
	slog.Info("batch dispatched",
		"total", resp.Total,
		"sent", resp.Sent,
		"failed", resp.Failed,
		"cancelled", resp.Cancelled,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return resp, nil
}

func (s *Service) recordOutcomes(ctx context.Context, msgs []message.ProgramMessage, outcomes []Outcome) {
	for _, o := range outcomes {
		channel := string(o.Destination.Channel)
		if !o.Sent {
			s.recorder.FailedSend(channel, string(o.Reason))
			continue
		}
		s.recorder.Sent(channel)

		if s.receipts == nil {
			continue
		}
		uid := msgs[o.MessageIndex].UID
		if err := s.receipts.StoreReceipt(ctx, uid, o.Destination.Address, o.RemoteID, time.Now()); err != nil {
			// Receipts are advisory; a cache miss must not fail the batch.
			slog.Warn("failed to cache receipt", "uid", uid, "error", err)
		}
	}
}

// persistResults writes terminal statuses back to the store. Messages
// already stored (re-dispatched by the scheduler) get a status update;
// fresh batch messages are saved when the caller asked for a copy or the
// send succeeded.
func (s *Service) persistResults(ctx context.Context, msgs []message.ProgramMessage, resp message.BatchResponseStatus) error {
	for i, out := range resp.Outcomes {
		m := msgs[i]

		if m.ID != 0 {
			if err := s.messages.MarkStatus(ctx, m.ID, out.Status); err != nil {
				return fmt.Errorf("mark message %s %s: %w", m.UID, out.Status, err)
			}
			continue
		}

		if !m.StoreCopy && out.Status != message.Sent {
			continue
		}
		m.Status = out.Status
		if _, err := s.messages.Save(ctx, m); err != nil {
			return fmt.Errorf("store message %s: %w", m.UID, err)
		}
	}
	return nil
}

// SaveOutbound stores a message for later dispatch by the scheduler. The
// message is validated but not sent.
func (s *Service) SaveOutbound(ctx context.Context, m message.ProgramMessage) (message.ProgramMessage, error) {
	if err := Validate(m); err != nil {
		return message.ProgramMessage{}, err
	}
	m.Status = message.Outbound
	return s.messages.Save(ctx, m)
}

// FlushOutbound re-dispatches stored OUTBOUND messages. It is the
// scheduler's tick body; limit bounds one tick's batch.
func (s *Service) FlushOutbound(ctx context.Context, limit int) {
	msgs, err := s.messages.ListOutbound(ctx, limit)
	if err != nil {
		slog.Error("failed to list outbound messages", "error", err)
		return
	}
	if len(msgs) == 0 {
		return
	}

	if _, err := s.SendMessages(ctx, msgs); err != nil {
		slog.Error("failed to flush outbound messages", "count", len(msgs), "error", err)
	}
}
