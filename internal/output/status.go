package output

import (
	"context"
	"log/slog"
)

const (
	StatusProcessing = "processing"
	StatusDelivered  = "delivered"
	StatusFailed     = "failed"
	StatusSuppressed = "suppressed"
)

// StatusSink persists per-batch delivery outcomes.
type StatusSink interface {
	UpdateStatus(ctx context.Context, requestID, status, backend, detail string) error
}

// StatusUpdater records batch outcomes without letting store errors affect
// delivery. All methods are nil-receiver safe so the driver can run without
// a database. Detail strings arrive already token-redacted.
type StatusUpdater struct {
	store  StatusSink
	logger *slog.Logger
}

func NewStatusUpdater(store StatusSink, logger *slog.Logger) *StatusUpdater {
	return &StatusUpdater{
		store:  store,
		logger: logger,
	}
}

func (s *StatusUpdater) MarkProcessing(ctx context.Context, requestID, backend string) {
	s.update(ctx, requestID, StatusProcessing, backend, "")
}

func (s *StatusUpdater) MarkDelivered(ctx context.Context, requestID, backend string) {
	s.update(ctx, requestID, StatusDelivered, backend, "")
}

func (s *StatusUpdater) MarkFailed(ctx context.Context, requestID, backend, detail string) {
	s.update(ctx, requestID, StatusFailed, backend, detail)
}

func (s *StatusUpdater) MarkSuppressed(ctx context.Context, requestID, backend string) {
	s.update(ctx, requestID, StatusSuppressed, backend, "")
}

func (s *StatusUpdater) update(ctx context.Context, requestID, status, backend, detail string) {
	if s == nil || s.store == nil || requestID == "" {
		return
	}
	if err := s.store.UpdateStatus(ctx, requestID, status, backend, detail); err != nil && s.logger != nil {
		s.logger.Error("failed to update delivery status",
			slog.String("request_id", requestID),
			slog.String("status", status),
			slog.Any("error", err))
	}
}
