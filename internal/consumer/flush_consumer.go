package consumer

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/sowawa/fluent-plugin-slack/internal/models"
)

// BatchWriter delivers one flushed batch. A returned error means the batch
// should be attempted again later.
type BatchWriter interface {
	Write(ctx context.Context, batch *models.Batch) error
}

// BatchRequeuer schedules another delivery attempt for a batch body.
type BatchRequeuer interface {
	Requeue(ctx context.Context, body []byte, attempts int) error
}

// FlushConsumer maps queued flush envelopes onto the output driver and
// translates the driver's contract back into broker semantics: ack when the
// batch is handled, republish with an incremented attempt count on a
// retryable failure, dead-letter once the delivery cap is reached.
type FlushConsumer struct {
	queue         *FlushQueue
	requeuer      BatchRequeuer
	writer        BatchWriter
	logger        *slog.Logger
	maxDeliveries int
}

func NewFlushConsumer(queue *FlushQueue, writer BatchWriter, logger *slog.Logger, maxDeliveries int) *FlushConsumer {
	if maxDeliveries <= 0 {
		maxDeliveries = 5
	}
	return &FlushConsumer{
		queue:         queue,
		requeuer:      queue,
		writer:        writer,
		logger:        logger,
		maxDeliveries: maxDeliveries,
	}
}

func (f *FlushConsumer) Start(ctx context.Context) error {
	return f.queue.Run(ctx, f.handleDelivery)
}

func (f *FlushConsumer) handleDelivery(ctx context.Context, msg amqp.Delivery) error {
	var batch models.Batch
	if err := json.Unmarshal(msg.Body, &batch); err != nil {
		f.logger.Error("failed to unmarshal flush envelope", slog.Any("error", err))
		_ = msg.Reject(false)
		return err
	}

	err := f.writer.Write(ctx, &batch)
	if err == nil {
		return msg.Ack(false)
	}

	attempts := flushAttempts(msg.Headers) + 1
	if attempts >= f.maxDeliveries {
		f.logger.Error("flush failed, batch dead-lettered",
			slog.String("request_id", batch.RequestID),
			slog.Int("attempts", attempts),
			slog.Any("error", err))
		// The nack dead-letters via the queue's x-dead-letter args.
		_ = msg.Nack(false, false)
		return err
	}

	f.logger.Warn("flush failed, batch requeued",
		slog.String("request_id", batch.RequestID),
		slog.Int("attempts", attempts),
		slog.Any("error", err))
	if rerr := f.requeuer.Requeue(ctx, msg.Body, attempts); rerr != nil {
		// Keep the batch on the broker rather than lose it; the attempt
		// count stays where it was.
		f.logger.Error("requeue publish failed", slog.Any("error", rerr))
		_ = msg.Nack(false, true)
		return err
	}
	_ = msg.Ack(false)
	return err
}

// flushAttempts reads the failed-attempt count stamped by Requeue. A missing
// or foreign-typed header means this is the first delivery.
func flushAttempts(headers amqp.Table) int {
	switch v := headers[attemptsHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}
