package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"
)

const (
	flushExchange   = "logs.direct"
	flushRoutingKey = "slack"

	// attemptsHeader carries the failed-delivery count across requeues.
	// Broker-side requeue keeps no per-message state, so the count has to
	// travel with the message itself.
	attemptsHeader = "x-flush-attempts"
)

// FlushQueue owns the broker topology for flushed batches: the direct
// exchange the buffering collaborator publishes to, the durable flush queue
// and its dead-letter target. It also republishes batches whose delivery
// failed with a retryable error, stamping the attempt count into a header.
type FlushQueue struct {
	conn     *amqp.Connection
	name     string
	dlq      string
	prefetch int
	workers  int
	logger   *slog.Logger

	mu  sync.Mutex
	pub *amqp.Channel
}

func NewFlushQueue(conn *amqp.Connection, name, dlq string, prefetch, workers int, logger *slog.Logger) *FlushQueue {
	if prefetch <= 0 {
		prefetch = 50
	}
	if workers <= 0 {
		workers = 1
	}
	return &FlushQueue{
		conn:     conn,
		name:     name,
		dlq:      dlq,
		prefetch: prefetch,
		workers:  workers,
		logger:   logger,
	}
}

// Run declares the topology, opens a dedicated publish channel for requeues
// and consumes deliveries with a bounded worker pool until the context is
// cancelled.
func (q *FlushQueue) Run(ctx context.Context, handle func(context.Context, amqp.Delivery) error) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consume channel: %w", err)
	}
	defer ch.Close()

	if err := q.declareTopology(ch); err != nil {
		return fmt.Errorf("declare flush topology: %w", err)
	}
	if err := ch.Qos(q.prefetch, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}

	pub, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("open requeue channel: %w", err)
	}
	defer pub.Close()
	q.mu.Lock()
	q.pub = pub
	q.mu.Unlock()

	deliveries, err := ch.Consume(q.name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", q.name, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < q.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-deliveries:
					if !ok {
						return
					}
					if err := handle(ctx, msg); err != nil {
						q.logger.Error("flush handler returned error", slog.Any("error", err))
					}
				}
			}
		}()
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

// Requeue puts a failed batch back on the flush queue with its attempt count.
// The publish channel is shared across workers and must be serialized.
func (q *FlushQueue) Requeue(_ context.Context, body []byte, attempts int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pub == nil {
		return fmt.Errorf("requeue channel not open")
	}
	return q.pub.Publish(flushExchange, flushRoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      amqp.Table{attemptsHeader: int32(attempts)},
		Body:         body,
	})
}

func (q *FlushQueue) declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(flushExchange, "direct", true, false, false, false, nil); err != nil {
		return err
	}
	args := amqp.Table{}
	if q.dlq != "" {
		args["x-dead-letter-exchange"] = ""
		args["x-dead-letter-routing-key"] = q.dlq
	}
	if _, err := ch.QueueDeclare(q.name, true, false, false, false, args); err != nil {
		return err
	}
	if err := ch.QueueBind(q.name, flushRoutingKey, flushExchange, false, nil); err != nil {
		return err
	}
	if q.dlq != "" {
		if _, err := ch.QueueDeclare(q.dlq, true, false, false, false, nil); err != nil {
			return err
		}
	}
	return nil
}
