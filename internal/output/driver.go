// Package output owns the flush entry point: it turns a batch into payloads,
// delivers them in deterministic first-seen order and maps every failure to
// the host's retry-or-discard contract.
package output

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"time"

	"github.com/sowawa/fluent-plugin-slack/internal/models"
	"github.com/sowawa/fluent-plugin-slack/internal/payload"
	"github.com/sowawa/fluent-plugin-slack/internal/slack"
	"github.com/sowawa/fluent-plugin-slack/pkg/logger"
	"github.com/sowawa/fluent-plugin-slack/pkg/metrics"
)

// Deliverer abstracts the dispatcher so tests can substitute a capturing
// implementation.
type Deliverer interface {
	Deliver(ctx context.Context, p *slack.Payload, opts slack.PostOptions) error
}

// ChannelSuppressor is the optional cache of channels known to be
// undeliverable.
type ChannelSuppressor interface {
	IsChannelSuppressed(ctx context.Context, channel string) (bool, error)
	SuppressChannel(ctx context.Context, channel string, ttl time.Duration) error
}

// Driver receives flushed batches from the buffering collaborator. A
// returned error means "retry the whole batch later"; a nil return means the
// batch is handled, including the log-and-discard outcomes.
type Driver struct {
	backend     string
	builder     *payload.Builder
	dispatcher  Deliverer
	cache       ChannelSuppressor
	status      *StatusUpdater
	metrics     *metrics.Metrics
	logger      *slog.Logger
	opts        slack.PostOptions
	suppressTTL time.Duration
}

type DriverConfig struct {
	// Backend is the active backend name, recorded with statuses and logs.
	Backend     string
	PostOptions slack.PostOptions
	SuppressTTL time.Duration
}

func NewDriver(
	cfg DriverConfig,
	builder *payload.Builder,
	dispatcher Deliverer,
	cache ChannelSuppressor,
	status *StatusUpdater,
	m *metrics.Metrics,
	logr *slog.Logger,
) *Driver {
	if logr == nil {
		logr = logger.Nop()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Driver{
		backend:     cfg.Backend,
		builder:     builder,
		dispatcher:  dispatcher,
		cache:       cache,
		status:      status,
		metrics:     m,
		logger:      logr,
		opts:        cfg.PostOptions,
		suppressTTL: cfg.SuppressTTL,
	}
}

// Write delivers one flushed batch. Transport-level failures propagate so
// the host requeues the batch; terminal delivery failures are logged with
// redacted context, recorded and discarded, because retrying would repeat
// the same unresolvable condition.
func (d *Driver) Write(ctx context.Context, batch *models.Batch) error {
	d.metrics.BatchesConsumed.Inc()

	payloads := d.builder.Build(batch.Events)
	d.metrics.PayloadsBuilt.Add(float64(len(payloads)))
	if len(payloads) == 0 {
		return nil
	}

	d.status.MarkProcessing(ctx, batch.RequestID, d.backend)

	skipped := 0
	for i := range payloads {
		p := &payloads[i]

		if d.skipSuppressed(ctx, p.Channel) {
			skipped++
			continue
		}

		start := time.Now()
		err := d.dispatcher.Deliver(ctx, p, d.opts)
		d.metrics.DeliveryDuration.Observe(time.Since(start).Seconds())

		if err == nil {
			d.metrics.Delivered.Inc()
			continue
		}

		if isRetryable(err) {
			d.logger.Warn("transient delivery failure, batch will be retried",
				slog.String("request_id", batch.RequestID),
				slog.String("channel", p.Channel),
				slog.Any("error", err))
			return fmt.Errorf("deliver to %q: %w", p.Channel, err)
		}

		d.discard(ctx, batch, p.Channel, err)
		return nil
	}

	if skipped == len(payloads) {
		// Nothing was actually posted; the audit row must say so.
		d.status.MarkSuppressed(ctx, batch.RequestID, d.backend)
		return nil
	}
	d.status.MarkDelivered(ctx, batch.RequestID, d.backend)
	return nil
}

func (d *Driver) skipSuppressed(ctx context.Context, channel string) bool {
	if d.cache == nil || channel == "" {
		return false
	}
	suppressed, err := d.cache.IsChannelSuppressed(ctx, channel)
	if err != nil {
		// Cache trouble must not block delivery.
		d.logger.Warn("channel suppression lookup failed", slog.Any("error", err))
		return false
	}
	if suppressed {
		d.metrics.Suppressed.Inc()
		d.logger.Info("skipping suppressed channel", slog.String("channel", channel))
	}
	return suppressed
}

// discard handles a terminal delivery failure: unresolvable provisioning
// errors additionally suppress the channel so later batches do not hammer it.
// Error strings are token-redacted at construction, so logging them is safe.
func (d *Driver) discard(ctx context.Context, batch *models.Batch, channel string, err error) {
	d.metrics.Failed.Inc()
	d.metrics.Discarded.Inc()

	var notFound *slack.ChannelNotFoundError
	var nameTaken *slack.NameTakenError
	if (errors.As(err, &notFound) || errors.As(err, &nameTaken)) && d.cache != nil && channel != "" {
		if serr := d.cache.SuppressChannel(ctx, channel, d.suppressTTL); serr != nil {
			d.logger.Warn("failed to suppress channel", slog.Any("error", serr))
		}
	}

	d.logger.Error("delivery failed, discarding batch",
		slog.String("request_id", batch.RequestID),
		slog.String("backend", d.backend),
		slog.String("channel", channel),
		slog.Any("error", err))
	d.status.MarkFailed(ctx, batch.RequestID, d.backend, err.Error())
}

// isRetryable classifies transport-level failures (timeouts, connection
// errors, cancelled contexts) as retryable. Backend responses, including
// provisioning errors, are terminal for the batch.
func isRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
