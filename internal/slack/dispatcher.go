package slack

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sowawa/fluent-plugin-slack/pkg/logger"
	"github.com/sowawa/fluent-plugin-slack/pkg/metrics"
)

// Dispatcher wraps a backend with the bounded auto-create recovery policy:
// post, and when the channel is missing, create it once and post exactly
// once more. Terminal after at most one extra attempt, so a failing
// channels.create (e.g. name collision) can never loop.
type Dispatcher struct {
	client  Client
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewDispatcher(client Client, logr *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if logr == nil {
		logr = logger.Nop()
	}
	return &Dispatcher{
		client:  client,
		logger:  logr,
		metrics: m,
	}
}

// Deliver posts the payload. The recovery path runs only when the backend
// reported channel_not_found, auto-create is enabled and the payload carries
// a token; it performs one creation call and one final post no matter how
// either of them ends, and the final post's outcome is returned as-is.
func (d *Dispatcher) Deliver(ctx context.Context, p *Payload, opts PostOptions) error {
	err := d.client.PostMessage(ctx, p, opts)

	var notFound *ChannelNotFoundError
	if !errors.As(err, &notFound) || !opts.AutoCreateChannel || p.Token == "" {
		return err
	}

	if cerr := d.client.ChannelsCreate(ctx, notFound.Channel, p.Token); cerr != nil {
		d.logger.Warn("channel creation failed",
			slog.String("channel", notFound.Channel),
			slog.Any("error", cerr))
	} else {
		d.logger.Info("channel created", slog.String("channel", notFound.Channel))
		if d.metrics != nil {
			d.metrics.ChannelsCreated.Inc()
		}
	}

	return d.client.PostMessage(ctx, p, opts)
}
