package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sowawa/fluent-plugin-slack/pkg/logger"
)

// IncomingWebhook posts JSON payloads to a fixed webhook URL. The webhook is
// bound to one channel at registration time, so this backend cannot create
// channels.
type IncomingWebhook struct {
	endpoint string
	hc       *http.Client
	logger   *slog.Logger
}

func NewIncomingWebhook(webhookURL string, opts ClientOptions, logr *slog.Logger) (*IncomingWebhook, error) {
	u, err := parseEndpoint(webhookURL)
	if err != nil {
		return nil, fmt.Errorf("webhook: %w", err)
	}
	hc, err := newHTTPClient(opts)
	if err != nil {
		return nil, err
	}
	if logr == nil {
		logr = logger.Nop()
	}
	return &IncomingWebhook{
		endpoint: u.String(),
		hc:       hc,
		logger:   logr,
	}, nil
}

func (c *IncomingWebhook) Name() string { return "webhook" }

func (c *IncomingWebhook) PostMessage(ctx context.Context, p *Payload, _ PostOptions) error {
	// Sanitize before encoding so malformed bytes are repaired the same way
	// the other backends repair them.
	escaped := p.Sanitized().escapedForMarkup()
	body, err := json.Marshal(&escaped)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	c.logger.Info("posting message",
		slog.String("backend", c.Name()),
		slog.String("params", escaped.Redacted()))

	status, raw, err := post(ctx, c.hc, c.endpoint, "application/json; charset=utf-8", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	return classifyTextResponse(status, raw, &escaped)
}

func (c *IncomingWebhook) ChannelsCreate(context.Context, string, string) error {
	return ErrChannelCreateNotSupported
}

// escapedForMarkup entity-escapes the message-bearing fields before the
// webhook's own markdown interpretation. Addressing fields (channel,
// username, icons) stay untouched.
func (p Payload) escapedForMarkup() Payload {
	p.Text = escapeMarkup(p.Text)
	if len(p.Attachments) == 0 {
		return p
	}
	attachments := make([]Attachment, len(p.Attachments))
	for i, att := range p.Attachments {
		att.Fallback = escapeMarkup(att.Fallback)
		att.Text = escapeMarkup(att.Text)
		if len(att.Fields) > 0 {
			fields := make([]Field, len(att.Fields))
			for j, f := range att.Fields {
				fields[j] = Field{Title: escapeMarkup(f.Title), Value: escapeMarkup(f.Value)}
			}
			att.Fields = fields
		}
		attachments[i] = att
	}
	p.Attachments = attachments
	return p
}
