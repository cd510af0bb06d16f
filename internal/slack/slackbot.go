package slack

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/sowawa/fluent-plugin-slack/pkg/logger"
)

// Slackbot posts plain text through the slackbot remote control endpoint.
// The channel travels as a query parameter, so every call must carry one.
// Channel creation is delegated to a web API client built with the same
// proxy settings.
type Slackbot struct {
	base   string
	hc     *http.Client
	logger *slog.Logger
	api    *WebApi
}

func NewSlackbot(slackbotURL string, opts ClientOptions, logr *slog.Logger) (*Slackbot, error) {
	u, err := parseEndpoint(slackbotURL)
	if err != nil {
		return nil, fmt.Errorf("slackbot: %w", err)
	}
	hc, err := newHTTPClient(opts)
	if err != nil {
		return nil, err
	}
	if logr == nil {
		logr = logger.Nop()
	}
	api, err := NewWebApi("", opts, logr)
	if err != nil {
		return nil, err
	}
	return &Slackbot{
		base:   u.String(),
		hc:     hc,
		logger: logr,
		api:    api,
	}, nil
}

func (c *Slackbot) Name() string { return "slackbot" }

func (c *Slackbot) PostMessage(ctx context.Context, p *Payload, _ PostOptions) error {
	if p.Channel == "" {
		return ErrChannelRequired
	}
	text, err := slackbotText(p)
	if err != nil {
		return err
	}

	c.logger.Info("posting message",
		slog.String("backend", c.Name()),
		slog.String("channel", p.Channel))

	sep := "&"
	if !strings.Contains(c.base, "?") {
		sep = "?"
	}
	endpoint := c.base + sep + "channel=" + url.QueryEscape(p.Channel)
	status, raw, err := post(ctx, c.hc, endpoint, "text/plain; charset=utf-8", strings.NewReader(Sanitize(text)))
	if err != nil {
		return fmt.Errorf("slackbot post: %w", err)
	}
	return classifyTextResponse(status, raw, p)
}

func (c *Slackbot) ChannelsCreate(ctx context.Context, name, token string) error {
	return c.api.ChannelsCreate(ctx, name, token)
}

// slackbotText derives the plain-text body: the top-level text, then the
// first attachment's text, then the value of its first field.
func slackbotText(p *Payload) (string, error) {
	if p.Text != "" {
		return p.Text, nil
	}
	if len(p.Attachments) > 0 {
		att := p.Attachments[0]
		if att.Text != "" {
			return att.Text, nil
		}
		if len(att.Fields) > 0 {
			return att.Fields[0].Value, nil
		}
	}
	return "", fmt.Errorf("slack: payload has no text to post via slackbot")
}
