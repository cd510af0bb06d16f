package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sowawa/fluent-plugin-slack/pkg/logger"
)

// WebApi posts through the token-authenticated Slack Web API. Structured
// fields travel as JSON text embedded in a form-encoded body. This is the
// only backend with native channel creation.
type WebApi struct {
	root   *url.URL
	hc     *http.Client
	logger *slog.Logger
}

// NewWebApi builds a web API client. An empty apiRoot selects the public
// slack.com endpoint.
func NewWebApi(apiRoot string, opts ClientOptions, logr *slog.Logger) (*WebApi, error) {
	if apiRoot == "" {
		apiRoot = DefaultAPIRoot
	}
	u, err := parseEndpoint(apiRoot)
	if err != nil {
		return nil, fmt.Errorf("webapi: %w", err)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	hc, err := newHTTPClient(opts)
	if err != nil {
		return nil, err
	}
	if logr == nil {
		logr = logger.Nop()
	}
	return &WebApi{
		root:   u,
		hc:     hc,
		logger: logr,
	}, nil
}

func (c *WebApi) Name() string { return "webapi" }

func (c *WebApi) endpoint(method string) string {
	return c.root.JoinPath(method).String()
}

func (c *WebApi) PostMessage(ctx context.Context, p *Payload, _ PostOptions) error {
	form, err := encodePayloadForm(p)
	if err != nil {
		return err
	}

	c.logger.Info("posting message",
		slog.String("backend", c.Name()),
		slog.String("params", p.Redacted()))

	status, raw, err := post(ctx, c.hc, c.endpoint("chat.postMessage"), "application/x-www-form-urlencoded", strings.NewReader(form))
	if err != nil {
		return fmt.Errorf("chat.postMessage: %w", err)
	}
	return classifyAPIResponse(status, raw, p.Channel, p.Redacted())
}

func (c *WebApi) ChannelsCreate(ctx context.Context, name, token string) error {
	if name == "" {
		return ErrChannelRequired
	}
	form := url.Values{}
	form.Set("name", Sanitize(name))
	form.Set("token", token)
	redacted := fmt.Sprintf("name:%s, token:[FILTERED]", name)

	c.logger.Info("creating channel",
		slog.String("backend", c.Name()),
		slog.String("channel", name))

	status, raw, err := post(ctx, c.hc, c.endpoint("channels.create"), "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("channels.create: %w", err)
	}
	return classifyAPIResponse(status, raw, name, redacted)
}

// encodePayloadForm flattens the payload into form values, embedding the
// attachments as JSON text. String repair happens here so a malformed record
// cannot break the encoding.
func encodePayloadForm(p *Payload) (string, error) {
	v := url.Values{}
	set := func(key, val string) {
		if val != "" {
			v.Set(key, Sanitize(val))
		}
	}
	set("channel", p.Channel)
	set("username", p.Username)
	set("icon_emoji", p.IconEmoji)
	set("icon_url", p.IconURL)
	set("parse", p.Parse)
	set("text", p.Text)
	set("token", p.Token)
	if p.AsUser != nil {
		v.Set("as_user", strconv.FormatBool(*p.AsUser))
	}
	if p.Mrkdwn {
		v.Set("mrkdwn", "true")
	}
	if p.LinkNames {
		v.Set("link_names", "true")
	}
	if len(p.Attachments) > 0 {
		clean := p.Sanitized()
		b, err := json.Marshal(clean.Attachments)
		if err != nil {
			return "", fmt.Errorf("encode attachments: %w", err)
		}
		v.Set("attachments", string(b))
	}
	return v.Encode(), nil
}
