// Package slack implements the delivery side of the output: three
// wire-compatible backends (incoming webhook, slackbot remote control, web
// API), response classification, token redaction, defensive UTF-8 repair and
// the bounded auto-create dispatcher.
package slack

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultAPIRoot is the public Slack Web API root used when no override
	// is configured.
	DefaultAPIRoot = "https://slack.com/api/"

	userAgent    = "fluent-plugin-slack"
	acceptHeader = "application/json; charset=utf-8"

	defaultTimeout = 10 * time.Second
)

// Client is the capability set shared by all backends. ChannelsCreate is only
// meaningful for the API-capable variants; the webhook backend rejects it
// with ErrChannelCreateNotSupported.
type Client interface {
	Name() string
	PostMessage(ctx context.Context, payload *Payload, opts PostOptions) error
	ChannelsCreate(ctx context.Context, name, token string) error
}

// ClientOptions configures the outbound HTTP path shared by every backend.
type ClientOptions struct {
	// ProxyURL routes all requests through a forward proxy when set.
	ProxyURL string
	Timeout  time.Duration
}

// newHTTPClient builds the transport used by all backends. Certificate
// verification is disabled on purpose: logging pipelines are routinely
// forced through TLS-terminating proxies with self-signed chains, and
// delivery must not depend on the proxy's CA being installed on the host.
func newHTTPClient(opts ClientOptions) (*http.Client, error) {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
	}
	if opts.ProxyURL != "" {
		proxy, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxy)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}, nil
}

// parseEndpoint validates a backend endpoint URL at construction time so a
// bad configuration fails at startup, not at first flush.
func parseEndpoint(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("endpoint url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("endpoint url must use http or https scheme, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("endpoint url must include a host")
	}
	return u, nil
}

// post performs the request and returns the status code and raw body. Any
// error returned here is transport-level and therefore retryable by the host.
func post(ctx context.Context, hc *http.Client, endpoint, contentType string, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("User-Agent", userAgent)

	resp, err := hc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, raw, nil
}

// escapeMarkup entity-escapes the characters Slack's markup layer treats
// specially. Applied to outbound text before the webhook backend serializes
// the payload.
var markupEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escapeMarkup(s string) string {
	return markupEscaper.Replace(s)
}
