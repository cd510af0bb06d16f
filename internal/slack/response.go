package slack

import (
	"encoding/json"
	"strings"
)

// classifyTextResponse inspects webhook-style responses: a 2xx with a literal
// "ok" body is success, a literal "channel_not_found" marker maps to
// ChannelNotFoundError even on HTTP 200, everything else is a generic
// APIError carrying the token-redacted request parameters.
func classifyTextResponse(status int, body []byte, p *Payload) error {
	text := strings.TrimSpace(string(body))
	if status/100 == 2 && text == "ok" {
		return nil
	}
	cause := &APIError{StatusCode: status, Body: text, Params: p.Redacted()}
	if text == "channel_not_found" {
		return &ChannelNotFoundError{Channel: p.Channel, Cause: cause}
	}
	return cause
}

type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// classifyAPIResponse inspects web-API JSON responses. The error field is
// authoritative regardless of the HTTP status: Slack reports name_taken and
// channel_not_found with a 200. subject is the channel or channel name the
// request was about.
func classifyAPIResponse(status int, body []byte, subject, params string) error {
	cause := &APIError{StatusCode: status, Body: strings.TrimSpace(string(body)), Params: params}
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return cause
	}
	if resp.OK && status/100 == 2 {
		return nil
	}
	switch resp.Error {
	case "channel_not_found":
		return &ChannelNotFoundError{Channel: subject, Cause: cause}
	case "name_taken":
		return &NameTakenError{Name: subject, Cause: cause}
	default:
		return cause
	}
}
