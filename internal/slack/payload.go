package slack

import "encoding/json"

// Payload is one wire-ready message for a single channel. It is built once
// per channel at flush time and consumed exactly once by the dispatcher.
type Payload struct {
	Channel     string       `json:"channel,omitempty"`
	Username    string       `json:"username,omitempty"`
	AsUser      *bool        `json:"as_user,omitempty"`
	IconEmoji   string       `json:"icon_emoji,omitempty"`
	IconURL     string       `json:"icon_url,omitempty"`
	Mrkdwn      bool         `json:"mrkdwn,omitempty"`
	LinkNames   bool         `json:"link_names,omitempty"`
	Parse       string       `json:"parse,omitempty"`
	Text        string       `json:"text,omitempty"`
	Token       string       `json:"token,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment is the structured sub-section of a message: a color bar plus
// either block text or title/value fields.
type Attachment struct {
	Color    string   `json:"color,omitempty"`
	Fallback string   `json:"fallback"`
	Text     string   `json:"text,omitempty"`
	Fields   []Field  `json:"fields,omitempty"`
	MrkdwnIn []string `json:"mrkdwn_in,omitempty"`
}

type Field struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

// PostOptions carries per-delivery policy flags.
type PostOptions struct {
	// AutoCreateChannel enables the one-shot create-then-retry recovery when
	// the backend reports the channel as missing. Requires a token.
	AutoCreateChannel bool
}

// Redacted renders the payload for logs and error messages with the auth
// token filtered out. Raw tokens must never reach a log line or an error.
func (p Payload) Redacted() string {
	if p.Token != "" {
		p.Token = "[FILTERED]"
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "(unencodable payload)"
	}
	return string(b)
}
