package slack

import (
	"strings"
	"unicode/utf8"
)

const invalidRune = "?"

// Sanitize replaces invalid UTF-8 sequences with a placeholder so that
// serialization cannot fail on malformed record bytes. Valid input is
// returned unchanged, which also makes the function idempotent.
func Sanitize(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, invalidRune)
}

// Sanitized returns a deep copy of the payload with every string field
// repaired. The receiver is left untouched so a caller can still retry with
// the original values.
func (p Payload) Sanitized() Payload {
	p.Channel = Sanitize(p.Channel)
	p.Username = Sanitize(p.Username)
	p.IconEmoji = Sanitize(p.IconEmoji)
	p.IconURL = Sanitize(p.IconURL)
	p.Parse = Sanitize(p.Parse)
	p.Text = Sanitize(p.Text)
	p.Token = Sanitize(p.Token)

	if len(p.Attachments) == 0 {
		return p
	}
	attachments := make([]Attachment, len(p.Attachments))
	for i, att := range p.Attachments {
		att.Color = Sanitize(att.Color)
		att.Fallback = Sanitize(att.Fallback)
		att.Text = Sanitize(att.Text)
		if len(att.Fields) > 0 {
			fields := make([]Field, len(att.Fields))
			for j, f := range att.Fields {
				fields[j] = Field{Title: Sanitize(f.Title), Value: Sanitize(f.Value)}
			}
			att.Fields = fields
		}
		attachments[i] = att
	}
	p.Attachments = attachments
	return p
}
