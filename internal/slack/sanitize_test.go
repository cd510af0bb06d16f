package slack

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize_ValidStringUnchanged(t *testing.T) {
	assert.Equal(t, "hello world", Sanitize("hello world"))
	assert.Equal(t, "日本語もそのまま", Sanitize("日本語もそのまま"))
	assert.Equal(t, "", Sanitize(""))
}

func TestSanitize_RepairsInvalidBytes(t *testing.T) {
	broken := "foo\xffbar\xfe"
	clean := Sanitize(broken)
	assert.Equal(t, "foo?bar?", clean)
}

func TestSanitize_Idempotent(t *testing.T) {
	inputs := []string{
		"plain",
		"foo\xffbar",
		"\xc3\x28",
		"already ? repaired",
	}
	for _, in := range inputs {
		once := Sanitize(in)
		assert.Equal(t, once, Sanitize(once))
	}
}

func TestPayloadSanitized_DoesNotMutateOriginal(t *testing.T) {
	original := Payload{
		Text: "bad\xffdata",
		Attachments: []Attachment{{
			Fallback: "fb\xff",
			Fields:   []Field{{Title: "t\xff", Value: "v\xff"}},
		}},
	}

	clean := original.Sanitized()

	assert.Equal(t, "bad?data", clean.Text)
	assert.Equal(t, "fb?", clean.Attachments[0].Fallback)
	assert.Equal(t, "t?", clean.Attachments[0].Fields[0].Title)
	assert.Equal(t, "v?", clean.Attachments[0].Fields[0].Value)

	// The caller may retry with the original values.
	assert.Equal(t, "bad\xffdata", original.Text)
	assert.Equal(t, "fb\xff", original.Attachments[0].Fallback)
	assert.Equal(t, "t\xff", original.Attachments[0].Fields[0].Title)
}
