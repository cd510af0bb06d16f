package payload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sowawa/fluent-plugin-slack/internal/models"
)

func events(records ...map[string]interface{}) []models.Event {
	evs := make([]models.Event, 0, len(records))
	for _, r := range records {
		tag := "test"
		if t, ok := r["tag"].(string); ok {
			tag = t
		}
		evs = append(evs, models.Event{Tag: tag, Time: 1388613600, Record: r})
	}
	return evs
}

func TestBuild_PlainMode(t *testing.T) {
	b := NewBuilder(Config{Channel: "#channel"}, nil)

	payloads := b.Build(events(
		map[string]interface{}{"message": "sowawa1"},
		map[string]interface{}{"message": "sowawa2"},
	))

	require.Len(t, payloads, 1)
	assert.Equal(t, "#channel", payloads[0].Channel)
	assert.Equal(t, "sowawa1\nsowawa2\n", payloads[0].Text)
	assert.Empty(t, payloads[0].Attachments)
}

func TestBuild_EmptyBatch(t *testing.T) {
	b := NewBuilder(Config{Channel: "#channel"}, nil)
	assert.Empty(t, b.Build(nil))
}

func TestBuild_ColorMode(t *testing.T) {
	b := NewBuilder(Config{
		Mode:    ModeColor,
		Channel: "#channel",
		Color:   "good",
		Mrkdwn:  true,
	}, nil)

	payloads := b.Build(events(
		map[string]interface{}{"message": "sowawa1"},
		map[string]interface{}{"message": "sowawa2"},
	))

	require.Len(t, payloads, 1)
	require.Len(t, payloads[0].Attachments, 1)
	att := payloads[0].Attachments[0]
	assert.Equal(t, "good", att.Color)
	assert.Equal(t, "sowawa1\nsowawa2\n", att.Text)
	assert.Equal(t, "sowawa1\nsowawa2\n", att.Fallback)
	assert.Equal(t, []string{"text", "fields"}, att.MrkdwnIn)
	assert.Empty(t, payloads[0].Text)
}

func TestBuild_TitledModeTitleFromTag(t *testing.T) {
	b := NewBuilder(Config{
		Mode:      ModeTitled,
		Channel:   "#channel",
		Title:     "%s",
		TitleKeys: []string{"tag"},
	}, nil)

	payloads := b.Build(events(
		map[string]interface{}{"tag": "test", "message": "sowawa1"},
		map[string]interface{}{"tag": "test", "message": "sowawa2"},
	))

	require.Len(t, payloads, 1)
	require.Len(t, payloads[0].Attachments, 1)
	att := payloads[0].Attachments[0]
	assert.Equal(t, "test", att.Fallback)
	require.Len(t, att.Fields, 1)
	assert.Equal(t, "test", att.Fields[0].Title)
	assert.Equal(t, "sowawa1\nsowawa2\n", att.Fields[0].Value)
}

func TestBuild_TitledModeTwoTagsOneChannel(t *testing.T) {
	b := NewBuilder(Config{
		Mode:      ModeTitled,
		Channel:   "#channel",
		Title:     "%s",
		TitleKeys: []string{"tag"},
	}, nil)

	payloads := b.Build(events(
		map[string]interface{}{"tag": "app.error", "message": "boom"},
		map[string]interface{}{"tag": "app.warn", "message": "careful"},
		map[string]interface{}{"tag": "app.error", "message": "boom again"},
	))

	require.Len(t, payloads, 1)
	att := payloads[0].Attachments[0]
	require.Len(t, att.Fields, 2)
	// Fields keep first-seen tag order; each value accumulates in arrival
	// order; titles come from the first record of each tag.
	assert.Equal(t, "app.error", att.Fields[0].Title)
	assert.Equal(t, "boom\nboom again\n", att.Fields[0].Value)
	assert.Equal(t, "app.warn", att.Fields[1].Title)
	assert.Equal(t, "careful\n", att.Fields[1].Value)
	assert.Equal(t, "app.error app.warn", att.Fallback)
}

func TestBuild_TitledModeFirstSeenTitleWins(t *testing.T) {
	b := NewBuilder(Config{
		Mode:      ModeTitled,
		Channel:   "#channel",
		Title:     "%s",
		TitleKeys: []string{"subject"},
	}, nil)

	payloads := b.Build(events(
		map[string]interface{}{"tag": "test", "subject": "first", "message": "one"},
		map[string]interface{}{"tag": "test", "subject": "second", "message": "two"},
	))

	require.Len(t, payloads, 1)
	att := payloads[0].Attachments[0]
	require.Len(t, att.Fields, 1)
	assert.Equal(t, "first", att.Fields[0].Title)
	assert.Equal(t, "one\ntwo\n", att.Fields[0].Value)
}

func TestBuild_VerboseFallback(t *testing.T) {
	b := NewBuilder(Config{
		Mode:            ModeTitled,
		Channel:         "#channel",
		Title:           "mytitle",
		VerboseFallback: true,
	}, nil)

	payloads := b.Build(events(
		map[string]interface{}{"message": "sowawa1"},
		map[string]interface{}{"message": "sowawa2"},
	))

	require.Len(t, payloads, 1)
	assert.Equal(t, "mytitle sowawa1\nsowawa2\n", payloads[0].Attachments[0].Fallback)
}

func TestBuild_ChannelKeysSplitPayloads(t *testing.T) {
	b := NewBuilder(Config{
		Channel:     "#%s",
		ChannelKeys: []string{"channel"},
	}, nil)

	payloads := b.Build(events(
		map[string]interface{}{"message": "sowawa1", "channel": "channel1"},
		map[string]interface{}{"message": "sowawa2", "channel": "channel2"},
	))

	require.Len(t, payloads, 2)
	assert.Equal(t, "#channel1", payloads[0].Channel)
	assert.Equal(t, "sowawa1\n", payloads[0].Text)
	assert.Equal(t, "#channel2", payloads[1].Channel)
	assert.Equal(t, "sowawa2\n", payloads[1].Text)
}

func TestBuild_PayloadCountMatchesDistinctChannels(t *testing.T) {
	b := NewBuilder(Config{
		Channel:     "#%s",
		ChannelKeys: []string{"channel"},
	}, nil)

	payloads := b.Build(events(
		map[string]interface{}{"message": "a", "channel": "one"},
		map[string]interface{}{"message": "b", "channel": "two"},
		map[string]interface{}{"message": "c", "channel": "one"},
		map[string]interface{}{"message": "d", "channel": "two"},
	))

	require.Len(t, payloads, 2)
	assert.Equal(t, "a\nc\n", payloads[0].Text)
	assert.Equal(t, "b\nd\n", payloads[1].Text)
}

func TestBuild_MessageKeysTemplate(t *testing.T) {
	b := NewBuilder(Config{
		Channel:     "#channel",
		Message:     "[%s] %s",
		MessageKeys: []string{"tag", "message"},
	}, nil)

	payloads := b.Build(events(
		map[string]interface{}{"tag": "test", "message": "sowawa1"},
	))

	require.Len(t, payloads, 1)
	assert.Equal(t, "[test] sowawa1\n", payloads[0].Text)
}

func TestBuild_MissingKeySubstitutesEmptyString(t *testing.T) {
	b := NewBuilder(Config{
		Channel:     "#channel",
		Message:     "%s %s",
		MessageKeys: []string{"message", "absent"},
	}, nil)

	payloads := b.Build(events(
		map[string]interface{}{"message": "sowawa1"},
	))

	// The record is kept, not dropped.
	require.Len(t, payloads, 1)
	assert.Equal(t, "sowawa1 \n", payloads[0].Text)
}

func TestBuild_CommonFieldsMergedOnce(t *testing.T) {
	asUser := false
	b := NewBuilder(Config{
		Channel:   "#channel",
		Username:  "fluentd",
		AsUser:    &asUser,
		IconEmoji: ":question:",
		Mrkdwn:    true,
		LinkNames: true,
		Parse:     "full",
		Token:     "XX-XX-XX",
	}, nil)

	payloads := b.Build(events(map[string]interface{}{"message": "hi"}))

	require.Len(t, payloads, 1)
	p := payloads[0]
	assert.Equal(t, "fluentd", p.Username)
	require.NotNil(t, p.AsUser)
	assert.False(t, *p.AsUser)
	assert.Equal(t, ":question:", p.IconEmoji)
	assert.True(t, p.Mrkdwn)
	assert.True(t, p.LinkNames)
	assert.Equal(t, "full", p.Parse)
	assert.Equal(t, "XX-XX-XX", p.Token)
}

func TestDeriveMode(t *testing.T) {
	assert.Equal(t, ModeTitled, DeriveMode("title", "good"))
	assert.Equal(t, ModeColor, DeriveMode("", "good"))
	assert.Equal(t, ModePlain, DeriveMode("", ""))
}
