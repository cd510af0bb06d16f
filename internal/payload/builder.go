// Package payload implements the aggregation engine: it folds a flushed
// batch of records into one wire payload per resolved channel, under one of
// three rendering modes.
package payload

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/sowawa/fluent-plugin-slack/internal/models"
	"github.com/sowawa/fluent-plugin-slack/internal/slack"
	"github.com/sowawa/fluent-plugin-slack/pkg/logger"
)

// Mode selects how buffered records are rendered. It is fixed at
// configuration time: a title template selects Titled, a color selects
// Color, otherwise Plain.
type Mode int

const (
	ModePlain Mode = iota
	ModeColor
	ModeTitled
)

// DeriveMode picks the rendering mode from the optional config fields.
func DeriveMode(title, color string) Mode {
	switch {
	case title != "":
		return ModeTitled
	case color != "":
		return ModeColor
	default:
		return ModePlain
	}
}

// Config is the static rendering configuration. Templates are sprintf-style
// formats applied over the listed record keys in order.
type Config struct {
	Mode Mode

	Channel     string
	ChannelKeys []string
	Title       string
	TitleKeys   []string
	Message     string
	MessageKeys []string

	Color           string
	Username        string
	AsUser          *bool
	IconEmoji       string
	IconURL         string
	Mrkdwn          bool
	LinkNames       bool
	Parse           string
	Token           string
	VerboseFallback bool
}

// Builder is a pure function of the batch and its static configuration; it
// performs no network I/O. A missing record key is rendered as an empty
// string and logged, never dropped.
type Builder struct {
	cfg    Config
	logger *slog.Logger
}

func NewBuilder(cfg Config, logr *slog.Logger) *Builder {
	if cfg.Message == "" {
		cfg.Message = "%s"
	}
	if len(cfg.MessageKeys) == 0 {
		cfg.MessageKeys = []string{"message"}
	}
	if logr == nil {
		logr = logger.Nop()
	}
	return &Builder{cfg: cfg, logger: logr}
}

// Build renders one payload per distinct resolved channel, in first-seen
// order. An empty batch yields no payloads.
func (b *Builder) Build(events []models.Event) []slack.Payload {
	if b.cfg.Mode == ModeTitled {
		return b.buildTitled(events)
	}
	return b.buildLines(events)
}

// titledGroup accumulates one field per tag for a single channel, keeping
// tag insertion order in an explicit key list.
type titledGroup struct {
	tags   []string
	fields map[string]*fieldAccumulator
}

// fieldAccumulator holds a first-seen-wins title and the growing value text.
type fieldAccumulator struct {
	title string
	value strings.Builder
}

func (b *Builder) buildTitled(events []models.Event) []slack.Payload {
	var channels []string
	byChannel := make(map[string]*titledGroup)

	for _, ev := range events {
		ch := b.channel(ev.Record)
		g, ok := byChannel[ch]
		if !ok {
			g = &titledGroup{fields: make(map[string]*fieldAccumulator)}
			byChannel[ch] = g
			channels = append(channels, ch)
		}
		fa, ok := g.fields[ev.Tag]
		if !ok {
			// The title comes from the first record seen for this tag;
			// later records only append to the value.
			fa = &fieldAccumulator{title: b.title(ev.Record)}
			g.fields[ev.Tag] = fa
			g.tags = append(g.tags, ev.Tag)
		}
		fa.value.WriteString(b.message(ev.Record))
		fa.value.WriteString("\n")
	}

	payloads := make([]slack.Payload, 0, len(channels))
	for _, ch := range channels {
		g := byChannel[ch]
		fields := make([]slack.Field, 0, len(g.tags))
		fallbackParts := make([]string, 0, len(g.tags))
		for _, tag := range g.tags {
			fa := g.fields[tag]
			fields = append(fields, slack.Field{Title: fa.title, Value: fa.value.String()})
			if b.cfg.VerboseFallback {
				fallbackParts = append(fallbackParts, fa.title+" "+fa.value.String())
			} else {
				fallbackParts = append(fallbackParts, fa.title)
			}
		}
		att := b.commonAttachment()
		att.Fallback = strings.Join(fallbackParts, " ")
		att.Fields = fields

		p := b.commonPayload(ch)
		p.Attachments = []slack.Attachment{att}
		payloads = append(payloads, p)
	}
	return payloads
}

func (b *Builder) buildLines(events []models.Event) []slack.Payload {
	var channels []string
	texts := make(map[string]*strings.Builder)

	for _, ev := range events {
		ch := b.channel(ev.Record)
		sb, ok := texts[ch]
		if !ok {
			sb = &strings.Builder{}
			texts[ch] = sb
			channels = append(channels, ch)
		}
		sb.WriteString(b.message(ev.Record))
		sb.WriteString("\n")
	}

	payloads := make([]slack.Payload, 0, len(channels))
	for _, ch := range channels {
		text := texts[ch].String()
		p := b.commonPayload(ch)
		if b.cfg.Mode == ModeColor {
			att := b.commonAttachment()
			att.Fallback = text
			att.Text = text
			p.Attachments = []slack.Attachment{att}
		} else {
			p.Text = text
		}
		payloads = append(payloads, p)
	}
	return payloads
}

func (b *Builder) commonPayload(channel string) slack.Payload {
	return slack.Payload{
		Channel:   channel,
		Username:  b.cfg.Username,
		AsUser:    b.cfg.AsUser,
		IconEmoji: b.cfg.IconEmoji,
		IconURL:   b.cfg.IconURL,
		Mrkdwn:    b.cfg.Mrkdwn,
		LinkNames: b.cfg.LinkNames,
		Parse:     b.cfg.Parse,
		Token:     b.cfg.Token,
	}
}

func (b *Builder) commonAttachment() slack.Attachment {
	att := slack.Attachment{Color: b.cfg.Color}
	if b.cfg.Mrkdwn {
		att.MrkdwnIn = []string{"text", "fields"}
	}
	return att
}

func (b *Builder) message(record map[string]interface{}) string {
	return b.render(b.cfg.Message, b.cfg.MessageKeys, record)
}

func (b *Builder) title(record map[string]interface{}) string {
	if len(b.cfg.TitleKeys) == 0 {
		return b.cfg.Title
	}
	return b.render(b.cfg.Title, b.cfg.TitleKeys, record)
}

func (b *Builder) channel(record map[string]interface{}) string {
	if b.cfg.Channel == "" {
		return ""
	}
	if len(b.cfg.ChannelKeys) == 0 {
		return b.cfg.Channel
	}
	return b.render(b.cfg.Channel, b.cfg.ChannelKeys, record)
}

func (b *Builder) render(format string, keys []string, record map[string]interface{}) string {
	if len(keys) == 0 {
		return format
	}
	args := make([]interface{}, len(keys))
	for i, key := range keys {
		v, ok := record[key]
		if !ok {
			b.logger.Warn("record key not found, substituting empty string",
				slog.String("key", key))
			args[i] = ""
			continue
		}
		args[i] = fmt.Sprint(v)
	}
	return fmt.Sprintf(format, args...)
}
