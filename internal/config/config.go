package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the slack output service configuration loaded from the
// environment. Backend and rendering options mirror the plugin's historical
// configuration surface; everything is read-only after Load.
type Config struct {
	AppName  string
	LogLevel string
	HTTPPort string

	RabbitURL       string
	FlushQueue      string
	DeadLetterQueue string
	PrefetchCount   int
	WorkerCount     int
	MaxDeliveries   int

	DatabaseURL string
	RedisURL    string
	StatusTable string
	SuppressTTL time.Duration

	// Backend selectors; exactly one must be set.
	WebhookURL  string
	SlackbotURL string
	Token       string

	APIURL         string
	HTTPSProxy     string
	RequestTimeout time.Duration

	Channel     string
	ChannelKeys []string
	Title       string
	TitleKeys   []string
	Message     string
	MessageKeys []string

	Username           string
	IconEmoji          string
	IconURL            string
	Color              string
	Mrkdwn             bool
	LinkNames          bool
	Parse              string
	AsUser             *bool
	VerboseFallback    bool
	AutoChannelsCreate bool
}

// Load loads configuration, normalizes the channel value and validates.
// Validation failures are fatal: the process must not start with a broken
// delivery configuration.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppName:  getEnv("APP_NAME", "slack_output"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		HTTPPort: getEnv("HTTP_PORT", "8083"),

		RabbitURL:       getEnv("RABBITMQ_URL", ""),
		FlushQueue:      getEnv("FLUSH_QUEUE", "flush.slack"),
		DeadLetterQueue: getEnv("FLUSH_DLQ", "flush.slack.failed"),
		PrefetchCount:   getEnvAsInt("FLUSH_PREFETCH", 20),
		WorkerCount:     getEnvAsInt("WORKER_COUNT", 1),
		MaxDeliveries:   getEnvAsInt("MAX_DELIVERIES", 5),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),
		StatusTable: getEnv("STATUS_TABLE", "delivery_statuses"),
		SuppressTTL: getEnvAsDuration("SUPPRESS_TTL", time.Hour),

		WebhookURL:  getEnv("SLACK_WEBHOOK_URL", ""),
		SlackbotURL: getEnv("SLACK_SLACKBOT_URL", ""),
		Token:       getEnv("SLACK_TOKEN", ""),

		APIURL:         getEnv("SLACK_API_URL", ""),
		HTTPSProxy:     getEnv("HTTPS_PROXY", ""),
		RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", 10*time.Second),

		Channel:     getEnv("SLACK_CHANNEL", ""),
		ChannelKeys: getEnvAsKeys("SLACK_CHANNEL_KEYS"),
		Title:       getEnv("SLACK_TITLE", ""),
		TitleKeys:   getEnvAsKeys("SLACK_TITLE_KEYS"),
		Message:     getEnv("SLACK_MESSAGE", "%s"),
		MessageKeys: getEnvAsKeysDefault("SLACK_MESSAGE_KEYS", []string{"message"}),

		Username:           getEnv("SLACK_USERNAME", ""),
		IconEmoji:          getEnv("SLACK_ICON_EMOJI", ""),
		IconURL:            getEnv("SLACK_ICON_URL", ""),
		Color:              getEnv("SLACK_COLOR", ""),
		Mrkdwn:             getEnvAsBool("SLACK_MRKDWN", true),
		LinkNames:          getEnvAsBool("SLACK_LINK_NAMES", true),
		Parse:              getEnv("SLACK_PARSE", ""),
		AsUser:             getEnvAsOptionalBool("SLACK_AS_USER"),
		VerboseFallback:    getEnvAsBool("SLACK_VERBOSE_FALLBACK", false),
		AutoChannelsCreate: getEnvAsBool("SLACK_AUTO_CHANNELS_CREATE", false),
	}

	cfg.Channel = normalizeChannel(cfg.Channel)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// normalizeChannel query-unescapes the configured value (compatibility with
// old percent-encoded configs) and prefixes '#' unless the value already
// addresses a channel or a user.
func normalizeChannel(channel string) string {
	if channel == "" {
		return ""
	}
	if unescaped, err := url.QueryUnescape(channel); err == nil {
		channel = unescaped
	}
	if !strings.HasPrefix(channel, "#") && !strings.HasPrefix(channel, "@") {
		channel = "#" + channel
	}
	return channel
}

func (c *Config) validate() error {
	selectors := 0
	for _, v := range []string{c.WebhookURL, c.SlackbotURL, c.Token} {
		if v != "" {
			selectors++
		}
	}
	if selectors == 0 {
		return errors.New("one of SLACK_WEBHOOK_URL, SLACK_SLACKBOT_URL or SLACK_TOKEN is required")
	}
	if selectors > 1 {
		return errors.New("only one of SLACK_WEBHOOK_URL, SLACK_SLACKBOT_URL and SLACK_TOKEN may be set")
	}

	if c.SlackbotURL != "" && c.Channel == "" {
		return errors.New("SLACK_CHANNEL is required for slackbot remote control")
	}
	if c.Token != "" && c.Channel == "" {
		return errors.New("SLACK_CHANNEL is required for the slack web api")
	}

	if c.IconEmoji != "" && c.IconURL != "" {
		return errors.New("either of SLACK_ICON_EMOJI or SLACK_ICON_URL can be specified, not both")
	}
	if c.AsUser != nil && *c.AsUser && (c.Username != "" || c.IconEmoji != "" || c.IconURL != "") {
		return errors.New("SLACK_USERNAME, SLACK_ICON_EMOJI and SLACK_ICON_URL cannot be specified when SLACK_AS_USER is true")
	}
	if c.AsUser != nil && c.Token == "" {
		log.Printf("SLACK_AS_USER is only available for the web api backend and will be ignored")
	}
	if got, want := countSpecifiers(c.Message), len(c.MessageKeys); got != want {
		return fmt.Errorf("SLACK_MESSAGE has %d string specifiers but SLACK_MESSAGE_KEYS lists %d keys", got, want)
	}
	if c.Title != "" && len(c.TitleKeys) > 0 {
		if got, want := countSpecifiers(c.Title), len(c.TitleKeys); got != want {
			return fmt.Errorf("SLACK_TITLE has %d string specifiers but SLACK_TITLE_KEYS lists %d keys", got, want)
		}
	}
	if c.Channel != "" && len(c.ChannelKeys) > 0 {
		if got, want := countSpecifiers(c.Channel), len(c.ChannelKeys); got != want {
			return fmt.Errorf("SLACK_CHANNEL has %d string specifiers but SLACK_CHANNEL_KEYS lists %d keys", got, want)
		}
	}

	if c.Parse != "" && c.Parse != "none" && c.Parse != "full" {
		return fmt.Errorf("SLACK_PARSE must be either none or full, got %q", c.Parse)
	}

	if c.AutoChannelsCreate && c.Token == "" {
		return errors.New("SLACK_TOKEN is required to use SLACK_AUTO_CHANNELS_CREATE")
	}

	if c.RabbitURL == "" {
		return errors.New("RABBITMQ_URL is required")
	}

	return nil
}

// countSpecifiers counts %s placeholders, ignoring escaped percents.
func countSpecifiers(format string) int {
	return strings.Count(strings.ReplaceAll(format, "%%", ""), "%s")
}

func getEnv(key, def string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	return value
}

func getEnvAsInt(key string, def int) int {
	if value, ok := os.LookupEnv(key); ok {
		i, err := strconv.Atoi(value)
		if err != nil {
			log.Printf("invalid int for %s, using default %d: %v", key, def, err)
			return def
		}
		return i
	}
	return def
}

func getEnvAsBool(key string, def bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(value)
		if err != nil {
			log.Printf("invalid bool for %s, using default %t: %v", key, def, err)
			return def
		}
		return b
	}
	return def
}

// getEnvAsOptionalBool distinguishes unset from false for tri-state options.
func getEnvAsOptionalBool(key string) *bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("invalid bool for %s, ignoring: %v", key, err)
		return nil
	}
	return &b
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(value)
		if err != nil {
			log.Printf("invalid duration for %s, using default %s: %v", key, def, err)
			return def
		}
		return d
	}
	return def
}

func getEnvAsKeys(key string) []string {
	return getEnvAsKeysDefault(key, nil)
}

func getEnvAsKeysDefault(key string, def []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return def
	}
	parts := strings.Split(value, ",")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		keys = append(keys, strings.TrimSpace(p))
	}
	return keys
}
