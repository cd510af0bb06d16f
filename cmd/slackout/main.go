package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/streadway/amqp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/sowawa/fluent-plugin-slack/internal/config"
	"github.com/sowawa/fluent-plugin-slack/internal/consumer"
	"github.com/sowawa/fluent-plugin-slack/internal/output"
	"github.com/sowawa/fluent-plugin-slack/internal/payload"
	"github.com/sowawa/fluent-plugin-slack/internal/repository"
	"github.com/sowawa/fluent-plugin-slack/internal/routes"
	"github.com/sowawa/fluent-plugin-slack/internal/slack"
	"github.com/sowawa/fluent-plugin-slack/pkg/logger"
	"github.com/sowawa/fluent-plugin-slack/pkg/metrics"
	"github.com/sowawa/fluent-plugin-slack/pkg/retry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logr := logger.New(cfg.LogLevel)
	logr.Info("starting slack output", slog.String("app", cfg.AppName))

	client, err := buildClient(cfg, logr)
	if err != nil {
		logr.Error("failed to build slack client", slog.Any("error", err))
		os.Exit(1)
	}

	m := metrics.New()
	dispatcher := slack.NewDispatcher(client, logr, m)
	builder := payload.NewBuilder(builderConfig(cfg), logr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var status *output.StatusUpdater
	if cfg.DatabaseURL != "" {
		db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
		if err != nil {
			logr.Error("failed to connect database", slog.Any("error", err))
			os.Exit(1)
		}
		status = output.NewStatusUpdater(repository.NewStatusStore(db, cfg.StatusTable), logr)
	}

	var cache *repository.ChannelCache
	if cfg.RedisURL != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
		cache = repository.NewChannelCache(rdb, cfg.SuppressTTL)
		defer cache.Close()
	}

	driver := output.NewDriver(
		output.DriverConfig{
			Backend:     client.Name(),
			PostOptions: slack.PostOptions{AutoCreateChannel: cfg.AutoChannelsCreate},
			SuppressTTL: cfg.SuppressTTL,
		},
		builder,
		dispatcher,
		suppressorOrNil(cache),
		status,
		m,
		logr,
	)

	var conn *amqp.Connection
	if err := retry.DefaultPolicy().Connect(ctx, logr, "rabbitmq", func() error {
		var derr error
		conn, derr = amqp.Dial(cfg.RabbitURL)
		return derr
	}); err != nil {
		logr.Error("failed to connect rabbitmq", slog.Any("error", err))
		os.Exit(1)
	}
	defer conn.Close()

	queue := consumer.NewFlushQueue(
		conn,
		cfg.FlushQueue,
		cfg.DeadLetterQueue,
		cfg.PrefetchCount,
		cfg.WorkerCount,
		logr,
	)
	flushConsumer := consumer.NewFlushConsumer(queue, driver, logr, cfg.MaxDeliveries)

	started := time.Now()
	httpSrv := startHTTPServer(cfg.HTTPPort, m, logr, started)

	if err := flushConsumer.Start(ctx); err != nil {
		logr.Error("flush consumer exited", slog.Any("error", err))
	}

	shutdownHTTP(httpSrv, logr)
	logr.Info("slack output stopped")
}

// buildClient selects the backend from whichever selector survived
// validation; exactly one is set.
func buildClient(cfg *config.Config, logr *slog.Logger) (slack.Client, error) {
	opts := slack.ClientOptions{
		ProxyURL: cfg.HTTPSProxy,
		Timeout:  cfg.RequestTimeout,
	}
	switch {
	case cfg.WebhookURL != "":
		return slack.NewIncomingWebhook(cfg.WebhookURL, opts, logr)
	case cfg.SlackbotURL != "":
		return slack.NewSlackbot(cfg.SlackbotURL, opts, logr)
	case cfg.Token != "":
		return slack.NewWebApi(cfg.APIURL, opts, logr)
	default:
		return nil, fmt.Errorf("no backend selector configured")
	}
}

func builderConfig(cfg *config.Config) payload.Config {
	return payload.Config{
		Mode:            payload.DeriveMode(cfg.Title, cfg.Color),
		Channel:         cfg.Channel,
		ChannelKeys:     cfg.ChannelKeys,
		Title:           cfg.Title,
		TitleKeys:       cfg.TitleKeys,
		Message:         cfg.Message,
		MessageKeys:     cfg.MessageKeys,
		Color:           cfg.Color,
		Username:        cfg.Username,
		AsUser:          cfg.AsUser,
		IconEmoji:       cfg.IconEmoji,
		IconURL:         cfg.IconURL,
		Mrkdwn:          cfg.Mrkdwn,
		LinkNames:       cfg.LinkNames,
		Parse:           cfg.Parse,
		Token:           cfg.Token,
		VerboseFallback: cfg.VerboseFallback,
	}
}

// suppressorOrNil avoids handing the driver a non-nil interface wrapping a
// nil *ChannelCache.
func suppressorOrNil(cache *repository.ChannelCache) output.ChannelSuppressor {
	if cache == nil {
		return nil
	}
	return cache
}

func startHTTPServer(port string, m *metrics.Metrics, logr *slog.Logger, started time.Time) *http.Server {
	if port == "" {
		port = "8083"
	}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: routes.NewRouter(m, started),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Error("http server error", slog.Any("error", err))
		}
	}()
	return srv
}

func shutdownHTTP(srv *http.Server, logr *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Error("failed to shutdown http server", slog.Any("error", err))
	}
}
