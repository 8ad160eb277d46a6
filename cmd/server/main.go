package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/catherinevee/reghook/internal/alerts"
	"github.com/catherinevee/reghook/internal/api/rest"
	"github.com/catherinevee/reghook/internal/api/stream"
	"github.com/catherinevee/reghook/internal/config"
	"github.com/catherinevee/reghook/internal/logger"
	"github.com/catherinevee/reghook/internal/store/sqlite"
	"github.com/catherinevee/reghook/internal/utils/graceful"
	"github.com/catherinevee/reghook/internal/webhook"
)

func main() {
	var (
		configPath = flag.String("config", "reghook.yaml", "Path to configuration file")
		port       = flag.Int("port", 0, "Override the configured server port")
	)
	flag.Parse()

	manager, err := config.NewManager(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	cfg := manager.Get()
	if *port != 0 {
		cfg.Server.Port = *port
	}

	logger.Initialize(cfg.Logging)
	log := logger.New("server")

	manager.OnChange(func(c *config.Config) {
		logger.SetLevel(c.Logging.Level)
	})

	store, err := sqlite.New(&sqlite.Config{Path: cfg.Database.Path})
	if err != nil {
		log.Fatal("Failed to open webhook store", logger.Error(err))
	}

	dispatcher := webhook.GetDispatcher(store, dispatchOptions(cfg.Dispatch))

	hub := stream.NewHub()
	dispatcher.OnResult(hub.Publish)

	mailer := alerts.NewMailer(alerts.EmailConfig{
		Enabled:  cfg.Alerts.Email.Enabled,
		SMTPHost: cfg.Alerts.Email.SMTPHost,
		SMTPPort: cfg.Alerts.Email.SMTPPort,
		Username: cfg.Alerts.Email.Username,
		Password: cfg.Alerts.Email.Password,
		From:     cfg.Alerts.Email.From,
		To:       cfg.Alerts.Email.To,
	})
	dispatcher.OnAutoDisable(mailer.NotifyAutoDisable)

	srv := rest.NewServer(rest.Config{
		Addr:              cfg.Address(),
		CORSOrigins:       cfg.Server.CORSAllowedOrigins,
		AuthEnabled:       cfg.Auth.Enabled,
		JWTSecret:         cfg.Auth.JWTSecret,
		TokenTTL:          time.Duration(cfg.Auth.TokenTTLMinutes) * time.Minute,
		RateLimitEnabled:  cfg.Server.RateLimit.Enabled,
		RequestsPerSecond: cfg.Server.RateLimit.RequestsPerSecond,
		Burst:             cfg.Server.RateLimit.Burst,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
	}, store, dispatcher, hub)

	shutdown := graceful.NewHandler(time.Duration(cfg.Server.ShutdownTimeoutSeconds) * time.Second)
	shutdown.OnShutdown("store", store.Close)
	shutdown.OnShutdown("config-watcher", func() error {
		manager.Stop()
		return nil
	})
	shutdown.OnShutdown("dispatcher", func() error {
		webhook.ShutdownAll()
		return nil
	})
	shutdown.OnShutdown("http-server", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Error("Admin server failed", logger.Error(err))
			shutdown.Trigger()
		}
	}()

	log.Info("Webhook service started",
		logger.String("address", cfg.Address()),
		logger.String("database", cfg.Database.Path),
		logger.Int("workers", cfg.Dispatch.NumWorkers),
		logger.Int("queue_size", cfg.Dispatch.QueueSize),
		logger.Bool("auth", cfg.Auth.Enabled),
		logger.Bool("email_alerts", mailer.Enabled()))

	shutdown.Wait()
}

func dispatchOptions(dc config.DispatchConfig) webhook.Options {
	opts := webhook.DefaultOptions()
	opts.AllowedSchemes = dc.AllowedSchemes
	opts.QueueSize = dc.QueueSize
	opts.MaxWorkers = dc.NumWorkers
	opts.AutoDisableOnFailure = dc.AutoDisable
	opts.MaxConsecutiveFailures = dc.MaxConsecutiveFailures
	opts.MaxRetryCount = dc.MaxRetryCount
	opts.CacheRefreshInterval = time.Duration(dc.CacheRefreshSeconds) * time.Second
	opts.RequestTimeout = time.Duration(dc.RequestTimeoutSeconds) * time.Second
	opts.MaxPayloadSize = dc.MaxPayloadBytes
	return opts
}
