package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	interviewdesk "github.com/snarg/interview-desk"
	"github.com/snarg/interview-desk/internal/api"
	"github.com/snarg/interview-desk/internal/archive"
	"github.com/snarg/interview-desk/internal/config"
	"github.com/snarg/interview-desk/internal/database"
	"github.com/snarg/interview-desk/internal/events"
	"github.com/snarg/interview-desk/internal/export"
	"github.com/snarg/interview-desk/internal/metrics"
	"github.com/snarg/interview-desk/internal/session"
)

var version = "dev"

func main() {
	startTime := time.Now()

	var overrides config.Overrides
	flag.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file (default .env)")
	flag.StringVar(&overrides.HTTPAddr, "listen", "", "HTTP listen address (overrides HTTP_ADDR)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	flag.StringVar(&overrides.DatabaseURL, "database-url", "", "database URL (overrides DATABASE_URL)")
	flag.StringVar(&overrides.MQTTBrokerURL, "mqtt-url", "", "MQTT broker URL (overrides MQTT_BROKER_URL)")
	flag.StringVar(&overrides.ExportDir, "export-dir", "", "finalized document directory (overrides EXPORT_DIR)")
	flag.StringVar(&overrides.CaptureLang, "lang", "", "speech recognition language (overrides CAPTURE_LANG)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("interview-desk starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	dbLog := log.With().Str("component", "database").Logger()
	store, err := database.Open(ctx, cfg.DatabaseURL, dbLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer store.Close()
	if err := store.HealthCheck(ctx); err != nil {
		log.Fatal().Err(err).Msg("database not usable")
	}

	// Document archive
	archiveLog := log.With().Str("component", "archive").Logger()
	docs, err := archive.New(cfg.S3, cfg.ExportDir, archiveLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize document archive")
	}
	if local, ok := docs.(*archive.LocalStore); ok {
		archiveLog.Info().Str("type", docs.Type()).Str("dir", local.Dir()).Msg("document archive ready")
	} else {
		archiveLog.Info().Str("type", docs.Type()).Msg("document archive ready")
	}

	// MQTT (optional)
	var pub events.Publisher = events.Nop{}
	if cfg.MQTT.Enabled() {
		mqttLog := log.With().Str("component", "events").Logger()
		client, err := events.Connect(events.Options{
			BrokerURL:   cfg.MQTT.BrokerURL,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			Log:         mqttLog,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to mqtt broker")
		}
		pub = client
	}
	defer pub.Close()

	renderer, err := export.NewRenderer(export.Options{
		SiteName:     cfg.SiteName,
		Organization: cfg.Organization,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build document renderer")
	}

	sess := session.New(store, log.With().Str("component", "session").Logger())

	if cfg.MetricsEnabled {
		prometheus.MustRegister(metrics.NewCollector(store, sess))
	}

	webFS, err := fs.Sub(interviewdesk.WebFiles, "web")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load web files")
	}

	// HTTP Server
	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(api.ServerOptions{
		Config:    cfg,
		Store:     store,
		Session:   sess,
		Renderer:  renderer,
		Archive:   docs,
		Events:    pub,
		WebFS:     webFS,
		Version:   version,
		StartTime: startTime,
		Log:       httpLog,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	// An unsaved session is lost on shutdown; say so.
	if id, ok := sess.ActiveID(); ok {
		log.Warn().Int64("interview_id", id).Msg("active session discarded on shutdown")
	}

	log.Info().Msg("interview-desk stopped")
}
