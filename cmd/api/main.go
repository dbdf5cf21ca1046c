package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"rapidphoto/internal/broker"
	"rapidphoto/internal/config"
	"rapidphoto/internal/controller"
	"rapidphoto/internal/database"
	"rapidphoto/internal/eventlog"
	"rapidphoto/internal/rabbitmq"
	"rapidphoto/internal/reconciler"
	"rapidphoto/internal/server"
	"rapidphoto/internal/storage"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	configPath := "config/dev.config.json"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("Failed to load configuration")
	}

	setupLogger(cfg.Logging)

	db, err := database.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize MongoDB connection")
	}
	log.Info().Msg("MongoDB connection established")

	signer, err := storage.NewSigner(cfg.S3)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize S3 signer")
	}
	if err := signer.TestConnection(); err != nil {
		log.Warn().Err(err).Msg("S3 connection test failed, presigning may not work")
	}

	var events eventlog.EventLog
	if cfg.Redis.Enabled {
		redisLog, err := eventlog.NewRedisEventLog(cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Redis event log")
		}
		events = redisLog
		defer redisLog.Close()
	} else {
		log.Info().Msg("Redis event log disabled, running without event history")
	}

	var rabbit rabbitmq.Client
	var bridge *rabbitmq.EventBridge
	if cfg.RabbitMQ.Enabled {
		rabbit, err = rabbitmq.NewClientFromConfig(cfg.RabbitMQ)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize RabbitMQ connection")
		}
		defer rabbit.Close()

		bridge, err = rabbitmq.NewEventBridge(rabbit, cfg.RabbitMQ.ExchangeName)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize event bridge")
		}
	} else {
		log.Info().Msg("RabbitMQ disabled, running without the event bridge")
	}

	b := broker.New(
		time.Duration(cfg.Upload.SubscriberIdleMinutes)*time.Minute,
		cfg.Upload.SubscriberBuffer,
	)

	uc := controller.NewUploadController(
		db, signer, b, events, bridge, cfg.Upload,
		time.Duration(cfg.S3.RequestTimeoutSeconds)*time.Second,
	)
	tc := controller.NewToken(db)

	rec := reconciler.New(db, uc, cfg.Upload)
	rec.Run(context.Background())
	defer rec.Stop()

	srv := server.New(*cfg, db, uc, tc, b, events, rec, rabbit)

	go func() {
		log.Info().Int("port", cfg.Port).Str("env", cfg.Env).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}
}

func setupLogger(config config.LoggingConfig) {
	// Set global log level
	level, err := zerolog.ParseLevel(config.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Configure logger output
	if config.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
}
