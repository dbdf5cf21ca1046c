package server

import (
	"fmt"
	"net/http"
	"time"

	"rapidphoto/internal/broker"
	"rapidphoto/internal/config"
	"rapidphoto/internal/controller"
	"rapidphoto/internal/database"
	"rapidphoto/internal/eventlog"
	"rapidphoto/internal/rabbitmq"
	"rapidphoto/internal/reconciler"
)

type Server struct {
	uc     controller.UploadController
	tc     controller.TokenController
	broker *broker.Broker
	events eventlog.EventLog
	rec    *reconciler.Reconciler
	db     database.Database
	rabbit rabbitmq.Client
	config config.Config
}

func New(
	config config.Config,
	db database.Database,
	uc controller.UploadController,
	tc controller.TokenController,
	b *broker.Broker,
	events eventlog.EventLog,
	rec *reconciler.Reconciler,
	rabbit rabbitmq.Client,
) *http.Server {
	server := Server{
		uc:     uc,
		tc:     tc,
		broker: b,
		events: events,
		rec:    rec,
		db:     db,
		rabbit: rabbit,
		config: config,
	}

	return &http.Server{
		Addr:        fmt.Sprintf(":%v", config.Port),
		Handler:     server.RegisterRoutes(),
		IdleTimeout: time.Minute,
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: SSE streams stay open for as long as the
		// subscriber's idle budget allows
	}
}
