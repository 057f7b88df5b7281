package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"gate-monitor/internal/config"
	"gate-monitor/internal/db"
	"gate-monitor/internal/gateway"
	apihttp "gate-monitor/internal/http"
	"gate-monitor/internal/mqtt"
	"gate-monitor/internal/repository"
	"gate-monitor/internal/service"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := newLogger(cfg.Log)
	log.Info().Str("config", *configPath).Msg("starting gate-monitor")

	gdb, err := db.Open(cfg.Storage.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open session store")
	}

	gw := gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.Timeout, log)
	sessions := repository.NewSessionRepository(gdb)

	var notifier service.Notifier
	if cfg.MQTT.Enabled {
		pub := mqtt.NewPublisher(cfg.MQTT, log)
		if err := pub.Connect(); err != nil {
			log.Warn().Err(err).Msg("MQTT unavailable, detection notices disabled")
		} else {
			notifier = pub
			defer pub.Disconnect()
		}
	}

	scheduler := service.NewScheduler()
	events := service.NewEventLog(scheduler)
	registry := service.NewSessionRegistry()
	supervisor := service.NewStreamSupervisor(
		gw, registry, events, scheduler,
		cfg.Monitor.ConnectStagger, cfg.Monitor.InfoPollInterval, log,
	)
	workflow := service.NewDetectionWorkflow(gw, sessions, events, notifier, log)
	controller := service.NewGateController(
		gw, registry, supervisor, workflow, events, cfg.Monitor.GridSize, log,
	)
	defer controller.Close()

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := controller.Start(startCtx, cfg.Monitor.DefaultGate); err != nil {
		log.Error().Err(err).Str("gate", cfg.Monitor.DefaultGate).Msg("initial gate selection failed")
	}
	cancel()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.CORSOrigins,
		AllowMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	apihttp.NewHandler(controller, log).Register(router)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out = os.Stdout
	logger := zerolog.New(out)
	if cfg.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Logger()
}
