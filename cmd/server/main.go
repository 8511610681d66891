package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/welldanyogia/timecapsule-backend/internal/api"
	"github.com/welldanyogia/timecapsule-backend/internal/config"
	"github.com/welldanyogia/timecapsule-backend/internal/database"
	"github.com/welldanyogia/timecapsule-backend/internal/logger"
	"github.com/welldanyogia/timecapsule-backend/internal/repository"
	"github.com/welldanyogia/timecapsule-backend/internal/services"
	"github.com/welldanyogia/timecapsule-backend/internal/smtp"
	"github.com/welldanyogia/timecapsule-backend/internal/storage"
	"github.com/welldanyogia/timecapsule-backend/internal/websocket"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadWithValidation()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)
	secLogger := logger.NewSecurityLoggerWithHandler(log.Handler())

	log.Info("Starting Time Capsule Backend Server...")
	cfg.LogConfig(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(db); err != nil {
			log.Error("failed to close database", slog.String("error", err.Error()))
		}
	}()
	if err := database.Migrate(db); err != nil {
		return err
	}

	messageRepo := repository.NewMessageRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	activityRepo := repository.NewActivityRepository(db)

	// Optional .eml archive of every sent notification
	var archive storage.Archive
	if cfg.NotificationArchivePath != "" {
		archive, err = storage.NewLocalArchive(cfg.NotificationArchivePath)
		if err != nil {
			return fmt.Errorf("failed to open notification archive: %w", err)
		}
	}

	// Outbound transport, optionally relaying to the in-process capture sink
	senderCfg := &smtp.SenderConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
		StartTLS: cfg.SMTPStartTLS,
		Archive:  archive,
		Logger:   log,
	}
	var captureServer *gosmtp.Server
	if cfg.SMTPCaptureAddr != "" {
		captureServer, err = startCaptureSink(cfg.SMTPCaptureAddr, senderCfg, log)
		if err != nil {
			return err
		}
	}
	sender := smtp.NewSender(senderCfg)

	// Live delivery feed
	hub := websocket.NewHub(log)
	go hub.Run(ctx)

	// Delivery core
	clock := services.SystemClock()
	deliveryService := services.NewDeliveryService(services.DeliveryDeps{
		Store:     messageRepo,
		Accounts:  accountRepo,
		Audit:     activityRepo,
		Transport: sender,
		Renderer:  services.NewNotificationRenderer(cfg.FrontendURL),
		Publisher: hub,
		Clock:     clock,
		Logger:    log,
	}, services.DeliveryConfig{
		DispatchTimeout: cfg.DeliveryDispatchTimeout,
		Workers:         cfg.DeliveryWorkers,
		MaxSendAttempts: cfg.DeliveryMaxSendAttempts,
		RetryBackoff:    cfg.DeliveryRetryBackoff,
		MaxRetryBackoff: cfg.DeliveryMaxRetryBackoff,
	})
	scheduler := services.NewDeliveryScheduler(deliveryService, services.DeliverySchedulerConfig{
		Cadence: cfg.DeliveryCadence,
	}, log)
	scheduler.Start()

	// HTTP API
	e := api.NewRouter(ctx, &api.RouterConfig{
		DB:                db,
		Logger:            log,
		SecurityLogger:    secLogger,
		Hub:               hub,
		Scheduler:         scheduler,
		Clock:             clock,
		APIKey:            cfg.APIKey,
		AllowedOrigins:    cfg.AllowedOrigins,
		Production:        cfg.AppEnv == "production",
		RateLimit:         cfg.RateLimitRequests,
		RateBurst:         cfg.RateLimitBurst,
		MessageDailyLimit: cfg.MessageDailyLimit,
	})

	serverErr := make(chan error, 1)
	go func() {
		addr := ":" + strconv.Itoa(cfg.APIPort)
		log.Info("HTTP server listening", slog.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		log.Info("Shutting down server...", slog.String("signal", sig.String()))
	case err := <-serverErr:
		runErr = fmt.Errorf("http server failed: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shut down HTTP server", slog.String("error", err.Error()))
	}

	// Waits for the in-flight cycle so no committed message is left mid-send
	scheduler.Stop()

	if captureServer != nil {
		if err := captureServer.Close(); err != nil {
			log.Error("failed to close capture sink", slog.String("error", err.Error()))
		}
	}

	cancel()
	log.Info("Server stopped")
	return runErr
}

// startCaptureSink runs the dev SMTP capture server on addr and points the
// sender at it.
func startCaptureSink(addr string, senderCfg *smtp.SenderConfig, log *slog.Logger) (*gosmtp.Server, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_CAPTURE_ADDR %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_CAPTURE_ADDR port %q: %w", portStr, err)
	}
	if host == "" {
		host = "127.0.0.1"
	}

	backend := smtp.NewCaptureBackend(&smtp.CaptureConfig{
		Logger: log,
		OnData: func(msg smtp.CapturedMessage) {
			subject := ""
			if msg.Parsed != nil {
				subject = msg.Parsed.Subject
			}
			log.Info("notification captured",
				slog.Any("recipients", msg.Recipients),
				slog.String("subject", subject))
		},
	})
	server := smtp.NewCaptureServer(backend, &smtp.ServerConfig{Addr: addr, AllowInsecure: true})

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on SMTP_CAPTURE_ADDR: %w", err)
	}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, gosmtp.ErrServerClosed) {
			log.Error("capture sink stopped", slog.String("error", err.Error()))
		}
	}()
	log.Warn("SMTP capture sink enabled - notifications are not relayed", slog.String("addr", addr))

	senderCfg.Host = host
	senderCfg.Port = port
	senderCfg.Username = ""
	senderCfg.Password = ""
	senderCfg.StartTLS = false
	return server, nil
}
