package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/app"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/config"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/server"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// env bootstrap function
func loadEnv(logger *logrus.Logger) {
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "../..")
	envPath := filepath.Join(projectRoot, ".env")

	if err := godotenv.Load(envPath); err != nil {
		logger.Warnf("no .env file found at %s, using system environment variables", envPath)
	} else {
		logger.Infof("loaded .env from %s", envPath)
	}
}

// main is the entry point for the settlement API
// It initializes all dependencies and starts the HTTP server with graceful shutdown
func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	logger.SetLevel(logrus.InfoLevel)

	// load .env BEFORE anything reads os.Getenv
	loadEnv(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	svc, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize service")
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.WithError(err).Error("failed to close service")
		}
	}()
	svc.RunBackground(ctx)

	h := &server.Handlers{
		Engine:   svc.Engine,
		Switches: svc.Switches,
		Timeout:  cfg.ConfirmTimeout + cfg.LedgerTimeout,
		DevMode:  cfg.DevMode,
		Logger:   logger,
	}
	srv, err := server.NewServer(server.ServerDeps{
		Handlers: h,
		Config: server.ServerConfig{
			Addr:         cfg.HTTPAddr,
			DevMode:      cfg.DevMode,
			APIKeys:      cfg.APIKeys,
			AdminCallers: cfg.AdminCallers,
			RateLimit:    cfg.RateLimit,
			RateBurst:    cfg.RateBurst,
		},
		Gatherer: svc.Gatherer,
		Logger:   logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create http server")
	}

	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
		_ = srv.Shutdown(context.Background())
	}()

	logger.WithField("addr", cfg.HTTPAddr).Info("settlement api starting")
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Fatal("api server failed")
	}

	if err := srv.WaitClosed(context.Background()); err != nil {
		logger.WithError(err).Warn("shutdown did not complete")
	}
}
