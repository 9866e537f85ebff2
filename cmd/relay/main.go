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
	"time"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/config"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/metrics"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/relay"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/rpc"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/solpay"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func loadEnv(logger *logrus.Logger) {
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "../..")
	envPath := filepath.Join(projectRoot, ".env")

	if err := godotenv.Load(envPath); err != nil {
		logger.Warnf("no .env file found at %s, using system environment variables", envPath)
	}
}

// main runs the Solana relay: it polls the treasury's signatures and writes
// confirmed inbound transfers to the relay cache the API verifies against
func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	logger.SetLevel(logrus.InfoLevel)

	loadEnv(logger)

	cfg := config.Load()
	if err := cfg.ValidateRelay(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	rclient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rclient.Close()
	if err := rclient.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Fatal("failed to connect to Redis")
	}

	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg, "amm_relay")

	poller, err := relay.NewPoller(relay.PollerConfig{
		RPCClient: rpc.NewClient(rpc.ClientConfig{
			BaseURL:      cfg.RPCUrl,
			Timeout:      cfg.HTTPTimeout,
			MaxRetries:   cfg.MaxRetries,
			RetryBackoff: cfg.RetryBackoff,
			Logger:       logger,
		}),
		Treasury:     cfg.SolanaTreasury,
		Addresses:    cfg.WatchAddresses,
		Cache:        solpay.NewRedisRelayCache(rclient, cfg.RelayTTL),
		Cursor:       relay.NewRedisCursor(rclient),
		PollInterval: cfg.PollInterval,
		FetchDelay:   cfg.FetchDelay,
		Commitment:   cfg.Commitment,
		Logger:       logger,
		Metrics:      m,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create poller")
	}

	var metricsSrv *http.Server
	if cfg.RelayMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.RelayMetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("metrics server failed")
			}
		}()
	}

	go func() {
		<-sigCh
		logger.Info("shutting down relay")
		cancel()
	}()

	logger.WithField("treasury", cfg.SolanaTreasury).Info("relay running")
	if err := poller.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("relay stopped")
	}

	if metricsSrv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
}
