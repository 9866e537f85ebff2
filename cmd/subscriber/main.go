package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/config"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/events"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/models"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// main is an example consumer of settlement events. With no arguments it
// follows every event; arguments are pool symbols to follow instead.
func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	_, filename, _, _ := runtime.Caller(0)
	_ = godotenv.Load(filepath.Join(filepath.Dir(filename), "../..", ".env"))
	cfg := config.Load()

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
	sub := events.NewRedisPublisher(rclient, logger)

	show := func(ev *models.SettlementEvent) {
		logger.WithFields(logrus.Fields{
			"request_id": ev.RequestID,
			"kind":       ev.Kind,
			"user":       ev.UserID,
			"status":     ev.Status,
			"pools":      strings.Join(ev.Pools, ","),
			"claims":     ev.ClaimIDs,
		}).Info("settlement event")
	}

	pools := os.Args[1:]
	if len(pools) == 0 {
		go func() {
			if err := sub.Subscribe(ctx, events.ChannelAll, show); err != nil && ctx.Err() == nil {
				logger.WithError(err).Error("subscription ended")
			}
		}()
	}
	for _, p := range pools {
		pattern := events.PoolChannel(p)
		go func() {
			if err := sub.PSubscribe(ctx, pattern, show); err != nil && ctx.Err() == nil {
				logger.WithError(err).WithField("pattern", pattern).Error("subscription ended")
			}
		}()
	}

	logger.Info("subscriber running, press Ctrl+C to stop")
	<-sigCh
	logger.Info("shutting down subscriber")
}
