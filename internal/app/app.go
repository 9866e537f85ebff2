// Package app assembles the settlement service from configuration. Every
// binary that touches the store builds it through New.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/actor"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/archive"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/claims"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/config"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/engine"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/events"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/ledger"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/lptoken"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/metrics"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/pool"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/registry"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/requests"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/settlement"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/solpay"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/store"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/switches"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/transfers"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/wallet"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type Options struct {
	// Offline skips Redis: no events, no switches, and Solana proofs only
	// resolve against an empty in-memory relay cache
	Offline bool
	// SkipArchiveSink leaves ClickHouse out even when configured
	SkipArchiveSink bool
}

type App struct {
	Config   *config.Config
	KV       *store.BadgerKV
	Registry *registry.Registry
	Requests *requests.Log
	Claims   *claims.Book
	Engine   *engine.Engine
	Archiver *archive.Archiver
	Switches *switches.Store // nil when offline
	Redis    *redis.Client   // nil when offline
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer

	logger  *logrus.Logger
	closers []func() error
}

func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger, opts Options) (a *App, err error) {
	if logger == nil {
		logger = logrus.New()
	}
	a = &App{Config: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Gatherer = promReg
	a.Metrics = metrics.New(promReg, "amm")

	kv, err := store.OpenBadger(store.BadgerConfig{Path: filepath.Join(cfg.DataDir, "badger"), Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.KV = kv
	a.closers = append(a.closers, kv.Close)

	a.Registry = registry.New(kv, logger)
	if cfg.TokensFile != "" {
		if _, err := a.Registry.Seed(cfg.TokensFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("seed tokens: %w", err)
			}
			logger.WithField("path", cfg.TokensFile).Warn("token seed file not found, skipping")
		}
	}
	var quoteToken uint32
	if cfg.QuoteToken != "" {
		if t, err := a.Registry.Lookup(cfg.QuoteToken); err == nil {
			quoteToken = t.ID
		} else {
			logger.WithError(err).WithField("quote_token", cfg.QuoteToken).Warn("quote token unknown, two-hop routes disabled")
		}
	}

	if !opts.Offline {
		a.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		a.closers = append(a.closers, a.Redis.Close)
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		if a.Switches, err = switches.NewStore(a.Redis); err != nil {
			return nil, err
		}
	}

	var solanaLedgers ledger.SolanaFactory
	if cfg.WalletPrivateKey != "" {
		w, err := wallet.NewWallet(wallet.WalletConfig{
			RPCURL:         cfg.RPCUrl,
			Timeout:        cfg.HTTPTimeout,
			MaxRetries:     cfg.MaxRetries,
			RetryBackoff:   cfg.RetryBackoff,
			PrivateKey:     cfg.WalletPrivateKey,
			Commitment:     cfg.Commitment,
			ConfirmTimeout: cfg.ConfirmTimeout,
			Logger:         logger,
		})
		if err != nil {
			return nil, err
		}
		if w.Address() != cfg.SolanaTreasury {
			return nil, fmt.Errorf("wallet key %s does not match SOLANA_TREASURY %s", w.Address(), cfg.SolanaTreasury)
		}
		solanaLedgers = w.Factory()
	}
	ledgers := ledger.NewRouter(ledger.RouterConfig{
		GatewayURL: cfg.LedgerGatewayURL,
		Timeout:    cfg.LedgerTimeout,
		Solana:     solanaLedgers,
		Logger:     logger,
	})

	act := actor.New()
	a.Requests = requests.NewLog(kv)
	transferLog := transfers.NewLog(kv)
	sender := settlement.NewSender(settlement.SenderConfig{
		Tokens:    a.Registry,
		Ledgers:   ledgers,
		Transfers: transferLog,
		Logger:    logger,
		Metrics:   a.Metrics,
	})
	a.Claims = claims.NewBook(claims.BookConfig{
		KV:          kv,
		Actor:       act,
		Payer:       sender,
		Requests:    a.Requests,
		MaxAttempts: cfg.ClaimMaxAttempts,
		Logger:      logger,
		Metrics:     a.Metrics,
	})
	if _, err := a.Claims.RecoverInterrupted(); err != nil {
		return nil, fmt.Errorf("recover claims: %w", err)
	}

	var solanaVerifier settlement.SolanaVerifier
	if cfg.SolanaTreasury != "" {
		var cache solpay.RelayCache = solpay.NewMemoryRelayCache()
		if a.Redis != nil {
			cache = solpay.NewRedisRelayCache(a.Redis, cfg.RelayTTL)
		}
		v, err := solpay.NewVerifier(solpay.VerifierConfig{
			Cache:    cache,
			Treasury: cfg.SolanaTreasury,
			Window:   cfg.SignatureWindow,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		solanaVerifier = v
	}

	coord, err := settlement.NewCoordinator(settlement.Config{
		Ledgers:   ledgers,
		Transfers: transferLog,
		Sender:    sender,
		Claims:    a.Claims,
		Solana:    solanaVerifier,
		Treasury:  cfg.Treasury,
		Logger:    logger,
		Metrics:   a.Metrics,
	})
	if err != nil {
		return nil, err
	}

	var gate engine.Gate
	var publisher events.Publisher = events.Nop{}
	if a.Redis != nil {
		gate = a.Switches
		publisher = events.NewRedisPublisher(a.Redis, logger)
	}
	a.Engine, err = engine.New(engine.Config{
		Registry:       a.Registry,
		Pools:          pool.NewLedger(kv, logger),
		LP:             lptoken.NewLedger(kv),
		Requests:       a.Requests,
		Coordinator:    coord,
		Claims:         a.Claims,
		Actor:          act,
		Gate:           gate,
		Events:         publisher,
		QuoteToken:     quoteToken,
		MaxSlippageBps: cfg.MaxSlippageBps,
		LPFeeBps:       cfg.LPFeeBps,
		ProtocolFeeBps: cfg.ProtocolFeeBps,
		Logger:         logger,
		Metrics:        a.Metrics,
	})
	if err != nil {
		return nil, err
	}

	var sink archive.Sink
	if cfg.ClickHouseAddr != "" && !opts.SkipArchiveSink {
		ch, err := archive.NewClickHouseSink(ctx, archive.ClickHouseConfig{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUsername,
			Password: cfg.ClickHousePassword,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, ch.Close)
		if err := ch.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		sink = ch
	}
	a.Archiver = archive.New(archive.Config{
		KV:        kv,
		Requests:  a.Requests,
		Transfers: transferLog,
		Claims:    a.Claims,
		Sink:      sink,
		Retention: cfg.ArchiveRetention,
		BatchSize: cfg.ArchiveBatchSize,
		Logger:    logger,
		Metrics:   a.Metrics,
	})
	// closers run in reverse, so background swaps drain before any store closes
	a.closers = append(a.closers, func() error {
		a.Engine.Close()
		return nil
	})
	return a, nil
}

// RunBackground starts the claim retry loop and the archive sweeper. Both
// stop when ctx is cancelled.
func (a *App) RunBackground(ctx context.Context) {
	go a.Claims.Run(ctx, a.Config.ClaimRetryInterval)
	go a.Archiver.Run(ctx, a.Config.ArchiveInterval)
}

// Close releases resources in reverse order of acquisition
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
