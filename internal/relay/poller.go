package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/constants"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/metrics"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/rpc"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/solpay"
	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"
)

// Poller polls getSignaturesForAddress for the treasury and its token
// accounts and writes every inbound transfer it finds to the relay cache
type Poller struct {
	client     *rpc.Client
	treasury   string
	addresses  []string
	cache      solpay.RelayCache
	cursor     Cursor
	interval   time.Duration
	fetchDelay time.Duration
	batchSize  int
	commitment string
	logger     *logrus.Logger
	metrics    *metrics.Metrics

	mu      sync.Mutex
	running bool
}

type PollerConfig struct {
	RPCClient *rpc.Client
	Treasury  string
	// Addresses to watch; the treasury itself is always watched. SPL
	// transfers only touch the treasury's token accounts, so those go here.
	Addresses    []string
	Cache        solpay.RelayCache
	Cursor       Cursor // nil keeps cursors in memory
	PollInterval time.Duration
	FetchDelay   time.Duration
	BatchSize    int
	Commitment   string
	Logger       *logrus.Logger
	Metrics      *metrics.Metrics
}

func NewPoller(cfg PollerConfig) (*Poller, error) {
	if cfg.RPCClient == nil || cfg.Cache == nil {
		return nil, fmt.Errorf("relay: rpc client and cache are required")
	}
	if cfg.Treasury == "" {
		return nil, fmt.Errorf("relay: treasury is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Cursor == nil {
		cfg.Cursor = newMemoryCursor()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.FetchDelay < 0 {
		cfg.FetchDelay = 0
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = constants.SignatureBatchSize
	}
	if cfg.Commitment == "" {
		cfg.Commitment = solpay.StatusConfirmed
	}

	addresses := []string{cfg.Treasury}
	for _, a := range cfg.Addresses {
		if a != cfg.Treasury {
			addresses = append(addresses, a)
		}
	}

	return &Poller{
		client:     cfg.RPCClient,
		treasury:   cfg.Treasury,
		addresses:  addresses,
		cache:      cfg.Cache,
		cursor:     cfg.Cursor,
		interval:   cfg.PollInterval,
		fetchDelay: cfg.FetchDelay,
		batchSize:  cfg.BatchSize,
		commitment: cfg.Commitment,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}, nil
}

// Start polls until ctx is cancelled
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("poller already running")
	}
	p.running = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.WithFields(logrus.Fields{
		"interval":  p.interval,
		"addresses": p.addresses,
	}).Info("starting relay polling")

	for {
		if _, err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
			p.logger.WithError(err).Error("poll error")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// PollOnce walks every watched address once and returns how many transfers
// were relayed
func (p *Poller) PollOnce(ctx context.Context) (int, error) {
	total := 0
	for _, addr := range p.addresses {
		n, err := p.pollAddress(ctx, addr)
		total += n
		if err != nil {
			return total, fmt.Errorf("poll %s: %w", addr, err)
		}
	}
	return total, nil
}

func (p *Poller) pollAddress(ctx context.Context, addr string) (int, error) {
	last, err := p.cursor.Get(ctx, addr)
	if err != nil {
		return 0, fmt.Errorf("failed to read cursor: %w", err)
	}

	sigs, err := p.newSignatures(ctx, addr, last)
	if err != nil {
		return 0, err
	}
	if len(sigs) == 0 {
		return 0, nil
	}
	p.logger.WithFields(logrus.Fields{"address": addr, "count": len(sigs)}).Debug("found new signatures")

	// newest first from the node; walk oldest first so the cursor only moves
	// past what was handled
	relayed := 0
	for i := len(sigs) - 1; i >= 0; i-- {
		sig := sigs[i]
		if i < len(sigs)-1 && p.fetchDelay > 0 {
			select {
			case <-ctx.Done():
				return relayed, ctx.Err()
			case <-time.After(p.fetchDelay):
			}
		}

		if sig.Err == nil && validSignature(sig.Signature) {
			tx, err := p.client.GetTransaction(ctx, sig.Signature, p.commitment)
			if err != nil {
				return relayed, fmt.Errorf("failed to get transaction %s: %w", sig.Signature, err)
			}
			if tx == nil {
				// listed but not yet served at this commitment; retry next poll
				return relayed, nil
			}

			status := sig.ConfirmationStatus
			if status == "" {
				status = p.commitment
			}
			if rt, ok := Extract(sig.Signature, status, tx, p.treasury); ok {
				if err := p.cache.PutTransaction(ctx, rt); err != nil {
					return relayed, err
				}
				relayed++
				p.metrics.Relayed()
				p.logger.WithFields(logrus.Fields{
					"signature": sig.Signature,
					"sender":    rt.Sender,
					"mint":      constants.MintLabel(rt.Mint),
					"amount":    rt.Amount,
					"status":    rt.Status,
				}).Info("relayed inbound transfer")
			}
		}

		if err := p.cursor.Set(ctx, addr, sig.Signature); err != nil {
			return relayed, fmt.Errorf("failed to save cursor: %w", err)
		}
	}
	return relayed, nil
}

// newSignatures pages back from the newest signature until it reaches last,
// so a backlog longer than one batch is not skipped. Without a cursor only
// the newest batch is taken.
func (p *Poller) newSignatures(ctx context.Context, addr, last string) ([]rpc.SignatureInfo, error) {
	var (
		out    []rpc.SignatureInfo
		before string
	)
	for {
		opts := map[string]any{
			"limit":      p.batchSize,
			"commitment": p.commitment,
		}
		if last != "" {
			opts["until"] = last
		}
		if before != "" {
			opts["before"] = before
		}
		page, err := p.client.GetSignaturesForAddress(ctx, addr, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to get signatures: %w", err)
		}
		out = append(out, page...)
		if last == "" || len(page) < p.batchSize {
			return out, nil
		}
		before = page[len(page)-1].Signature
	}
}

func validSignature(sig string) bool {
	raw, err := base58.Decode(sig)
	return err == nil && len(raw) == 64
}
