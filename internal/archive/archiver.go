package archive

import (
	"context"
	"time"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/claims"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/metrics"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/models"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/requests"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/store"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/transfers"
	"github.com/sirupsen/logrus"
)

const DefaultRetention = 30 * 24 * time.Hour

// Batch is one sweep's worth of records leaving the live regions
type Batch struct {
	Requests  []*models.Request
	Transfers []*models.Transfer
	Claims    []*models.Claim
}

func (b *Batch) Empty() bool {
	return len(b.Requests) == 0 && len(b.Transfers) == 0 && len(b.Claims) == 0
}

// Sink receives archived records before they leave the live regions
type Sink interface {
	Export(ctx context.Context, b *Batch) error
}

type Config struct {
	KV        store.KV
	Requests  *requests.Log
	Transfers *transfers.Log
	Claims    *claims.Book
	Sink      Sink // optional
	Retention time.Duration
	BatchSize int
	Logger    *logrus.Logger
	Metrics   *metrics.Metrics
}

// Archiver moves finished requests, transfers and paid claims older than the
// retention window into the archive regions. The proof index is never
// touched, so an archived proof still cannot be credited twice.
type Archiver struct {
	kv        store.KV
	requests  *requests.Log
	transfers *transfers.Log
	claims    *claims.Book
	sink      Sink
	retention time.Duration
	batchSize int
	logger    *logrus.Logger
	metrics   *metrics.Metrics
}

func New(cfg Config) *Archiver {
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Archiver{
		kv:        cfg.KV,
		requests:  cfg.Requests,
		transfers: cfg.Transfers,
		claims:    cfg.Claims,
		sink:      cfg.Sink,
		retention: cfg.Retention,
		batchSize: cfg.BatchSize,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}
}

// Sweep archives one batch of eligible records as of now
func (a *Archiver) Sweep(ctx context.Context, now time.Time) (*Batch, error) {
	cutoff := now.Add(-a.retention)
	b, err := a.collect(cutoff)
	if err != nil {
		return nil, err
	}
	if b.Empty() {
		return b, nil
	}

	if a.sink != nil {
		if err := a.sink.Export(ctx, b); err != nil {
			return nil, err
		}
	}

	err = a.kv.Batch(func(w store.Writer) error {
		for _, r := range b.Requests {
			if err := store.PutJSON(w, store.RegionRequestArchive, store.U64(r.ID), r); err != nil {
				return err
			}
			if err := w.Delete(store.RegionRequests, store.U64(r.ID)); err != nil {
				return err
			}
			if err := w.Delete(store.RegionUserRequests, requests.UserKey(r.UserID, r.ID)); err != nil {
				return err
			}
		}
		for _, t := range b.Transfers {
			if err := store.PutJSON(w, store.RegionTransferArchive, store.U64(t.ID), t); err != nil {
				return err
			}
			if err := w.Delete(store.RegionTransfers, store.U64(t.ID)); err != nil {
				return err
			}
		}
		for _, c := range b.Claims {
			if err := store.PutJSON(w, store.RegionClaimArchive, store.U64(c.ID), c); err != nil {
				return err
			}
			if err := w.Delete(store.RegionClaims, store.U64(c.ID)); err != nil {
				return err
			}
			if err := w.Delete(store.RegionUserClaims, claims.UserKey(c.UserID, c.ID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.metrics.Archive("requests", len(b.Requests))
	a.metrics.Archive("transfers", len(b.Transfers))
	a.metrics.Archive("claims", len(b.Claims))
	a.logger.WithFields(logrus.Fields{
		"requests":  len(b.Requests),
		"transfers": len(b.Transfers),
		"claims":    len(b.Claims),
		"cutoff":    cutoff.Format(time.RFC3339),
	}).Info("archived settled records")
	return b, nil
}

func (a *Archiver) collect(cutoff time.Time) (*Batch, error) {
	b := &Batch{}

	err := a.requests.Scan(func(r *models.Request) error {
		if r.Done() && r.CreatedAt.Before(cutoff) {
			b.Requests = append(b.Requests, r)
		}
		if len(b.Requests) >= a.batchSize {
			return store.ErrStop
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = a.transfers.Scan(func(t *models.Transfer) error {
		if t.TS.Before(cutoff) {
			b.Transfers = append(b.Transfers, t)
		}
		if len(b.Transfers) >= a.batchSize {
			return store.ErrStop
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// unpaid claims stay live however old they are
	err = a.claims.Scan(func(c *models.Claim) error {
		if c.Status == models.ClaimClaimed && c.UpdatedAt.Before(cutoff) {
			b.Claims = append(b.Claims, c)
		}
		if len(b.Claims) >= a.batchSize {
			return store.ErrStop
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Run sweeps every interval until ctx is cancelled
func (a *Archiver) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := a.Sweep(ctx, now.UTC()); err != nil {
				a.logger.WithError(err).Error("archive sweep failed")
			}
		}
	}
}
