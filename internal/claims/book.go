package claims

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/actor"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/metrics"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/models"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/requests"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/store"
	"github.com/sirupsen/logrus"
)

var (
	ErrClaimNotFound       = errors.New("claim not found")
	ErrNotOwner            = errors.New("claim belongs to another user")
	ErrAlreadyClaimed      = errors.New("claim already paid")
	ErrClaimInProgress     = errors.New("claim payout in progress")
	ErrClaimRetryExhausted = errors.New("claim retry attempts exhausted")
	ErrClaimFailed         = errors.New("claim payout failed")
)

const (
	claimSeq           = "claims"
	DefaultMaxAttempts = 10
)

// Payer performs one outbound transfer
type Payer interface {
	Send(ctx context.Context, requestID uint64, tokenID uint32, to string, amount *big.Int, memo string) (*models.Transfer, error)
}

type BookConfig struct {
	KV          store.KV
	Actor       *actor.Actor
	Payer       Payer
	Requests    *requests.Log
	MaxAttempts int
	Logger      *logrus.Logger
	Metrics     *metrics.Metrics
}

// Book owns every claim. Status changes happen inside actor sections; the
// payout itself runs between them with the claim parked in Claiming, which
// keeps a second attempt from starting.
type Book struct {
	kv          store.KV
	actor       *actor.Actor
	payer       Payer
	requests    *requests.Log
	maxAttempts int
	logger      *logrus.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewBook(cfg BookConfig) *Book {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Actor == nil {
		cfg.Actor = actor.New()
	}
	return &Book{
		kv:          cfg.KV,
		actor:       cfg.Actor,
		payer:       cfg.Payer,
		requests:    cfg.Requests,
		maxAttempts: cfg.MaxAttempts,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Create records money owed after a failed payout. The claim starts
// Unclaimed with no attempts.
func (b *Book) Create(c *models.Claim) (*models.Claim, error) {
	if c.Amount == nil || c.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("claim amount must be positive")
	}
	id, err := b.kv.NextID(claimSeq)
	if err != nil {
		return nil, err
	}

	out := *c
	out.ID = id
	out.Amount = new(big.Int).Set(c.Amount)
	out.Status = models.ClaimUnclaimed
	out.Attempts = 0
	out.TS = b.now()
	out.UpdatedAt = out.TS

	err = b.kv.Batch(func(w store.Writer) error {
		if err := store.PutJSON(w, store.RegionClaims, store.U64(id), &out); err != nil {
			return err
		}
		return w.Set(store.RegionUserClaims, UserKey(out.UserID, id), nil)
	})
	if err != nil {
		return nil, fmt.Errorf("create claim: %w", err)
	}

	b.metrics.Claim("created")
	b.logger.WithFields(logrus.Fields{
		"claim_id":   id,
		"user":       out.UserID,
		"token":      out.TokenID,
		"amount":     out.Amount.String(),
		"request_id": out.RequestID,
	}).Warn("payout failed, claim created")
	return &out, nil
}

func (b *Book) Get(id uint64) (*models.Claim, error) {
	var c models.Claim
	if err := store.GetJSON(b.kv, store.RegionClaims, store.U64(id), &c); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrClaimNotFound, id)
		}
		return nil, err
	}
	return &c, nil
}

func (b *Book) ListByUser(user string) ([]*models.Claim, error) {
	var ids []uint64
	err := b.kv.Iterate(store.RegionUserClaims, store.UserPrefix(user), func(k, _ []byte) error {
		id, err := store.ParseU64(k[len(k)-8:])
		if err != nil {
			return err
		}
		ids = append(ids, id)
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := []*models.Claim{}
	for _, id := range ids {
		c, err := b.Get(id)
		if errors.Is(err, ErrClaimNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if c.UserID != user {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// Scan visits live claims in id order. Returning store.ErrStop ends it.
func (b *Book) Scan(fn func(c *models.Claim) error) error {
	return b.kv.Iterate(store.RegionClaims, nil, func(_, v []byte) error {
		var c models.Claim
		if err := json.Unmarshal(v, &c); err != nil {
			return fmt.Errorf("unmarshal claim: %w", err)
		}
		return fn(&c)
	})
}

// Claim retries the payout of one of caller's claims
func (b *Book) Claim(ctx context.Context, caller string, id uint64) (*models.Claim, error) {
	return b.attempt(ctx, id, caller)
}

// attempt runs one payout try. An empty owner skips the ownership check,
// which only the background processor does.
func (b *Book) attempt(ctx context.Context, id uint64, owner string) (*models.Claim, error) {
	var (
		claim *models.Claim
		req   *models.Request
	)

	err := b.actor.Sync(func() error {
		c, err := b.Get(id)
		if err != nil {
			return err
		}
		if owner != "" && c.UserID != owner {
			return fmt.Errorf("%w: claim %d", ErrNotOwner, id)
		}
		switch c.Status {
		case models.ClaimClaimed:
			return fmt.Errorf("%w: claim %d", ErrAlreadyClaimed, id)
		case models.ClaimClaiming:
			return fmt.Errorf("%w: claim %d", ErrClaimInProgress, id)
		case models.ClaimTooManyAttempts:
			return fmt.Errorf("%w: claim %d", ErrClaimRetryExhausted, id)
		}
		if c.Attempts >= b.maxAttempts {
			c.Status = models.ClaimTooManyAttempts
			if err := b.save(c); err != nil {
				return err
			}
			return fmt.Errorf("%w: claim %d after %d attempts", ErrClaimRetryExhausted, id, c.Attempts)
		}

		req, err = b.requests.Open(models.RequestClaim, c.UserID, map[string]uint64{"claim_id": id})
		if err != nil {
			return err
		}
		c.Status = models.ClaimClaiming
		c.Attempts++
		c.AttemptRequestIDs = append(c.AttemptRequestIDs, req.ID)
		if err := b.save(c); err != nil {
			return err
		}
		claim = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.status(req.ID, models.StatusClaiming, fmt.Sprintf("attempt %d", claim.Attempts))
	memo := fmt.Sprintf("claim:%d", id)
	t, sendErr := b.payer.Send(ctx, req.ID, claim.TokenID, claim.ToAddress, claim.Amount, memo)

	var result *models.Claim
	err = b.actor.Sync(func() error {
		c, err := b.Get(id)
		if err != nil {
			return err
		}
		if sendErr == nil {
			c.Status = models.ClaimClaimed
			if t != nil {
				c.TransferIDs = append(c.TransferIDs, t.ID)
			}
		} else if c.Attempts >= b.maxAttempts {
			c.Status = models.ClaimTooManyAttempts
		} else {
			c.Status = models.ClaimClaimable
		}
		result = c
		return b.save(c)
	})
	if err != nil {
		return nil, err
	}

	log := b.logger.WithFields(logrus.Fields{
		"claim_id":   id,
		"user":       result.UserID,
		"attempt":    result.Attempts,
		"request_id": req.ID,
	})

	if sendErr != nil {
		b.finish(req.ID, models.StatusFailed, sendErr.Error(), result)
		log.WithError(sendErr).Warn("claim payout failed")
		if result.Status == models.ClaimTooManyAttempts {
			b.metrics.Claim("exhausted")
			return result, fmt.Errorf("%w: claim %d: %v", ErrClaimRetryExhausted, id, sendErr)
		}
		b.metrics.Claim("failed")
		return result, fmt.Errorf("%w: claim %d: %w", ErrClaimFailed, id, sendErr)
	}

	b.finish(req.ID, models.StatusSuccess, "", result)
	b.metrics.Claim("claimed")
	log.Info("claim paid")
	return result, nil
}

// ProcessPending retries every Unclaimed or Claimable claim once
func (b *Book) ProcessPending(ctx context.Context) (attempted, paid int, err error) {
	var pending []uint64
	err = b.Scan(func(c *models.Claim) error {
		if c.Status.Retryable() {
			pending = append(pending, c.ID)
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	for _, id := range pending {
		if ctx.Err() != nil {
			return attempted, paid, ctx.Err()
		}
		attempted++
		if _, err := b.attempt(ctx, id, ""); err != nil {
			if errors.Is(err, ErrClaimInProgress) || errors.Is(err, ErrAlreadyClaimed) {
				attempted--
			}
			continue
		}
		paid++
	}
	return attempted, paid, nil
}

// Run retries pending claims every interval until ctx is cancelled
func (b *Book) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	b.logger.WithField("interval", interval).Info("claims processor started")
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("claims processor stopped")
			return
		case <-ticker.C:
			attempted, paid, err := b.ProcessPending(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				b.logger.WithError(err).Error("claims processing failed")
				continue
			}
			if attempted > 0 {
				b.logger.WithFields(logrus.Fields{
					"attempted": attempted,
					"paid":      paid,
				}).Info("processed pending claims")
			}
		}
	}
}

// RecoverInterrupted moves claims left in Claiming by a crash back to
// Claimable. Run it before serving traffic.
func (b *Book) RecoverInterrupted() (int, error) {
	n := 0
	err := b.actor.Sync(func() error {
		return b.Scan(func(c *models.Claim) error {
			if c.Status != models.ClaimClaiming {
				return nil
			}
			c.Status = models.ClaimClaimable
			n++
			return b.save(c)
		})
	})
	if n > 0 {
		b.logger.WithField("claims", n).Warn("recovered interrupted claims")
	}
	return n, err
}

func (b *Book) save(c *models.Claim) error {
	c.UpdatedAt = b.now()
	return store.SetJSON(b.kv, store.RegionClaims, store.U64(c.ID), c)
}

func (b *Book) status(id uint64, code models.StatusCode, detail string) {
	if err := b.requests.Append(id, code, detail); err != nil {
		b.logger.WithError(err).WithField("request_id", id).Error("failed to append request status")
	}
}

func (b *Book) finish(id uint64, code models.StatusCode, detail string, reply any) {
	if err := b.requests.Finish(id, code, detail, reply); err != nil {
		b.logger.WithError(err).WithField("request_id", id).Error("failed to finish request")
	}
}

// UserKey is the user index key of a claim
func UserKey(user string, id uint64) []byte {
	return store.Join(store.UserPrefix(user), store.U64(id))
}
