package settlement

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/ledger"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/metrics"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/models"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/registry"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/transfers"
	"github.com/sirupsen/logrus"
)

var ErrZeroAmount = errors.New("amount must be positive")

// Sender performs single outbound transfers and records them. It is the
// payer behind both first payouts and claim retries.
type Sender struct {
	tokens    registry.Resolver
	ledgers   ledger.Resolver
	transfers *transfers.Log
	logger    *logrus.Logger
	metrics   *metrics.Metrics
}

type SenderConfig struct {
	Tokens    registry.Resolver
	Ledgers   ledger.Resolver
	Transfers *transfers.Log
	Logger    *logrus.Logger
	Metrics   *metrics.Metrics
}

func NewSender(cfg SenderConfig) *Sender {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Sender{
		tokens:    cfg.Tokens,
		ledgers:   cfg.Ledgers,
		transfers: cfg.Transfers,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}
}

// Send transfers amount to the recipient exactly once; there is no retry.
// The ledger charges its own fee on top, so callers pass the amount net of
// the transfer fee.
func (s *Sender) Send(ctx context.Context, requestID uint64, tokenID uint32, to string, amount *big.Int, memo string) (*models.Transfer, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	token, err := s.tokens.Resolve(tokenID)
	if err != nil {
		return nil, err
	}
	l, err := s.ledgers.For(token)
	if err != nil {
		return nil, err
	}

	proof, err := l.Transfer(ctx, to, amount, memo)
	if err != nil {
		s.metrics.Payout(false)
		return nil, fmt.Errorf("send %s %s to %s: %w", amount, token.Symbol, to, err)
	}
	s.metrics.Payout(true)

	t := &models.Transfer{
		RequestID: requestID,
		IsSend:    true,
		TokenID:   tokenID,
		Amount:    new(big.Int).Set(amount),
		Proof:     proof,
		TS:        time.Now().UTC(),
	}
	// the tokens have left; a bookkeeping failure must not turn into a claim
	if err := s.transfers.Record(t); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"request_id": requestID,
			"token":      token.Symbol,
			"proof":      proof.String(),
		}).Error("outbound transfer sent but not recorded")
	}
	return t, nil
}
