package settlement

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/claims"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/ledger"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/metrics"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/models"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/transfers"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotATransfer            = errors.New("block is not a transfer")
	ErrWrongSender             = errors.New("block sender does not match caller")
	ErrWrongRecipient          = errors.New("block recipient is not the treasury")
	ErrAmountMismatch          = errors.New("block amount does not match")
	ErrTransferFromUnsupported = errors.New("token does not support transfer_from")
	ErrSolanaUnavailable       = errors.New("solana payments are not configured")
)

// SolanaVerifier checks a signed Solana payment
type SolanaVerifier interface {
	Verify(ctx context.Context, token *models.Token, amount *big.Int, proof *models.SolanaProof, args map[string]string) error
}

type Config struct {
	Ledgers   ledger.Resolver
	Transfers *transfers.Log
	Sender    *Sender
	Claims    *claims.Book
	Solana    SolanaVerifier // nil disables solana proofs
	Treasury  string         // treasury account on the token ledgers
	Logger    *logrus.Logger
	Metrics   *metrics.Metrics
}

// Coordinator moves tokens across the service boundary. Inbound payments
// are credited at most once through the transfer log's proof index;
// outbound payments are tried once and degrade to claims.
type Coordinator struct {
	ledgers   ledger.Resolver
	transfers *transfers.Log
	sender    *Sender
	claims    *claims.Book
	solana    SolanaVerifier
	treasury  string
	logger    *logrus.Logger
	metrics   *metrics.Metrics
}

func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.Treasury == "" {
		return nil, fmt.Errorf("settlement: treasury account is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Coordinator{
		ledgers:   cfg.Ledgers,
		transfers: cfg.Transfers,
		sender:    cfg.Sender,
		claims:    cfg.Claims,
		solana:    cfg.Solana,
		treasury:  cfg.Treasury,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}, nil
}

func (c *Coordinator) Treasury() string { return c.treasury }

// Payment is an inbound payment to verify
type Payment struct {
	RequestID uint64
	User      string
	Token     *models.Token
	Amount    *big.Int
	Proof     models.PaymentProof
	// Args are the operation arguments a Solana payer signed
	Args map[string]string
}

// VerifyPayment checks the proof and credits it. On success the inbound
// transfer is recorded and returned; nothing is recorded on failure.
func (c *Coordinator) VerifyPayment(ctx context.Context, p Payment) (*models.Transfer, error) {
	t, err := c.verify(ctx, p)
	c.metrics.Verification(string(p.Proof.Kind), err == nil)
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"request_id": p.RequestID,
			"user":       p.User,
			"token":      p.Token.Symbol,
			"proof":      p.Proof.Kind,
		}).Warn("payment verification failed")
	}
	return t, err
}

func (c *Coordinator) verify(ctx context.Context, p Payment) (*models.Transfer, error) {
	if p.Amount == nil || p.Amount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	if err := p.Proof.Validate(); err != nil {
		return nil, err
	}

	var proof models.ChainProof
	switch p.Proof.Kind {
	case models.ProofBlockIndex:
		if p.Token.IsCrossChain() {
			return nil, fmt.Errorf("%w: %s needs a solana proof", models.ErrInvalidProof, p.Token.Symbol)
		}
		proof = models.BlockProof(p.Proof.BlockIndex)
		// cheap rejection before the ledger round trip; Record is the real guard
		seen, err := c.transfers.Seen(p.Token.ID, proof)
		if err != nil {
			return nil, err
		}
		if seen {
			return nil, fmt.Errorf("%w: %s", transfers.ErrProofAlreadyUsed, proof)
		}
		if err := c.checkBlock(ctx, p); err != nil {
			return nil, err
		}

	case models.ProofTransferFrom:
		if !p.Token.SupportsTransferFrom() {
			return nil, fmt.Errorf("%w: %s", ErrTransferFromUnsupported, p.Token.Symbol)
		}
		l, err := c.ledgers.For(p.Token)
		if err != nil {
			return nil, err
		}
		proof, err = l.TransferFrom(ctx, p.User, c.treasury, p.Amount)
		if err != nil {
			return nil, fmt.Errorf("transfer_from %s: %w", p.Token.Symbol, err)
		}

	case models.ProofSolana:
		if c.solana == nil {
			return nil, ErrSolanaUnavailable
		}
		proof = models.SignatureProof(p.Proof.Solana.TxSignature)
		seen, err := c.transfers.Seen(p.Token.ID, proof)
		if err != nil {
			return nil, err
		}
		if seen {
			return nil, fmt.Errorf("%w: %s", transfers.ErrProofAlreadyUsed, proof)
		}
		if err := c.solana.Verify(ctx, p.Token, p.Amount, p.Proof.Solana, p.Args); err != nil {
			return nil, err
		}
	}

	t := &models.Transfer{
		RequestID: p.RequestID,
		TokenID:   p.Token.ID,
		Amount:    new(big.Int).Set(p.Amount),
		Proof:     proof,
		TS:        time.Now().UTC(),
	}
	if err := c.transfers.Record(t); err != nil {
		return nil, err
	}
	return t, nil
}

func (c *Coordinator) checkBlock(ctx context.Context, p Payment) error {
	l, err := c.ledgers.For(p.Token)
	if err != nil {
		return err
	}
	b, err := l.Block(ctx, p.Proof.BlockIndex)
	if err != nil {
		return err
	}
	if b.Kind != ledger.BlockTransfer {
		return fmt.Errorf("%w: block %d is %s", ErrNotATransfer, b.Index, b.Kind)
	}
	if b.From != p.User {
		return fmt.Errorf("%w: block %d from %s", ErrWrongSender, b.Index, b.From)
	}
	if b.To != c.treasury {
		return fmt.Errorf("%w: block %d to %s", ErrWrongRecipient, b.Index, b.To)
	}
	if b.Amount.Cmp(p.Amount) != 0 {
		return fmt.Errorf("%w: block %d has %s, expected %s", ErrAmountMismatch, b.Index, b.Amount, p.Amount)
	}
	return nil
}

// Payout is an outbound payment owed to a user
type Payout struct {
	RequestID uint64
	User      string
	Token     *models.Token
	To        string
	Amount    *big.Int // net of the ledger fee
	Desc      string
}

// PayoutResult holds exactly one of Transfer or Claim
type PayoutResult struct {
	Transfer *models.Transfer `json:"transfer,omitempty"`
	Claim    *models.Claim    `json:"claim,omitempty"`
}

func (r *PayoutResult) Pending() bool { return r != nil && r.Claim != nil }

// Payout makes one transfer attempt. A failed transfer becomes an Unclaimed
// claim; only a failure to record that claim is returned as an error.
func (c *Coordinator) Payout(ctx context.Context, p Payout) (*PayoutResult, error) {
	memo := fmt.Sprintf("req:%d", p.RequestID)
	t, err := c.sender.Send(ctx, p.RequestID, p.Token.ID, p.To, p.Amount, memo)
	if err == nil {
		return &PayoutResult{Transfer: t}, nil
	}

	c.logger.WithError(err).WithFields(logrus.Fields{
		"request_id": p.RequestID,
		"user":       p.User,
		"token":      p.Token.Symbol,
		"amount":     p.Amount.String(),
	}).Warn("payout failed")

	claim, cerr := c.claims.Create(&models.Claim{
		UserID:    p.User,
		TokenID:   p.Token.ID,
		Amount:    p.Amount,
		ToAddress: p.To,
		RequestID: p.RequestID,
		Desc:      p.Desc,
	})
	if cerr != nil {
		return nil, fmt.Errorf("payout failed (%v) and claim could not be created: %w", err, cerr)
	}
	return &PayoutResult{Claim: claim}, nil
}
