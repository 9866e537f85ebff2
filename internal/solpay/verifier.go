package solpay

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/models"
	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
)

// NativeMint is the wrapped SOL mint; native transfers are reported under it
const NativeMint = "So11111111111111111111111111111111111111112"

const DefaultWindow = 5 * time.Minute

var (
	ErrInvalidSender     = errors.New("invalid sender public key")
	ErrBadSignature      = errors.New("invalid message signature")
	ErrStaleMessage      = errors.New("signed message outside freshness window")
	ErrTxNotFound        = errors.New("transaction not found in relay cache")
	ErrTxNotConfirmed    = errors.New("transaction not confirmed")
	ErrSenderMismatch    = errors.New("transaction sender does not match signer")
	ErrRecipientMismatch = errors.New("transaction recipient is not the treasury")
	ErrMintMismatch      = errors.New("transaction mint does not match token")
	ErrAmountMismatch    = errors.New("transaction amount does not match")
)

type VerifierConfig struct {
	Cache    RelayCache
	Treasury string // base58 treasury pubkey
	Window   time.Duration
	Logger   *logrus.Logger
}

// Verifier checks Solana payments: a signed offchain message binding the
// operation to a transaction, and that transaction as seen by the relay.
// Every failure is final for the operation.
type Verifier struct {
	cache    RelayCache
	treasury string
	window   time.Duration
	logger   *logrus.Logger
	now      func() time.Time
}

func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	if cfg.Cache == nil {
		return nil, fmt.Errorf("solpay: relay cache is required")
	}
	if _, err := solana.PublicKeyFromBase58(cfg.Treasury); err != nil {
		return nil, fmt.Errorf("solpay: invalid treasury address: %w", err)
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Verifier{
		cache:    cfg.Cache,
		treasury: cfg.Treasury,
		window:   cfg.Window,
		logger:   cfg.Logger,
		now:      time.Now,
	}, nil
}

func (v *Verifier) Treasury() string { return v.treasury }

// SignedArgs is the argument set the wallet signs for proof: the operation
// arguments plus the transaction and sender it commits to
func SignedArgs(args map[string]string, proof *models.SolanaProof) map[string]string {
	out := make(map[string]string, len(args)+2)
	for k, val := range args {
		out[k] = val
	}
	out["tx_signature"] = proof.TxSignature
	out["sender"] = proof.Sender
	return out
}

// Verify accepts the payment only if every check passes
func (v *Verifier) Verify(ctx context.Context, token *models.Token, amount *big.Int, proof *models.SolanaProof, args map[string]string) error {
	if token.Kind != models.KindCrossChain || token.CrossChain.Chain != models.ChainSolana {
		return fmt.Errorf("%w: %s is not a solana token", models.ErrInvalidProof, token.Symbol)
	}
	if proof == nil {
		return models.ErrInvalidProof
	}

	sender, err := solana.PublicKeyFromBase58(proof.Sender)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSender, err)
	}

	signedAt := time.UnixMilli(proof.Timestamp)
	age := v.now().Sub(signedAt)
	if age > v.window || age < -v.window {
		return fmt.Errorf("%w: signed %s ago", ErrStaleMessage, age.Round(time.Second))
	}

	msg, err := CanonicalMessage(SignedArgs(args, proof), proof.Timestamp)
	if err != nil {
		return err
	}
	envelope, err := OffchainMessage(msg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	sig, err := solana.SignatureFromBase58(proof.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if !sig.Verify(sender, envelope) {
		return ErrBadSignature
	}

	tx, err := v.cache.GetTransaction(ctx, proof.TxSignature)
	if err != nil {
		return err
	}
	if tx.Status != StatusConfirmed && tx.Status != StatusFinalized {
		return fmt.Errorf("%w: %s is %q", ErrTxNotConfirmed, proof.TxSignature, tx.Status)
	}
	if tx.Sender != proof.Sender {
		return fmt.Errorf("%w: tx sender %s", ErrSenderMismatch, tx.Sender)
	}
	if tx.Receiver != v.treasury {
		return fmt.Errorf("%w: tx receiver %s", ErrRecipientMismatch, tx.Receiver)
	}
	if tx.Mint != token.CrossChain.Mint {
		return fmt.Errorf("%w: tx mint %s, token %s", ErrMintMismatch, tx.Mint, token.CrossChain.Mint)
	}
	got, ok := new(big.Int).SetString(tx.Amount, 10)
	if !ok || got.Cmp(amount) != 0 {
		return fmt.Errorf("%w: tx %s, expected %s", ErrAmountMismatch, tx.Amount, amount)
	}

	v.logger.WithFields(logrus.Fields{
		"signature": proof.TxSignature,
		"sender":    proof.Sender,
		"token":     token.Symbol,
		"amount":    amount.String(),
	}).Debug("solana payment verified")
	return nil
}
