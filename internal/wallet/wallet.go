// Package wallet holds the treasury keypair for Solana-settled tokens and
// pays out of it.
package wallet

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	projectrpc "github.com/aman-zulfiqar/solana-amm-settlement/internal/rpc"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"
)

type WalletConfig struct {
	RPCURL       string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration

	PrivateKey string // base58-encoded 64-byte key OR solana-keygen JSON array

	Commitment     string // e.g. "confirmed"
	ConfirmTimeout time.Duration
	Logger         *logrus.Logger
}

// Wallet signs and sends treasury transactions
type Wallet struct {
	cfg    WalletConfig
	rpc    *projectrpc.Client
	priv   solana.PrivateKey
	pub    solana.PublicKey
	logger *logrus.Logger
}

func NewWallet(cfg WalletConfig) (*Wallet, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("wallet: RPCURL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = time.Second
	}
	if cfg.Commitment == "" {
		cfg.Commitment = "confirmed"
	}
	if cfg.ConfirmTimeout == 0 {
		cfg.ConfirmTimeout = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if strings.TrimSpace(cfg.PrivateKey) == "" {
		return nil, fmt.Errorf("wallet: PrivateKey is required")
	}

	priv, err := ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}

	return &Wallet{
		cfg: cfg,
		rpc: projectrpc.NewClient(projectrpc.ClientConfig{
			BaseURL:      cfg.RPCURL,
			Timeout:      cfg.Timeout,
			MaxRetries:   cfg.MaxRetries,
			RetryBackoff: cfg.RetryBackoff,
			Logger:       cfg.Logger,
		}),
		priv:   priv,
		pub:    priv.PublicKey(),
		logger: cfg.Logger,
	}, nil
}

func (w *Wallet) Address() string             { return w.pub.String() }
func (w *Wallet) PublicKey() solana.PublicKey { return w.pub }

// Lamports returns the treasury's SOL balance
func (w *Wallet) Lamports(ctx context.Context) (uint64, error) {
	var out struct {
		Value uint64 `json:"value"`
	}
	params := []any{
		w.pub.String(),
		map[string]any{"commitment": w.cfg.Commitment},
	}
	if err := w.rpc.Call(ctx, "getBalance", params, &out); err != nil {
		return 0, fmt.Errorf("getBalance: %w", err)
	}
	return out.Value, nil
}

// AccountExists checks if an account exists on-chain (getAccountInfo != nil).
func (w *Wallet) AccountExists(ctx context.Context, pubkey solana.PublicKey) (bool, error) {
	var out struct {
		Value json.RawMessage `json:"value"`
	}
	params := []any{
		pubkey.String(),
		map[string]any{
			"encoding":   "base64",
			"commitment": w.cfg.Commitment,
		},
	}
	if err := w.rpc.Call(ctx, "getAccountInfo", params, &out); err != nil {
		return false, fmt.Errorf("getAccountInfo: %w", err)
	}
	return len(out.Value) > 0 && string(out.Value) != "null", nil
}

// ParsePrivateKey accepts a base58 keypair or the JSON byte array written by
// solana-keygen
func ParsePrivateKey(s string) (solana.PrivateKey, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(s), &ints); err != nil {
			return nil, fmt.Errorf("wallet: invalid JSON private key: %w", err)
		}
		b := make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("wallet: invalid byte at %d: %d", i, v)
			}
			b[i] = byte(v)
		}
		if len(b) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("wallet: expected %d bytes, got %d", ed25519.PrivateKeySize, len(b))
		}
		return solana.PrivateKey(b), nil
	}

	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("wallet: invalid base58 private key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("wallet: expected %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}
	return solana.PrivateKey(raw), nil
}
