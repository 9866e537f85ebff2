package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/models"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/rpc"
	"github.com/sirupsen/logrus"
)

// HTTPConfig configures a ledger reached through the JSON-RPC gateway
type HTTPConfig struct {
	GatewayURL string
	LedgerID   string
	Timeout    time.Duration
	Logger     *logrus.Logger
}

// HTTPLedger speaks icrc1_transfer / icrc2_transfer_from / get_block to a
// gateway that fronts the token ledgers. Calls are never retried: a retried
// transfer could pay twice, and a failed payout becomes a claim anyway.
type HTTPLedger struct {
	ledgerID string
	client   *rpc.Client
	logger   *logrus.Logger
}

func NewHTTPLedger(cfg HTTPConfig) (*HTTPLedger, error) {
	if cfg.GatewayURL == "" {
		return nil, fmt.Errorf("ledger: gateway url is required")
	}
	if cfg.LedgerID == "" {
		return nil, fmt.Errorf("ledger: ledger id is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	client := rpc.NewClient(rpc.ClientConfig{
		BaseURL:    strings.TrimRight(cfg.GatewayURL, "/") + "/" + cfg.LedgerID,
		Timeout:    cfg.Timeout,
		MaxRetries: 0,
		Logger:     cfg.Logger,
	})
	return &HTTPLedger{ledgerID: cfg.LedgerID, client: client, logger: cfg.Logger}, nil
}

type transferResult struct {
	BlockIndex uint64 `json:"block_index"`
}

func (l *HTTPLedger) Transfer(ctx context.Context, to string, amount *big.Int, memo string) (models.ChainProof, error) {
	params := map[string]any{
		"to":     to,
		"amount": amount.String(),
		"memo":   memo,
	}

	var out transferResult
	if err := l.client.Call(ctx, "icrc1_transfer", params, &out); err != nil {
		return models.ChainProof{}, l.wrap("icrc1_transfer", err)
	}

	l.logger.WithFields(logrus.Fields{
		"ledger": l.ledgerID,
		"to":     to,
		"amount": amount.String(),
		"block":  out.BlockIndex,
	}).Debug("ledger transfer sent")
	return models.BlockProof(out.BlockIndex), nil
}

func (l *HTTPLedger) TransferFrom(ctx context.Context, from, to string, amount *big.Int) (models.ChainProof, error) {
	params := map[string]any{
		"from":   from,
		"to":     to,
		"amount": amount.String(),
	}

	var out transferResult
	if err := l.client.Call(ctx, "icrc2_transfer_from", params, &out); err != nil {
		return models.ChainProof{}, l.wrap("icrc2_transfer_from", err)
	}
	return models.BlockProof(out.BlockIndex), nil
}

func (l *HTTPLedger) Block(ctx context.Context, index uint64) (*Block, error) {
	var out *Block
	if err := l.client.Call(ctx, "get_block", map[string]any{"index": index}, &out); err != nil {
		var rerr *rpc.RPCError
		if errors.As(err, &rerr) {
			return nil, fmt.Errorf("get_block %d on %s: %w", index, l.ledgerID, &Error{Code: rerr.Code, Message: rerr.Message})
		}
		return nil, fmt.Errorf("get_block %d on %s: %w", index, l.ledgerID, err)
	}
	if out == nil {
		return nil, fmt.Errorf("%w: %d on %s", ErrBlockNotFound, index, l.ledgerID)
	}
	if out.Amount == nil {
		out.Amount = new(big.Int)
	}
	return out, nil
}

// wrap classifies every failure as ErrTransferFailed, keeping ledger
// rejections as *Error
func (l *HTTPLedger) wrap(method string, err error) error {
	var rerr *rpc.RPCError
	if errors.As(err, &rerr) {
		return fmt.Errorf("%s on %s: %w", method, l.ledgerID, &Error{Code: rerr.Code, Message: rerr.Message})
	}
	return fmt.Errorf("%s on %s: %w: %v", method, l.ledgerID, ErrTransferFailed, err)
}
