// Package ledger is the port the settlement layer uses to move tokens. Every
// token kind that lives outside this service is reached through a Ledger;
// the coordinator never talks to a chain directly.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/models"
)

var (
	ErrTransferFailed = errors.New("transfer failed")
	ErrBlockNotFound  = errors.New("block not found")
	ErrUnsupported    = errors.New("operation not supported by ledger")
)

// Error is a rejection reported by the ledger itself (insufficient funds,
// bad fee, duplicate). It always wraps ErrTransferFailed.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("ledger error %d: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return ErrTransferFailed }

// Block kinds as reported by get_block
const (
	BlockTransfer = "transfer"
	BlockApprove  = "approve"
	BlockMint     = "mint"
	BlockBurn     = "burn"
)

// Block is one ledger entry, used to verify a payment a user already made
type Block struct {
	Index     uint64    `json:"index"`
	Kind      string    `json:"kind"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Spender   string    `json:"spender,omitempty"`
	Amount    *big.Int  `json:"amount"`
	Fee       *big.Int  `json:"fee,omitempty"`
	Memo      string    `json:"memo,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Ledger moves one token. Transfers always debit the service treasury.
type Ledger interface {
	// Transfer sends amount from the treasury to the given account
	Transfer(ctx context.Context, to string, amount *big.Int, memo string) (models.ChainProof, error)
	// TransferFrom pulls an approved amount from a user account into to
	TransferFrom(ctx context.Context, from, to string, amount *big.Int) (models.ChainProof, error)
	// Block fetches a block by index
	Block(ctx context.Context, index uint64) (*Block, error)
}

// Resolver returns the ledger that backs a token
type Resolver interface {
	For(token *models.Token) (Ledger, error)
}
