// Package ledgertest provides a controllable in-memory ledger for tests
package ledgertest

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/ledger"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/models"
)

// Sent is one recorded outbound transfer
type Sent struct {
	To     string
	Amount *big.Int
	Memo   string
	Block  uint64
}

// Ledger records transfers and serves blocks from a map. Failures are
// switched on with FailTransfers / FailTransferFrom.
type Ledger struct {
	mu               sync.Mutex
	next             uint64
	blocks           map[uint64]*ledger.Block
	sent             []Sent
	failTransfers    bool
	failTransferFrom bool
	// BeforeTransfer runs before a transfer is recorded, outside the lock
	BeforeTransfer func()
}

func New() *Ledger {
	return &Ledger{next: 1, blocks: make(map[uint64]*ledger.Block)}
}

func (l *Ledger) FailTransfers(fail bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failTransfers = fail
}

func (l *Ledger) FailTransferFrom(fail bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failTransferFrom = fail
}

// AddBlock stores a transfer block and returns its index
func (l *Ledger) AddBlock(from, to string, amount *big.Int) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := l.next
	l.next++
	l.blocks[idx] = &ledger.Block{
		Index:     idx,
		Kind:      ledger.BlockTransfer,
		From:      from,
		To:        to,
		Amount:    new(big.Int).Set(amount),
		Timestamp: time.Now().UTC(),
	}
	return idx
}

func (l *Ledger) Sent() []Sent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Sent(nil), l.sent...)
}

func (l *Ledger) Transfer(ctx context.Context, to string, amount *big.Int, memo string) (models.ChainProof, error) {
	if l.BeforeTransfer != nil {
		l.BeforeTransfer()
	}
	if err := ctx.Err(); err != nil {
		return models.ChainProof{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failTransfers {
		return models.ChainProof{}, &ledger.Error{Code: 1, Message: "insufficient funds"}
	}
	idx := l.next
	l.next++
	l.sent = append(l.sent, Sent{To: to, Amount: new(big.Int).Set(amount), Memo: memo, Block: idx})
	return models.BlockProof(idx), nil
}

func (l *Ledger) TransferFrom(ctx context.Context, from, to string, amount *big.Int) (models.ChainProof, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failTransferFrom {
		return models.ChainProof{}, &ledger.Error{Code: 2, Message: "insufficient allowance"}
	}
	idx := l.next
	l.next++
	l.blocks[idx] = &ledger.Block{Index: idx, Kind: ledger.BlockTransfer, From: from, To: to, Amount: new(big.Int).Set(amount)}
	return models.BlockProof(idx), nil
}

func (l *Ledger) Block(ctx context.Context, index uint64) (*ledger.Block, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.blocks[index]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ledger.ErrBlockNotFound, index)
	}
	cp := *b
	return &cp, nil
}

// Resolver maps token ids to fake ledgers, creating them on first use
type Resolver struct {
	mu      sync.Mutex
	ledgers map[uint32]*Ledger
}

func NewResolver() *Resolver {
	return &Resolver{ledgers: make(map[uint32]*Ledger)}
}

func (r *Resolver) For(token *models.Token) (ledger.Ledger, error) {
	if token.Kind == models.KindLP {
		return nil, ledger.ErrUnsupported
	}
	return r.Get(token.ID), nil
}

func (r *Resolver) Get(tokenID uint32) *Ledger {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.ledgers[tokenID]
	if !ok {
		l = New()
		r.ledgers[tokenID] = l
	}
	return l
}
