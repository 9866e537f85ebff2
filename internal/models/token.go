package models

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// TokenKind tags which variant of Token is populated
type TokenKind string

const (
	KindNative     TokenKind = "native"      // chain-native token with its own ledger service
	KindLedger     TokenKind = "ledger"      // token held in an external ledger service
	KindCrossChain TokenKind = "cross_chain" // token settled on another chain (Solana)
	KindLP         TokenKind = "lp"          // pool receipt token, tracked internally
)

// Chain identifiers
const (
	ChainLedger = "LEDGER"
	ChainSolana = "SOL"
	ChainLocal  = "LP"
)

var ErrInvalidToken = errors.New("invalid token")

// Token is a sum type over the supported token kinds. Exactly one of the
// variant pointers is set and it must match Kind. Only Listed may change once
// the token is stored.
type Token struct {
	ID        uint32    `json:"id"`
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name"`
	Kind      TokenKind `json:"kind"`
	Listed    bool      `json:"listed"`
	CreatedAt time.Time `json:"created_at"`

	Native     *NativeToken     `json:"native,omitempty"`
	Ledger     *LedgerToken     `json:"ledger,omitempty"`
	CrossChain *CrossChainToken `json:"cross_chain,omitempty"`
	LP         *LPToken         `json:"lp,omitempty"`
}

type NativeToken struct {
	LedgerID string   `json:"ledger_id"`
	Decimals uint8    `json:"decimals"`
	Fee      *big.Int `json:"fee"`
}

type LedgerToken struct {
	LedgerID     string   `json:"ledger_id"`
	Decimals     uint8    `json:"decimals"`
	Fee          *big.Int `json:"fee"`
	TransferFrom bool     `json:"transfer_from"` // ledger supports approve + transfer_from
}

type CrossChainToken struct {
	Chain    string   `json:"chain"`
	Mint     string   `json:"mint"`
	Decimals uint8    `json:"decimals"`
	Fee      *big.Int `json:"fee"`
}

// LPToken is derived from a pool; its balances live in the lp ledger
type LPToken struct {
	PoolID   uint32 `json:"pool_id"`
	Token0   uint32 `json:"token_0"`
	Token1   uint32 `json:"token_1"`
	Decimals uint8  `json:"decimals"`
}

func (t *Token) Decimals() uint8 {
	switch t.Kind {
	case KindNative:
		return t.Native.Decimals
	case KindLedger:
		return t.Ledger.Decimals
	case KindCrossChain:
		return t.CrossChain.Decimals
	case KindLP:
		return t.LP.Decimals
	default:
		return 0
	}
}

// TransferFee is the fee the token's ledger charges per outbound transfer
func (t *Token) TransferFee() *big.Int {
	var fee *big.Int
	switch t.Kind {
	case KindNative:
		fee = t.Native.Fee
	case KindLedger:
		fee = t.Ledger.Fee
	case KindCrossChain:
		fee = t.CrossChain.Fee
	case KindLP:
		fee = nil
	}
	if fee == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(fee)
}

func (t *Token) Chain() string {
	switch t.Kind {
	case KindNative, KindLedger:
		return ChainLedger
	case KindCrossChain:
		return t.CrossChain.Chain
	case KindLP:
		return ChainLocal
	default:
		return ""
	}
}

// Address is the ledger id or mint backing the token
func (t *Token) Address() string {
	switch t.Kind {
	case KindNative:
		return t.Native.LedgerID
	case KindLedger:
		return t.Ledger.LedgerID
	case KindCrossChain:
		return t.CrossChain.Mint
	case KindLP:
		return fmt.Sprintf("pool:%d", t.LP.PoolID)
	default:
		return ""
	}
}

// SupportsTransferFrom reports whether payments can be pulled with transfer_from
func (t *Token) SupportsTransferFrom() bool {
	switch t.Kind {
	case KindNative:
		return true
	case KindLedger:
		return t.Ledger.TransferFrom
	case KindCrossChain, KindLP:
		return false
	default:
		return false
	}
}

func (t *Token) IsCrossChain() bool { return t.Kind == KindCrossChain }

// Validate checks that exactly the variant named by Kind is populated
func (t *Token) Validate() error {
	if strings.TrimSpace(t.Symbol) == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidToken)
	}

	set := 0
	for _, ok := range []bool{t.Native != nil, t.Ledger != nil, t.CrossChain != nil, t.LP != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: %s must have exactly one variant, has %d", ErrInvalidToken, t.Symbol, set)
	}

	switch t.Kind {
	case KindNative:
		if t.Native == nil || t.Native.LedgerID == "" {
			return fmt.Errorf("%w: %s native ledger id is required", ErrInvalidToken, t.Symbol)
		}
	case KindLedger:
		if t.Ledger == nil || t.Ledger.LedgerID == "" {
			return fmt.Errorf("%w: %s ledger id is required", ErrInvalidToken, t.Symbol)
		}
	case KindCrossChain:
		if t.CrossChain == nil || t.CrossChain.Mint == "" {
			return fmt.Errorf("%w: %s mint is required", ErrInvalidToken, t.Symbol)
		}
		if t.CrossChain.Chain != ChainSolana {
			return fmt.Errorf("%w: %s unsupported chain %q", ErrInvalidToken, t.Symbol, t.CrossChain.Chain)
		}
	case KindLP:
		if t.LP == nil || t.LP.Token0 >= t.LP.Token1 {
			return fmt.Errorf("%w: %s lp token pair is not ordered", ErrInvalidToken, t.Symbol)
		}
	default:
		return fmt.Errorf("%w: %s unknown kind %q", ErrInvalidToken, t.Symbol, t.Kind)
	}

	if fee := t.TransferFee(); fee.Sign() < 0 {
		return fmt.Errorf("%w: %s fee is negative", ErrInvalidToken, t.Symbol)
	}
	return nil
}
