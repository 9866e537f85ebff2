package lptoken

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/store"
)

var (
	ErrInsufficientLPBalance = errors.New("insufficient lp balance")
	ErrSupplyMismatch        = errors.New("lp supply does not match holder balances")
	ErrInvalidAmount         = errors.New("invalid lp amount")
)

// Ledger tracks LP balances per (token, holder) and the total supply per
// token. Mint and Burn update both in one batch.
type Ledger struct {
	kv store.KV
}

func NewLedger(kv store.KV) *Ledger {
	return &Ledger{kv: kv}
}

func (l *Ledger) BalanceOf(tokenID uint32, holder string) (*big.Int, error) {
	return l.read(store.RegionLPBalances, balanceKey(tokenID, holder))
}

func (l *Ledger) TotalSupply(tokenID uint32) (*big.Int, error) {
	return l.read(store.RegionLPSupply, store.U32(tokenID))
}

func (l *Ledger) Mint(tokenID uint32, holder string, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("%w: mint %s", ErrInvalidAmount, amount)
	}
	return l.apply(tokenID, holder, amount)
}

// Burn removes amount from holder, failing when the balance is short
func (l *Ledger) Burn(tokenID uint32, holder string, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("%w: burn %s", ErrInvalidAmount, amount)
	}
	bal, err := l.BalanceOf(tokenID, holder)
	if err != nil {
		return err
	}
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientLPBalance, bal, amount)
	}
	return l.apply(tokenID, holder, new(big.Int).Neg(amount))
}

// Holding is one holder's LP position
type Holding struct {
	Holder  string   `json:"holder"`
	Balance *big.Int `json:"balance"`
}

// Holders lists non-zero balances for a token in holder order
func (l *Ledger) Holders(tokenID uint32) ([]Holding, error) {
	prefix := store.U32(tokenID)
	out := []Holding{}
	err := l.kv.Iterate(store.RegionLPBalances, prefix, func(k, v []byte) error {
		bal := new(big.Int).SetBytes(v)
		if bal.Sign() == 0 {
			return nil
		}
		out = append(out, Holding{Holder: string(k[len(prefix):]), Balance: bal})
		return nil
	})
	return out, err
}

// CheckSupply verifies the stored supply equals the sum of holder balances
func (l *Ledger) CheckSupply(tokenID uint32) error {
	supply, err := l.TotalSupply(tokenID)
	if err != nil {
		return err
	}
	holders, err := l.Holders(tokenID)
	if err != nil {
		return err
	}
	sum := new(big.Int)
	for _, h := range holders {
		sum.Add(sum, h.Balance)
	}
	if sum.Cmp(supply) != 0 {
		return fmt.Errorf("%w: token %d supply %s, holders %s", ErrSupplyMismatch, tokenID, supply, sum)
	}
	return nil
}

func (l *Ledger) apply(tokenID uint32, holder string, delta *big.Int) error {
	bal, err := l.BalanceOf(tokenID, holder)
	if err != nil {
		return err
	}
	supply, err := l.TotalSupply(tokenID)
	if err != nil {
		return err
	}
	bal.Add(bal, delta)
	supply.Add(supply, delta)
	if bal.Sign() < 0 || supply.Sign() < 0 {
		return ErrInsufficientLPBalance
	}

	return l.kv.Batch(func(b store.Writer) error {
		bk := balanceKey(tokenID, holder)
		if bal.Sign() == 0 {
			if err := b.Delete(store.RegionLPBalances, bk); err != nil {
				return err
			}
		} else if err := b.Set(store.RegionLPBalances, bk, bal.Bytes()); err != nil {
			return err
		}
		return b.Set(store.RegionLPSupply, store.U32(tokenID), supply.Bytes())
	})
}

// amounts are stored as big-endian magnitudes; all are non-negative
func (l *Ledger) read(r store.Region, key []byte) (*big.Int, error) {
	v, err := l.kv.Get(r, key)
	if errors.Is(err, store.ErrNotFound) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(v), nil
}

func balanceKey(tokenID uint32, holder string) []byte {
	return store.Join(store.U32(tokenID), []byte(holder))
}
