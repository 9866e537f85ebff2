// Package relay watches the treasury on Solana and fills the relay cache
// the payment verifier reads from.
package relay

import (
	"math/big"
	"time"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/rpc"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/solpay"
)

// Extract derives the transfer into treasury from a transaction's balance
// deltas. SPL token accounts owned by the treasury are checked first, then the
// treasury's own lamports. It reports false when nothing was received.
func Extract(signature, status string, tx *rpc.TransactionResult, treasury string) (*solpay.RelayedTx, bool) {
	if tx == nil || tx.Meta == nil || tx.Transaction == nil {
		return nil, false
	}
	if tx.Meta.Err != nil {
		return nil, false
	}

	out := &solpay.RelayedTx{
		Signature: signature,
		Status:    status,
		Receiver:  treasury,
		Slot:      tx.Slot,
		SeenAt:    time.Now().UTC(),
	}
	if tx.BlockTime != nil {
		out.BlockTime = *tx.BlockTime
	}

	if mint, sender, amount, ok := splReceived(tx, treasury); ok {
		out.Mint, out.Sender, out.Amount = mint, sender, amount.String()
		return out, true
	}
	if sender, amount, ok := solReceived(tx, treasury); ok {
		out.Mint, out.Sender, out.Amount = solpay.NativeMint, sender, amount.String()
		return out, true
	}
	return nil, false
}

func splReceived(tx *rpc.TransactionResult, treasury string) (mint, sender string, amount *big.Int, ok bool) {
	meta := tx.Meta
	pre := make(map[int]rpc.TokenBalance, len(meta.PreTokenBalances))
	for _, b := range meta.PreTokenBalances {
		pre[b.AccountIndex] = b
	}
	post := make(map[int]rpc.TokenBalance, len(meta.PostTokenBalances))
	for _, b := range meta.PostTokenBalances {
		post[b.AccountIndex] = b
	}

	for _, p := range meta.PostTokenBalances {
		if p.Owner != treasury {
			continue
		}
		delta := new(big.Int).Sub(rawAmount(p), rawAmount(pre[p.AccountIndex]))
		if delta.Sign() <= 0 {
			continue
		}

		// the sender is whoever's account of the same mint went down
		sender = feePayer(tx)
		for idx, b := range pre {
			if b.Mint != p.Mint || b.Owner == treasury {
				continue
			}
			if rawAmount(post[idx]).Cmp(rawAmount(b)) < 0 {
				sender = b.Owner
				break
			}
		}
		return p.Mint, sender, delta, true
	}
	return "", "", nil, false
}

func solReceived(tx *rpc.TransactionResult, treasury string) (sender string, amount *big.Int, ok bool) {
	meta := tx.Meta
	keys := tx.Transaction.Message.AccountKeys
	if len(meta.PreBalances) != len(keys) || len(meta.PostBalances) != len(keys) {
		return "", nil, false
	}

	idx := -1
	for i, k := range keys {
		if k.Pubkey == treasury {
			idx = i
			break
		}
	}
	if idx < 0 || meta.PostBalances[idx] <= meta.PreBalances[idx] {
		return "", nil, false
	}
	amount = new(big.Int).SetUint64(meta.PostBalances[idx] - meta.PreBalances[idx])

	// largest lamport drop among signers
	sender = feePayer(tx)
	var drop uint64
	for i, k := range keys {
		if i == idx || !k.Signer || meta.PostBalances[i] >= meta.PreBalances[i] {
			continue
		}
		if d := meta.PreBalances[i] - meta.PostBalances[i]; d > drop {
			drop, sender = d, k.Pubkey
		}
	}
	return sender, amount, true
}

func rawAmount(b rpc.TokenBalance) *big.Int {
	v, ok := new(big.Int).SetString(b.UITokenAmount.Amount, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}

func feePayer(tx *rpc.TransactionResult) string {
	if keys := tx.Transaction.Message.AccountKeys; len(keys) > 0 {
		return keys[0].Pubkey
	}
	return ""
}
