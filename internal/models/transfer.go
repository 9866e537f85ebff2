package models

import (
	"fmt"
	"math/big"
	"time"
)

// ChainProof identifies a transfer on its ledger: a block index for ledger
// backed tokens or a transaction signature for Solana.
type ChainProof struct {
	BlockIndex  *uint64 `json:"block_index,omitempty"`
	TxSignature string  `json:"tx_signature,omitempty"`
}

func BlockProof(index uint64) ChainProof { return ChainProof{BlockIndex: &index} }

func SignatureProof(sig string) ChainProof { return ChainProof{TxSignature: sig} }

// Key is unique per proof and token. Ledger blocks are only unique within
// their own ledger so the token id is part of the key.
func (p ChainProof) Key(tokenID uint32) string {
	if p.BlockIndex != nil {
		return fmt.Sprintf("L/%d/%d", tokenID, *p.BlockIndex)
	}
	return "S/" + p.TxSignature
}

func (p ChainProof) String() string {
	if p.BlockIndex != nil {
		return fmt.Sprintf("block:%d", *p.BlockIndex)
	}
	return "tx:" + p.TxSignature
}

// Transfer is an append-only record of tokens entering or leaving custody
type Transfer struct {
	ID        uint64     `json:"id"`
	RequestID uint64     `json:"request_id"`
	IsSend    bool       `json:"is_send"`
	TokenID   uint32     `json:"token_id"`
	Amount    *big.Int   `json:"amount"`
	Proof     ChainProof `json:"proof"`
	TS        time.Time  `json:"ts"`
}
