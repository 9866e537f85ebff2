package models

import "errors"

type ProofKind string

const (
	ProofBlockIndex   ProofKind = "block_index"   // user already transferred, we check the block
	ProofTransferFrom ProofKind = "transfer_from" // we pull the approved amount
	ProofSolana       ProofKind = "solana"        // signed message plus relayed Solana tx
)

var ErrInvalidProof = errors.New("invalid payment proof")

// PaymentProof is how a caller shows the pay side of an operation
type PaymentProof struct {
	Kind       ProofKind    `json:"kind"`
	BlockIndex uint64       `json:"block_index,omitempty"`
	Solana     *SolanaProof `json:"solana,omitempty"`
}

// SolanaProof carries the offchain-signed message and the tx it refers to
type SolanaProof struct {
	TxSignature string `json:"tx_signature"`
	Sender      string `json:"sender"`    // base58 pubkey that signed both the tx and the message
	Signature   string `json:"signature"` // base58 ed25519 signature of the canonical message
	Timestamp   int64  `json:"timestamp"` // unix millis embedded in the message
}

func (p PaymentProof) Validate() error {
	switch p.Kind {
	case ProofBlockIndex, ProofTransferFrom:
		return nil
	case ProofSolana:
		if p.Solana == nil || p.Solana.TxSignature == "" || p.Solana.Sender == "" || p.Solana.Signature == "" {
			return ErrInvalidProof
		}
		return nil
	default:
		return ErrInvalidProof
	}
}
