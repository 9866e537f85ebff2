package models

import (
	"math/big"
	"time"
)

type ClaimStatus string

const (
	ClaimUnclaimed       ClaimStatus = "Unclaimed"
	ClaimClaimable       ClaimStatus = "Claimable"
	ClaimClaiming        ClaimStatus = "Claiming"
	ClaimClaimed         ClaimStatus = "Claimed"
	ClaimTooManyAttempts ClaimStatus = "TooManyAttempts"
)

// Retryable reports whether a payout attempt may start from this status
func (s ClaimStatus) Retryable() bool {
	return s == ClaimUnclaimed || s == ClaimClaimable
}

// Claim is money still owed to a user after a payout failed
type Claim struct {
	ID                uint64      `json:"id"`
	UserID            string      `json:"user_id"`
	TokenID           uint32      `json:"token_id"`
	Amount            *big.Int    `json:"amount"`
	ToAddress         string      `json:"to_address"`
	Status            ClaimStatus `json:"status"`
	Attempts          int         `json:"attempts"`
	RequestID         uint64      `json:"request_id"`
	AttemptRequestIDs []uint64    `json:"attempt_request_ids,omitempty"`
	TransferIDs       []uint64    `json:"transfer_ids,omitempty"`
	Desc              string      `json:"desc,omitempty"`
	TS                time.Time   `json:"ts"`
	UpdatedAt         time.Time   `json:"updated_at"`
}
