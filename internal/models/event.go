package models

import (
	"math/big"
	"time"
)

// SettlementEvent is published once an operation reaches a terminal status
type SettlementEvent struct {
	RequestID uint64      `json:"request_id"`
	Kind      RequestKind `json:"kind"`
	UserID    string      `json:"user_id"`
	Status    StatusCode  `json:"status"`
	Pools     []string    `json:"pools,omitempty"`

	PayToken      string   `json:"pay_token,omitempty"`
	PayAmount     *big.Int `json:"pay_amount,omitempty"`
	ReceiveToken  string   `json:"receive_token,omitempty"`
	ReceiveAmount *big.Int `json:"receive_amount,omitempty"`
	ClaimIDs      []uint64 `json:"claim_ids,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}
