package models

import (
	"encoding/json"
	"time"
)

type RequestKind string

const (
	RequestSwap            RequestKind = "swap"
	RequestAddLiquidity    RequestKind = "add_liquidity"
	RequestRemoveLiquidity RequestKind = "remove_liquidity"
	RequestClaim           RequestKind = "claim"
	RequestAddPool         RequestKind = "add_pool"
)

type StatusCode string

const (
	StatusStarted              StatusCode = "Started"
	StatusQuoting              StatusCode = "Quoting"
	StatusRouting              StatusCode = "Routing"
	StatusVerifyingPayment     StatusCode = "VerifyingPayment"
	StatusVerifyPaymentSuccess StatusCode = "VerifyPaymentSuccess"
	StatusVerifyPaymentFailed  StatusCode = "VerifyPaymentFailed"
	StatusExecuting            StatusCode = "Executing"
	StatusUpdatePool           StatusCode = "UpdatePool"
	StatusMintLPToken          StatusCode = "MintLPToken"
	StatusBurnLPToken          StatusCode = "BurnLPToken"
	StatusPayingOut            StatusCode = "PayingOut"
	StatusPayoutSuccess        StatusCode = "PayoutSuccess"
	StatusPayoutFailed         StatusCode = "PayoutFailed"
	StatusClaimCreated         StatusCode = "ClaimCreated"
	StatusReturnPayToken       StatusCode = "ReturnPayToken"
	StatusRefundExcess         StatusCode = "RefundExcess"
	StatusClaiming             StatusCode = "Claiming"
	StatusSuccess              StatusCode = "Success"
	StatusSuccessPayoutPending StatusCode = "SuccessPayoutPending"
	StatusFailed               StatusCode = "Failed"
)

// Terminal reports whether no further status can follow
func (c StatusCode) Terminal() bool {
	return c == StatusSuccess || c == StatusSuccessPayoutPending || c == StatusFailed
}

type StatusEntry struct {
	Code   StatusCode `json:"code"`
	TS     time.Time  `json:"ts"`
	Detail string     `json:"detail,omitempty"`
}

// Request is the audit trail of one top-level operation. Statuses are only
// ever appended.
type Request struct {
	ID        uint64          `json:"id"`
	Kind      RequestKind     `json:"kind"`
	UserID    string          `json:"user_id"`
	Args      json.RawMessage `json:"args,omitempty"`
	Statuses  []StatusEntry   `json:"statuses"`
	Reply     json.RawMessage `json:"reply,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Last returns the most recent status code, or "" for an empty trail
func (r *Request) Last() StatusCode {
	if len(r.Statuses) == 0 {
		return ""
	}
	return r.Statuses[len(r.Statuses)-1].Code
}

func (r *Request) Done() bool { return r.Last().Terminal() }
