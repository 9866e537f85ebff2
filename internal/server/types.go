package server

import "github.com/aman-zulfiqar/solana-amm-settlement/internal/models"

// ErrorResponse represents a standardized error response format
type ErrorResponse struct {
	Error     string `json:"error"`                // Human-readable error message
	Code      int    `json:"code"`                 // HTTP status code
	RequestID uint64 `json:"request_id,omitempty"` // Request that recorded the failure, if one was opened
	Details   any    `json:"details,omitempty"`    // Additional error details (dev mode only)
}

// HealthResponse represents the health check response
type HealthResponse struct {
	OK bool `json:"ok"`
}

// Amounts travel as decimal strings so values above 2^53 survive JSON clients

type SwapRequest struct {
	PayToken       string              `json:"pay_token"`
	PayAmount      string              `json:"pay_amount"`
	ReceiveToken   string              `json:"receive_token"`
	ReceiveAddress string              `json:"receive_address,omitempty"`
	MaxSlippageBps uint32              `json:"max_slippage_bps,omitempty"`
	Proof          models.PaymentProof `json:"proof"`
}

type AddLiquidityRequest struct {
	TokenA  string              `json:"token_a"`
	TokenB  string              `json:"token_b"`
	AmountA string              `json:"amount_a"`
	AmountB string              `json:"amount_b,omitempty"`
	ProofA  models.PaymentProof `json:"proof_a"`
	ProofB  models.PaymentProof `json:"proof_b"`
}

type RemoveLiquidityRequest struct {
	TokenA   string `json:"token_a"`
	TokenB   string `json:"token_b"`
	LPAmount string `json:"lp_amount"`
	ToA      string `json:"to_a,omitempty"`
	ToB      string `json:"to_b,omitempty"`
}

type CreatePoolRequest struct {
	TokenA         string `json:"token_a"`
	TokenB         string `json:"token_b"`
	LPFeeBps       uint32 `json:"lp_fee_bps,omitempty"`
	ProtocolFeeBps uint32 `json:"protocol_fee_bps,omitempty"`
}

type SwitchRequest struct {
	Enabled bool   `json:"enabled"`
	Reason  string `json:"reason,omitempty"`
}

// SubmitResponse is returned by asynchronous submissions
type SubmitResponse struct {
	RequestID uint64 `json:"request_id"`
}
