package switches

import (
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("switch not found")
	ErrUnknownOp = errors.New("unknown operation")
)

// Operations that can be switched off at runtime
const (
	OpSwap            = "swap"
	OpAddLiquidity    = "add_liquidity"
	OpRemoveLiquidity = "remove_liquidity"
	OpClaim           = "claim"
)

var knownOps = map[string]bool{
	OpSwap:            true,
	OpAddLiquidity:    true,
	OpRemoveLiquidity: true,
	OpClaim:           true,
}

// Ops lists the switchable operations
func Ops() []string {
	return []string{OpSwap, OpAddLiquidity, OpRemoveLiquidity, OpClaim}
}

type Switch struct {
	Op        string    `json:"op"`
	Enabled   bool      `json:"enabled"`
	Reason    string    `json:"reason,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
