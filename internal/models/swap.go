package models

import "math/big"

// SwapLeg is one hop of a routed swap. It is never persisted on its own;
// legs travel in replies and in the request log.
type SwapLeg struct {
	PoolID        uint32   `json:"pool_id"`
	PoolSymbol    string   `json:"pool_symbol"`
	PayToken      uint32   `json:"pay_token"`
	PayAmount     *big.Int `json:"pay_amount"`
	ReceiveToken  uint32   `json:"receive_token"`
	ReceiveAmount *big.Int `json:"receive_amount"`
	LPFee         *big.Int `json:"lp_fee"`       // in the pay token
	ProtocolFee   *big.Int `json:"protocol_fee"` // in the pay token

	MidPrice *big.Rat `json:"-"` // receive per pay before the trade, in whole units
	Price    *big.Rat `json:"-"` // receive per pay actually executed

	MidPriceDisplay string `json:"mid_price"`
	PriceDisplay    string `json:"price"`
}

// Fee is the full trading fee taken on this hop
func (l *SwapLeg) Fee() *big.Int {
	return new(big.Int).Add(l.LPFee, l.ProtocolFee)
}
