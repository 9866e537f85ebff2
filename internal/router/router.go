package router

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/models"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/pool"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/pricing"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/registry"
)

var (
	ErrSameToken      = errors.New("pay and receive tokens are the same")
	ErrAmountTooSmall = errors.New("amount too small to trade")
)

// displayPlaces is the precision of human-readable prices
const displayPlaces = 8

// PoolSource finds pools by pair, in either order
type PoolSource interface {
	GetByPair(a, b uint32) (*models.Pool, error)
}

// Hop is one pool on a path, oriented in the trade direction
type Hop struct {
	Pool         *models.Pool
	PayToken     uint32
	ReceiveToken uint32
}

// FindPath prefers a direct listed pool and otherwise routes two hops
// through the quote token
func FindPath(pools PoolSource, from, to, quoteToken uint32) ([]Hop, error) {
	if from == to {
		return nil, ErrSameToken
	}
	if p, err := listed(pools, from, to); err == nil {
		return []Hop{{Pool: p, PayToken: from, ReceiveToken: to}}, nil
	} else if !errors.Is(err, pool.ErrPoolNotFound) {
		return nil, err
	}

	if from == quoteToken || to == quoteToken {
		return nil, fmt.Errorf("%w: no pool for %d/%d", pool.ErrPoolNotFound, from, to)
	}
	first, err := listed(pools, from, quoteToken)
	if err != nil {
		return nil, fmt.Errorf("no route %d -> %d: %w", from, to, err)
	}
	second, err := listed(pools, quoteToken, to)
	if err != nil {
		return nil, fmt.Errorf("no route %d -> %d: %w", from, to, err)
	}
	return []Hop{
		{Pool: first, PayToken: from, ReceiveToken: quoteToken},
		{Pool: second, PayToken: quoteToken, ReceiveToken: to},
	}, nil
}

func listed(pools PoolSource, a, b uint32) (*models.Pool, error) {
	p, err := pools.GetByPair(a, b)
	if err != nil {
		return nil, err
	}
	if !p.Listed {
		return nil, fmt.Errorf("%w: %s is not listed", pool.ErrPoolNotFound, p.Symbol)
	}
	return p, nil
}

// QuoteHop prices one leg on the pool's current reserves. The fee is taken
// from the pay amount before pricing and split between LPs and protocol.
func QuoteHop(p *models.Pool, pay, receive *models.Token, amount *big.Int) (*models.SwapLeg, error) {
	if amount.Sign() <= 0 {
		return nil, ErrAmountTooSmall
	}
	reserveIn, reserveOut := p.Reserves(pay.ID)
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, fmt.Errorf("%w: pool %s", pricing.ErrZeroLiquidity, p.Symbol)
	}

	fee := pricing.Fee(amount, p.LPFeeBps)
	net := new(big.Int).Sub(amount, fee)
	out, err := pricing.SwapOutput(reserveIn, pay.Decimals(), reserveOut, receive.Decimals(), net)
	if err != nil {
		return nil, err
	}
	if out.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s %s buys nothing on %s", ErrAmountTooSmall, amount, pay.Symbol, p.Symbol)
	}

	available := p.Liquidity1()
	if p.Token0 == receive.ID {
		available = p.Liquidity0()
	}
	if out.Cmp(available) > 0 {
		return nil, fmt.Errorf("%w: %s needs %s, pool holds %s", pool.ErrInsufficientPoolBalance, p.Symbol, out, available)
	}

	mid, err := pricing.UnitPrice(reserveIn, pay.Decimals(), reserveOut, receive.Decimals())
	if err != nil {
		return nil, err
	}
	exec, err := pricing.UnitPrice(amount, pay.Decimals(), out, receive.Decimals())
	if err != nil {
		return nil, err
	}

	lpFee, protocolFee := pricing.SplitFee(fee, p.LPFeeBps, p.ProtocolFeeBps)
	return &models.SwapLeg{
		PoolID:          p.ID,
		PoolSymbol:      p.Symbol,
		PayToken:        pay.ID,
		PayAmount:       new(big.Int).Set(amount),
		ReceiveToken:    receive.ID,
		ReceiveAmount:   out,
		LPFee:           lpFee,
		ProtocolFee:     protocolFee,
		MidPrice:        mid,
		Price:           exec,
		MidPriceDisplay: pricing.Display(mid, displayPlaces),
		PriceDisplay:    pricing.Display(exec, displayPlaces),
	}, nil
}

// Route is a priced path. ReceiveAmount is what reaches the user after the
// receive token's transfer fee.
type Route struct {
	Legs          []*models.SwapLeg `json:"legs"`
	PayToken      uint32            `json:"pay_token"`
	PayAmount     *big.Int          `json:"pay_amount"`
	ReceiveToken  uint32            `json:"receive_token"`
	GrossReceive  *big.Int          `json:"gross_receive"`
	GasFee        *big.Int          `json:"gas_fee"`
	ReceiveAmount *big.Int          `json:"receive_amount"`
	MidPrice      *big.Rat          `json:"-"`
	Price         *big.Rat          `json:"-"`
	SlippageBps   *big.Rat          `json:"-"`

	MidPriceDisplay string `json:"mid_price"`
	PriceDisplay    string `json:"price"`
	SlippageDisplay string `json:"slippage_bps"`
}

// Quote prices an amount along path. Each hop is priced on the pool as it
// stands, so hops never see each other's effect; the two pools of a route
// are always distinct.
func Quote(tokens registry.Resolver, path []Hop, amount *big.Int) (*Route, error) {
	if len(path) == 0 {
		return nil, pool.ErrPoolNotFound
	}

	first, err := tokens.Resolve(path[0].PayToken)
	if err != nil {
		return nil, err
	}
	route := &Route{
		PayToken:  first.ID,
		PayAmount: new(big.Int).Set(amount),
		MidPrice:  big.NewRat(1, 1),
	}

	pay := first
	in := amount
	var receive *models.Token
	for _, hop := range path {
		receive, err = tokens.Resolve(hop.ReceiveToken)
		if err != nil {
			return nil, err
		}
		leg, err := QuoteHop(hop.Pool, pay, receive, in)
		if err != nil {
			return nil, err
		}
		route.Legs = append(route.Legs, leg)
		route.MidPrice.Mul(route.MidPrice, leg.MidPrice)
		pay, in = receive, leg.ReceiveAmount
	}

	route.ReceiveToken = receive.ID
	route.GrossReceive = new(big.Int).Set(in)
	route.GasFee = receive.TransferFee()
	route.ReceiveAmount = new(big.Int).Sub(in, route.GasFee)
	if route.ReceiveAmount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: output %s does not cover the %s transfer fee %s", ErrAmountTooSmall, in, receive.Symbol, route.GasFee)
	}

	route.Price, err = pricing.UnitPrice(amount, first.Decimals(), route.GrossReceive, receive.Decimals())
	if err != nil {
		return nil, err
	}
	route.SlippageBps = pricing.SlippageBps(route.MidPrice, route.Price)
	route.MidPriceDisplay = pricing.Display(route.MidPrice, displayPlaces)
	route.PriceDisplay = pricing.Display(route.Price, displayPlaces)
	route.SlippageDisplay = pricing.Display(route.SlippageBps, 2)
	return route, nil
}

// Symbols renders the pools a route crosses
func (r *Route) Symbols() []string {
	out := make([]string, 0, len(r.Legs))
	for _, l := range r.Legs {
		out = append(out, l.PoolSymbol)
	}
	return out
}
