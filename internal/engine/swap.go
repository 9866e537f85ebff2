package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/models"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/pricing"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/router"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/settlement"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/switches"
	"github.com/sirupsen/logrus"
)

type SwapArgs struct {
	User           string              `json:"user"`
	PayToken       string              `json:"pay_token"` // symbol or id
	PayAmount      *big.Int            `json:"pay_amount"`
	ReceiveToken   string              `json:"receive_token"`
	ReceiveAddress string              `json:"receive_address,omitempty"` // defaults to User
	MaxSlippageBps uint32              `json:"max_slippage_bps,omitempty"`
	Proof          models.PaymentProof `json:"proof"`
}

type SwapReply struct {
	RequestID     uint64            `json:"request_id"`
	Status        models.StatusCode `json:"status"`
	PayToken      string            `json:"pay_token"`
	PayAmount     *big.Int          `json:"pay_amount"`
	ReceiveToken  string            `json:"receive_token"`
	ReceiveAmount *big.Int          `json:"receive_amount"`
	GasFee        *big.Int          `json:"gas_fee"`
	MidPrice      string            `json:"mid_price"`
	Price         string            `json:"price"`
	SlippageBps   string            `json:"slippage_bps"`
	Legs          []*models.SwapLeg `json:"legs"`
	Payout        *Payment          `json:"payout,omitempty"`
	Returned      *Payment          `json:"returned,omitempty"` // pay tokens sent back after a failed execution
	TS            time.Time         `json:"ts"`
}

// SolanaSwapArgs is what a Solana payer signs for a swap, before the tx
// signature, sender and timestamp are added. The caller is part of it so a
// signed payment cannot be replayed under another identity.
func SolanaSwapArgs(a SwapArgs, pay, receive *models.Token) map[string]string {
	return map[string]string{
		"op":               "swap",
		"caller":           a.User,
		"pay_token":        pay.Symbol,
		"pay_amount":       a.PayAmount.String(),
		"receive_token":    receive.Symbol,
		"receive_address":  a.receiveAddress(),
		"max_slippage_bps": strconv.FormatUint(uint64(a.MaxSlippageBps), 10),
	}
}

// receiveAddress defaults to the Solana sender for Solana payments and to
// the caller otherwise
func (a SwapArgs) receiveAddress() string {
	if a.ReceiveAddress != "" {
		return a.ReceiveAddress
	}
	return refundTo(a.User, a.Proof)
}

// QuoteSwap prices a swap on current pools without touching them
func (e *Engine) QuoteSwap(payRef, receiveRef string, amount *big.Int) (*router.Route, error) {
	if !positive(amount) {
		return nil, fmt.Errorf("%w: pay amount must be positive", ErrInvalidArgs)
	}
	pay, err := e.tradable(payRef)
	if err != nil {
		return nil, err
	}
	receive, err := e.tradable(receiveRef)
	if err != nil {
		return nil, err
	}

	var route *router.Route
	err = e.actor.Sync(func() error {
		route, err = e.route(pay.ID, receive.ID, amount)
		return err
	})
	return route, err
}

func (e *Engine) route(pay, receive uint32, amount *big.Int) (*router.Route, error) {
	path, err := router.FindPath(e.pools, pay, receive, e.quoteToken)
	if err != nil {
		return nil, err
	}
	return router.Quote(e.tokens, path, amount)
}

// Swap runs a swap to completion
func (e *Engine) Swap(ctx context.Context, args SwapArgs) (*SwapReply, error) {
	r, pay, receive, err := e.openSwap(ctx, args)
	if err != nil {
		return nil, err
	}
	return e.runSwap(ctx, r, args, pay, receive)
}

// SubmitSwap validates and records the swap, then finishes it in the
// background; poll GetRequest with the returned id
func (e *Engine) SubmitSwap(ctx context.Context, args SwapArgs) (uint64, error) {
	e.mu.Lock()
	closing := e.closing
	e.mu.Unlock()
	if closing {
		return 0, ErrShuttingDown
	}
	r, pay, receive, err := e.openSwap(ctx, args)
	if err != nil {
		return 0, err
	}
	err = e.background(func() {
		_, _ = e.runSwap(context.WithoutCancel(ctx), r, args, pay, receive)
	})
	if err != nil {
		// closed between recording and starting; nothing has been taken yet
		return 0, r.fail(ctx, err, nil, nil)
	}
	return r.req.ID, nil
}

func (e *Engine) openSwap(ctx context.Context, args SwapArgs) (*run, *models.Token, *models.Token, error) {
	if err := e.checkGate(ctx, switches.OpSwap); err != nil {
		return nil, nil, nil, err
	}
	if strings.TrimSpace(args.User) == "" {
		return nil, nil, nil, fmt.Errorf("%w: caller is required", ErrInvalidArgs)
	}

	r, err := e.open(models.RequestSwap, args.User, args)
	if err != nil {
		return nil, nil, nil, err
	}

	pay, receive, err := e.validateSwap(args)
	if err != nil {
		return nil, nil, nil, r.fail(ctx, err, nil, nil)
	}
	return r, pay, receive, nil
}

func (e *Engine) validateSwap(args SwapArgs) (*models.Token, *models.Token, error) {
	if !positive(args.PayAmount) {
		return nil, nil, fmt.Errorf("%w: pay amount must be positive", ErrInvalidArgs)
	}
	if args.MaxSlippageBps > e.maxSlippageBps {
		return nil, nil, fmt.Errorf("%w: max slippage %d bps above the %d bps limit", ErrInvalidArgs, args.MaxSlippageBps, e.maxSlippageBps)
	}
	if err := args.Proof.Validate(); err != nil {
		return nil, nil, err
	}
	pay, err := e.tradable(args.PayToken)
	if err != nil {
		return nil, nil, err
	}
	receive, err := e.tradable(args.ReceiveToken)
	if err != nil {
		return nil, nil, err
	}
	if pay.ID == receive.ID {
		return nil, nil, router.ErrSameToken
	}
	if err := checkPayoutAddress(receive, args.receiveAddress()); err != nil {
		return nil, nil, err
	}
	return pay, receive, nil
}

func (e *Engine) runSwap(ctx context.Context, r *run, args SwapArgs, pay, receive *models.Token) (*SwapReply, error) {
	maxSlippage := args.MaxSlippageBps
	if maxSlippage == 0 {
		maxSlippage = e.maxSlippageBps
	}
	reply := &SwapReply{
		RequestID:    r.req.ID,
		PayToken:     pay.Symbol,
		PayAmount:    new(big.Int).Set(args.PayAmount),
		ReceiveToken: receive.Symbol,
	}
	ev := &models.SettlementEvent{PayToken: pay.Symbol, PayAmount: reply.PayAmount, ReceiveToken: receive.Symbol}

	// Quoting + Routing
	r.status(models.StatusQuoting, "")
	var quoted *router.Route
	err := e.actor.Sync(func() (err error) {
		quoted, err = e.route(pay.ID, receive.ID, args.PayAmount)
		return err
	})
	if err != nil {
		return nil, r.fail(ctx, err, nil, ev)
	}
	r.status(models.StatusRouting, strings.Join(quoted.Symbols(), " -> "))
	ev.Pools = quoted.Symbols()

	// Verifying-Payment: nothing has moved yet, any failure ends here
	r.status(models.StatusVerifyingPayment, string(args.Proof.Kind))
	_, err = e.coordinator.VerifyPayment(ctx, settlement.Payment{
		RequestID: r.req.ID,
		User:      args.User,
		Token:     pay,
		Amount:    args.PayAmount,
		Proof:     args.Proof,
		Args:      SolanaSwapArgs(args, pay, receive),
	})
	if err != nil {
		r.status(models.StatusVerifyPaymentFailed, err.Error())
		return nil, r.fail(ctx, err, nil, ev)
	}
	r.status(models.StatusVerifyPaymentSuccess, "")

	// Executing: reprice on the pools as they are now
	r.status(models.StatusExecuting, "")
	var executed *router.Route
	execErr := e.actor.Sync(func() error {
		fresh, err := e.route(pay.ID, receive.ID, args.PayAmount)
		if err != nil {
			return err
		}
		if pricing.ExceedsSlippage(quoted.MidPrice, fresh.Price, maxSlippage) {
			return fmt.Errorf("%w: %s bps against %d allowed", ErrSlippageExceeded,
				pricing.Display(pricing.SlippageBps(quoted.MidPrice, fresh.Price), 2), maxSlippage)
		}
		if err := e.applyLegs(fresh); err != nil {
			return err
		}
		executed = fresh
		return nil
	})

	if execErr != nil {
		// the payment is already in custody; send it back
		r.status(models.StatusReturnPayToken, execErr.Error())
		returned, err := r.pay(ctx, pay, refundTo(args.User, args.Proof), args.PayAmount, "swap return")
		if err != nil {
			r.log.WithError(err).Error("failed to return pay token")
		}
		reply.Returned = returned
		reply.Status = models.StatusFailed
		reply.TS = time.Now().UTC()
		return reply, r.fail(ctx, execErr, reply, ev)
	}
	r.status(models.StatusUpdatePool, strings.Join(executed.Symbols(), ","))

	reply.Legs = executed.Legs
	reply.ReceiveAmount = executed.ReceiveAmount
	reply.GasFee = executed.GasFee
	reply.MidPrice = executed.MidPriceDisplay
	reply.Price = executed.PriceDisplay
	reply.SlippageBps = executed.SlippageDisplay
	ev.ReceiveAmount = executed.ReceiveAmount

	// Paying-Out: the gas fee is already out of ReceiveAmount
	r.status(models.StatusPayingOut, "")
	payout, err := r.pay(ctx, receive, args.receiveAddress(), executed.GrossReceive, "swap payout")
	if err != nil {
		// the pools moved but neither a transfer nor a claim exists
		r.log.WithError(err).WithFields(logrus.Fields{
			"token":  receive.Symbol,
			"amount": executed.ReceiveAmount.String(),
		}).Error("swap payout lost")
		reply.Status = models.StatusFailed
		return reply, r.fail(ctx, err, reply, ev)
	}
	reply.Payout = payout
	reply.Status = r.done()
	reply.TS = time.Now().UTC()

	r.finish(ctx, reply.Status, "", reply, ev)
	r.log.WithFields(logrus.Fields{
		"route":   strings.Join(executed.Symbols(), " -> "),
		"pay":     pricing.FormatAmount(args.PayAmount, pay.Decimals()) + " " + pay.Symbol,
		"receive": pricing.FormatAmount(executed.ReceiveAmount, receive.Decimals()) + " " + receive.Symbol,
		"price":   executed.PriceDisplay,
	}).Info("swap settled")
	return reply, nil
}

// applyLegs commits every hop or none. Runs inside a section.
func (e *Engine) applyLegs(route *router.Route) error {
	applied := make([]*models.Pool, 0, len(route.Legs))
	for _, leg := range route.Legs {
		p, err := e.pools.GetByID(leg.PoolID)
		if err != nil {
			return e.revert(applied, err)
		}
		before := p.Clone()
		if err := e.pools.ApplySwapLeg(p, leg); err != nil {
			return e.revert(applied, err)
		}
		applied = append(applied, before)
	}
	return nil
}

func (e *Engine) revert(pools []*models.Pool, cause error) error {
	for i := len(pools) - 1; i >= 0; i-- {
		if err := e.pools.Update(pools[i]); err != nil {
			return errors.Join(cause, fmt.Errorf("revert pool %d: %w", pools[i].ID, err))
		}
	}
	return cause
}
