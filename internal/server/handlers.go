package server

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/engine"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/switches"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// SwitchStore is the runtime operation switch backend
type SwitchStore interface {
	Set(ctx context.Context, op string, enabled bool, reason string) (*switches.Switch, error)
	List(ctx context.Context) ([]*switches.Switch, error)
}

// Handlers contains all dependencies for API endpoint handlers
type Handlers struct {
	Engine   *engine.Engine
	Switches SwitchStore   // nil disables the switch endpoints
	Timeout  time.Duration // bound on one synchronous settlement call
	DevMode  bool          // Enable detailed error responses in development
	Logger   *logrus.Logger
}

// err returns a standardized JSON error response
// In dev mode, includes additional error details for debugging
func (h *Handlers) err(c echo.Context, code int, msg string, details any) error {
	resp := ErrorResponse{Error: msg, Code: code}
	if h.DevMode && details != nil {
		resp.Details = details
	}
	return c.JSON(code, resp)
}

// fail renders an engine error. Client errors carry the error text, server
// side ones only a generic message.
func (h *Handlers) fail(c echo.Context, err error) error {
	code := StatusOf(err)
	resp := ErrorResponse{Error: err.Error(), Code: code}
	var re *engine.RequestError
	if errors.As(err, &re) {
		resp.RequestID = re.RequestID
	}
	if code >= http.StatusInternalServerError {
		resp.Error = http.StatusText(code)
		if h.DevMode {
			resp.Details = map[string]any{"err": err.Error()}
		}
		if h.Logger != nil {
			h.Logger.WithError(err).WithField("path", c.Path()).Error("request failed")
		}
	}
	return c.JSON(code, resp)
}

// settleContext detaches from the client so a settlement that has started
// moving tokens is not cut off by a disconnect
func (h *Handlers) settleContext(c echo.Context) (context.Context, context.CancelFunc) {
	d := h.Timeout
	if d <= 0 {
		d = 75 * time.Second
	}
	return context.WithTimeout(context.WithoutCancel(c.Request().Context()), d)
}

// withTimeout creates a context with timeout, defaulting to 10 seconds if duration <= 0
func (h *Handlers) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(ctx, d)
}

func parseAmount(s string) (*big.Int, bool) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok || v.Sign() <= 0 {
		return nil, false
	}
	return v, true
}

func (h *Handlers) badAmount(c echo.Context, field string) error {
	return h.err(c, http.StatusBadRequest, "invalid "+field, map[string]any{field: "must be a positive integer"})
}

func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{OK: true})
}

func (h *Handlers) Tokens(c echo.Context) error {
	items, err := h.Engine.Tokens()
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

func (h *Handlers) Pools(c echo.Context) error {
	items, err := h.Engine.ListPools()
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

func (h *Handlers) Pool(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid pool id", map[string]any{"id": "must be uint32"})
	}
	p, err := h.Engine.GetPool(uint32(id))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handlers) Request(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid request id", map[string]any{"id": "must be uint64"})
	}
	req, err := h.Engine.GetRequest(id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, req)
}

// UserRequests lists a user's newest requests; limit defaults server side
func (h *Handlers) UserRequests(c echo.Context) error {
	limit := 0
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "must be a positive integer"})
		}
		limit = n
	}
	items, err := h.Engine.Requests(c.Param("user"), limit)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

func (h *Handlers) UserClaims(c echo.Context) error {
	items, err := h.Engine.Claims(c.Param("user"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

func (h *Handlers) UserLP(c echo.Context) error {
	items, err := h.Engine.LPBalances(c.Param("user"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// swapArgs decodes a swap body. On false the error response is already written.
func (h *Handlers) swapArgs(c echo.Context) (engine.SwapArgs, bool, error) {
	var req SwapRequest
	if err := c.Bind(&req); err != nil {
		return engine.SwapArgs{}, false, h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	amount, ok := parseAmount(req.PayAmount)
	if !ok {
		return engine.SwapArgs{}, false, h.badAmount(c, "pay_amount")
	}
	return engine.SwapArgs{
		User:           callerOf(c),
		PayToken:       req.PayToken,
		PayAmount:      amount,
		ReceiveToken:   req.ReceiveToken,
		ReceiveAddress: req.ReceiveAddress,
		MaxSlippageBps: req.MaxSlippageBps,
		Proof:          req.Proof,
	}, true, nil
}

func (h *Handlers) Swap(c echo.Context) error {
	args, ok, err := h.swapArgs(c)
	if !ok {
		return err
	}
	ctx, cancel := h.settleContext(c)
	defer cancel()

	reply, err := h.Engine.Swap(ctx, args)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, reply)
}

// SubmitSwap answers once the swap is recorded; the outcome is read back
// from /v1/requests/:id
func (h *Handlers) SubmitSwap(c echo.Context) error {
	args, ok, err := h.swapArgs(c)
	if !ok {
		return err
	}
	id, err := h.Engine.SubmitSwap(c.Request().Context(), args)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusAccepted, SubmitResponse{RequestID: id})
}

func (h *Handlers) AddLiquidity(c echo.Context) error {
	var req AddLiquidityRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	amountA, ok := parseAmount(req.AmountA)
	if !ok {
		return h.badAmount(c, "amount_a")
	}
	// amount_b is optional; the engine sizes it when side B is pulled
	var amountB *big.Int
	if req.AmountB != "" {
		if amountB, ok = parseAmount(req.AmountB); !ok {
			return h.badAmount(c, "amount_b")
		}
	}
	ctx, cancel := h.settleContext(c)
	defer cancel()

	reply, err := h.Engine.AddLiquidity(ctx, engine.AddLiquidityArgs{
		User:    callerOf(c),
		TokenA:  req.TokenA,
		TokenB:  req.TokenB,
		AmountA: amountA,
		AmountB: amountB,
		ProofA:  req.ProofA,
		ProofB:  req.ProofB,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, reply)
}

func (h *Handlers) RemoveLiquidity(c echo.Context) error {
	var req RemoveLiquidityRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	lpAmount, ok := parseAmount(req.LPAmount)
	if !ok {
		return h.badAmount(c, "lp_amount")
	}
	ctx, cancel := h.settleContext(c)
	defer cancel()

	reply, err := h.Engine.RemoveLiquidity(ctx, engine.RemoveLiquidityArgs{
		User:     callerOf(c),
		TokenA:   req.TokenA,
		TokenB:   req.TokenB,
		LPAmount: lpAmount,
		ToA:      req.ToA,
		ToB:      req.ToB,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, reply)
}

func (h *Handlers) Claim(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid claim id", map[string]any{"id": "must be uint64"})
	}
	ctx, cancel := h.settleContext(c)
	defer cancel()

	claim, err := h.Engine.Claim(ctx, callerOf(c), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, claim)
}

func (h *Handlers) QuoteSwap(c echo.Context) error {
	pay := strings.TrimSpace(c.QueryParam("pay"))
	receive := strings.TrimSpace(c.QueryParam("receive"))
	if pay == "" || receive == "" {
		return h.err(c, http.StatusBadRequest, "pay and receive are required", map[string]any{"pay": pay, "receive": receive})
	}
	amount, ok := parseAmount(c.QueryParam("amount"))
	if !ok {
		return h.badAmount(c, "amount")
	}
	route, err := h.Engine.QuoteSwap(pay, receive, amount)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, route)
}

// QuoteAddLiquidity sizes a deposit; without amount_b the counterpart is
// computed from the pool ratio
func (h *Handlers) QuoteAddLiquidity(c echo.Context) error {
	amountA, ok := parseAmount(c.QueryParam("amount_a"))
	if !ok {
		return h.badAmount(c, "amount_a")
	}
	var amountB *big.Int
	if s := c.QueryParam("amount_b"); s != "" {
		if amountB, ok = parseAmount(s); !ok {
			return h.badAmount(c, "amount_b")
		}
	}
	q, err := h.Engine.QuoteAddLiquidity(c.QueryParam("token_a"), c.QueryParam("token_b"), amountA, amountB)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, q)
}

func (h *Handlers) QuoteRemoveLiquidity(c echo.Context) error {
	lpAmount, ok := parseAmount(c.QueryParam("lp_amount"))
	if !ok {
		return h.badAmount(c, "lp_amount")
	}
	q, err := h.Engine.QuoteRemoveLiquidity(c.QueryParam("token_a"), c.QueryParam("token_b"), lpAmount)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, q)
}

func (h *Handlers) CreatePool(c echo.Context) error {
	var req CreatePoolRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	info, err := h.Engine.CreatePool(ctx, engine.CreatePoolArgs{
		User:           callerOf(c),
		TokenA:         req.TokenA,
		TokenB:         req.TokenB,
		LPFeeBps:       req.LPFeeBps,
		ProtocolFeeBps: req.ProtocolFeeBps,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, info)
}

// RemovePool returns 204 No Content on success
func (h *Handlers) RemovePool(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid pool id", map[string]any{"id": "must be uint32"})
	}
	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Engine.RemovePool(ctx, uint32(id)); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handlers) ListSwitches(c echo.Context) error {
	if h.Switches == nil {
		return h.err(c, http.StatusNotFound, "switches are not configured", nil)
	}
	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	items, err := h.Switches.List(ctx)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

func (h *Handlers) SetSwitch(c echo.Context) error {
	if h.Switches == nil {
		return h.err(c, http.StatusNotFound, "switches are not configured", nil)
	}
	op := c.Param("op")
	if err := switches.ValidateOp(op); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid op", map[string]any{"op": switches.Ops()})
	}
	var req SwitchRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	sw, err := h.Switches.Set(ctx, op, req.Enabled, req.Reason)
	if err != nil {
		return h.fail(c, err)
	}
	if h.Logger != nil {
		h.Logger.WithFields(logrus.Fields{"op": op, "enabled": sw.Enabled, "by": callerOf(c)}).Info("operation switch changed")
	}
	return c.JSON(http.StatusOK, sw)
}

func (h *Handlers) CheckSupply(c echo.Context) error {
	items, err := h.Engine.CheckSupply()
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}
