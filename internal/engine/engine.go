// Package engine runs the top-level operations: swaps, liquidity changes,
// pool administration and claim retries. Every operation is a sequence of
// actor sections separated by ledger calls; pool state is always re-read
// after a call returns.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/actor"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/claims"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/constants"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/events"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/lptoken"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/metrics"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/models"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/pool"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/registry"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/requests"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/settlement"
	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
)

var (
	ErrOperationDisabled = errors.New("operation disabled")
	ErrInvalidArgs       = errors.New("invalid arguments")
	ErrSlippageExceeded  = errors.New("slippage exceeded")
	ErrShuttingDown      = errors.New("engine is shutting down")
)

// RequestError ties a failure to the request that recorded it
type RequestError struct {
	RequestID uint64
	Err       error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request %d: %v", e.RequestID, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Gate reports whether an operation may start
type Gate interface {
	Enabled(ctx context.Context, op string) (bool, error)
}

type Config struct {
	Registry    *registry.Registry
	Pools       *pool.Ledger
	LP          *lptoken.Ledger
	Requests    *requests.Log
	Coordinator *settlement.Coordinator
	Claims      *claims.Book
	Actor       *actor.Actor // shared with the claim book
	Gate        Gate             // nil allows everything
	Events      events.Publisher // nil publishes nothing

	QuoteToken     uint32 // two-hop routes go through this token
	MaxSlippageBps uint32 // ceiling and default for caller slippage
	LPFeeBps       uint32
	ProtocolFeeBps uint32

	Logger  *logrus.Logger
	Metrics *metrics.Metrics
}

type Engine struct {
	tokens      *registry.Registry
	pools       *pool.Ledger
	lp          *lptoken.Ledger
	requests    *requests.Log
	coordinator *settlement.Coordinator
	claims      *claims.Book
	actor       *actor.Actor
	gate        Gate
	events      events.Publisher

	quoteToken     uint32
	maxSlippageBps uint32
	lpFeeBps       uint32
	protocolFeeBps uint32

	logger  *logrus.Logger
	metrics *metrics.Metrics

	// background swaps started by SubmitSwap
	mu      sync.Mutex
	closing bool
	running sync.WaitGroup
}

func New(cfg Config) (*Engine, error) {
	if cfg.Registry == nil || cfg.Pools == nil || cfg.LP == nil || cfg.Requests == nil || cfg.Coordinator == nil || cfg.Claims == nil {
		return nil, fmt.Errorf("engine: registry, pools, lp, requests, coordinator and claims are required")
	}
	if cfg.Actor == nil {
		cfg.Actor = actor.New()
	}
	if cfg.Events == nil {
		cfg.Events = events.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.MaxSlippageBps == 0 {
		cfg.MaxSlippageBps = constants.DefaultMaxSlippageBps
	}
	if cfg.LPFeeBps == 0 {
		cfg.LPFeeBps = constants.DefaultLPFeeBps
	}
	if cfg.ProtocolFeeBps == 0 {
		cfg.ProtocolFeeBps = constants.DefaultProtocolFeeBps
	}

	return &Engine{
		tokens:         cfg.Registry,
		pools:          cfg.Pools,
		lp:             cfg.LP,
		requests:       cfg.Requests,
		coordinator:    cfg.Coordinator,
		claims:         cfg.Claims,
		actor:          cfg.Actor,
		gate:           cfg.Gate,
		events:         cfg.Events,
		quoteToken:     cfg.QuoteToken,
		maxSlippageBps: cfg.MaxSlippageBps,
		lpFeeBps:       cfg.LPFeeBps,
		protocolFeeBps: cfg.ProtocolFeeBps,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
	}, nil
}

// Close stops accepting background swaps and waits for the ones already
// running to reach a terminal status
func (e *Engine) Close() {
	e.mu.Lock()
	e.closing = true
	e.mu.Unlock()
	e.running.Wait()
}

// background runs fn on its own goroutine unless the engine is closing
func (e *Engine) background(fn func()) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closing {
		return ErrShuttingDown
	}
	e.running.Add(1)
	go func() {
		defer e.running.Done()
		fn()
	}()
	return nil
}

func (e *Engine) checkGate(ctx context.Context, op string) error {
	if e.gate == nil {
		return nil
	}
	ok, err := e.gate.Enabled(ctx, op)
	if err != nil {
		// a switch store outage must not halt trading
		e.logger.WithError(err).WithField("op", op).Warn("switch lookup failed, allowing")
		return nil
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrOperationDisabled, op)
	}
	return nil
}

// tradable resolves a token a user may pay or receive. LP tokens have no
// external ledger and never move through the coordinator.
func (e *Engine) tradable(ref string) (*models.Token, error) {
	t, err := e.tokens.Lookup(ref)
	if err != nil {
		return nil, err
	}
	if t.Kind == models.KindLP {
		return nil, fmt.Errorf("%w: %s is an lp token", ErrInvalidArgs, t.Symbol)
	}
	return t, nil
}

// run tracks one operation's request from open to terminal status
type run struct {
	e       *Engine
	req     *models.Request
	kind    models.RequestKind
	user    string
	started time.Time
	log     *logrus.Entry
	claims  []uint64
}

func (e *Engine) open(kind models.RequestKind, user string, args any) (*run, error) {
	req, err := e.requests.Open(kind, user, args)
	if err != nil {
		return nil, fmt.Errorf("open request: %w", err)
	}
	return &run{
		e:       e,
		req:     req,
		kind:    kind,
		user:    user,
		started: time.Now(),
		log: e.logger.WithFields(logrus.Fields{
			"request_id": req.ID,
			"kind":       kind,
			"user":       user,
		}),
	}, nil
}

func (r *run) status(code models.StatusCode, detail string) {
	if err := r.e.requests.Append(r.req.ID, code, detail); err != nil {
		r.log.WithError(err).WithField("status", code).Error("failed to append request status")
	}
}

// fail ends the request in Failed and returns err tagged with the request id
func (r *run) fail(ctx context.Context, err error, reply any, ev *models.SettlementEvent) error {
	r.finish(ctx, models.StatusFailed, err.Error(), reply, ev)
	r.log.WithError(err).Warn("operation failed")
	return &RequestError{RequestID: r.req.ID, Err: err}
}

func (r *run) finish(ctx context.Context, code models.StatusCode, detail string, reply any, ev *models.SettlementEvent) {
	if err := r.e.requests.Finish(r.req.ID, code, detail, reply); err != nil {
		r.log.WithError(err).Error("failed to finish request")
	}
	r.e.metrics.Operation(string(r.kind), string(code), time.Since(r.started))

	if ev == nil {
		ev = &models.SettlementEvent{}
	}
	ev.RequestID = r.req.ID
	ev.Kind = r.kind
	ev.UserID = r.user
	ev.Status = code
	ev.ClaimIDs = r.claims
	ev.Timestamp = time.Now().UTC()
	if err := r.e.events.Publish(ctx, ev); err != nil {
		r.log.WithError(err).Warn("failed to publish settlement event")
	}
}

// pay sends amount minus the token's transfer fee. Amounts that do not
// cover the fee stay in custody. A failed send is recorded as a claim.
func (r *run) pay(ctx context.Context, token *models.Token, to string, gross *big.Int, desc string) (*Payment, error) {
	net := new(big.Int).Sub(gross, token.TransferFee())
	if net.Sign() <= 0 {
		r.log.WithFields(logrus.Fields{
			"token":  token.Symbol,
			"amount": gross.String(),
		}).Info("amount does not cover transfer fee, kept in custody")
		return nil, nil
	}

	res, err := r.e.coordinator.Payout(ctx, settlement.Payout{
		RequestID: r.req.ID,
		User:      r.user,
		Token:     token,
		To:        to,
		Amount:    net,
		Desc:      desc,
	})
	if err != nil {
		return nil, err
	}

	p := &Payment{Token: token.Symbol, To: to, Amount: net}
	if res.Pending() {
		p.ClaimID = res.Claim.ID
		r.claims = append(r.claims, res.Claim.ID)
		r.status(models.StatusPayoutFailed, desc)
		r.status(models.StatusClaimCreated, fmt.Sprintf("claim %d", res.Claim.ID))
	} else {
		p.TransferID = res.Transfer.ID
		p.Proof = res.Transfer.Proof.String()
		r.status(models.StatusPayoutSuccess, desc)
	}
	return p, nil
}

// done picks the terminal status for an operation whose state change landed
func (r *run) done() models.StatusCode {
	if len(r.claims) > 0 {
		return models.StatusSuccessPayoutPending
	}
	return models.StatusSuccess
}

// Payment is one outbound transfer in a reply. Exactly one of TransferID
// or ClaimID is set.
type Payment struct {
	Token      string   `json:"token"`
	To         string   `json:"to"`
	Amount     *big.Int `json:"amount"`
	TransferID uint64   `json:"transfer_id,omitempty"`
	Proof      string   `json:"proof,omitempty"`
	ClaimID    uint64   `json:"claim_id,omitempty"`
}

func positive(v *big.Int) bool { return v != nil && v.Sign() > 0 }

// refundTo is where tokens paid with proof go back to: the sender of a
// Solana payment, the caller's ledger account otherwise
func refundTo(user string, proof models.PaymentProof) string {
	if proof.Kind == models.ProofSolana && proof.Solana != nil && proof.Solana.Sender != "" {
		return proof.Solana.Sender
	}
	return user
}

// checkPayoutAddress rejects recipients the token's chain cannot pay
func checkPayoutAddress(t *models.Token, to string) error {
	if t.Kind != models.KindCrossChain {
		return nil
	}
	if _, err := solana.PublicKeyFromBase58(to); err != nil {
		return fmt.Errorf("%w: %q is not a Solana address for %s", ErrInvalidArgs, to, t.Symbol)
	}
	return nil
}
