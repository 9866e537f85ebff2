package pool

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/models"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/pricing"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/store"
	"github.com/sirupsen/logrus"
)

var (
	ErrPoolNotFound            = errors.New("pool not found")
	ErrPoolExists              = errors.New("pool already exists")
	ErrInvalidPair             = errors.New("invalid token pair")
	ErrInsufficientPoolBalance = errors.New("insufficient pool balance")
	ErrLPSupplyOutstanding     = errors.New("lp supply outstanding")
)

const poolSeq = "pools"

// Ledger is the authoritative store of pools. Callers serialise mutations
// through the engine's actor; the ledger itself does not lock.
type Ledger struct {
	kv     store.KV
	logger *logrus.Logger
}

func NewLedger(kv store.KV, logger *logrus.Logger) *Ledger {
	if logger == nil {
		logger = logrus.New()
	}
	return &Ledger{kv: kv, logger: logger}
}

// Spec describes a pool to create
type Spec struct {
	TokenA, TokenB uint32
	Symbol         string
	LPFeeBps       uint32
	ProtocolFeeBps uint32
	LPTokenID      uint32
}

// NextID reserves a pool id so the LP token can reference it before the
// pool itself is written
func (l *Ledger) NextID() (uint32, error) {
	id, err := l.kv.NextID(poolSeq)
	if err != nil {
		return 0, err
	}
	return uint32(id), nil
}

// Create inserts an empty pool. The pair is ordered first, so creating
// (B, A) after (A, B) fails the same way as a repeat of (A, B).
func (l *Ledger) Create(id uint32, spec Spec) (*models.Pool, error) {
	if spec.TokenA == spec.TokenB {
		return nil, fmt.Errorf("%w: same token on both sides", ErrInvalidPair)
	}
	if spec.LPFeeBps == 0 || spec.LPFeeBps >= pricing.BpsDenominator {
		return nil, fmt.Errorf("%w: lp fee %d bps", ErrInvalidPair, spec.LPFeeBps)
	}
	if spec.ProtocolFeeBps > spec.LPFeeBps {
		return nil, fmt.Errorf("%w: protocol fee %d exceeds lp fee %d", ErrInvalidPair, spec.ProtocolFeeBps, spec.LPFeeBps)
	}

	t0, t1, _ := models.OrderPair(spec.TokenA, spec.TokenB)
	p := models.NewPool(id, t0, t1, spec.Symbol, spec.LPFeeBps, spec.ProtocolFeeBps, spec.LPTokenID)

	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal pool: %w", err)
	}

	wrote, err := l.kv.SetIfAbsent(store.RegionPairIndex, pairKey(t0, t1), store.U32(id))
	if err != nil {
		return nil, err
	}
	if !wrote {
		return nil, fmt.Errorf("%w: %d/%d", ErrPoolExists, t0, t1)
	}
	if err := l.kv.Set(store.RegionPools, store.U32(id), data); err != nil {
		_ = l.kv.Delete(store.RegionPairIndex, pairKey(t0, t1))
		return nil, err
	}

	l.logger.WithFields(logrus.Fields{
		"pool":     p.Symbol,
		"pool_id":  p.ID,
		"lp_fee":   p.LPFeeBps,
		"protocol": p.ProtocolFeeBps,
	}).Info("pool created")
	return p, nil
}

func (l *Ledger) GetByID(id uint32) (*models.Pool, error) {
	var p models.Pool
	if err := store.GetJSON(l.kv, store.RegionPools, store.U32(id), &p); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrPoolNotFound, id)
		}
		return nil, err
	}
	return &p, nil
}

// GetByPair finds the pool for a pair given in either order
func (l *Ledger) GetByPair(a, b uint32) (*models.Pool, error) {
	t0, t1, _ := models.OrderPair(a, b)
	v, err := l.kv.Get(store.RegionPairIndex, pairKey(t0, t1))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d/%d", ErrPoolNotFound, t0, t1)
		}
		return nil, err
	}
	id, err := store.ParseU32(v)
	if err != nil {
		return nil, fmt.Errorf("pair index: %w", err)
	}
	return l.GetByID(id)
}

func (l *Ledger) List() ([]*models.Pool, error) {
	out := []*models.Pool{}
	err := l.kv.Iterate(store.RegionPools, nil, func(_, v []byte) error {
		var p models.Pool
		if err := json.Unmarshal(v, &p); err != nil {
			return fmt.Errorf("unmarshal pool: %w", err)
		}
		out = append(out, &p)
		return nil
	})
	return out, err
}

// Update persists the whole pool in one write
func (l *Ledger) Update(p *models.Pool) error {
	if err := checkNonNegative(p); err != nil {
		return err
	}
	p.UpdatedAt = time.Now().UTC()
	return store.SetJSON(l.kv, store.RegionPools, store.U32(p.ID), p)
}

// ApplySwapLeg commits one hop. The pay-side balance grows by the full pay
// amount and the receive-side balance shrinks by the receive amount. The
// fee inside the pay amount is counted in the LP and protocol accumulators.
func (l *Ledger) ApplySwapLeg(p *models.Pool, leg *models.SwapLeg) error {
	if leg.PoolID != p.ID {
		return fmt.Errorf("leg for pool %d applied to pool %d", leg.PoolID, p.ID)
	}
	paySide, err := p.Side(leg.PayToken)
	if err != nil {
		return err
	}
	if p.Other(leg.PayToken) != leg.ReceiveToken {
		return fmt.Errorf("%w: leg receive token %d", ErrInvalidPair, leg.ReceiveToken)
	}

	if leg.Fee().Cmp(leg.PayAmount) > 0 {
		return fmt.Errorf("fee exceeds pay amount on pool %d", p.ID)
	}

	next := p.Clone()
	if paySide == 0 {
		next.Balance0.Add(next.Balance0, leg.PayAmount)
		next.LPFee0.Add(next.LPFee0, leg.LPFee)
		next.ProtocolFee0.Add(next.ProtocolFee0, leg.ProtocolFee)
		next.Balance1.Sub(next.Balance1, leg.ReceiveAmount)
	} else {
		next.Balance1.Add(next.Balance1, leg.PayAmount)
		next.LPFee1.Add(next.LPFee1, leg.LPFee)
		next.ProtocolFee1.Add(next.ProtocolFee1, leg.ProtocolFee)
		next.Balance0.Sub(next.Balance0, leg.ReceiveAmount)
	}

	if err := l.Update(next); err != nil {
		return err
	}
	*p = *next
	return nil
}

// Deltas are signed changes for AdjustBalances; nil entries mean zero
type Deltas struct {
	Balance0, Balance1 *big.Int
	LPFee0, LPFee1     *big.Int
}

// AdjustBalances applies liquidity deposits and withdrawals
func (l *Ledger) AdjustBalances(p *models.Pool, d Deltas) error {
	next := p.Clone()
	addTo(next.Balance0, d.Balance0)
	addTo(next.Balance1, d.Balance1)
	addTo(next.LPFee0, d.LPFee0)
	addTo(next.LPFee1, d.LPFee1)

	if err := l.Update(next); err != nil {
		return err
	}
	*p = *next
	return nil
}

// Remove deletes a pool whose LP supply is zero
func (l *Ledger) Remove(id uint32, lpSupply *big.Int) error {
	if lpSupply.Sign() != 0 {
		return fmt.Errorf("%w: %s", ErrLPSupplyOutstanding, lpSupply)
	}
	p, err := l.GetByID(id)
	if err != nil {
		return err
	}
	return l.kv.Batch(func(b store.Writer) error {
		if err := b.Delete(store.RegionPools, store.U32(id)); err != nil {
			return err
		}
		return b.Delete(store.RegionPairIndex, pairKey(p.Token0, p.Token1))
	})
}

func addTo(dst, delta *big.Int) {
	if delta != nil {
		dst.Add(dst, delta)
	}
}

func checkNonNegative(p *models.Pool) error {
	for _, v := range []*big.Int{p.Balance0, p.Balance1, p.LPFee0, p.LPFee1, p.ProtocolFee0, p.ProtocolFee1} {
		if v.Sign() < 0 {
			return fmt.Errorf("%w: pool %d", ErrInsufficientPoolBalance, p.ID)
		}
	}
	if p.Balance0.Cmp(p.ProtocolFee0) < 0 || p.Balance1.Cmp(p.ProtocolFee1) < 0 {
		return fmt.Errorf("%w: pool %d balance below protocol fees", ErrInsufficientPoolBalance, p.ID)
	}
	return nil
}

func pairKey(t0, t1 uint32) []byte {
	return store.Join(store.U32(t0), store.U32(t1))
}
