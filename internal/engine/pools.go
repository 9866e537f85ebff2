package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/actor"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/liquidity"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/models"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/pool"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/pricing"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/registry"
	"github.com/sirupsen/logrus"
)

type CreatePoolArgs struct {
	User           string `json:"user"`
	TokenA         string `json:"token_a"`
	TokenB         string `json:"token_b"`
	LPFeeBps       uint32 `json:"lp_fee_bps,omitempty"`       // engine default when zero
	ProtocolFeeBps uint32 `json:"protocol_fee_bps,omitempty"` // engine default when zero
}

// PoolInfo is a pool with its display fields filled in
type PoolInfo struct {
	*models.Pool
	Token0Symbol string   `json:"token_0_symbol"`
	Token1Symbol string   `json:"token_1_symbol"`
	LPSymbol     string   `json:"lp_symbol"`
	LPSupply     *big.Int `json:"lp_supply"`
	Price        string   `json:"price,omitempty"` // token 1 per token 0
}

// CreatePool registers the pair's LP token and then the pool itself. The
// LP symbol is "<token0>_<token1>", suffixed with the pool id when a
// removed pool already holds it.
func (e *Engine) CreatePool(ctx context.Context, args CreatePoolArgs) (*PoolInfo, error) {
	r, err := e.open(models.RequestAddPool, args.User, args)
	if err != nil {
		return nil, err
	}
	lpFee, protoFee := args.LPFeeBps, args.ProtocolFeeBps
	if lpFee == 0 {
		lpFee = e.lpFeeBps
	}
	if protoFee == 0 {
		protoFee = e.protocolFeeBps
	}

	info, err := actor.Exec(e.actor, func() (*PoolInfo, error) {
		a, err := e.tradable(args.TokenA)
		if err != nil {
			return nil, err
		}
		b, err := e.tradable(args.TokenB)
		if err != nil {
			return nil, err
		}
		if a.ID == b.ID {
			return nil, fmt.Errorf("%w: %s twice", pool.ErrInvalidPair, a.Symbol)
		}
		if _, err := e.pools.GetByPair(a.ID, b.ID); err == nil {
			return nil, fmt.Errorf("%w: %s/%s", pool.ErrPoolExists, a.Symbol, b.Symbol)
		} else if !errors.Is(err, pool.ErrPoolNotFound) {
			return nil, err
		}
		if a.ID > b.ID {
			a, b = b, a
		}

		id, err := e.pools.NextID()
		if err != nil {
			return nil, err
		}
		symbol := a.Symbol + "_" + b.Symbol
		lpTok, err := e.tokens.Add(lpToken(symbol, id, a, b))
		if errors.Is(err, registry.ErrTokenExists) {
			lpTok, err = e.tokens.Add(lpToken(fmt.Sprintf("%s_%d", symbol, id), id, a, b))
		}
		if err != nil {
			return nil, fmt.Errorf("register lp token: %w", err)
		}

		p, err := e.pools.Create(id, pool.Spec{
			TokenA:         a.ID,
			TokenB:         b.ID,
			Symbol:         symbol,
			LPFeeBps:       lpFee,
			ProtocolFeeBps: protoFee,
			LPTokenID:      lpTok.ID,
		})
		if err != nil {
			if uerr := e.tokens.SetListed(lpTok.ID, false); uerr != nil {
				e.logger.WithError(uerr).WithField("lp_token", lpTok.Symbol).Warn("failed to unlist orphaned lp token")
			}
			return nil, err
		}
		return &PoolInfo{Pool: p, Token0Symbol: a.Symbol, Token1Symbol: b.Symbol, LPSymbol: lpTok.Symbol, LPSupply: new(big.Int)}, nil
	})
	if err != nil {
		return nil, r.fail(ctx, err, nil, nil)
	}

	r.finish(ctx, models.StatusSuccess, "", info, &models.SettlementEvent{Pools: []string{info.Symbol}})
	return info, nil
}

func lpToken(symbol string, poolID uint32, t0, t1 *models.Token) *models.Token {
	return &models.Token{
		Symbol: symbol,
		Name:   t0.Symbol + "/" + t1.Symbol + " LP",
		Kind:   models.KindLP,
		Listed: true,
		LP: &models.LPToken{
			PoolID:   poolID,
			Token0:   t0.ID,
			Token1:   t1.ID,
			Decimals: liquidity.LPDecimals(t0.Decimals(), t1.Decimals()),
		},
	}
}

// RemovePool deletes a pool nobody holds LP tokens in. Fees and dust left
// in custody stay with the protocol.
func (e *Engine) RemovePool(ctx context.Context, id uint32) error {
	return e.actor.Sync(func() error {
		p, err := e.pools.GetByID(id)
		if err != nil {
			return err
		}
		supply, err := e.lp.TotalSupply(p.LPTokenID)
		if err != nil {
			return err
		}
		if err := e.pools.Remove(id, supply); err != nil {
			return err
		}
		if err := e.tokens.SetListed(p.LPTokenID, false); err != nil {
			e.logger.WithError(err).WithField("pool", p.Symbol).Warn("failed to unlist lp token")
		}
		e.logger.WithFields(logrus.Fields{
			"pool":          p.Symbol,
			"balance_0":     p.Balance0.String(),
			"balance_1":     p.Balance1.String(),
			"protocol_fee0": p.ProtocolFee0.String(),
			"protocol_fee1": p.ProtocolFee1.String(),
		}).Info("pool removed")
		return nil
	})
}

func (e *Engine) ListPools() ([]*PoolInfo, error) {
	return actor.Exec(e.actor, func() ([]*PoolInfo, error) {
		pools, err := e.pools.List()
		if err != nil {
			return nil, err
		}
		out := make([]*PoolInfo, 0, len(pools))
		for _, p := range pools {
			info, err := e.describe(p)
			if err != nil {
				return nil, err
			}
			out = append(out, info)
		}
		return out, nil
	})
}

func (e *Engine) GetPool(id uint32) (*PoolInfo, error) {
	return actor.Exec(e.actor, func() (*PoolInfo, error) {
		p, err := e.pools.GetByID(id)
		if err != nil {
			return nil, err
		}
		return e.describe(p)
	})
}

func (e *Engine) describe(p *models.Pool) (*PoolInfo, error) {
	t0, err := e.tokens.Resolve(p.Token0)
	if err != nil {
		return nil, err
	}
	t1, err := e.tokens.Resolve(p.Token1)
	if err != nil {
		return nil, err
	}
	supply, err := e.lp.TotalSupply(p.LPTokenID)
	if err != nil {
		return nil, err
	}
	info := &PoolInfo{Pool: p, Token0Symbol: t0.Symbol, Token1Symbol: t1.Symbol, LPSupply: supply}
	if lp, err := e.tokens.Resolve(p.LPTokenID); err == nil {
		info.LPSymbol = lp.Symbol
	}
	if price, err := pricing.UnitPrice(p.Reserve0(), t0.Decimals(), p.Reserve1(), t1.Decimals()); err == nil {
		info.Price = pricing.Display(price, 8)
	}
	return info, nil
}

// SupplyReport is the result of checking one pool's LP token
type SupplyReport struct {
	Pool    string   `json:"pool"`
	LPToken uint32   `json:"lp_token"`
	Supply  *big.Int `json:"supply"`
	Holders int      `json:"holders"`
	Error   string   `json:"error,omitempty"`
}

// CheckSupply verifies supply == sum of balances for every pool's LP token
func (e *Engine) CheckSupply() ([]SupplyReport, error) {
	return actor.Exec(e.actor, func() ([]SupplyReport, error) {
		pools, err := e.pools.List()
		if err != nil {
			return nil, err
		}
		out := make([]SupplyReport, 0, len(pools))
		for _, p := range pools {
			rep := SupplyReport{Pool: p.Symbol, LPToken: p.LPTokenID}
			if rep.Supply, err = e.lp.TotalSupply(p.LPTokenID); err != nil {
				return nil, err
			}
			holders, err := e.lp.Holders(p.LPTokenID)
			if err != nil {
				return nil, err
			}
			rep.Holders = len(holders)
			if err := e.lp.CheckSupply(p.LPTokenID); err != nil {
				rep.Error = err.Error()
			}
			out = append(out, rep)
		}
		return out, nil
	})
}

func (e *Engine) Tokens() ([]*models.Token, error) {
	return e.tokens.List()
}

// LPBalance is a holder's position in one pool
type LPBalance struct {
	Pool    string   `json:"pool"`
	LPToken string   `json:"lp_token"`
	Balance *big.Int `json:"balance"`
}

// LPBalances lists user's non-zero LP positions
func (e *Engine) LPBalances(user string) ([]LPBalance, error) {
	return actor.Exec(e.actor, func() ([]LPBalance, error) {
		pools, err := e.pools.List()
		if err != nil {
			return nil, err
		}
		out := []LPBalance{}
		for _, p := range pools {
			bal, err := e.lp.BalanceOf(p.LPTokenID, user)
			if err != nil {
				return nil, err
			}
			if bal.Sign() == 0 {
				continue
			}
			lb := LPBalance{Pool: p.Symbol, Balance: bal}
			if lp, err := e.tokens.Resolve(p.LPTokenID); err == nil {
				lb.LPToken = lp.Symbol
			}
			out = append(out, lb)
		}
		return out, nil
	})
}
