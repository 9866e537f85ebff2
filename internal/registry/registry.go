package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/models"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/store"
	"github.com/sirupsen/logrus"
)

var (
	ErrUnknownToken = errors.New("unknown token")
	ErrTokenExists  = errors.New("token already exists")
)

const tokenSeq = "tokens"

// Resolver is the read-only view the engine depends on
type Resolver interface {
	Resolve(id uint32) (*models.Token, error)
}

// Registry stores token metadata keyed by id, with a symbol index
type Registry struct {
	kv     store.KV
	logger *logrus.Logger
}

func New(kv store.KV, logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{kv: kv, logger: logger}
}

func (r *Registry) Resolve(id uint32) (*models.Token, error) {
	var t models.Token
	if err := store.GetJSON(r.kv, store.RegionTokens, store.U32(id), &t); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrUnknownToken, id)
		}
		return nil, err
	}
	return &t, nil
}

func (r *Registry) BySymbol(symbol string) (*models.Token, error) {
	b, err := r.kv.Get(store.RegionSymbolIndex, symbolKey(symbol))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownToken, symbol)
		}
		return nil, err
	}
	id, err := store.ParseU32(b)
	if err != nil {
		return nil, fmt.Errorf("symbol index %s: %w", symbol, err)
	}
	return r.Resolve(id)
}

// Lookup accepts a symbol (case-insensitive) or a numeric token id
func (r *Registry) Lookup(ref string) (*models.Token, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: empty reference", ErrUnknownToken)
	}
	if id, err := strconv.ParseUint(ref, 10, 32); err == nil {
		return r.Resolve(uint32(id))
	}
	return r.BySymbol(ref)
}

// Add validates and stores a new token, assigning its id
func (r *Registry) Add(t *models.Token) (*models.Token, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if _, err := r.BySymbol(t.Symbol); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrTokenExists, t.Symbol)
	}

	id, err := r.kv.NextID(tokenSeq)
	if err != nil {
		return nil, err
	}
	out := *t
	out.ID = uint32(id)
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now().UTC()
	}
	if out.Kind == models.KindLP && out.LP != nil {
		lp := *out.LP
		out.LP = &lp
	}

	err = r.kv.Batch(func(b store.Writer) error {
		if err := store.PutJSON(b, store.RegionTokens, store.U32(out.ID), &out); err != nil {
			return err
		}
		return b.Set(store.RegionSymbolIndex, symbolKey(out.Symbol), store.U32(out.ID))
	})
	if err != nil {
		return nil, fmt.Errorf("add token %s: %w", out.Symbol, err)
	}

	r.logger.WithFields(logrus.Fields{
		"id":     out.ID,
		"symbol": out.Symbol,
		"kind":   out.Kind,
	}).Info("token registered")
	return &out, nil
}

// SetListed flips the only mutable token field
func (r *Registry) SetListed(id uint32, listed bool) error {
	t, err := r.Resolve(id)
	if err != nil {
		return err
	}
	t.Listed = listed
	return store.SetJSON(r.kv, store.RegionTokens, store.U32(id), t)
}

func (r *Registry) List() ([]*models.Token, error) {
	out := []*models.Token{}
	err := r.kv.Iterate(store.RegionTokens, nil, func(_, v []byte) error {
		var t models.Token
		if err := json.Unmarshal(v, &t); err != nil {
			return err
		}
		out = append(out, &t)
		return nil
	})
	return out, err
}

func symbolKey(symbol string) []byte {
	return []byte(strings.ToUpper(strings.TrimSpace(symbol)))
}
