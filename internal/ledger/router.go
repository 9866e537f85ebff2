package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/models"
	"github.com/sirupsen/logrus"
)

// SolanaFactory builds the ledger for a cross-chain token
type SolanaFactory func(token *models.Token) (Ledger, error)

// Router resolves tokens to ledgers, caching one HTTPLedger per ledger id
type Router struct {
	gatewayURL string
	timeout    time.Duration
	solana     SolanaFactory
	logger     *logrus.Logger

	mu    sync.Mutex
	cache map[string]Ledger
}

type RouterConfig struct {
	GatewayURL string
	Timeout    time.Duration
	Solana     SolanaFactory // nil disables cross-chain tokens
	Logger     *logrus.Logger
}

func NewRouter(cfg RouterConfig) *Router {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Router{
		gatewayURL: cfg.GatewayURL,
		timeout:    cfg.Timeout,
		solana:     cfg.Solana,
		logger:     cfg.Logger,
		cache:      make(map[string]Ledger),
	}
}

func (r *Router) For(token *models.Token) (Ledger, error) {
	switch token.Kind {
	case models.KindNative, models.KindLedger:
		return r.http(token.Address())
	case models.KindCrossChain:
		if r.solana == nil {
			return nil, fmt.Errorf("%w: no solana ledger configured for %s", ErrUnsupported, token.Symbol)
		}
		key := "sol:" + token.Address()
		r.mu.Lock()
		defer r.mu.Unlock()
		if l, ok := r.cache[key]; ok {
			return l, nil
		}
		l, err := r.solana(token)
		if err != nil {
			return nil, err
		}
		r.cache[key] = l
		return l, nil
	case models.KindLP:
		return nil, fmt.Errorf("%w: lp token %s has no external ledger", ErrUnsupported, token.Symbol)
	default:
		return nil, fmt.Errorf("%w: token kind %q", ErrUnsupported, token.Kind)
	}
}

func (r *Router) http(ledgerID string) (Ledger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.cache[ledgerID]; ok {
		return l, nil
	}
	l, err := NewHTTPLedger(HTTPConfig{
		GatewayURL: r.gatewayURL,
		LedgerID:   ledgerID,
		Timeout:    r.timeout,
		Logger:     r.logger,
	})
	if err != nil {
		return nil, err
	}
	r.cache[ledgerID] = l
	return l, nil
}
