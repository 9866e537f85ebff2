package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/constants"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/models"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/switches"
)

// Claim retries the payout of one of caller's claims. The attempt runs
// under its own request, whose id is on the returned claim.
func (e *Engine) Claim(ctx context.Context, caller string, id uint64) (*models.Claim, error) {
	if err := e.checkGate(ctx, switches.OpClaim); err != nil {
		return nil, err
	}
	if strings.TrimSpace(caller) == "" {
		return nil, fmt.Errorf("%w: caller is required", ErrInvalidArgs)
	}
	return e.claims.Claim(ctx, caller, id)
}

func (e *Engine) Claims(user string) ([]*models.Claim, error) {
	return e.claims.ListByUser(user)
}

func (e *Engine) GetRequest(id uint64) (*models.Request, error) {
	return e.requests.Get(id)
}

// Requests returns user's newest requests first
func (e *Engine) Requests(user string, limit int) ([]*models.Request, error) {
	if limit <= 0 {
		limit = constants.DefaultRequestListLimit
	}
	if limit > constants.MaxRequestListLimit {
		limit = constants.MaxRequestListLimit
	}
	return e.requests.ListByUser(user, limit)
}
