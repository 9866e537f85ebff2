package server

import (
	"errors"
	"net/http"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/claims"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/engine"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/ledger"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/liquidity"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/lptoken"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/models"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/pool"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/pricing"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/registry"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/requests"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/router"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/settlement"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/solpay"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/switches"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/transfers"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/wallet"
	"github.com/labstack/echo/v4"
)

// NotFoundJSON returns a custom HTTP error handler that returns JSON responses
// This ensures all errors (including 404s) have consistent JSON format
func NotFoundJSON() echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		if he, ok := err.(*echo.HTTPError); ok {
			_ = c.JSON(he.Code, ErrorResponse{
				Error: http.StatusText(he.Code),
				Code:  he.Code,
			})
			return
		}

		_ = c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "internal server error",
			Code:  http.StatusInternalServerError,
		})
	}
}

// statusTable is checked in order; the first sentinel found in the chain wins
var statusTable = []struct {
	err  error
	code int
}{
	// not found
	{pool.ErrPoolNotFound, http.StatusNotFound},
	{registry.ErrUnknownToken, http.StatusNotFound},
	{requests.ErrRequestNotFound, http.StatusNotFound},
	{claims.ErrClaimNotFound, http.StatusNotFound},
	{switches.ErrNotFound, http.StatusNotFound},
	{claims.ErrNotOwner, http.StatusForbidden},

	// conflicts with existing state
	{pool.ErrPoolExists, http.StatusConflict},
	{pool.ErrLPSupplyOutstanding, http.StatusConflict},
	{registry.ErrTokenExists, http.StatusConflict},
	{transfers.ErrProofAlreadyUsed, http.StatusConflict},
	{claims.ErrAlreadyClaimed, http.StatusConflict},
	{claims.ErrClaimInProgress, http.StatusConflict},

	// malformed or disallowed input
	{engine.ErrInvalidArgs, http.StatusBadRequest},
	{engine.ErrOperationDisabled, http.StatusBadRequest},
	{pool.ErrInvalidPair, http.StatusBadRequest},
	{router.ErrSameToken, http.StatusBadRequest},
	{liquidity.ErrZeroAmount, http.StatusBadRequest},
	{settlement.ErrZeroAmount, http.StatusBadRequest},
	{pricing.ErrNegativeAmount, http.StatusBadRequest},
	{lptoken.ErrInvalidAmount, http.StatusBadRequest},
	{models.ErrInvalidProof, http.StatusBadRequest},
	{models.ErrInvalidToken, http.StatusBadRequest},
	{switches.ErrUnknownOp, http.StatusBadRequest},
	{settlement.ErrTransferFromUnsupported, http.StatusBadRequest},
	{settlement.ErrSolanaUnavailable, http.StatusBadRequest},
	{solpay.ErrInvalidSender, http.StatusBadRequest},

	// retry later
	{engine.ErrShuttingDown, http.StatusServiceUnavailable},

	// well formed but not executable against current state
	{engine.ErrSlippageExceeded, http.StatusUnprocessableEntity},
	{pricing.ErrZeroLiquidity, http.StatusUnprocessableEntity},
	{router.ErrAmountTooSmall, http.StatusUnprocessableEntity},
	{liquidity.ErrAmountTooSmall, http.StatusUnprocessableEntity},
	{liquidity.ErrExceedsSupply, http.StatusUnprocessableEntity},
	{lptoken.ErrInsufficientLPBalance, http.StatusUnprocessableEntity},
	{pool.ErrInsufficientPoolBalance, http.StatusUnprocessableEntity},
	{claims.ErrClaimRetryExhausted, http.StatusUnprocessableEntity},
	{ledger.ErrBlockNotFound, http.StatusUnprocessableEntity},
	{settlement.ErrNotATransfer, http.StatusUnprocessableEntity},
	{settlement.ErrWrongSender, http.StatusUnprocessableEntity},
	{settlement.ErrWrongRecipient, http.StatusUnprocessableEntity},
	{settlement.ErrAmountMismatch, http.StatusUnprocessableEntity},
	{solpay.ErrBadSignature, http.StatusUnprocessableEntity},
	{solpay.ErrStaleMessage, http.StatusUnprocessableEntity},
	{solpay.ErrTxNotFound, http.StatusUnprocessableEntity},
	{solpay.ErrTxNotConfirmed, http.StatusUnprocessableEntity},
	{solpay.ErrSenderMismatch, http.StatusUnprocessableEntity},
	{solpay.ErrRecipientMismatch, http.StatusUnprocessableEntity},
	{solpay.ErrMintMismatch, http.StatusUnprocessableEntity},
	{solpay.ErrAmountMismatch, http.StatusUnprocessableEntity},

	// a ledger we depend on failed
	{ledger.ErrTransferFailed, http.StatusBadGateway},
	{ledger.ErrUnsupported, http.StatusBadGateway},
	{claims.ErrClaimFailed, http.StatusBadGateway},
	{wallet.ErrConfirmTimeout, http.StatusBadGateway},
	{wallet.ErrTxFailed, http.StatusBadGateway},
}

// StatusOf maps an engine error to an HTTP status code
func StatusOf(err error) int {
	for _, s := range statusTable {
		if errors.Is(err, s.err) {
			return s.code
		}
	}
	return http.StatusInternalServerError
}
