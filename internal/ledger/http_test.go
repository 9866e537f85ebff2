package ledger

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcRequest struct {
	Method string         `json:"method"`
	Params map[string]any `json:"params"`
}

func gateway(t *testing.T, handle func(req rpcRequest) (any, *map[string]any)) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/ledger-1", r.URL.Path)
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		result, rpcErr := handle(req)
		body := map[string]any{"jsonrpc": "2.0", "id": 1}
		if rpcErr != nil {
			body["error"] = *rpcErr
		} else {
			body["result"] = result
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestLedger(t *testing.T, url string) *HTTPLedger {
	l, err := NewHTTPLedger(HTTPConfig{GatewayURL: url + "/", LedgerID: "ledger-1"})
	require.NoError(t, err)
	return l
}

func TestHTTPLedger_Transfer(t *testing.T) {
	srv, _ := gateway(t, func(req rpcRequest) (any, *map[string]any) {
		assert.Equal(t, "icrc1_transfer", req.Method)
		assert.Equal(t, "alice", req.Params["to"])
		assert.Equal(t, "1500", req.Params["amount"])
		return map[string]any{"block_index": 42}, nil
	})

	proof, err := newTestLedger(t, srv.URL).Transfer(context.Background(), "alice", big.NewInt(1500), "req:1")
	require.NoError(t, err)
	require.NotNil(t, proof.BlockIndex)
	assert.Equal(t, uint64(42), *proof.BlockIndex)
}

func TestHTTPLedger_TransferRejectedIsNotRetried(t *testing.T) {
	srv, calls := gateway(t, func(req rpcRequest) (any, *map[string]any) {
		e := map[string]any{"code": 3, "message": "insufficient funds"}
		return nil, &e
	})

	_, err := newTestLedger(t, srv.URL).Transfer(context.Background(), "alice", big.NewInt(1), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransferFailed)

	var lerr *Error
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, 3, lerr.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPLedger_ServerErrorIsTransferFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	l, err := NewHTTPLedger(HTTPConfig{GatewayURL: srv.URL, LedgerID: "ledger-1"})
	require.NoError(t, err)

	_, err = l.Transfer(context.Background(), "alice", big.NewInt(1), "")
	assert.ErrorIs(t, err, ErrTransferFailed)
}

func TestHTTPLedger_Block(t *testing.T) {
	srv, _ := gateway(t, func(req rpcRequest) (any, *map[string]any) {
		assert.Equal(t, "get_block", req.Method)
		if req.Params["index"].(float64) == 7 {
			return map[string]any{"index": 7, "kind": "transfer", "from": "bob", "to": "treasury", "amount": 250}, nil
		}
		return nil, nil
	})
	l := newTestLedger(t, srv.URL)

	b, err := l.Block(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, BlockTransfer, b.Kind)
	assert.Equal(t, "bob", b.From)
	assert.Equal(t, int64(250), b.Amount.Int64())

	_, err = l.Block(context.Background(), 8)
	assert.ErrorIs(t, err, ErrBlockNotFound)
}

func TestRouter_For(t *testing.T) {
	solCalls := 0
	r := NewRouter(RouterConfig{
		GatewayURL: "http://gateway",
		Solana: func(token *models.Token) (Ledger, error) {
			solCalls++
			return &HTTPLedger{ledgerID: token.Address()}, nil
		},
	})

	native := &models.Token{Symbol: "ICP", Kind: models.KindNative, Native: &models.NativeToken{LedgerID: "icp-ledger", Decimals: 8}}
	l1, err := r.For(native)
	require.NoError(t, err)
	l2, err := r.For(native)
	require.NoError(t, err)
	assert.Same(t, l1, l2)

	sol := &models.Token{Symbol: "SOL", Kind: models.KindCrossChain, CrossChain: &models.CrossChainToken{Chain: models.ChainSolana, Mint: "mint", Decimals: 9}}
	_, err = r.For(sol)
	require.NoError(t, err)
	_, err = r.For(sol)
	require.NoError(t, err)
	assert.Equal(t, 1, solCalls)

	lp := &models.Token{Symbol: "A_B", Kind: models.KindLP, LP: &models.LPToken{PoolID: 1, Token0: 1, Token1: 2}}
	_, err = r.For(lp)
	assert.ErrorIs(t, err, ErrUnsupported)
}
