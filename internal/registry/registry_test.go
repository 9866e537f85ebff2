package registry

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/models"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	kv, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return New(kv, nil)
}

func ledgerToken(symbol string, decimals uint8) *models.Token {
	return &models.Token{
		Symbol: symbol,
		Kind:   models.KindLedger,
		Listed: true,
		Ledger: &models.LedgerToken{LedgerID: symbol + "-ledger", Decimals: decimals, Fee: big.NewInt(10)},
	}
}

func TestRegistry_AddResolveLookup(t *testing.T) {
	r := newTestRegistry(t)

	tok, err := r.Add(ledgerToken("ckUSDT", 6))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), tok.ID)
	assert.False(t, tok.CreatedAt.IsZero())

	got, err := r.Resolve(tok.ID)
	require.NoError(t, err)
	assert.Equal(t, "ckUSDT", got.Symbol)
	assert.Equal(t, uint8(6), got.Decimals())
	assert.Equal(t, big.NewInt(10), got.TransferFee())

	bySym, err := r.Lookup("ckusdt")
	require.NoError(t, err)
	assert.Equal(t, tok.ID, bySym.ID)

	byID, err := r.Lookup("1")
	require.NoError(t, err)
	assert.Equal(t, tok.ID, byID.ID)

	_, err = r.Lookup("NOPE")
	assert.ErrorIs(t, err, ErrUnknownToken)
	_, err = r.Resolve(99)
	assert.ErrorIs(t, err, ErrUnknownToken)
}

func TestRegistry_RejectsDuplicatesAndInvalid(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Add(ledgerToken("ICP", 8))
	require.NoError(t, err)

	_, err = r.Add(ledgerToken("icp", 8))
	assert.ErrorIs(t, err, ErrTokenExists)

	bad := ledgerToken("BAD", 8)
	bad.Native = &models.NativeToken{LedgerID: "x"}
	_, err = r.Add(bad)
	assert.ErrorIs(t, err, models.ErrInvalidToken)
}

func TestRegistry_SetListedAndList(t *testing.T) {
	r := newTestRegistry(t)

	a, err := r.Add(ledgerToken("AAA", 8))
	require.NoError(t, err)
	_, err = r.Add(ledgerToken("BBB", 8))
	require.NoError(t, err)

	require.NoError(t, r.SetListed(a.ID, false))
	got, err := r.Resolve(a.ID)
	require.NoError(t, err)
	assert.False(t, got.Listed)

	all, err := r.List()
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, "AAA", all[0].Symbol)
}

func TestRegistry_Seed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tokens.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"symbol":"ICP","kind":"native","ledger_id":"ryjl3","decimals":8,"fee":"10000"},
		{"symbol":"SOL","kind":"cross_chain","mint":"So11111111111111111111111111111111111111112","decimals":9,"fee":"5000"}
	]`), 0o600))

	r := newTestRegistry(t)
	n, err := r.Seed(path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	sol, err := r.BySymbol("SOL")
	require.NoError(t, err)
	assert.Equal(t, models.KindCrossChain, sol.Kind)
	assert.Equal(t, models.ChainSolana, sol.Chain())
	assert.True(t, sol.IsCrossChain())

	// seeding again adds nothing
	n, err = r.Seed(path)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestLoadTokensFromJSON_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tokens.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"symbol":"X","kind":"cross_chain","mint":"not-base58!","decimals":6}]`), 0o600))

	_, err := LoadTokensFromJSON(path)
	assert.Error(t, err)

	_, err = LoadTokensFromJSON(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
