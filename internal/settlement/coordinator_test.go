package settlement

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/claims"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/ledger/ledgertest"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/models"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/registry"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/requests"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/store"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/transfers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const treasury = "treasury"

type stubSolana struct {
	err   error
	calls int
}

func (s *stubSolana) Verify(ctx context.Context, token *models.Token, amount *big.Int, proof *models.SolanaProof, args map[string]string) error {
	s.calls++
	return s.err
}

type harness struct {
	coord   *Coordinator
	claims  *claims.Book
	ledgers *ledgertest.Resolver
	solana  *stubSolana
	icp     *models.Token
	usdt    *models.Token
	sol     *models.Token
}

func newHarness(t *testing.T) *harness {
	kv, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	reg := registry.New(kv, nil)
	icp, err := reg.Add(&models.Token{Symbol: "ICP", Kind: models.KindNative, Native: &models.NativeToken{LedgerID: "icp", Decimals: 8, Fee: big.NewInt(10_000)}})
	require.NoError(t, err)
	usdt, err := reg.Add(&models.Token{Symbol: "ckUSDT", Kind: models.KindLedger, Ledger: &models.LedgerToken{LedgerID: "usdt", Decimals: 6, Fee: big.NewInt(10_000), TransferFrom: true}})
	require.NoError(t, err)
	sol, err := reg.Add(&models.Token{Symbol: "SOL", Kind: models.KindCrossChain, CrossChain: &models.CrossChainToken{Chain: models.ChainSolana, Mint: "So11111111111111111111111111111111111111112", Decimals: 9}})
	require.NoError(t, err)

	ledgers := ledgertest.NewResolver()
	log := transfers.NewLog(kv)
	sender := NewSender(SenderConfig{Tokens: reg, Ledgers: ledgers, Transfers: log})
	book := claims.NewBook(claims.BookConfig{KV: kv, Payer: sender, Requests: requests.NewLog(kv), MaxAttempts: 3})
	sol2 := &stubSolana{}

	coord, err := NewCoordinator(Config{
		Ledgers:   ledgers,
		Transfers: log,
		Sender:    sender,
		Claims:    book,
		Solana:    sol2,
		Treasury:  treasury,
	})
	require.NoError(t, err)

	return &harness{coord: coord, claims: book, ledgers: ledgers, solana: sol2, icp: icp, usdt: usdt, sol: sol}
}

func blockPayment(h *harness, user string, index uint64, amount int64) Payment {
	return Payment{
		RequestID: 1,
		User:      user,
		Token:     h.icp,
		Amount:    big.NewInt(amount),
		Proof:     models.PaymentProof{Kind: models.ProofBlockIndex, BlockIndex: index},
	}
}

func TestVerifyPayment_BlockCreditedOnce(t *testing.T) {
	h := newHarness(t)
	idx := h.ledgers.Get(h.icp.ID).AddBlock("alice", treasury, big.NewInt(500))

	tr, err := h.coord.VerifyPayment(context.Background(), blockPayment(h, "alice", idx, 500))
	require.NoError(t, err)
	assert.False(t, tr.IsSend)
	assert.Equal(t, "500", tr.Amount.String())

	_, err = h.coord.VerifyPayment(context.Background(), blockPayment(h, "alice", idx, 500))
	assert.ErrorIs(t, err, transfers.ErrProofAlreadyUsed)
}

func TestVerifyPayment_BlockMismatches(t *testing.T) {
	h := newHarness(t)
	fake := h.ledgers.Get(h.icp.ID)

	idx := fake.AddBlock("alice", treasury, big.NewInt(500))
	_, err := h.coord.VerifyPayment(context.Background(), blockPayment(h, "alice", idx, 501))
	assert.ErrorIs(t, err, ErrAmountMismatch)

	_, err = h.coord.VerifyPayment(context.Background(), blockPayment(h, "bob", idx, 500))
	assert.ErrorIs(t, err, ErrWrongSender)

	other := fake.AddBlock("alice", "someone-else", big.NewInt(500))
	_, err = h.coord.VerifyPayment(context.Background(), blockPayment(h, "alice", other, 500))
	assert.ErrorIs(t, err, ErrWrongRecipient)

	_, err = h.coord.VerifyPayment(context.Background(), blockPayment(h, "alice", 999, 500))
	assert.Error(t, err)

	// a failed verification does not burn the proof
	_, err = h.coord.VerifyPayment(context.Background(), blockPayment(h, "alice", idx, 500))
	assert.NoError(t, err)
}

func TestVerifyPayment_TransferFrom(t *testing.T) {
	h := newHarness(t)
	p := Payment{
		RequestID: 2,
		User:      "alice",
		Token:     h.usdt,
		Amount:    big.NewInt(1_000_000),
		Proof:     models.PaymentProof{Kind: models.ProofTransferFrom},
	}

	tr, err := h.coord.VerifyPayment(context.Background(), p)
	require.NoError(t, err)
	require.NotNil(t, tr.Proof.BlockIndex)

	h.ledgers.Get(h.usdt.ID).FailTransferFrom(true)
	_, err = h.coord.VerifyPayment(context.Background(), p)
	assert.Error(t, err)

	p.Token = h.sol
	_, err = h.coord.VerifyPayment(context.Background(), p)
	assert.ErrorIs(t, err, ErrTransferFromUnsupported)
}

func TestVerifyPayment_Solana(t *testing.T) {
	h := newHarness(t)
	p := Payment{
		RequestID: 3,
		User:      "alice",
		Token:     h.sol,
		Amount:    big.NewInt(1_000_000_000),
		Proof: models.PaymentProof{Kind: models.ProofSolana, Solana: &models.SolanaProof{
			TxSignature: "5xSig", Sender: "payer", Signature: "sig", Timestamp: 1,
		}},
	}

	h.solana.err = errors.New("bad signature")
	_, err := h.coord.VerifyPayment(context.Background(), p)
	require.Error(t, err)

	h.solana.err = nil
	tr, err := h.coord.VerifyPayment(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "5xSig", tr.Proof.TxSignature)

	_, err = h.coord.VerifyPayment(context.Background(), p)
	assert.ErrorIs(t, err, transfers.ErrProofAlreadyUsed)
	assert.Equal(t, 2, h.solana.calls)

	p.Proof = models.PaymentProof{Kind: models.ProofBlockIndex, BlockIndex: 1}
	_, err = h.coord.VerifyPayment(context.Background(), p)
	assert.ErrorIs(t, err, models.ErrInvalidProof)
}

func TestPayout_FailureBecomesClaimThenClaimedOnce(t *testing.T) {
	h := newHarness(t)
	fake := h.ledgers.Get(h.icp.ID)
	fake.FailTransfers(true)

	res, err := h.coord.Payout(context.Background(), Payout{
		RequestID: 7, User: "alice", Token: h.icp, To: "alice", Amount: big.NewInt(19_733), Desc: "swap",
	})
	require.NoError(t, err)
	require.True(t, res.Pending())
	assert.Equal(t, models.ClaimUnclaimed, res.Claim.Status)
	assert.Empty(t, fake.Sent())

	fake.FailTransfers(false)
	c, err := h.claims.Claim(context.Background(), "alice", res.Claim.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ClaimClaimed, c.Status)

	_, err = h.claims.Claim(context.Background(), "alice", res.Claim.ID)
	assert.ErrorIs(t, err, claims.ErrAlreadyClaimed)

	sent := fake.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "19733", sent[0].Amount.String())
	assert.Equal(t, "alice", sent[0].To)
}

func TestPayout_Success(t *testing.T) {
	h := newHarness(t)

	res, err := h.coord.Payout(context.Background(), Payout{
		RequestID: 8, User: "bob", Token: h.usdt, To: "bob", Amount: big.NewInt(42),
	})
	require.NoError(t, err)
	assert.False(t, res.Pending())
	require.NotNil(t, res.Transfer)
	assert.True(t, res.Transfer.IsSend)
	assert.Equal(t, "req:8", h.ledgers.Get(h.usdt.ID).Sent()[0].Memo)
}
