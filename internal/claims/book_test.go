package claims

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/models"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/requests"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePayer struct {
	mu    sync.Mutex
	fail  bool
	sent  int
	next  uint64
	block chan struct{}
}

func (p *fakePayer) setFail(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = fail
}

func (p *fakePayer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent
}

func (p *fakePayer) Send(ctx context.Context, requestID uint64, tokenID uint32, to string, amount *big.Int, memo string) (*models.Transfer, error) {
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return nil, errors.New("ledger unavailable")
	}
	p.sent++
	p.next++
	return &models.Transfer{ID: p.next, RequestID: requestID, IsSend: true, TokenID: tokenID, Amount: amount}, nil
}

func newBook(t *testing.T, payer Payer, maxAttempts int) *Book {
	kv, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return NewBook(BookConfig{
		KV:          kv,
		Payer:       payer,
		Requests:    requests.NewLog(kv),
		MaxAttempts: maxAttempts,
	})
}

func owed(user string) *models.Claim {
	return &models.Claim{UserID: user, TokenID: 2, Amount: big.NewInt(19_733), ToAddress: user, RequestID: 1, Desc: "swap payout"}
}

func TestBook_CreateStartsUnclaimed(t *testing.T) {
	b := newBook(t, &fakePayer{}, 3)

	c, err := b.Create(owed("alice"))
	require.NoError(t, err)
	assert.Equal(t, models.ClaimUnclaimed, c.Status)
	assert.Zero(t, c.Attempts)

	list, err := b.ListByUser("alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, c.ID, list[0].ID)

	_, err = b.Create(&models.Claim{UserID: "alice", Amount: big.NewInt(0)})
	assert.Error(t, err)
}

func TestBook_FailThenRetrySucceedsOnce(t *testing.T) {
	payer := &fakePayer{fail: true}
	b := newBook(t, payer, 5)
	c, err := b.Create(owed("alice"))
	require.NoError(t, err)

	got, err := b.Claim(context.Background(), "alice", c.ID)
	require.ErrorIs(t, err, ErrClaimFailed)
	assert.Equal(t, models.ClaimClaimable, got.Status)
	assert.Equal(t, 1, got.Attempts)

	payer.setFail(false)
	got, err = b.Claim(context.Background(), "alice", c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ClaimClaimed, got.Status)
	assert.Equal(t, 2, got.Attempts)
	assert.Len(t, got.TransferIDs, 1)
	assert.Len(t, got.AttemptRequestIDs, 2)

	_, err = b.Claim(context.Background(), "alice", c.ID)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
	assert.Equal(t, 1, payer.count())

	req, err := b.requests.Get(got.AttemptRequestIDs[1])
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, req.Last())
}

func TestBook_OwnerCheck(t *testing.T) {
	b := newBook(t, &fakePayer{}, 3)
	c, err := b.Create(owed("alice"))
	require.NoError(t, err)

	_, err = b.Claim(context.Background(), "mallory", c.ID)
	assert.ErrorIs(t, err, ErrNotOwner)

	_, err = b.Claim(context.Background(), "alice", 999)
	assert.ErrorIs(t, err, ErrClaimNotFound)
}

func TestBook_RetryExhausted(t *testing.T) {
	payer := &fakePayer{fail: true}
	b := newBook(t, payer, 2)
	c, err := b.Create(owed("alice"))
	require.NoError(t, err)

	_, err = b.Claim(context.Background(), "alice", c.ID)
	require.ErrorIs(t, err, ErrClaimFailed)

	got, err := b.Claim(context.Background(), "alice", c.ID)
	require.ErrorIs(t, err, ErrClaimRetryExhausted)
	assert.Equal(t, models.ClaimTooManyAttempts, got.Status)

	payer.setFail(false)
	_, err = b.Claim(context.Background(), "alice", c.ID)
	assert.ErrorIs(t, err, ErrClaimRetryExhausted)
	assert.Zero(t, payer.count())
}

func TestBook_ConcurrentClaimPaysOnce(t *testing.T) {
	payer := &fakePayer{block: make(chan struct{})}
	b := newBook(t, payer, 5)
	c, err := b.Create(owed("alice"))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := b.Claim(context.Background(), "alice", c.ID)
		done <- err
	}()

	require.Eventually(t, func() bool {
		cur, err := b.Get(c.ID)
		return err == nil && cur.Status == models.ClaimClaiming
	}, time.Second, 5*time.Millisecond)

	_, err = b.Claim(context.Background(), "alice", c.ID)
	assert.ErrorIs(t, err, ErrClaimInProgress)

	close(payer.block)
	require.NoError(t, <-done)
	assert.Equal(t, 1, payer.count())
}

func TestBook_ProcessPendingAndRecover(t *testing.T) {
	payer := &fakePayer{}
	b := newBook(t, payer, 5)

	first, err := b.Create(owed("alice"))
	require.NoError(t, err)
	second, err := b.Create(owed("bob"))
	require.NoError(t, err)

	// simulate a crash mid-payout on the second claim
	second.Status = models.ClaimClaiming
	require.NoError(t, b.save(second))

	attempted, paid, err := b.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, attempted)
	assert.Equal(t, 1, paid)

	n, err := b.RecoverInterrupted()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err := b.Get(second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ClaimClaimable, got.Status)

	_, paid, err = b.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, paid)

	got, err = b.Get(first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ClaimClaimed, got.Status)
	assert.Equal(t, 2, payer.count())
}

func TestBook_ListByUserKeepsLookalikesApart(t *testing.T) {
	b := newBook(t, &fakePayer{}, 3)

	slash, err := b.Create(owed("a/b"))
	require.NoError(t, err)
	under, err := b.Create(owed("a_b"))
	require.NoError(t, err)

	list, err := b.ListByUser("a/b")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, slash.ID, list[0].ID)

	list, err = b.ListByUser("a_b")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, under.ID, list[0].ID)

	_, err = b.Claim(context.Background(), "a_b", slash.ID)
	assert.ErrorIs(t, err, ErrNotOwner)
}
