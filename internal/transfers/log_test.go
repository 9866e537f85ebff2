package transfers

import (
	"math/big"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/models"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLog(t *testing.T) *Log {
	kv, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return NewLog(kv)
}

func TestLog_RecordAndGet(t *testing.T) {
	l := newLog(t)

	tr := &models.Transfer{RequestID: 9, TokenID: 1, Amount: big.NewInt(100), Proof: models.BlockProof(5)}
	require.NoError(t, l.Record(tr))
	assert.NotZero(t, tr.ID)
	assert.False(t, tr.TS.IsZero())

	got, err := l.Get(tr.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), got.RequestID)
	assert.Equal(t, "100", got.Amount.String())

	_, err = l.Get(999)
	assert.ErrorIs(t, err, ErrTransferNotFound)
}

func TestLog_ProofCreditedOnce(t *testing.T) {
	l := newLog(t)

	require.NoError(t, l.Record(&models.Transfer{TokenID: 1, Amount: big.NewInt(1), Proof: models.BlockProof(5)}))
	err := l.Record(&models.Transfer{TokenID: 1, Amount: big.NewInt(1), Proof: models.BlockProof(5)})
	assert.ErrorIs(t, err, ErrProofAlreadyUsed)

	// same block index on another ledger is a different proof
	require.NoError(t, l.Record(&models.Transfer{TokenID: 2, Amount: big.NewInt(1), Proof: models.BlockProof(5)}))

	seen, err := l.Seen(1, models.BlockProof(5))
	require.NoError(t, err)
	assert.True(t, seen)
	seen, err = l.Seen(3, models.BlockProof(5))
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestLog_ConcurrentProofRecordedOnce(t *testing.T) {
	l := newLog(t)

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.Record(&models.Transfer{TokenID: 4, Amount: big.NewInt(1), Proof: models.SignatureProof("sig")})
			if err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), ok.Load())
}

func TestLog_Scan(t *testing.T) {
	l := newLog(t)
	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, l.Record(&models.Transfer{TokenID: 1, Amount: big.NewInt(int64(i)), Proof: models.BlockProof(i)}))
	}

	var ids []uint64
	require.NoError(t, l.Scan(func(tr *models.Transfer) error {
		ids = append(ids, tr.ID)
		if len(ids) == 2 {
			return store.ErrStop
		}
		return nil
	}))
	assert.Len(t, ids, 2)
	assert.Less(t, ids[0], ids[1])
}
