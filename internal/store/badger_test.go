package store

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKV(t *testing.T) *BadgerKV {
	kv, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}

func TestBadgerKV_GetSetDelete(t *testing.T) {
	kv := testKV(t)

	_, err := kv.Get(RegionPools, U32(1))
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, kv.Set(RegionPools, U32(1), []byte("a")))
	got, err := kv.Get(RegionPools, U32(1))
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), got)

	// same key in another region is independent
	_, err = kv.Get(RegionTokens, U32(1))
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, kv.Delete(RegionPools, U32(1)))
	_, err = kv.Get(RegionPools, U32(1))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBadgerKV_SetIfAbsent(t *testing.T) {
	kv := testKV(t)

	wrote, err := kv.SetIfAbsent(RegionProofIndex, []byte("L/1/7"), U64(1))
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = kv.SetIfAbsent(RegionProofIndex, []byte("L/1/7"), U64(2))
	require.NoError(t, err)
	assert.False(t, wrote)

	got, err := kv.Get(RegionProofIndex, []byte("L/1/7"))
	require.NoError(t, err)
	id, err := ParseU64(got)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)
}

func TestBadgerKV_SetIfAbsentConcurrent(t *testing.T) {
	kv := testKV(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			wrote, err := kv.SetIfAbsent(RegionProofIndex, []byte("S/sig"), U64(uint64(i)))
			if err != nil {
				return
			}
			if wrote {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestBadgerKV_IterateOrdered(t *testing.T) {
	kv := testKV(t)

	for _, id := range []uint64{3, 1, 2, 300} {
		require.NoError(t, kv.Set(RegionRequests, U64(id), []byte{byte(id)}))
	}
	require.NoError(t, kv.Set(RegionClaims, U64(9), []byte{9}))

	var ids []uint64
	err := kv.Iterate(RegionRequests, nil, func(k, _ []byte) error {
		id, err := ParseU64(k)
		require.NoError(t, err)
		ids = append(ids, id)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3, 300}, ids)

	ids = nil
	err = kv.Iterate(RegionRequests, nil, func(k, _ []byte) error {
		id, _ := ParseU64(k)
		ids = append(ids, id)
		if len(ids) == 2 {
			return ErrStop
		}
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestBadgerKV_IteratePrefix(t *testing.T) {
	kv := testKV(t)

	require.NoError(t, kv.Set(RegionUserClaims, Join(UserPrefix("alice"), U64(1)), nil))
	require.NoError(t, kv.Set(RegionUserClaims, Join(UserPrefix("alice"), U64(2)), nil))
	require.NoError(t, kv.Set(RegionUserClaims, Join(UserPrefix("bob"), U64(3)), nil))
	require.NoError(t, kv.Set(RegionUserClaims, Join(UserPrefix("alice2"), U64(4)), nil))

	n := 0
	require.NoError(t, kv.Iterate(RegionUserClaims, UserPrefix("alice"), func(_, _ []byte) error {
		n++
		return nil
	}))
	assert.Equal(t, 2, n)
}

func TestUserPrefix_Distinct(t *testing.T) {
	users := []string{"a", "ab", "a/b", "a_b", "a/", "", "\x00\x00\x00\x01a"}
	for _, u := range users {
		for _, v := range users {
			if u == v {
				continue
			}
			assert.False(t, bytes.HasPrefix(UserPrefix(v), UserPrefix(u)), "%q covers %q", u, v)
		}
	}
}

func TestBadgerKV_BatchIsAtomic(t *testing.T) {
	kv := testKV(t)

	boom := errors.New("boom")
	err := kv.Batch(func(b Writer) error {
		require.NoError(t, b.Set(RegionPools, U32(1), []byte("x")))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = kv.Get(RegionPools, U32(1))
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, kv.Batch(func(b Writer) error {
		if err := b.Set(RegionPools, U32(1), []byte("x")); err != nil {
			return err
		}
		return b.Set(RegionPairIndex, U32(2), []byte("y"))
	}))
	_, err = kv.Get(RegionPairIndex, U32(2))
	assert.NoError(t, err)
}

func TestBadgerKV_NextID(t *testing.T) {
	kv := testKV(t)

	for want := uint64(1); want <= 3; want++ {
		id, err := kv.NextID("pools")
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}

	id, err := kv.NextID("claims")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)
}

func TestJSONHelpers(t *testing.T) {
	kv := testKV(t)

	type rec struct {
		Name string `json:"name"`
	}
	require.NoError(t, SetJSON(kv, RegionTokens, U32(5), rec{Name: "SOL"}))

	var got rec
	require.NoError(t, GetJSON(kv, RegionTokens, U32(5), &got))
	assert.Equal(t, "SOL", got.Name)

	assert.ErrorIs(t, GetJSON(kv, RegionTokens, U32(6), &got), ErrNotFound)
}
