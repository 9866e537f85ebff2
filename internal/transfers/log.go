package transfers

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/models"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/store"
)

var (
	ErrProofAlreadyUsed = errors.New("payment proof already used")
	ErrTransferNotFound = errors.New("transfer not found")
)

const transferSeq = "transfers"

// Log is the append-only record of every token movement. Each proof is
// indexed under its key so a proof can be credited once, ever. The index is
// never archived.
type Log struct {
	kv store.KV
}

func NewLog(kv store.KV) *Log {
	return &Log{kv: kv}
}

// Record assigns an id and stores t. The proof index write is
// insert-if-absent; losing that race means the proof was already credited.
func (l *Log) Record(t *models.Transfer) error {
	id, err := l.kv.NextID(transferSeq)
	if err != nil {
		return err
	}
	key := []byte(t.Proof.Key(t.TokenID))

	wrote, err := l.kv.SetIfAbsent(store.RegionProofIndex, key, store.U64(id))
	if err != nil {
		return err
	}
	if !wrote {
		return fmt.Errorf("%w: %s", ErrProofAlreadyUsed, t.Proof)
	}

	t.ID = id
	if t.TS.IsZero() {
		t.TS = time.Now().UTC()
	}
	if err := store.SetJSON(l.kv, store.RegionTransfers, store.U64(id), t); err != nil {
		return fmt.Errorf("record transfer %d: %w", id, err)
	}
	return nil
}

// Seen reports whether a proof has been recorded for the token
func (l *Log) Seen(tokenID uint32, proof models.ChainProof) (bool, error) {
	_, err := l.kv.Get(store.RegionProofIndex, []byte(proof.Key(tokenID)))
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (l *Log) Get(id uint64) (*models.Transfer, error) {
	var t models.Transfer
	if err := store.GetJSON(l.kv, store.RegionTransfers, store.U64(id), &t); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrTransferNotFound, id)
		}
		return nil, err
	}
	return &t, nil
}

// Scan visits live transfers in id order. Returning store.ErrStop ends it.
func (l *Log) Scan(fn func(t *models.Transfer) error) error {
	return l.kv.Iterate(store.RegionTransfers, nil, func(_, v []byte) error {
		var t models.Transfer
		if err := json.Unmarshal(v, &t); err != nil {
			return fmt.Errorf("unmarshal transfer: %w", err)
		}
		return fn(&t)
	})
}
