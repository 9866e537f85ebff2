package requests

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/models"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/store"
)

var (
	ErrRequestNotFound = errors.New("request not found")
	ErrRequestClosed   = errors.New("request already finished")
)

const requestSeq = "requests"

// Log keeps one status trail per operation. Statuses are appended, never
// rewritten, and nothing follows a terminal status.
type Log struct {
	kv  store.KV
	mu  sync.Mutex
	now func() time.Time
}

func NewLog(kv store.KV) *Log {
	return &Log{kv: kv, now: func() time.Time { return time.Now().UTC() }}
}

// Open starts a request with a Started status
func (l *Log) Open(kind models.RequestKind, user string, args any) (*models.Request, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal request args: %w", err)
	}
	id, err := l.kv.NextID(requestSeq)
	if err != nil {
		return nil, err
	}

	now := l.now()
	req := &models.Request{
		ID:        id,
		Kind:      kind,
		UserID:    user,
		Args:      raw,
		Statuses:  []models.StatusEntry{{Code: models.StatusStarted, TS: now}},
		CreatedAt: now,
	}

	err = l.kv.Batch(func(b store.Writer) error {
		if err := store.PutJSON(b, store.RegionRequests, store.U64(id), req); err != nil {
			return err
		}
		return b.Set(store.RegionUserRequests, userKey(user, id), nil)
	})
	if err != nil {
		return nil, fmt.Errorf("open request: %w", err)
	}
	return req, nil
}

// Append adds a non-terminal status
func (l *Log) Append(id uint64, code models.StatusCode, detail string) error {
	return l.update(id, func(r *models.Request) {
		r.Statuses = append(r.Statuses, models.StatusEntry{Code: code, TS: l.now(), Detail: detail})
	})
}

// Finish appends the terminal status and stores the reply
func (l *Log) Finish(id uint64, code models.StatusCode, detail string, reply any) error {
	if !code.Terminal() {
		return fmt.Errorf("status %s is not terminal", code)
	}
	var raw json.RawMessage
	if reply != nil {
		b, err := json.Marshal(reply)
		if err != nil {
			return fmt.Errorf("marshal reply: %w", err)
		}
		raw = b
	}
	return l.update(id, func(r *models.Request) {
		r.Statuses = append(r.Statuses, models.StatusEntry{Code: code, TS: l.now(), Detail: detail})
		r.Reply = raw
	})
}

func (l *Log) update(id uint64, fn func(r *models.Request)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, err := l.Get(id)
	if err != nil {
		return err
	}
	if r.Done() {
		return fmt.Errorf("%w: %d", ErrRequestClosed, id)
	}
	fn(r)
	return store.SetJSON(l.kv, store.RegionRequests, store.U64(id), r)
}

func (l *Log) Get(id uint64) (*models.Request, error) {
	var r models.Request
	if err := store.GetJSON(l.kv, store.RegionRequests, store.U64(id), &r); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrRequestNotFound, id)
		}
		return nil, err
	}
	return &r, nil
}

// ListByUser returns the user's live requests, newest first, at most limit
// (0 means all)
func (l *Log) ListByUser(user string, limit int) ([]*models.Request, error) {
	var ids []uint64
	err := l.kv.Iterate(store.RegionUserRequests, store.UserPrefix(user), func(k, _ []byte) error {
		id, err := store.ParseU64(k[len(k)-8:])
		if err != nil {
			return err
		}
		ids = append(ids, id)
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := []*models.Request{}
	for i := len(ids) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		r, err := l.Get(ids[i])
		if errors.Is(err, ErrRequestNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if r.UserID != user {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Scan visits live requests in id order. Returning store.ErrStop ends it.
func (l *Log) Scan(fn func(r *models.Request) error) error {
	return l.kv.Iterate(store.RegionRequests, nil, func(_, v []byte) error {
		var r models.Request
		if err := json.Unmarshal(v, &r); err != nil {
			return fmt.Errorf("unmarshal request: %w", err)
		}
		return fn(&r)
	})
}

func userKey(user string, id uint64) []byte {
	return store.Join(store.UserPrefix(user), store.U64(id))
}

// UserKey is the user index key of a request, for archivers that move it
func UserKey(user string, id uint64) []byte { return userKey(user, id) }
