package switches

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	indexKey    = "switches:index"
	valuePrefix = "switches:"
)

// Store keeps operation switches in Redis so every instance sees the same
// state. An operation without a stored switch is enabled.
type Store struct {
	client redis.Cmdable
}

func NewStore(client redis.Cmdable) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	return &Store{client: client}, nil
}

func ValidateOp(op string) error {
	if !knownOps[op] {
		return fmt.Errorf("%w: %q", ErrUnknownOp, op)
	}
	return nil
}

func (s *Store) Set(ctx context.Context, op string, enabled bool, reason string) (*Switch, error) {
	if err := ValidateOp(op); err != nil {
		return nil, err
	}

	sw := &Switch{Op: op, Enabled: enabled, Reason: reason, UpdatedAt: time.Now().UTC()}
	b, err := json.Marshal(sw)
	if err != nil {
		return nil, fmt.Errorf("marshal switch: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, switchKey(op), b, 0)
	pipe.SAdd(ctx, indexKey, op)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("set switch: %w", err)
	}
	return sw, nil
}

func (s *Store) Get(ctx context.Context, op string) (*Switch, error) {
	if err := ValidateOp(op); err != nil {
		return nil, err
	}

	val, err := s.client.Get(ctx, switchKey(op)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get switch: %w", err)
	}

	var sw Switch
	if err := json.Unmarshal([]byte(val), &sw); err != nil {
		return nil, fmt.Errorf("unmarshal switch: %w", err)
	}
	return &sw, nil
}

// Enabled reports whether op may run
func (s *Store) Enabled(ctx context.Context, op string) (bool, error) {
	sw, err := s.Get(ctx, op)
	if errors.Is(err, ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return sw.Enabled, nil
}

// List returns every operation with its effective state
func (s *Store) List(ctx context.Context) ([]*Switch, error) {
	ops := Ops()
	keys := make([]string, 0, len(ops))
	for _, op := range ops {
		keys = append(keys, switchKey(op))
	}

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget switches: %w", err)
	}

	out := make([]*Switch, 0, len(ops))
	for i, v := range vals {
		sw := &Switch{Op: ops[i], Enabled: true}
		if str, ok := v.(string); ok {
			var stored Switch
			if err := json.Unmarshal([]byte(str), &stored); err == nil {
				sw = &stored
			}
		}
		out = append(out, sw)
	}
	return out, nil
}

// Reset removes the stored switch, re-enabling op
func (s *Store) Reset(ctx context.Context, op string) error {
	if err := ValidateOp(op); err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, switchKey(op))
	pipe.SRem(ctx, indexKey, op)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("reset switch: %w", err)
	}
	return nil
}

func switchKey(op string) string {
	return valuePrefix + op
}
