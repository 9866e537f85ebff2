package solpay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	relayKeyPrefix  = "relay:tx:"
	DefaultRelayTTL = 24 * time.Hour
)

// Commitment levels a relayed transaction may carry
const (
	StatusProcessed = "processed"
	StatusConfirmed = "confirmed"
	StatusFinalized = "finalized"
)

// RelayedTx is a Solana transfer into the treasury as observed by the relay.
// Amount is in raw units of Mint.
type RelayedTx struct {
	Signature string    `json:"signature"`
	Status    string    `json:"status"`
	Sender    string    `json:"sender"`
	Receiver  string    `json:"receiver"`
	Mint      string    `json:"mint"`
	Amount    string    `json:"amount"`
	Slot      uint64    `json:"slot"`
	BlockTime int64     `json:"block_time,omitempty"`
	SeenAt    time.Time `json:"seen_at"`
}

// RelayCache is where verification looks transactions up. GetTransaction
// returns ErrTxNotFound when the relay has not seen the signature.
type RelayCache interface {
	GetTransaction(ctx context.Context, signature string) (*RelayedTx, error)
	PutTransaction(ctx context.Context, tx *RelayedTx) error
}

// RedisRelayCache keeps relayed transactions as JSON strings with a TTL
type RedisRelayCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisRelayCache(client redis.Cmdable, ttl time.Duration) *RedisRelayCache {
	if ttl <= 0 {
		ttl = DefaultRelayTTL
	}
	return &RedisRelayCache{client: client, ttl: ttl}
}

func (c *RedisRelayCache) GetTransaction(ctx context.Context, signature string) (*RelayedTx, error) {
	data, err := c.client.Get(ctx, relayKeyPrefix+signature).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrTxNotFound, signature)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get relayed tx: %w", err)
	}

	var tx RelayedTx
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("failed to unmarshal relayed tx: %w", err)
	}
	return &tx, nil
}

// PutTransaction stores tx, replacing an earlier observation so a later
// commitment level overwrites an earlier one
func (c *RedisRelayCache) PutTransaction(ctx context.Context, tx *RelayedTx) error {
	data, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("failed to marshal relayed tx: %w", err)
	}
	if err := c.client.Set(ctx, relayKeyPrefix+tx.Signature, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store relayed tx: %w", err)
	}
	return nil
}
