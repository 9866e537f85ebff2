package relay

import (
	"context"
	"errors"
	"sync"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/constants"
	"github.com/redis/go-redis/v9"
)

// Cursor remembers the newest processed signature per watched address so a
// restarted relay resumes where it stopped
type Cursor interface {
	Get(ctx context.Context, address string) (string, error)
	Set(ctx context.Context, address, signature string) error
}

type RedisCursor struct {
	client redis.Cmdable
}

func NewRedisCursor(client redis.Cmdable) *RedisCursor {
	return &RedisCursor{client: client}
}

func (c *RedisCursor) Get(ctx context.Context, address string) (string, error) {
	sig, err := c.client.Get(ctx, constants.RedisKeyRelayCursorPrefix+address).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return sig, err
}

func (c *RedisCursor) Set(ctx context.Context, address, signature string) error {
	return c.client.Set(ctx, constants.RedisKeyRelayCursorPrefix+address, signature, 0).Err()
}

type memoryCursor struct {
	mu   sync.Mutex
	last map[string]string
}

func newMemoryCursor() *memoryCursor {
	return &memoryCursor{last: make(map[string]string)}
}

func (c *memoryCursor) Get(_ context.Context, address string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last[address], nil
}

func (c *memoryCursor) Set(_ context.Context, address, signature string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last[address] = signature
	return nil
}
