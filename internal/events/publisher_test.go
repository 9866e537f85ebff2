package events

import (
	"context"
	"testing"
	"time"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   1, // Use different DB for tests
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.Publish(context.Background(), &models.SettlementEvent{}))
}

func TestRedisPublisher_PoolPattern(t *testing.T) {
	client := setupTestRedis(t)
	pub := NewRedisPublisher(client, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan *models.SettlementEvent, 4)
	go func() {
		_ = pub.PSubscribe(ctx, PoolChannel("*"), func(ev *models.SettlementEvent) { got <- ev })
	}()

	ev := &models.SettlementEvent{
		RequestID: 11,
		Kind:      models.RequestSwap,
		UserID:    "alice",
		Status:    models.StatusSuccess,
		Pools:     []string{"ICP_ckUSDT", "ckBTC_ckUSDT"},
	}

	// subscription is asynchronous; publish until it is live
	require.Eventually(t, func() bool {
		require.NoError(t, pub.Publish(ctx, ev))
		select {
		case <-got:
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 100*time.Millisecond)
}

func TestChannels(t *testing.T) {
	assert.Equal(t, "settlement:pool:ICP_ckUSDT", PoolChannel("ICP_ckUSDT"))
	assert.Equal(t, "settlement:user:alice", UserChannel("alice"))
}
