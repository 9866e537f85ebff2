package app

import (
	"context"
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/config"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/engine"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/events"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/models"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/switches"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tokensJSON = `[
  {"symbol": "AAA", "name": "Token A", "kind": "ledger", "ledger_id": "aaa", "decimals": 6, "fee": "10"},
  {"symbol": "BBB", "name": "Token B", "kind": "ledger", "ledger_id": "bbb", "decimals": 6, "fee": "10"}
]`

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	tokens := filepath.Join(dir, "tokens.json")
	require.NoError(t, os.WriteFile(tokens, []byte(tokensJSON), 0o600))

	cfg := config.Load()
	cfg.DataDir = dir
	cfg.TokensFile = tokens
	cfg.QuoteToken = "BBB"
	cfg.Treasury = "treasury"
	cfg.SolanaTreasury = ""
	cfg.WalletPrivateKey = ""
	cfg.ClickHouseAddr = ""
	cfg.RedisDB = 2 // keep clear of a developer's default database
	return cfg
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.WarnLevel)
	return l
}

func TestNew_OfflinePersistsAcrossRestarts(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	a, err := New(ctx, cfg, quietLogger(), Options{Offline: true})
	require.NoError(t, err)
	assert.Nil(t, a.Redis)
	assert.Nil(t, a.Switches)

	tokens, err := a.Engine.Tokens()
	require.NoError(t, err)
	assert.Len(t, tokens, 2)

	info, err := a.Engine.CreatePool(ctx, engine.CreatePoolArgs{User: "admin", TokenA: "BBB", TokenB: "AAA"})
	require.NoError(t, err)
	require.NoError(t, a.Close())

	// reopening must not seed twice and must find the pool
	a, err = New(ctx, cfg, quietLogger(), Options{Offline: true})
	require.NoError(t, err)
	defer a.Close()

	tokens, err = a.Engine.Tokens()
	require.NoError(t, err)
	assert.Len(t, tokens, 3) // two seeded plus the LP token

	p, err := a.Engine.GetPool(info.ID)
	require.NoError(t, err)
	assert.Equal(t, "AAA_BBB", p.Symbol)
}

func TestNew_MissingTokenFileIsSkipped(t *testing.T) {
	cfg := testConfig(t)
	cfg.TokensFile = filepath.Join(cfg.DataDir, "absent.json")

	a, err := New(context.Background(), cfg, quietLogger(), Options{Offline: true})
	require.NoError(t, err)
	defer a.Close()

	tokens, err := a.Engine.Tokens()
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestNew_BadTokenFileFails(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.TokensFile, []byte("{"), 0o600))

	_, err := New(context.Background(), cfg, quietLogger(), Options{Offline: true})
	assert.Error(t, err)
}

func setupRedisApp(t *testing.T) *App {
	cfg := testConfig(t)
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.RedisAddr = addr
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		t.Skipf("Redis not available for integration tests: %v", err)
	}
	_ = rdb.FlushDB(ctx).Err()
	_ = rdb.Close()

	a, err := New(context.Background(), cfg, quietLogger(), Options{})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = a.Redis.FlushDB(context.Background()).Err()
		_ = a.Close()
	})
	return a
}

func TestIntegration_EventsPublished(t *testing.T) {
	a := setupRedisApp(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := a.Redis.Subscribe(ctx, events.ChannelAll)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	_, err = a.Engine.CreatePool(ctx, engine.CreatePoolArgs{User: "admin", TokenA: "AAA", TokenB: "BBB"})
	require.NoError(t, err)

	select {
	case msg := <-sub.Channel():
		var ev models.SettlementEvent
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
		assert.Equal(t, models.RequestAddPool, ev.Kind)
		assert.Equal(t, models.StatusSuccess, ev.Status)
		assert.Equal(t, []string{"AAA_BBB"}, ev.Pools)
	case <-ctx.Done():
		t.Fatal("no settlement event received")
	}
}

func TestIntegration_SwitchGatesEngine(t *testing.T) {
	a := setupRedisApp(t)
	ctx := context.Background()

	_, err := a.Switches.Set(ctx, switches.OpSwap, false, "maintenance")
	require.NoError(t, err)

	_, err = a.Engine.Swap(ctx, engine.SwapArgs{
		User:         "alice",
		PayToken:     "AAA",
		PayAmount:    big.NewInt(1_000),
		ReceiveToken: "BBB",
		Proof:        models.PaymentProof{Kind: models.ProofBlockIndex, BlockIndex: 1},
	})
	assert.ErrorIs(t, err, engine.ErrOperationDisabled)
}
