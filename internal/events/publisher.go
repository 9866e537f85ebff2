package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	ChannelAll        = "settlement:all"
	channelPoolPrefix = "settlement:pool:"
	channelUserPrefix = "settlement:user:"
)

func PoolChannel(symbol string) string { return channelPoolPrefix + symbol }

func UserChannel(user string) string { return channelUserPrefix + user }

// Publisher announces finished operations
type Publisher interface {
	Publish(ctx context.Context, ev *models.SettlementEvent) error
}

// Nop drops every event
type Nop struct{}

func (Nop) Publish(context.Context, *models.SettlementEvent) error { return nil }

// RedisPublisher fans events out over Redis pub/sub: one channel for
// everything, one per pool touched and one per user
type RedisPublisher struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewRedisPublisher(client *redis.Client, logger *logrus.Logger) *RedisPublisher {
	if logger == nil {
		logger = logrus.New()
	}
	return &RedisPublisher{client: client, logger: logger}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev *models.SettlementEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	channels := []string{ChannelAll, UserChannel(ev.UserID)}
	for _, pool := range ev.Pools {
		channels = append(channels, PoolChannel(pool))
	}

	pipe := p.client.Pipeline()
	for _, channel := range channels {
		pipe.Publish(ctx, channel, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscribe delivers events from one channel until ctx is cancelled
func (p *RedisPublisher) Subscribe(ctx context.Context, channel string, handler func(*models.SettlementEvent)) error {
	pubsub := p.client.Subscribe(ctx, channel)
	defer pubsub.Close()

	p.logger.WithField("channel", channel).Info("subscribed")
	return p.consume(ctx, pubsub, handler)
}

// PSubscribe delivers events from every channel matching pattern,
// e.g. "settlement:pool:*"
func (p *RedisPublisher) PSubscribe(ctx context.Context, pattern string, handler func(*models.SettlementEvent)) error {
	pubsub := p.client.PSubscribe(ctx, pattern)
	defer pubsub.Close()

	p.logger.WithField("pattern", pattern).Info("subscribed")
	return p.consume(ctx, pubsub, handler)
}

func (p *RedisPublisher) consume(ctx context.Context, pubsub *redis.PubSub, handler func(*models.SettlementEvent)) error {
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev models.SettlementEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				p.logger.WithError(err).WithField("channel", msg.Channel).Warn("failed to unmarshal event")
				continue
			}
			handler(&ev)
		}
	}
}
