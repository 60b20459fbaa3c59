package devbackend

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"servisca-quickmatch/internal/log"
)

// RedisRelay shares topic traffic between stub instances over Redis
// pub/sub. Every instance publishes to prefix+topic and pattern-subscribes
// to prefix+"*"
type RedisRelay struct {
	rdb    *redis.Client
	prefix string
	logger *slog.Logger
}

const DefaultChannelPrefix = "servisca:"

func NewRedisRelay(rdb *redis.Client, logger *slog.Logger) *RedisRelay {
	if logger == nil {
		logger = log.Discard()
	}
	return &RedisRelay{
		rdb:    rdb,
		prefix: DefaultChannelPrefix,
		logger: logger,
	}
}

// DialRedis parses url, connects and pings
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

func (r *RedisRelay) Publish(ctx context.Context, topic string, event []byte) error {
	return r.rdb.Publish(ctx, r.prefix+topic, event).Err()
}

// Start subscribes and returns once Redis has confirmed the subscription.
// Messages are handed to deliver until ctx is done
func (r *RedisRelay) Start(ctx context.Context, deliver func(topic string, event []byte)) error {
	ps := r.rdb.PSubscribe(ctx, r.prefix+"*")
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("redis subscribe failed: %w", err)
	}

	go func() {
		defer func() { _ = ps.Close() }()
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				topic := strings.TrimPrefix(msg.Channel, r.prefix)
				deliver(topic, []byte(msg.Payload))
			}
		}
	}()
	r.logger.Info("redis relay subscribed", slog.String("pattern", r.prefix+"*"))
	return nil
}
