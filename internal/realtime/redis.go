package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bidflow/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher forwards events to redis pub/sub so processes other than
// this one can follow auctions.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(addr, password string) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	return &RedisPublisher{client: client}
}

// Ping checks the connection; used at startup.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *RedisPublisher) Publish(ctx context.Context, topic string, event models.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis publish %s: %w", topic, err)
	}
	if err := p.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", topic, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
