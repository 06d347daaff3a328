package redis

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-redis/redis/v8"

	"table-settlement/internal/config"
)

const deliveryKeyPrefix = "webhook:delivery:"

// DeliveryGuard records settled webhook deliveries so a replayed delivery is
// answered without touching the database. The database remains the source of
// truth; the guard only short-circuits.
type DeliveryGuard struct {
	Client redis.Cmdable
	ttl    time.Duration
}

func NewClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func NewDeliveryGuard(client redis.Cmdable, ttl time.Duration) *DeliveryGuard {
	return &DeliveryGuard{Client: client, ttl: ttl}
}

func deliveryKey(deliveryID string) string {
	return deliveryKeyPrefix + deliveryID
}

func (g *DeliveryGuard) Seen(ctx context.Context, deliveryID string) (bool, error) {
	n, err := g.Client.Exists(ctx, deliveryKey(deliveryID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check delivery %s: %w", deliveryID, err)
	}
	return n > 0, nil
}

// Mark is a no-op when the delivery is already recorded.
func (g *DeliveryGuard) Mark(ctx context.Context, deliveryID string) error {
	_, err := g.Client.SetNX(ctx, deliveryKey(deliveryID), time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to mark delivery %s: %w", deliveryID, err)
	}
	return nil
}

func (g *DeliveryGuard) Ping(ctx context.Context) error {
	return g.Client.Ping(ctx).Err()
}

// Close releases the client when it owns a connection pool.
func (g *DeliveryGuard) Close() error {
	if c, ok := g.Client.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
