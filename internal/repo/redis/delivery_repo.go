package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const deliveryKeyPrefix = "webhook:done:"

// DeliveryRepo remembers webhook deliveries that were fully processed so that
// gateway redeliveries can be acknowledged without touching Postgres.
type DeliveryRepo struct {
	client *goredis.Client
}

func NewDeliveryRepo(client *goredis.Client) *DeliveryRepo {
	return &DeliveryRepo{client: client}
}

func (r *DeliveryRepo) IsProcessed(ctx context.Context, gateway, reference, status string) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	key, err := deliveryKey(gateway, reference, status)
	if err != nil {
		return false, err
	}

	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("check delivery mark: %w", err)
	}
	return n > 0, nil
}

func (r *DeliveryRepo) MarkProcessed(ctx context.Context, gateway, reference, status string, ttl time.Duration) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if ttl <= 0 {
		return fmt.Errorf("delivery mark ttl must be positive")
	}
	key, err := deliveryKey(gateway, reference, status)
	if err != nil {
		return err
	}

	if err := r.client.Set(ctx, key, time.Now().UTC().Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("set delivery mark: %w", err)
	}
	return nil
}

func deliveryKey(gateway, reference, status string) (string, error) {
	gateway = strings.ToLower(strings.TrimSpace(gateway))
	reference = strings.TrimSpace(reference)
	status = strings.ToLower(strings.TrimSpace(status))
	if gateway == "" || reference == "" || status == "" {
		return "", fmt.Errorf("invalid delivery key payload")
	}
	return deliveryKeyPrefix + gateway + ":" + reference + ":" + status, nil
}
