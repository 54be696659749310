package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/pkg/logging"
)

// Channel is the pub/sub channel mutation feedback is published on. Each
// service instance subscribes so its websocket clients see mutations that
// settled on another instance.
const Channel = "almanac:notifications"

const publishTimeout = 2 * time.Second

// RedisNotifier publishes notifications to Redis pub/sub. Each notifier tags
// outgoing messages with a per-instance origin ID so the instance's own
// subscription can discard them instead of echoing them back to its clients.
type RedisNotifier struct {
	client goredis.UniversalClient
	logger logging.Logger
	origin string
}

func NewRedisNotifier(client goredis.UniversalClient, logger logging.Logger) *RedisNotifier {
	return &RedisNotifier{client: client, logger: logger, origin: uuid.New().String()}
}

// Origin returns this instance's publisher ID.
func (r *RedisNotifier) Origin() string {
	return r.origin
}

func (r *RedisNotifier) Notify(ctx context.Context, n Notification) {
	n.Origin = r.origin
	payload, err := json.Marshal(n)
	if err != nil {
		r.logger.WithError(err).Error("Failed to marshal notification")
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := r.client.Publish(ctx, Channel, payload).Err(); err != nil {
		// Delivery is best-effort; the mutation itself already settled.
		r.logger.WithError(err).Warn("Failed to publish notification")
	}
}

// Subscribe consumes notifications published by any instance and hands them
// to handler until ctx is cancelled.
func Subscribe(ctx context.Context, client goredis.UniversalClient, logger logging.Logger, handler func(Notification)) error {
	sub := client.Subscribe(ctx, Channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var n Notification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				logger.WithError(err).Error("Failed to unmarshal notification")
				continue
			}
			handler(n)
		}
	}
}
