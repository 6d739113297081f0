package chathub

import (
	"context"
	"encoding/json"

	"mindspace/backend/internal/models"

	"github.com/redis/go-redis/v9"
)

// Broker carries deliveries between gateway instances. storage.Service
// implements it on top of redis pub/sub.
type Broker interface {
	PublishDelivery(ctx context.Context, d models.Delivery) error
	SubscribeDeliveries(ctx context.Context) *redis.PubSub
}

// listen feeds deliveries published by any instance, this one included, into
// the local hub loop.
func (m *ManagerService) listen(ctx context.Context) {
	pubsub := m.broker.SubscribeDeliveries(ctx)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		m.logger.Error("failed to subscribe to deliveries", "error", err)
		return
	}
	m.logger.Info("subscribed to deliveries")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				m.logger.Warn("delivery subscription closed")
				return
			}
			var d models.Delivery
			if err := json.Unmarshal([]byte(msg.Payload), &d); err != nil {
				m.logger.Error("failed to decode delivery", "channel", msg.Channel, "error", err)
				continue
			}
			if err := m.enqueue(ctx, d); err != nil {
				return
			}
		}
	}
}
