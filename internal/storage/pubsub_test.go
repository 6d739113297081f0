package storage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"mindspace/backend/internal/config"
	"mindspace/backend/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisStore(t *testing.T) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewStorageService(nil, rdb, nil)
}

func TestService_PublishDeliveryRoundTrip(t *testing.T) {
	s := setupRedisStore(t)
	ctx := context.Background()

	sub := s.SubscribeDeliveries(ctx)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	sent := models.Delivery{
		UserID: 6,
		Event: models.OutboundEvent{
			Event: models.EventMessageRead,
			Data:  models.MessageReadPayload{MessageID: 42, ReaderID: 6},
		},
	}
	require.NoError(t, s.PublishDelivery(ctx, sent))

	select {
	case msg := <-sub.Channel():
		assert.Equal(t, config.DeliveryChannel, msg.Channel)

		var got models.Delivery
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, uint(6), got.UserID)
		assert.False(t, got.Broadcast)

		want, err := json.Marshal(sent.Event)
		require.NoError(t, err)
		have, err := json.Marshal(got.Event)
		require.NoError(t, err)
		assert.JSONEq(t, string(want), string(have))
	case <-time.After(2 * time.Second):
		t.Fatal("delivery not received")
	}
}
