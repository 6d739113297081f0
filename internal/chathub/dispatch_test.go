package chathub_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"mindspace/backend/internal/chathub"
	"mindspace/backend/internal/messaging"
	"mindspace/backend/internal/models"
	"mindspace/backend/internal/observability"
	"mindspace/backend/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type chatFixture struct {
	hub   *chathub.ManagerService
	store *storage.Service
	users map[string]models.User
}

func newChatFixture(t *testing.T, names ...string) *chatFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	store := storage.NewStorageService(db, nil, nil)
	require.NoError(t, store.Migrate())

	f := &chatFixture{store: store, users: make(map[string]models.User)}
	for _, name := range names {
		u := models.User{Username: name, Email: name + "@example.com", IsActive: true}
		require.NoError(t, store.SaveUser(context.Background(), &u))
		f.users[name] = u
	}

	f.hub = startHub(t, func(hub *chathub.ManagerService) {
		hub.SetMessenger(messaging.NewService(store, hub, nil))
	})
	return f
}

func (f *chatFixture) connect(t *testing.T, name string) *MockClient {
	t.Helper()
	u := f.users[name]
	c := newMockClient(fmt.Sprintf("%s-conn", name), u.ID, u.Username)
	register(t, f.hub, c)
	return c
}

func TestDispatch_SendMessageReachesBothParties(t *testing.T) {
	f := newChatFixture(t, "anna", "dr.lee")
	anna, lee := f.connect(t, "anna"), f.connect(t, "dr.lee")

	out := f.hub.HandleFrame(context.Background(), anna, frame(t, models.EventSendMessage, map[string]any{
		"receiverId": f.users["dr.lee"].ID,
		"content":    "hello",
	}))
	require.Equal(t, chathub.OutcomeSuccess, out.Kind, out.Err)

	for _, c := range []*MockClient{anna, lee} {
		events := withoutPresence(drain(t, f.hub, c))
		require.Len(t, events, 1, c.id)
		assert.Equal(t, models.EventNewMessage, events[0].Event)
		msg := events[0].Data.(*models.Message)
		assert.Equal(t, "hello", msg.Content)
		assert.False(t, msg.IsRead)
		require.NotNil(t, msg.Sender)
		assert.Equal(t, "anna", msg.Sender.Username)

		raw, err := json.Marshal(events[0])
		require.NoError(t, err)
		assert.Contains(t, string(raw), `"attachments":[]`)
	}

	stored, err := f.store.ListConversation(context.Background(), f.users["anna"].ID, f.users["dr.lee"].ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.False(t, stored[0].IsRead)
}

func TestDispatch_MessagesArriveInSendOrder(t *testing.T) {
	f := newChatFixture(t, "anna", "dr.lee")
	anna, lee := f.connect(t, "anna"), f.connect(t, "dr.lee")

	var want []string
	for i := 0; i < 5; i++ {
		content := fmt.Sprintf("m%d", i)
		want = append(want, content)
		f.hub.HandleFrame(context.Background(), anna, frame(t, models.EventSendMessage, models.SendMessage{
			ReceiverID: f.users["dr.lee"].ID, Content: content,
		}))
	}

	var got []string
	for _, ev := range withoutPresence(drain(t, f.hub, lee)) {
		got = append(got, ev.Data.(*models.Message).Content)
	}
	assert.Equal(t, want, got)
}

func TestDispatch_StrangerCannotDelete(t *testing.T) {
	f := newChatFixture(t, "anna", "bob", "carol", "dave")
	ctx := context.Background()
	msg := &models.Message{SenderID: f.users["carol"].ID, ReceiverID: f.users["dave"].ID, Content: "private"}
	require.NoError(t, f.store.CreateMessage(ctx, msg))

	bob, carol, dave := f.connect(t, "bob"), f.connect(t, "carol"), f.connect(t, "dave")

	out := f.hub.HandleFrame(ctx, bob, frame(t, models.EventDeleteMessage, models.DeleteMessage{MessageID: msg.ID}))
	assert.Equal(t, chathub.OutcomeIgnored, out.Kind)

	for _, c := range []*MockClient{bob, carol, dave} {
		assert.Empty(t, withoutPresence(drain(t, f.hub, c)), c.id)
	}
	_, err := f.store.FindMessageByID(ctx, msg.ID)
	assert.NoError(t, err, "message must survive")

	out = f.hub.HandleFrame(ctx, carol, frame(t, models.EventDeleteMessage, models.DeleteMessage{MessageID: msg.ID}))
	require.Equal(t, chathub.OutcomeSuccess, out.Kind, out.Err)
	want := []models.OutboundEvent{{Event: models.EventMessageDeleted, Data: models.MessageDeletedPayload{MessageID: msg.ID}}}
	assert.Equal(t, want, withoutPresence(drain(t, f.hub, carol)))
	assert.Equal(t, want, withoutPresence(drain(t, f.hub, dave)))
}

func TestDispatch_MarkReadNotifiesSenderOnce(t *testing.T) {
	f := newChatFixture(t, "anna", "dr.lee")
	ctx := context.Background()
	msg := &models.Message{SenderID: f.users["anna"].ID, ReceiverID: f.users["dr.lee"].ID, Content: "hi"}
	require.NoError(t, f.store.CreateMessage(ctx, msg))
	anna, lee := f.connect(t, "anna"), f.connect(t, "dr.lee")

	raw := frame(t, models.EventMarkRead, models.MarkRead{MessageID: msg.ID})
	assert.Equal(t, chathub.OutcomeSuccess, f.hub.HandleFrame(ctx, lee, raw).Kind)
	assert.Equal(t, chathub.OutcomeSuccess, f.hub.HandleFrame(ctx, lee, raw).Kind)

	assert.Equal(t, []models.OutboundEvent{{
		Event: models.EventMessageRead,
		Data:  models.MessageReadPayload{MessageID: msg.ID, ReaderID: f.users["dr.lee"].ID},
	}}, withoutPresence(drain(t, f.hub, anna)))
	assert.Empty(t, withoutPresence(drain(t, f.hub, lee)))
}

func TestDispatch_TypingOnlyReachesReceiver(t *testing.T) {
	f := newChatFixture(t, "anna", "dr.lee")
	anna, lee := f.connect(t, "anna"), f.connect(t, "dr.lee")

	out := f.hub.HandleFrame(context.Background(), anna, frame(t, models.EventTyping, map[string]any{
		"receiverId": f.users["dr.lee"].ID,
		"isTyping":   true,
	}))
	require.Equal(t, chathub.OutcomeSuccess, out.Kind, out.Err)

	assert.Equal(t, []models.OutboundEvent{{
		Event: models.EventTypingStatus,
		Data:  models.TypingStatusPayload{UserID: f.users["anna"].ID, IsTyping: true, Username: "anna"},
	}}, withoutPresence(drain(t, f.hub, lee)))
	assert.Empty(t, withoutPresence(drain(t, f.hub, anna)))
}

func TestDispatch_MalformedFramesAreIgnored(t *testing.T) {
	f := newChatFixture(t, "anna", "dr.lee")
	anna, lee := f.connect(t, "anna"), f.connect(t, "dr.lee")
	leeID := f.users["dr.lee"].ID

	frames := map[string][]byte{
		"not json":        []byte("{nope"),
		"unknown event":   frame(t, "launch_rockets", map[string]any{}),
		"missing data":    []byte(`{"event":"send_message"}`),
		"unknown field":   frame(t, models.EventSendMessage, map[string]any{"receiverId": leeID, "content": "x", "extra": 1}),
		"empty content":   frame(t, models.EventSendMessage, map[string]any{"receiverId": leeID, "content": "  "}),
		"typing no flag":  frame(t, models.EventTyping, map[string]any{"receiverId": leeID}),
		"unknown message": frame(t, models.EventDeleteMessage, models.DeleteMessage{MessageID: 999}),
	}
	for name, raw := range frames {
		t.Run(name, func(t *testing.T) {
			out := f.hub.HandleFrame(context.Background(), anna, raw)
			assert.Equal(t, chathub.OutcomeIgnored, out.Kind)
			assert.Error(t, out.Err)
		})
	}

	assert.Empty(t, withoutPresence(drain(t, f.hub, anna)))
	assert.Empty(t, withoutPresence(drain(t, f.hub, lee)))
}

func TestDispatch_DeclinedCall(t *testing.T) {
	f := newChatFixture(t, "anna", "dr.lee")
	ctx := context.Background()
	anna, lee := f.connect(t, "anna"), f.connect(t, "dr.lee")
	annaID, leeID := f.users["anna"].ID, f.users["dr.lee"].ID

	out := f.hub.HandleFrame(ctx, anna, frame(t, models.EventInitiateVideoCall, models.InitiateVideoCall{
		ReceiverID: leeID, CallerID: annaID, CallerName: "anna", RoomName: "r1",
	}))
	require.Equal(t, chathub.OutcomeSuccess, out.Kind, out.Err)

	out = f.hub.HandleFrame(ctx, lee, frame(t, models.EventAnswerVideoCall, map[string]any{
		"callerId": annaID, "answer": false, "roomName": "r1",
	}))
	require.Equal(t, chathub.OutcomeSuccess, out.Kind, out.Err)

	assert.Equal(t, []models.OutboundEvent{{
		Event: models.EventVideoCallAnswer,
		Data:  models.VideoCallAnswerPayload{Answer: false, RoomName: "r1", RespondentID: leeID},
	}}, withoutPresence(drain(t, f.hub, anna)))

	leeEvents := withoutPresence(drain(t, f.hub, lee))
	require.Len(t, leeEvents, 1)
	assert.Equal(t, models.EventIncomingVideoCall, leeEvents[0].Event)

	out = f.hub.HandleFrame(ctx, anna, frame(t, models.EventEndVideoCall, models.EndVideoCall{RoomName: "r1"}))
	assert.Equal(t, chathub.OutcomeIgnored, out.Kind, "declined session no longer exists")
}

func TestDispatch_RecordsInboundOutcomes(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	hub := startHubWith(t, metrics)
	anna := newMockClient("anna-conn", 1, "anna")
	register(t, hub, anna)

	hub.HandleFrame(context.Background(), anna, []byte("{nope"))
	hub.HandleFrame(context.Background(), anna, frame(t, "launch_rockets", map[string]any{}))
	hub.HandleFrame(context.Background(), anna, frame(t, models.EventEndVideoCall, models.EndVideoCall{RoomName: "none"}))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.InboundEvents.WithLabelValues("invalid", "ignored")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.InboundEvents.WithLabelValues("unknown", "ignored")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.InboundEvents.WithLabelValues(models.EventEndVideoCall, "ignored")))
}
