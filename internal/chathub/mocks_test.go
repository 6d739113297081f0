package chathub_test

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"mindspace/backend/internal/chathub"
	"mindspace/backend/internal/models"
	"mindspace/backend/internal/observability"

	"github.com/stretchr/testify/require"
)

const flushEvent = "test_flush"

// MockClient is an in-memory connection. Events the hub sends stay in the
// buffered channel until the test reads them.
type MockClient struct {
	id       string
	identity models.Identity
	events   chan models.OutboundEvent
	closed   atomic.Bool
}

func newMockClient(id string, userID uint, username string) *MockClient {
	return newMockClientBuffered(id, userID, username, 64)
}

func newMockClientBuffered(id string, userID uint, username string, size int) *MockClient {
	return &MockClient{
		id:       id,
		identity: models.Identity{ID: userID, Username: username, Role: models.RolePatient},
		events:   make(chan models.OutboundEvent, size),
	}
}

func (c *MockClient) ID() string                        { return c.id }
func (c *MockClient) Identity() models.Identity         { return c.identity }
func (c *MockClient) Send() chan<- models.OutboundEvent { return c.events }
func (c *MockClient) Run()                              {}
func (c *MockClient) Close()                            { c.closed.Store(true) }
func (c *MockClient) IsClosed() bool                    { return c.closed.Load() }

func startHub(t *testing.T, setup ...func(*chathub.ManagerService)) *chathub.ManagerService {
	t.Helper()
	return startHubWith(t, nil, setup...)
}

func startHubWith(t *testing.T, metrics *observability.Metrics, setup ...func(*chathub.ManagerService)) *chathub.ManagerService {
	t.Helper()
	hub := chathub.NewManagerService(0, metrics, nil)
	for _, fn := range setup {
		fn(hub)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-hub.Done()
	})
	return hub
}

func register(t *testing.T, hub *chathub.ManagerService, clients ...*MockClient) {
	t.Helper()
	for _, c := range clients {
		require.NoError(t, hub.Register(context.Background(), c))
	}
}

// drain returns everything delivered to c so far. It pushes a marker through
// the hub's delivery queue and reads up to it, so every delivery queued
// before the call has been applied. Markers meant for the user's other
// connections are skipped.
func drain(t *testing.T, hub *chathub.ManagerService, c *MockClient) []models.OutboundEvent {
	t.Helper()
	hub.EmitCh <- models.Delivery{UserID: c.identity.ID, Event: models.OutboundEvent{Event: flushEvent, Data: c.id}}

	var out []models.OutboundEvent
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-c.events:
			if ev.Event == flushEvent {
				if ev.Data == c.id {
					return out
				}
				continue
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("timed out draining %s", c.id)
			return nil
		}
	}
}

// collect waits for n events other than online_users broadcasts. Use it when
// deliveries arrive from outside the hub queue and drain cannot order them.
func collect(t *testing.T, c *MockClient, n int) []models.OutboundEvent {
	t.Helper()
	var out []models.OutboundEvent
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case ev := <-c.events:
			if ev.Event != models.EventOnlineUsers {
				out = append(out, ev)
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %d events on %s, got %d", n, c.id, len(out))
			return nil
		}
	}
	return out
}

// withoutPresence drops online_users broadcasts.
func withoutPresence(events []models.OutboundEvent) []models.OutboundEvent {
	var out []models.OutboundEvent
	for _, ev := range events {
		if ev.Event != models.EventOnlineUsers {
			out = append(out, ev)
		}
	}
	return out
}

func lastPresence(t *testing.T, events []models.OutboundEvent) []models.PresenceEntry {
	t.Helper()
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Event == models.EventOnlineUsers {
			return events[i].Data.([]models.PresenceEntry)
		}
	}
	t.Fatal("no online_users event")
	return nil
}

func frame(t *testing.T, event string, data any) []byte {
	t.Helper()
	raw, err := json.Marshal(models.OutboundEvent{Event: event, Data: data})
	require.NoError(t, err)
	return raw
}
