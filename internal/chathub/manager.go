package chathub

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"mindspace/backend/internal/config"
	"mindspace/backend/internal/models"
	"mindspace/backend/internal/observability"
)

// ErrHubStopped is returned by hub calls made after Run has returned.
var ErrHubStopped = errors.New("chathub: hub stopped")

// CallEvent is a call signaling event queued for the hub goroutine.
type CallEvent struct {
	From  models.Identity
	Event models.InboundEvent

	result chan Outcome
}

// ManagerService is the hub. A single goroutine (Run) owns the connection
// table, the presence registry and the call sessions; everything else talks
// to it through channels.
type ManagerService struct {
	RegisterCh   chan Client
	UnregisterCh chan Client
	IncomingCh   chan CallEvent
	EmitCh       chan models.Delivery
	snapshotCh   chan chan []models.PresenceEntry

	clients  map[string]Client
	presence *PresenceRegistry
	calls    *CallMachine

	messenger Messenger
	broker    Broker
	metrics   *observability.Metrics
	logger    *slog.Logger
	now       func() time.Time
	done      chan struct{}
}

// NewManagerService creates a hub. ringTimeout bounds how long a call may
// ring unanswered; zero disables the limit.
func NewManagerService(ringTimeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *ManagerService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ManagerService{
		// Unbuffered so that a returned Register or Unregister has been
		// applied before the caller's next hub operation.
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		IncomingCh:   make(chan CallEvent, config.HubQueueSize),
		EmitCh:       make(chan models.Delivery, config.HubQueueSize),
		snapshotCh:   make(chan chan []models.PresenceEntry),
		clients:      make(map[string]Client),
		presence:     NewPresenceRegistry(),
		calls:        NewCallMachine(ringTimeout),
		metrics:      metrics,
		logger:       logger.With("component", "chathub"),
		now:          time.Now,
		done:         make(chan struct{}),
	}
}

// SetMessenger wires the message lifecycle handler. The messaging service
// itself emits through the hub, so it is attached after construction.
func (m *ManagerService) SetMessenger(messenger Messenger) {
	m.messenger = messenger
}

// SetBroker enables cross-instance fan-out. Must be called before Run.
func (m *ManagerService) SetBroker(b Broker) {
	m.broker = b
}

// Done is closed when Run returns.
func (m *ManagerService) Done() <-chan struct{} { return m.done }

// Run processes hub events until ctx is cancelled. On exit every registered
// connection is closed.
func (m *ManagerService) Run(ctx context.Context) {
	defer close(m.done)

	var sweep <-chan time.Time
	if m.calls.ringTimeout > 0 {
		ticker := time.NewTicker(config.RingSweepPeriod)
		defer ticker.Stop()
		sweep = ticker.C
	}
	if m.broker != nil {
		go m.listen(ctx)
	}

	m.logger.Info("hub started")
	for {
		select {
		case <-ctx.Done():
			for _, c := range m.clients {
				c.Close()
			}
			m.logger.Info("hub stopped", "connections", len(m.clients))
			return

		case c := <-m.RegisterCh:
			m.register(c)

		case c := <-m.UnregisterCh:
			m.unregister(c)

		case ev := <-m.IncomingCh:
			m.handleCall(ev)

		case d := <-m.EmitCh:
			m.deliver(d)

		case reply := <-m.snapshotCh:
			reply <- m.presence.Snapshot()

		case now := <-sweep:
			m.sweep(now)
		}
	}
}

// Register hands an authenticated connection to the hub. When it returns nil
// the connection is already in the presence snapshot.
func (m *ManagerService) Register(ctx context.Context, c Client) error {
	select {
	case m.RegisterCh <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrHubStopped
	}
}

// Unregister removes a connection from the hub. It never blocks after the hub stops.
func (m *ManagerService) Unregister(c Client) {
	select {
	case m.UnregisterCh <- c:
	case <-m.done:
	}
}

// Emit delivers event to every connection of userID. With a broker the
// delivery goes through the shared channel so that other instances see it too.
func (m *ManagerService) Emit(ctx context.Context, userID uint, event models.OutboundEvent) error {
	d := models.Delivery{UserID: userID, Event: event}
	if m.broker != nil {
		return m.broker.PublishDelivery(ctx, d)
	}
	return m.enqueue(ctx, d)
}

// OnlineUsers returns the presence snapshot as seen by the hub.
func (m *ManagerService) OnlineUsers(ctx context.Context) ([]models.PresenceEntry, error) {
	reply := make(chan []models.PresenceEntry, 1)
	select {
	case m.snapshotCh <- reply:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.done:
		return nil, ErrHubStopped
	}
	select {
	case snapshot := <-reply:
		return snapshot, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *ManagerService) enqueue(ctx context.Context, d models.Delivery) error {
	select {
	case m.EmitCh <- d:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrHubStopped
	}
}

func (m *ManagerService) register(c Client) {
	identity := c.Identity()
	m.clients[c.ID()] = c
	if m.presence.Add(identity, c.ID()) {
		m.logger.Info("user online", "user_id", identity.ID, "channel", ChannelName(identity.ID))
	}
	m.logger.Debug("connection registered", "conn_id", c.ID(), "user_id", identity.ID)
	m.updateGauges()
	m.broadcastPresence()
}

func (m *ManagerService) unregister(c Client) {
	if _, ok := m.clients[c.ID()]; !ok {
		return
	}
	delete(m.clients, c.ID())
	c.Close()

	userID := c.Identity().ID
	m.logger.Debug("connection unregistered", "conn_id", c.ID(), "user_id", userID)
	if !m.presence.Remove(userID, c.ID()) {
		m.updateGauges()
		return
	}

	m.logger.Info("user offline", "user_id", userID)
	for _, d := range m.calls.EndAllFor(userID) {
		m.deliver(d)
	}
	m.updateGauges()
	m.broadcastPresence()
}

func (m *ManagerService) handleCall(ev CallEvent) {
	var (
		deliveries []models.Delivery
		err        error
	)
	now := m.now()
	switch e := ev.Event.(type) {
	case *models.InitiateVideoCall:
		deliveries, err = m.calls.Initiate(ev.From, *e, now)
	case *models.AnswerVideoCall:
		deliveries, err = m.calls.Answer(ev.From, *e, now)
	case *models.EndVideoCall:
		deliveries, err = m.calls.End(ev.From, *e)
	default:
		m.logger.Error("unexpected call event", "event", ev.Event.EventName())
		err = errUnroutable
	}

	for _, d := range deliveries {
		m.deliver(d)
	}
	m.updateGauges()
	if ev.result != nil {
		ev.result <- classify(err)
	}
}

func (m *ManagerService) sweep(now time.Time) {
	deliveries := m.calls.Sweep(now)
	if len(deliveries) == 0 {
		return
	}
	m.logger.Info("ring timeout", "calls_ended", len(deliveries)/2)
	for _, d := range deliveries {
		m.deliver(d)
	}
	m.updateGauges()
}

func (m *ManagerService) broadcastPresence() {
	m.deliver(models.Delivery{
		Broadcast: true,
		Event: models.OutboundEvent{
			Event: models.EventOnlineUsers,
			Data:  m.presence.Snapshot(),
		},
	})
}

// deliver writes d to the addressed local connections. A connection whose
// buffer is full is dropped rather than allowed to stall the hub.
func (m *ManagerService) deliver(d models.Delivery) {
	var targets []Client
	if d.Broadcast {
		targets = make([]Client, 0, len(m.clients))
		for _, c := range m.clients {
			targets = append(targets, c)
		}
	} else {
		for _, id := range m.presence.Connections(d.UserID) {
			if c, ok := m.clients[id]; ok {
				targets = append(targets, c)
			}
		}
	}

	var slow []Client
	for _, c := range targets {
		select {
		case c.Send() <- d.Event:
			m.metrics.RecordDelivery(d.Event.Event)
		default:
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		m.logger.Warn("dropping slow connection", "conn_id", c.ID(), "user_id", c.Identity().ID)
		m.metrics.RecordDroppedClient()
		m.unregister(c)
	}
}

func (m *ManagerService) updateGauges() {
	m.metrics.SetConnections(len(m.clients))
	m.metrics.SetOnlineUsers(m.presence.Len())
	m.metrics.SetLiveCalls(m.calls.Len())
}
