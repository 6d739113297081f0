package chathub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"mindspace/backend/internal/apperr"
	"mindspace/backend/internal/models"
)

var errUnroutable = errors.New("chathub: no handler for event")

// Messenger applies message events. Implementations persist before they emit.
type Messenger interface {
	Send(ctx context.Context, sender models.Identity, in models.SendMessage) (*models.Message, error)
	Delete(ctx context.Context, requesterID, messageID uint) error
	MarkRead(ctx context.Context, readerID, messageID uint) (bool, error)
	Typing(ctx context.Context, sender models.Identity, in models.Typing) error
}

// HandleFrame decodes one inbound frame from c and applies it. It runs on the
// connection's read goroutine, so message events for one connection are
// handled in the order they arrived. Call events are handed to the hub loop.
func (m *ManagerService) HandleFrame(ctx context.Context, c Client, raw []byte) Outcome {
	var env models.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return m.record(c, "", classify(fmt.Errorf("decode frame: %w: %v", apperr.ErrValidation, err)))
	}
	ev, err := models.DecodeInbound(env)
	if err != nil {
		return m.record(c, env.Event, classify(err))
	}
	return m.record(c, env.Event, m.route(ctx, c.Identity(), ev))
}

func (m *ManagerService) route(ctx context.Context, from models.Identity, ev models.InboundEvent) Outcome {
	switch e := ev.(type) {
	case *models.InitiateVideoCall, *models.AnswerVideoCall, *models.EndVideoCall:
		return m.submitCall(ctx, CallEvent{From: from, Event: e})
	}

	if m.messenger == nil {
		return classify(errUnroutable)
	}
	var err error
	switch e := ev.(type) {
	case *models.SendMessage:
		_, err = m.messenger.Send(ctx, from, *e)
	case *models.DeleteMessage:
		err = m.messenger.Delete(ctx, from.ID, e.MessageID)
	case *models.MarkRead:
		_, err = m.messenger.MarkRead(ctx, from.ID, e.MessageID)
	case *models.Typing:
		err = m.messenger.Typing(ctx, from, *e)
	default:
		err = errUnroutable
	}
	return classify(err)
}

// submitCall queues a call event and waits for the hub to apply it.
func (m *ManagerService) submitCall(ctx context.Context, ev CallEvent) Outcome {
	ev.result = make(chan Outcome, 1)
	select {
	case m.IncomingCh <- ev:
	case <-ctx.Done():
		return classify(ctx.Err())
	case <-m.done:
		return classify(ErrHubStopped)
	}
	select {
	case out := <-ev.result:
		return out
	case <-ctx.Done():
		return classify(ctx.Err())
	case <-m.done:
		return classify(ErrHubStopped)
	}
}

func (m *ManagerService) record(c Client, event string, out Outcome) Outcome {
	if event == "" {
		event = "invalid"
	}
	m.metrics.RecordInbound(metricEventName(event), out.Kind.String())

	attrs := []any{"conn_id", c.ID(), "user_id", c.Identity().ID, "event", event}
	switch out.Kind {
	case OutcomeIgnored:
		m.logger.Debug("event ignored", append(attrs, "reason", out.Err)...)
	case OutcomeFailed:
		m.logger.Error("event failed", append(attrs, "error", out.Err)...)
	}
	return out
}

// metricEventName keeps client-chosen event names out of metric labels.
func metricEventName(event string) string {
	switch event {
	case models.EventInitiateVideoCall, models.EventAnswerVideoCall, models.EventEndVideoCall,
		models.EventSendMessage, models.EventDeleteMessage, models.EventMarkRead, models.EventTyping,
		"invalid":
		return event
	default:
		return "unknown"
	}
}
