package chathub

import (
	"sort"
	"time"

	"mindspace/backend/internal/apperr"
	"mindspace/backend/internal/models"
)

// CallMachine negotiates video calls between two users. Sessions are keyed by
// the room name the caller picks and live only in memory. Like the presence
// registry it belongs to the hub goroutine.
type CallMachine struct {
	sessions    map[string]*models.CallSession
	ringTimeout time.Duration
}

// NewCallMachine creates a machine that ends unanswered calls after
// ringTimeout. A zero timeout lets calls ring forever.
func NewCallMachine(ringTimeout time.Duration) *CallMachine {
	return &CallMachine{
		sessions:    make(map[string]*models.CallSession),
		ringTimeout: ringTimeout,
	}
}

// Initiate starts ringing the receiver. The same caller may ring again into
// a room that is still ringing; an answered call cannot be re-rung.
func (m *CallMachine) Initiate(from models.Identity, ev models.InitiateVideoCall, now time.Time) ([]models.Delivery, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	if ev.CallerID != from.ID {
		return nil, apperr.Unauthorized("user %d cannot call as %d", from.ID, ev.CallerID)
	}
	if ev.ReceiverID == from.ID {
		return nil, apperr.Invalid("cannot call yourself")
	}
	if existing, ok := m.sessions[ev.RoomName]; ok {
		sameCall := existing.CallerID == ev.CallerID && existing.ReceiverID == ev.ReceiverID
		if !sameCall {
			return nil, apperr.Invalid("room %q is in use", ev.RoomName)
		}
		if existing.State != models.CallRinging {
			return nil, apperr.Invalid("call %q is already %s", ev.RoomName, existing.State)
		}
	}

	callerName := ev.CallerName
	if callerName == "" {
		callerName = from.Username
	}
	m.sessions[ev.RoomName] = &models.CallSession{
		RoomName:   ev.RoomName,
		CallerID:   ev.CallerID,
		CallerName: callerName,
		ReceiverID: ev.ReceiverID,
		State:      models.CallRinging,
		CreatedAt:  now,
	}

	return []models.Delivery{{
		UserID: ev.ReceiverID,
		Event: models.OutboundEvent{
			Event: models.EventIncomingVideoCall,
			Data: models.IncomingVideoCallPayload{
				CallerID:   ev.CallerID,
				CallerName: callerName,
				RoomName:   ev.RoomName,
			},
		},
	}}, nil
}

// Answer accepts or declines a ringing call. Only the receiver may answer.
func (m *CallMachine) Answer(from models.Identity, ev models.AnswerVideoCall, now time.Time) ([]models.Delivery, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	session, ok := m.sessions[ev.RoomName]
	if !ok {
		return nil, apperr.NotFound("call %q", ev.RoomName)
	}
	if session.ReceiverID != from.ID {
		return nil, apperr.Unauthorized("user %d cannot answer call %q", from.ID, ev.RoomName)
	}
	if session.State != models.CallRinging || session.CallerID != ev.CallerID {
		return nil, apperr.Invalid("call %q is not ringing for caller %d", ev.RoomName, ev.CallerID)
	}

	answer := models.OutboundEvent{
		Event: models.EventVideoCallAnswer,
		Data: models.VideoCallAnswerPayload{
			Answer:       *ev.Answer,
			RoomName:     ev.RoomName,
			RespondentID: from.ID,
		},
	}
	if !*ev.Answer {
		delete(m.sessions, ev.RoomName)
		return []models.Delivery{{UserID: session.CallerID, Event: answer}}, nil
	}

	session.State = models.CallActive
	session.AnsweredAt = now
	join := models.OutboundEvent{
		Event: models.EventJoinVideoCall,
		Data:  models.RoomPayload{RoomName: ev.RoomName},
	}
	return []models.Delivery{
		{UserID: session.CallerID, Event: answer},
		{UserID: session.CallerID, Event: join},
		{UserID: session.ReceiverID, Event: join},
	}, nil
}

// End hangs up on behalf of either participant and tells the other one.
func (m *CallMachine) End(from models.Identity, ev models.EndVideoCall) ([]models.Delivery, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	session, ok := m.sessions[ev.RoomName]
	if !ok {
		return nil, apperr.NotFound("call %q", ev.RoomName)
	}
	if !session.Involves(from.ID) {
		return nil, apperr.Unauthorized("user %d is not in call %q", from.ID, ev.RoomName)
	}
	delete(m.sessions, ev.RoomName)
	return []models.Delivery{ended(session.Peer(from.ID), ev.RoomName)}, nil
}

// EndAllFor removes every session userID takes part in. The remaining
// participant of each gets one video_call_ended.
func (m *CallMachine) EndAllFor(userID uint) []models.Delivery {
	var out []models.Delivery
	for _, room := range m.rooms() {
		session := m.sessions[room]
		if !session.Involves(userID) {
			continue
		}
		delete(m.sessions, room)
		out = append(out, ended(session.Peer(userID), room))
	}
	return out
}

// Sweep ends calls that have been ringing for longer than the ring timeout.
func (m *CallMachine) Sweep(now time.Time) []models.Delivery {
	if m.ringTimeout <= 0 {
		return nil
	}
	var out []models.Delivery
	for _, room := range m.rooms() {
		session := m.sessions[room]
		if session.State != models.CallRinging || now.Sub(session.CreatedAt) < m.ringTimeout {
			continue
		}
		delete(m.sessions, room)
		out = append(out, ended(session.CallerID, room), ended(session.ReceiverID, room))
	}
	return out
}

// Session returns a copy of the session for room.
func (m *CallMachine) Session(room string) (models.CallSession, bool) {
	s, ok := m.sessions[room]
	if !ok {
		return models.CallSession{}, false
	}
	return *s, true
}

func (m *CallMachine) Len() int { return len(m.sessions) }

func (m *CallMachine) rooms() []string {
	rooms := make([]string, 0, len(m.sessions))
	for room := range m.sessions {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

func ended(userID uint, room string) models.Delivery {
	return models.Delivery{
		UserID: userID,
		Event: models.OutboundEvent{
			Event: models.EventVideoCallEnded,
			Data:  models.RoomPayload{RoomName: room},
		},
	}
}
