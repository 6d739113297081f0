package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"mindspace/backend/internal/apperr"
)

// Client -> server events.
const (
	EventInitiateVideoCall = "initiate_video_call"
	EventAnswerVideoCall   = "answer_video_call"
	EventEndVideoCall      = "end_video_call"
	EventSendMessage       = "send_message"
	EventDeleteMessage     = "delete_message"
	EventMarkRead          = "mark_read"
	EventTyping            = "typing"
)

// Server -> client events.
const (
	EventOnlineUsers       = "online_users"
	EventIncomingVideoCall = "incoming_video_call"
	EventVideoCallAnswer   = "video_call_answer"
	EventJoinVideoCall     = "join_video_call"
	EventVideoCallEnded    = "video_call_ended"
	EventNewMessage        = "new_message"
	EventMessageDeleted    = "message_deleted"
	EventMessageRead       = "message_read"
	EventMessagesRead      = "messages_read"
	EventTypingStatus      = "typing_status"
)

// Envelope is a single websocket frame: {"event": "...", "data": {...}}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// OutboundEvent is what the hub writes to a connection.
type OutboundEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// InboundEvent is the closed set of payloads a client may send.
type InboundEvent interface {
	EventName() string
	Validate() error
}

type InitiateVideoCall struct {
	ReceiverID uint   `json:"receiverId"`
	CallerID   uint   `json:"callerId"`
	CallerName string `json:"callerName"`
	RoomName   string `json:"roomName"`
}

type AnswerVideoCall struct {
	CallerID uint   `json:"callerId"`
	Answer   *bool  `json:"answer"`
	RoomName string `json:"roomName"`
}

type EndVideoCall struct {
	RoomName string `json:"roomName"`
}

type SendMessage struct {
	ReceiverID  uint         `json:"receiverId"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments"`
}

type DeleteMessage struct {
	MessageID uint `json:"messageId"`
}

type MarkRead struct {
	MessageID uint `json:"messageId"`
}

type Typing struct {
	ReceiverID uint  `json:"receiverId"`
	IsTyping   *bool `json:"isTyping"`
}

func (InitiateVideoCall) EventName() string { return EventInitiateVideoCall }
func (AnswerVideoCall) EventName() string   { return EventAnswerVideoCall }
func (EndVideoCall) EventName() string      { return EventEndVideoCall }
func (SendMessage) EventName() string       { return EventSendMessage }
func (DeleteMessage) EventName() string     { return EventDeleteMessage }
func (MarkRead) EventName() string          { return EventMarkRead }
func (Typing) EventName() string            { return EventTyping }

func (e InitiateVideoCall) Validate() error {
	if e.ReceiverID == 0 || e.CallerID == 0 {
		return apperr.Invalid("receiverId and callerId are required")
	}
	if strings.TrimSpace(e.RoomName) == "" {
		return apperr.Invalid("roomName is required")
	}
	return nil
}

func (e AnswerVideoCall) Validate() error {
	if e.CallerID == 0 || e.Answer == nil {
		return apperr.Invalid("callerId and answer are required")
	}
	if strings.TrimSpace(e.RoomName) == "" {
		return apperr.Invalid("roomName is required")
	}
	return nil
}

func (e EndVideoCall) Validate() error {
	if strings.TrimSpace(e.RoomName) == "" {
		return apperr.Invalid("roomName is required")
	}
	return nil
}

func (e SendMessage) Validate() error {
	if e.ReceiverID == 0 {
		return apperr.Invalid("receiverId is required")
	}
	if strings.TrimSpace(e.Content) == "" && len(e.Attachments) == 0 {
		return apperr.Invalid("content or attachments required")
	}
	return nil
}

func (e DeleteMessage) Validate() error {
	if e.MessageID == 0 {
		return apperr.Invalid("messageId is required")
	}
	return nil
}

func (e MarkRead) Validate() error {
	if e.MessageID == 0 {
		return apperr.Invalid("messageId is required")
	}
	return nil
}

func (e Typing) Validate() error {
	if e.ReceiverID == 0 {
		return apperr.Invalid("receiverId is required")
	}
	if e.IsTyping == nil {
		return apperr.Invalid("isTyping must be a boolean")
	}
	return nil
}

// DecodeInbound turns a raw envelope into a validated event. Unknown fields
// are rejected so that misspelled payloads fail loudly at the boundary.
func DecodeInbound(env Envelope) (InboundEvent, error) {
	var ev InboundEvent
	switch env.Event {
	case EventInitiateVideoCall:
		ev = &InitiateVideoCall{}
	case EventAnswerVideoCall:
		ev = &AnswerVideoCall{}
	case EventEndVideoCall:
		ev = &EndVideoCall{}
	case EventSendMessage:
		ev = &SendMessage{}
	case EventDeleteMessage:
		ev = &DeleteMessage{}
	case EventMarkRead:
		ev = &MarkRead{}
	case EventTyping:
		ev = &Typing{}
	default:
		return nil, apperr.Invalid("unknown event %q", env.Event)
	}

	if len(env.Data) == 0 {
		return nil, apperr.Invalid("%s: missing data", env.Event)
	}
	dec := json.NewDecoder(bytes.NewReader(env.Data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(ev); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", env.Event, apperr.ErrValidation, err)
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

// Server -> client payloads.

type IncomingVideoCallPayload struct {
	CallerID   uint   `json:"callerId"`
	CallerName string `json:"callerName"`
	RoomName   string `json:"roomName"`
}

type VideoCallAnswerPayload struct {
	Answer       bool   `json:"answer"`
	RoomName     string `json:"roomName"`
	RespondentID uint   `json:"respondentId"`
}

type RoomPayload struct {
	RoomName string `json:"roomName"`
}

type MessageDeletedPayload struct {
	MessageID uint `json:"messageId"`
}

type MessageReadPayload struct {
	MessageID uint `json:"messageId"`
	ReaderID  uint `json:"readerId"`
}

type MessagesReadPayload struct {
	ReadBy uint `json:"readBy"`
}

type TypingStatusPayload struct {
	UserID   uint   `json:"userId"`
	IsTyping bool   `json:"isTyping"`
	Username string `json:"username"`
}

// Delivery addresses an outbound event to one user's channel, or to every
// connection when Broadcast is set. It is also the cross-instance bridge payload.
type Delivery struct {
	UserID    uint          `json:"userId,omitempty"`
	Broadcast bool          `json:"broadcast,omitempty"`
	Event     OutboundEvent `json:"event"`
}
