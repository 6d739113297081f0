package models

import "time"

// CallState is the lifecycle state of a call negotiation.
type CallState string

const (
	CallNone    CallState = "none"
	CallRinging CallState = "ringing"
	CallActive  CallState = "active"
	CallEnded   CallState = "ended"
)

// CallSession is the transient signaling record for one video call, keyed by
// the caller-chosen room name. It is never persisted; the media itself runs in
// an external conferencing room of the same name.
type CallSession struct {
	RoomName   string
	CallerID   uint
	CallerName string
	ReceiverID uint
	State      CallState
	CreatedAt  time.Time
	AnsweredAt time.Time
}

// Involves reports whether userID is the caller or the receiver.
func (c *CallSession) Involves(userID uint) bool {
	return c.CallerID == userID || c.ReceiverID == userID
}

// Peer returns the other participant for userID.
func (c *CallSession) Peer(userID uint) uint {
	if c.CallerID == userID {
		return c.ReceiverID
	}
	return c.CallerID
}

// PresenceEntry is one element of the online_users snapshot.
type PresenceEntry struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}
