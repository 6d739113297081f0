package chathub

import "mindspace/backend/internal/models"

// Client is one authenticated realtime connection. The hub only talks to
// connections through this interface, so tests can register in-memory clients.
type Client interface {
	// ID is unique per connection. A user with two tabs open has two clients.
	ID() string
	// Identity is resolved during the handshake and never changes afterwards.
	Identity() models.Identity

	// Send returns the channel the hub writes outbound events to. Only the hub
	// goroutine sends on it.
	Send() chan<- models.OutboundEvent

	// Run starts the connection's read and write pumps.
	Run()
	// Close stops the write side. It must be safe to call more than once.
	Close()
}
