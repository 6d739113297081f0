package chathub

import (
	"fmt"
	"sort"

	"mindspace/backend/internal/config"
	"mindspace/backend/internal/models"
)

// ChannelName is the per-user delivery channel every connection of the user joins.
func ChannelName(userID uint) string {
	return fmt.Sprintf(config.UserChannelFmt, userID)
}

type presence struct {
	entry models.PresenceEntry
	conns map[string]struct{}
}

// PresenceRegistry tracks which users have open connections. A user stays
// online while at least one connection remains. It is owned by the hub
// goroutine and is not safe for concurrent use.
type PresenceRegistry struct {
	users map[uint]*presence
}

func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{users: make(map[uint]*presence)}
}

// Add records connID for the user and refreshes the user's attributes from
// the newest connection. It reports whether the user just came online.
func (p *PresenceRegistry) Add(identity models.Identity, connID string) bool {
	u, ok := p.users[identity.ID]
	if !ok {
		u = &presence{conns: make(map[string]struct{})}
		p.users[identity.ID] = u
	}
	u.entry = models.PresenceEntry{ID: identity.ID, Username: identity.Username, Role: identity.Role}
	u.conns[connID] = struct{}{}
	return !ok
}

// Remove drops connID and reports whether the user has gone offline.
func (p *PresenceRegistry) Remove(userID uint, connID string) bool {
	u, ok := p.users[userID]
	if !ok {
		return false
	}
	delete(u.conns, connID)
	if len(u.conns) > 0 {
		return false
	}
	delete(p.users, userID)
	return true
}

func (p *PresenceRegistry) IsOnline(userID uint) bool {
	_, ok := p.users[userID]
	return ok
}

// Connections returns the user's connection ids in a stable order.
func (p *PresenceRegistry) Connections(userID uint) []string {
	u, ok := p.users[userID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(u.conns))
	for id := range u.conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot lists online users ordered by id.
func (p *PresenceRegistry) Snapshot() []models.PresenceEntry {
	out := make([]models.PresenceEntry, 0, len(p.users))
	for _, u := range p.users {
		out = append(out, u.entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (p *PresenceRegistry) Len() int { return len(p.users) }
