package auth

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// TicketStore issues and redeems short-lived single-use WebSocket tickets.
//
// Browsers cannot set an Authorization header on a WebSocket upgrade, so
// an authenticated caller first exchanges its JWT for a ticket, then
// passes the ticket as a query parameter on the upgrade request. Tickets
// are opaque random ids held in memory; they expire after the configured
// TTL and are consumed on first use.
type TicketStore struct {
	ttl time.Duration

	mu      sync.Mutex
	tickets map[string]ticketEntry
}

type ticketEntry struct {
	principal Principal
	expiresAt time.Time
}

// NewTicketStore creates a store with the given ticket lifetime.
// Non-positive TTLs fall back to 30 seconds.
func NewTicketStore(ttl time.Duration) *TicketStore {
	if ttl <= 0 {
		ttl = 30 * time.Second //nolint:mnd // default ws ticket TTL
	}
	return &TicketStore{
		ttl:     ttl,
		tickets: make(map[string]ticketEntry),
	}
}

// Issue creates a ticket bound to the given principal.
// Expired tickets are swept opportunistically on each issue.
func (s *TicketStore) Issue(p Principal) string {
	ticket := uuid.NewString()
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, entry := range s.tickets {
		if now.After(entry.expiresAt) {
			delete(s.tickets, id)
		}
	}

	s.tickets[ticket] = ticketEntry{
		principal: p,
		expiresAt: now.Add(s.ttl),
	}
	return ticket
}

// Redeem consumes a ticket, returning the bound principal.
// A ticket can be redeemed once; unknown, expired, or reused tickets
// return ErrTicketInvalid.
func (s *TicketStore) Redeem(ticket string) (Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.tickets[ticket]
	if !ok {
		return Principal{}, ErrTicketInvalid
	}
	delete(s.tickets, ticket)

	if time.Now().After(entry.expiresAt) {
		return Principal{}, ErrTicketInvalid
	}
	return entry.principal, nil
}

// TTL returns the configured ticket lifetime in seconds, for handlers
// that report it to clients.
func (s *TicketStore) TTL() int {
	return int(s.ttl / time.Second)
}
