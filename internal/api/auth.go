package api

import (
	"net/http"
)

// wsTicketResponse is the response body for POST /auth/ws-ticket.
type wsTicketResponse struct {
	Ticket    string `json:"ticket"`
	ExpiresIn int    `json:"expires_in"`
}

// handleWSTicket generates a single-use WebSocket authentication ticket bound
// to the calling principal. The client uses this ticket to authenticate the
// WebSocket connection without exposing the JWT in the URL.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(r.Context())
	if !ok {
		writeUnauthorized(w, "authentication required")
		return
	}

	writeJSON(w, http.StatusOK, wsTicketResponse{
		Ticket:    s.tickets.Issue(p),
		ExpiresIn: s.tickets.TTL(),
	})
}
