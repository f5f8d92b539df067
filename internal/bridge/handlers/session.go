package handlers

import "maps"

const (
	sessionIDPrefix = "stage_session_"
	userIDPrefix    = "stage_user_"
)

// Session is the per-connection state record. The router owns the canonical
// instance; handlers mutate it only while the router holds the write lock.
type Session struct {
	ConnID        string
	SessionID     string
	UserID        string
	Authenticated bool

	// Client-reported state blobs, stored as received.
	Ready   map[string]any
	Playing map[string]any
	Config  map[string]any
}

// NewSession returns an unauthenticated session for a transport connection.
func NewSession(connID string) *Session {
	return &Session{ConnID: connID}
}

// Clone returns a copy safe to hand outside the router's lock.
func (s *Session) Clone() Session {
	out := *s
	out.Ready = maps.Clone(s.Ready)
	out.Playing = maps.Clone(s.Playing)
	out.Config = maps.Clone(s.Config)
	return out
}
