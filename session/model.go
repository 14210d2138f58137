package session

import "time"

// Session is one live login for an identity. LastActivity is maintained
// in the store's activity index, not in the persisted blob; the value here
// is filled in when listing.
type Session struct {
	SessionID    string    `json:"sid"`
	IdentityID   string    `json:"identity_id"`
	Addr         string    `json:"addr,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"-"`
}
