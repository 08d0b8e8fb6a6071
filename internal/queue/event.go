// Package queue defines message payloads exchanged over the message
// broker and the background consumer for the auth-event stream.
package queue

// Auth event kinds published to the auth.events queue.
const (
	EventLoginSucceeded = "login.succeeded"
	EventLoginFailed    = "login.failed"
	EventTokenRotated   = "token.rotated"
	EventLogout         = "logout"
)

// AuthEvent is published on authentication lifecycle transitions. It
// carries enough for downstream consumers to alert or aggregate without
// querying the primary database. Identifier is omitted on failures for
// unknown accounts so the stream can't be used to confirm usernames.
type AuthEvent struct {
	Kind      string `json:"kind"`
	UserID    uint64 `json:"user_id,omitempty"`
	Username  string `json:"username,omitempty"`
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	At        string `json:"at"`
}
