package model

import (
	"time"

	"github.com/mooncast/backoffice/internal/record"
)

// Session mirrors the `sessions` table: one row per live access token.
// Only the SHA-256 hash of the bearer token is stored; the plaintext
// exists exactly once, in the login response. Rows are deleted on
// logout and treated as expired by time comparison on every read.
type Session struct {
	ID        uint64
	UserID    uint64
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

func (s *Session) Table() string      { return "sessions" }
func (s *Session) PrimaryKey() string { return "id" }

func (s *Session) Fields() map[string]record.Value {
	return map[string]record.Value{
		"id":         record.UintOrNull(s.ID),
		"user_id":    record.Uint(s.UserID),
		"token_hash": record.String(s.TokenHash),
		"expires_at": record.Time(s.ExpiresAt),
		"created_at": record.Time(s.CreatedAt),
	}
}

func (s *Session) SetField(name string, v record.Value) {
	switch name {
	case "id":
		s.ID = v.Uint64()
	case "user_id":
		s.UserID = v.Uint64()
	case "token_hash":
		s.TokenHash = v.Text()
	case "expires_at":
		s.ExpiresAt = v.Time()
	case "created_at":
		s.CreatedAt = v.Time()
	}
}

func (s *Session) Fillable() []string {
	return []string{"user_id", "token_hash", "expires_at"}
}

func (s *Session) Hidden() []string { return []string{"token_hash"} }
