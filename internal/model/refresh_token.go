package model

import (
	"time"

	"github.com/mooncast/backoffice/internal/record"
)

// RefreshToken mirrors the `refresh_tokens` table. Rotation marks the
// superseded row inactive instead of deleting it, leaving an auditable
// chain of issuance. DeviceFingerprint scopes the token to the client
// context it was issued for and carries over on rotation.
type RefreshToken struct {
	ID                uint64
	UserID            uint64
	TokenHash         string
	ExpiresAt         time.Time
	IsActive          bool
	DeviceFingerprint string
	CreatedAt         time.Time
}

func (r *RefreshToken) Table() string      { return "refresh_tokens" }
func (r *RefreshToken) PrimaryKey() string { return "id" }

func (r *RefreshToken) Fields() map[string]record.Value {
	return map[string]record.Value{
		"id":                 record.UintOrNull(r.ID),
		"user_id":            record.Uint(r.UserID),
		"token_hash":         record.String(r.TokenHash),
		"expires_at":         record.Time(r.ExpiresAt),
		"is_active":          record.Bool(r.IsActive),
		"device_fingerprint": record.StringOrNull(r.DeviceFingerprint),
		"created_at":         record.Time(r.CreatedAt),
	}
}

func (r *RefreshToken) SetField(name string, v record.Value) {
	switch name {
	case "id":
		r.ID = v.Uint64()
	case "user_id":
		r.UserID = v.Uint64()
	case "token_hash":
		r.TokenHash = v.Text()
	case "expires_at":
		r.ExpiresAt = v.Time()
	case "is_active":
		r.IsActive = v.Bool()
	case "device_fingerprint":
		r.DeviceFingerprint = v.Text()
	case "created_at":
		r.CreatedAt = v.Time()
	}
}

func (r *RefreshToken) Fillable() []string {
	return []string{"user_id", "token_hash", "expires_at", "is_active", "device_fingerprint"}
}

func (r *RefreshToken) Hidden() []string { return []string{"token_hash"} }
