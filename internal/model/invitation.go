package model

import (
	"time"

	"github.com/mooncast/backoffice/internal/record"
)

// Invitation mirrors the `invitations` table. The signed invitation
// token is never stored; only its SHA-256 hash, so a leaked table can't
// be replayed. AcceptedAt marks single use.
type Invitation struct {
	ID         uint64
	Email      string
	Role       string
	TokenHash  string
	InvitedBy  uint64
	ExpiresAt  time.Time
	AcceptedAt *time.Time
	CreatedAt  time.Time
}

func (i *Invitation) Table() string      { return "invitations" }
func (i *Invitation) PrimaryKey() string { return "id" }

func (i *Invitation) Fields() map[string]record.Value {
	return map[string]record.Value{
		"id":          record.UintOrNull(i.ID),
		"email":       record.String(i.Email),
		"role":        record.String(i.Role),
		"token_hash":  record.String(i.TokenHash),
		"invited_by":  record.Uint(i.InvitedBy),
		"expires_at":  record.Time(i.ExpiresAt),
		"accepted_at": record.TimeOrNull(i.AcceptedAt),
		"created_at":  record.Time(i.CreatedAt),
	}
}

func (i *Invitation) SetField(name string, v record.Value) {
	switch name {
	case "id":
		i.ID = v.Uint64()
	case "email":
		i.Email = v.Text()
	case "role":
		i.Role = v.Text()
	case "token_hash":
		i.TokenHash = v.Text()
	case "invited_by":
		i.InvitedBy = v.Uint64()
	case "expires_at":
		i.ExpiresAt = v.Time()
	case "accepted_at":
		i.AcceptedAt = v.TimePtr()
	case "created_at":
		i.CreatedAt = v.Time()
	}
}

func (i *Invitation) Fillable() []string {
	return []string{"email", "role", "token_hash", "invited_by", "expires_at", "accepted_at"}
}

func (i *Invitation) Hidden() []string { return []string{"token_hash"} }
