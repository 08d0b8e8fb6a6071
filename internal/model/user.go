// Package model defines the persisted entities of the backoffice.
// Each struct mirrors one table and implements record.Entity so the
// store can diff, audit and serialize it without reflection.
package model

import (
	"time"

	"github.com/mooncast/backoffice/internal/record"
)

// User mirrors the `users` table. PasswordHash is hidden from any
// serialized view; policy flags gate authentication and are re-checked
// on every token validation, not just at login.
type User struct {
	ID           uint64
	Username     string
	Email        string
	PasswordHash string
	Role         string
	Locale       string
	IsActive     bool
	IsApproved   bool
	IsVerified   bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u *User) Table() string      { return "users" }
func (u *User) PrimaryKey() string { return "id" }

func (u *User) Fields() map[string]record.Value {
	return map[string]record.Value{
		"id":            record.UintOrNull(u.ID),
		"username":      record.String(u.Username),
		"email":         record.String(u.Email),
		"password_hash": record.String(u.PasswordHash),
		"role":          record.String(u.Role),
		"locale":        record.String(u.Locale),
		"is_active":     record.Bool(u.IsActive),
		"is_approved":   record.Bool(u.IsApproved),
		"is_verified":   record.Bool(u.IsVerified),
		"created_at":    record.Time(u.CreatedAt),
		"updated_at":    record.Time(u.UpdatedAt),
	}
}

func (u *User) SetField(name string, v record.Value) {
	switch name {
	case "id":
		u.ID = v.Uint64()
	case "username":
		u.Username = v.Text()
	case "email":
		u.Email = v.Text()
	case "password_hash":
		u.PasswordHash = v.Text()
	case "role":
		u.Role = v.Text()
	case "locale":
		u.Locale = v.Text()
	case "is_active":
		u.IsActive = v.Bool()
	case "is_approved":
		u.IsApproved = v.Bool()
	case "is_verified":
		u.IsVerified = v.Bool()
	case "created_at":
		u.CreatedAt = v.Time()
	case "updated_at":
		u.UpdatedAt = v.Time()
	}
}

func (u *User) Fillable() []string {
	return []string{"username", "email", "password_hash", "role", "locale", "is_active", "is_approved", "is_verified"}
}

func (u *User) Hidden() []string { return []string{"password_hash"} }
