// Package auth implements the token-based authentication lifecycle:
// login, access-token validation, refresh-token rotation and logout,
// backed by hashed-token session stores.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/mooncast/backoffice/internal/model"
	"github.com/mooncast/backoffice/internal/record"
)

// SessionStore persists access-token sessions through the record layer,
// so session writes carry the same audit trail as any other mutation
// (with token hashes redacted by field name).
type SessionStore struct {
	records *record.Store
}

func NewSessionStore(records *record.Store) *SessionStore {
	return &SessionStore{records: records}
}

// Create inserts a session row for the hashed token.
func (s *SessionStore) Create(ctx context.Context, userID uint64, tokenHash string, expiresAt time.Time) (*model.Session, error) {
	sess := &model.Session{
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt.UTC(),
	}
	if err := s.records.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// FindValid returns the unexpired session matching the hash, or
// record.ErrNotFound. Expiry is enforced in the query so a matching
// hash with a past expires_at never authenticates.
func (s *SessionStore) FindValid(ctx context.Context, tokenHash string, now time.Time) (*model.Session, error) {
	row, err := s.records.Table("sessions").
		Where("token_hash", tokenHash).
		Where("expires_at", ">", now.UTC()).
		First(ctx)
	if err != nil {
		return nil, err
	}
	sess := &model.Session{}
	record.Load(sess, row)
	return sess, nil
}

// Delete removes the session matching the hash. Deleting a session that
// does not exist is not an error; logout is idempotent.
func (s *SessionStore) Delete(ctx context.Context, tokenHash string) error {
	row, err := s.records.Table("sessions").Where("token_hash", tokenHash).First(ctx)
	if errors.Is(err, record.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	sess := &model.Session{}
	record.Load(sess, row)
	if err := s.records.Delete(ctx, sess); err != nil && !errors.Is(err, record.ErrNotFound) {
		return err
	}
	return nil
}
