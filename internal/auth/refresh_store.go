package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/mooncast/backoffice/internal/model"
	"github.com/mooncast/backoffice/internal/record"
)

// RefreshTokenStore persists rotation tokens. Creation goes through the
// record layer; rotation runs its own transaction because deactivating
// the old token and inserting its successor must be atomic, and the
// record store scopes one transaction per save.
type RefreshTokenStore struct {
	records *record.Store
	auditor record.Auditor
}

func NewRefreshTokenStore(records *record.Store) *RefreshTokenStore {
	return &RefreshTokenStore{records: records}
}

// SetAuditor attaches the change sink used for rotation writes, which
// bypass the record store's own audit path.
func (s *RefreshTokenStore) SetAuditor(a record.Auditor) { s.auditor = a }

// Create inserts an active refresh token row.
func (s *RefreshTokenStore) Create(ctx context.Context, rt *model.RefreshToken) error {
	rt.IsActive = true
	return s.records.Save(ctx, rt)
}

// FindActiveValid returns the active, unexpired token matching the
// hash, or record.ErrNotFound.
func (s *RefreshTokenStore) FindActiveValid(ctx context.Context, tokenHash string, now time.Time) (*model.RefreshToken, error) {
	row, err := s.records.Table("refresh_tokens").
		Where("token_hash", tokenHash).
		Where("is_active", true).
		Where("expires_at", ">", now.UTC()).
		First(ctx)
	if err != nil {
		return nil, err
	}
	rt := &model.RefreshToken{}
	record.Load(rt, row)
	return rt, nil
}

// Rotate atomically deactivates old and inserts next, bound to the same
// device fingerprint. The old row is kept (inactive, never deleted) so
// the issuance chain stays auditable. If another rotation already
// consumed the old token the transaction aborts with ErrNotAuthenticated.
func (s *RefreshTokenStore) Rotate(ctx context.Context, old *model.RefreshToken, next *model.RefreshToken) error {
	next.IsActive = true
	next.DeviceFingerprint = old.DeviceFingerprint

	tx, err := s.records.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE refresh_tokens SET is_active = ? WHERE id = ? AND is_active = ?",
		false, old.ID, true)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if n == 0 {
		// Lost the race: the token was rotated or revoked concurrently.
		_ = tx.Rollback()
		return ErrNotAuthenticated
	}

	ins, err := tx.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at, is_active, device_fingerprint) VALUES (?,?,?,?,?)",
		next.UserID, next.TokenHash, next.ExpiresAt.UTC(), true, nullableString(next.DeviceFingerprint))
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	newID, err := ins.LastInsertId()
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("last insert id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	old.IsActive = false
	next.ID = uint64(newID)

	if s.auditor != nil {
		s.auditor.RecordChange(ctx, record.ActionUpdate, "refresh_tokens", fmt.Sprintf("%d", old.ID),
			map[string]record.Change{
				"is_active": {From: record.Bool(true), To: record.Bool(false)},
			}, map[string]any{"rotation": true})
		s.auditor.RecordChange(ctx, record.ActionCreate, "refresh_tokens", fmt.Sprintf("%d", next.ID),
			createChanges(next), map[string]any{"rotation": true})
	}
	return nil
}

func createChanges(rt *model.RefreshToken) map[string]record.Change {
	changes := make(map[string]record.Change)
	fields := rt.Fields()
	for _, col := range rt.Fillable() {
		if v, ok := fields[col]; ok && !v.IsNull() {
			changes[col] = record.Change{From: record.Null(), To: v}
		}
	}
	return changes
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
