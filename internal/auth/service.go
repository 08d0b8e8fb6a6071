package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mooncast/backoffice/internal/audit"
	"github.com/mooncast/backoffice/internal/metrics"
	"github.com/mooncast/backoffice/internal/model"
	"github.com/mooncast/backoffice/internal/query"
	"github.com/mooncast/backoffice/internal/queue"
	"github.com/mooncast/backoffice/internal/record"
	"github.com/mooncast/backoffice/internal/utils"
)

// ErrNotAuthenticated is the uniform failure for every expected
// authentication miss: unknown identifier, wrong password, expired or
// revoked token, deactivated account. Callers never learn which, so the
// API can't be used to enumerate accounts or tokens. Storage failures
// are returned as distinct wrapped errors.
var ErrNotAuthenticated = errors.New("not authenticated")

// ErrInvitationInvalid covers every expected invitation miss: bad
// signature, expired, already accepted.
var ErrInvitationInvalid = errors.New("invitation invalid")

// ErrAlreadyExists reports a username/email uniqueness conflict.
var ErrAlreadyExists = errors.New("already exists")

// Config carries the lifecycle policy knobs. Access TTLs must stay
// shorter than the refresh TTL they pair with.
type Config struct {
	AccessTTL          time.Duration
	RememberAccessTTL  time.Duration
	RefreshTTL         time.Duration
	RememberRefreshTTL time.Duration
	BcryptCost         int
	InviteSecret       string
	InviteTTL          time.Duration
}

// Actor is the minimal descriptor of an authenticated user handed to
// callers. It never contains hashes or other secrets.
type Actor struct {
	ID       uint64 `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Locale   string `json:"locale"`
}

// TokenPair is the plaintext credential pair returned exactly once per
// issuance; only hashes survive server-side.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// EventPublisher pushes auth events to the broker. Implementations are
// best-effort; errors are logged and ignored by the service.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.AuthEvent) error
}

// Service orchestrates login, validation, rotation and logout over the
// session and refresh-token stores.
type Service struct {
	records  *record.Store
	sessions *SessionStore
	refresh  *RefreshTokenStore
	cfg      Config
	events   EventPublisher
	log      *logrus.Logger
}

func NewService(records *record.Store, sessions *SessionStore, refresh *RefreshTokenStore, cfg Config, events EventPublisher, log *logrus.Logger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{records: records, sessions: sessions, refresh: refresh, cfg: cfg, events: events, log: log}
}

// Login verifies the identifier/password pair and mints a fresh token
// pair. The identifier matches username or email. All credential and
// policy failures collapse into ErrNotAuthenticated.
func (s *Service) Login(ctx context.Context, identifier, password string, rememberMe bool, fingerprint string) (Actor, TokenPair, error) {
	identifier = strings.TrimSpace(identifier)

	row, err := s.records.Table("users").
		WhereGroup(func(g *query.Group) {
			g.Where("username", identifier)
			g.OrWhere("email", strings.ToLower(identifier))
		}).
		First(ctx)
	if errors.Is(err, record.ErrNotFound) {
		utils.BurnPasswordCheck(password)
		s.loginFailed(ctx, "")
		return Actor{}, TokenPair{}, ErrNotAuthenticated
	}
	if err != nil {
		return Actor{}, TokenPair{}, fmt.Errorf("auth: user lookup: %w", err)
	}

	user := &model.User{}
	record.Load(user, row)

	if !utils.VerifyPassword(user.PasswordHash, password) {
		s.loginFailed(ctx, user.Username)
		return Actor{}, TokenPair{}, ErrNotAuthenticated
	}
	if !accountUsable(user) {
		s.loginFailed(ctx, user.Username)
		return Actor{}, TokenPair{}, ErrNotAuthenticated
	}

	pair, err := s.issueTokens(ctx, user, rememberMe, fingerprint)
	if err != nil {
		return Actor{}, TokenPair{}, err
	}

	metrics.LoginsTotal.WithLabelValues("success").Inc()
	s.publish(ctx, queue.AuthEvent{Kind: queue.EventLoginSucceeded, UserID: user.ID, Username: user.Username})
	return actorOf(user), pair, nil
}

// ValidateToken authenticates a presented bearer token. The owning
// user's policy flags are re-checked on every call, so an account
// deactivated after login invalidates its live sessions immediately.
func (s *Service) ValidateToken(ctx context.Context, token string) (Actor, error) {
	sess, err := s.sessions.FindValid(ctx, utils.HashToken(token), time.Now())
	if errors.Is(err, record.ErrNotFound) {
		metrics.TokenValidationFailures.Inc()
		return Actor{}, ErrNotAuthenticated
	}
	if err != nil {
		return Actor{}, fmt.Errorf("auth: session lookup: %w", err)
	}

	user := &model.User{}
	err = s.records.Find(ctx, user, record.Uint(sess.UserID))
	if errors.Is(err, record.ErrNotFound) {
		metrics.TokenValidationFailures.Inc()
		return Actor{}, ErrNotAuthenticated
	}
	if err != nil {
		return Actor{}, fmt.Errorf("auth: user load: %w", err)
	}
	if !accountUsable(user) {
		metrics.TokenValidationFailures.Inc()
		return Actor{}, ErrNotAuthenticated
	}
	return actorOf(user), nil
}

// Refresh rotates a refresh token: the presented token is deactivated
// and a brand-new access+refresh pair is issued, bound to the same
// device fingerprint. A rotated or expired token fails uniformly.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Actor, TokenPair, error) {
	now := time.Now()
	old, err := s.refresh.FindActiveValid(ctx, utils.HashToken(refreshToken), now)
	if errors.Is(err, record.ErrNotFound) {
		return Actor{}, TokenPair{}, ErrNotAuthenticated
	}
	if err != nil {
		return Actor{}, TokenPair{}, fmt.Errorf("auth: refresh lookup: %w", err)
	}

	user := &model.User{}
	err = s.records.Find(ctx, user, record.Uint(old.UserID))
	if errors.Is(err, record.ErrNotFound) {
		return Actor{}, TokenPair{}, ErrNotAuthenticated
	}
	if err != nil {
		return Actor{}, TokenPair{}, fmt.Errorf("auth: user load: %w", err)
	}
	if !accountUsable(user) {
		return Actor{}, TokenPair{}, ErrNotAuthenticated
	}

	// TTLs follow the remaining horizon of the old token: a remember-me
	// session keeps its longer windows across rotations.
	remember := old.ExpiresAt.Sub(old.CreatedAt) > s.cfg.RefreshTTL
	access, refresh, err := s.mintPair(remember)
	if err != nil {
		return Actor{}, TokenPair{}, err
	}

	next := &model.RefreshToken{
		UserID:    user.ID,
		TokenHash: refresh.Hash,
		ExpiresAt: refresh.ExpiresAt,
	}
	if err := s.refresh.Rotate(ctx, old, next); err != nil {
		if errors.Is(err, ErrNotAuthenticated) {
			return Actor{}, TokenPair{}, ErrNotAuthenticated
		}
		return Actor{}, TokenPair{}, fmt.Errorf("auth: rotate: %w", err)
	}
	if _, err := s.sessions.Create(ctx, user.ID, access.Hash, access.ExpiresAt); err != nil {
		return Actor{}, TokenPair{}, fmt.Errorf("auth: session create: %w", err)
	}

	metrics.TokenRotations.Inc()
	s.publish(ctx, queue.AuthEvent{Kind: queue.EventTokenRotated, UserID: user.ID, Username: user.Username})

	return actorOf(user), TokenPair{
		AccessToken:      access.Raw,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshToken:     refresh.Raw,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

// Logout revokes the session for the presented access token. Unknown
// tokens are not an error; logging out twice succeeds.
func (s *Service) Logout(ctx context.Context, token string) error {
	if err := s.sessions.Delete(ctx, utils.HashToken(token)); err != nil {
		return fmt.Errorf("auth: logout: %w", err)
	}
	s.publish(ctx, queue.AuthEvent{Kind: queue.EventLogout})
	return nil
}

// Invite creates an invitation for the address and returns the signed
// token to hand to the invitee. Only the token's hash is stored.
func (s *Service) Invite(ctx context.Context, email, role string, inviterID uint64) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	token, err := utils.NewInvitationToken(s.cfg.InviteSecret, email, role, uuid.NewString(), s.cfg.InviteTTL)
	if err != nil {
		return "", fmt.Errorf("auth: sign invitation: %w", err)
	}
	inv := &model.Invitation{
		Email:     email,
		Role:      role,
		TokenHash: utils.HashToken(token),
		InvitedBy: inviterID,
		ExpiresAt: time.Now().UTC().Add(s.cfg.InviteTTL),
	}
	if err := s.records.Save(ctx, inv); err != nil {
		if isDuplicateErr(err) {
			return "", ErrAlreadyExists
		}
		return "", fmt.Errorf("auth: save invitation: %w", err)
	}
	return token, nil
}

// AcceptInvite redeems an invitation token, creating the invited user
// account. The invitation is single-use.
func (s *Service) AcceptInvite(ctx context.Context, token, username, password string) (Actor, error) {
	email, role, err := utils.ParseInvitationToken(s.cfg.InviteSecret, token)
	if err != nil {
		return Actor{}, ErrInvitationInvalid
	}

	row, err := s.records.Table("invitations").Where("token_hash", utils.HashToken(token)).First(ctx)
	if errors.Is(err, record.ErrNotFound) {
		return Actor{}, ErrInvitationInvalid
	}
	if err != nil {
		return Actor{}, fmt.Errorf("auth: invitation lookup: %w", err)
	}
	inv := &model.Invitation{}
	record.Load(inv, row)
	if inv.AcceptedAt != nil || time.Now().UTC().After(inv.ExpiresAt) {
		return Actor{}, ErrInvitationInvalid
	}

	hash, err := utils.HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return Actor{}, fmt.Errorf("auth: hash password: %w", err)
	}
	user := &model.User{
		Username:     strings.TrimSpace(username),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Locale:       "en",
		IsActive:     true,
		IsApproved:   true,
		IsVerified:   true, // address proven by possessing the invitation
	}
	if err := s.records.Save(ctx, user); err != nil {
		if isDuplicateErr(err) {
			return Actor{}, ErrAlreadyExists
		}
		return Actor{}, fmt.Errorf("auth: create user: %w", err)
	}

	now := time.Now().UTC()
	inv.AcceptedAt = &now
	if err := s.records.Save(ctx, inv); err != nil {
		return Actor{}, fmt.Errorf("auth: mark invitation accepted: %w", err)
	}
	return actorOf(user), nil
}

func (s *Service) issueTokens(ctx context.Context, user *model.User, rememberMe bool, fingerprint string) (TokenPair, error) {
	access, refresh, err := s.mintPair(rememberMe)
	if err != nil {
		return TokenPair{}, err
	}
	if _, err := s.sessions.Create(ctx, user.ID, access.Hash, access.ExpiresAt); err != nil {
		return TokenPair{}, fmt.Errorf("auth: session create: %w", err)
	}
	rt := &model.RefreshToken{
		UserID:            user.ID,
		TokenHash:         refresh.Hash,
		ExpiresAt:         refresh.ExpiresAt,
		DeviceFingerprint: fingerprint,
	}
	if err := s.refresh.Create(ctx, rt); err != nil {
		return TokenPair{}, fmt.Errorf("auth: refresh create: %w", err)
	}
	return TokenPair{
		AccessToken:      access.Raw,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshToken:     refresh.Raw,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

func (s *Service) mintPair(remember bool) (utils.Token, utils.Token, error) {
	accessTTL, refreshTTL := s.cfg.AccessTTL, s.cfg.RefreshTTL
	if remember {
		accessTTL, refreshTTL = s.cfg.RememberAccessTTL, s.cfg.RememberRefreshTTL
	}
	access, err := utils.NewToken(accessTTL)
	if err != nil {
		return utils.Token{}, utils.Token{}, fmt.Errorf("auth: mint access token: %w", err)
	}
	refresh, err := utils.NewToken(refreshTTL)
	if err != nil {
		return utils.Token{}, utils.Token{}, fmt.Errorf("auth: mint refresh token: %w", err)
	}
	return access, refresh, nil
}

func (s *Service) loginFailed(ctx context.Context, username string) {
	metrics.LoginsTotal.WithLabelValues("failure").Inc()
	s.publish(ctx, queue.AuthEvent{Kind: queue.EventLoginFailed, Username: username})
}

func (s *Service) publish(ctx context.Context, ev queue.AuthEvent) {
	if s.events == nil {
		return
	}
	if ac := audit.FromContext(ctx); ac != nil {
		meta := ac.RequestMeta()
		ev.IP = meta.IP
		ev.UserAgent = meta.UserAgent
	}
	ev.At = time.Now().UTC().Format(time.RFC3339)
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.WithError(err).WithField("kind", ev.Kind).Warn("auth: event publish failed")
	}
}

func accountUsable(u *model.User) bool {
	return u.IsActive && u.IsApproved && u.IsVerified
}

func actorOf(u *model.User) Actor {
	return Actor{ID: u.ID, Username: u.Username, Role: u.Role, Locale: u.Locale}
}

func isDuplicateErr(err error) bool {
	msg := strings.ToLower(err.Error())
	// MySQL reports 1062, SQLite "unique constraint failed".
	return strings.Contains(msg, "1062") || strings.Contains(msg, "unique constraint")
}
