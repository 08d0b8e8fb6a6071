package router

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mooncast/backoffice/internal/audit"
	"github.com/mooncast/backoffice/internal/auth"
	"github.com/mooncast/backoffice/internal/config"
	"github.com/mooncast/backoffice/internal/model"
	"github.com/mooncast/backoffice/internal/record"
	"github.com/mooncast/backoffice/internal/utils"
)

const schema = `
CREATE TABLE users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role          TEXT NOT NULL,
	locale        TEXT NOT NULL DEFAULT 'en',
	is_active     INTEGER NOT NULL DEFAULT 1,
	is_approved   INTEGER NOT NULL DEFAULT 0,
	is_verified   INTEGER NOT NULL DEFAULT 0,
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE sessions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    INTEGER NOT NULL,
	token_hash TEXT NOT NULL UNIQUE,
	expires_at TIMESTAMP NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE refresh_tokens (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id            INTEGER NOT NULL,
	token_hash         TEXT NOT NULL UNIQUE,
	expires_at         TIMESTAMP NOT NULL,
	is_active          INTEGER NOT NULL DEFAULT 1,
	device_fingerprint TEXT,
	created_at         TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE invitations (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	email       TEXT NOT NULL UNIQUE,
	role        TEXT NOT NULL,
	token_hash  TEXT NOT NULL UNIQUE,
	invited_by  INTEGER NOT NULL,
	expires_at  TIMESTAMP NOT NULL,
	accepted_at TIMESTAMP,
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE audit_logs (
	id            TEXT PRIMARY KEY,
	actor_id      INTEGER,
	action        TEXT NOT NULL,
	resource_type TEXT NOT NULL,
	resource_id   TEXT,
	ip            TEXT,
	user_agent    TEXT,
	changes       TEXT NOT NULL,
	metadata      TEXT NOT NULL,
	created_at    TIMESTAMP NOT NULL
);`

type app struct {
	e     *echo.Echo
	store *record.Store
}

func newApp(t *testing.T) *app {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(schema)
	require.NoError(t, err)

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	store := record.NewStore(db, log, record.Options{})
	trail := audit.NewTrail(store, log)
	store.SetAuditor(trail)

	sessions := auth.NewSessionStore(store)
	refresh := auth.NewRefreshTokenStore(store)
	refresh.SetAuditor(trail)

	svc := auth.NewService(store, sessions, refresh, auth.Config{
		AccessTTL:          time.Hour,
		RememberAccessTTL:  7 * 24 * time.Hour,
		RefreshTTL:         7 * 24 * time.Hour,
		RememberRefreshTTL: 30 * 24 * time.Hour,
		BcryptCost:         bcrypt.MinCost,
		InviteSecret:       "router-test-secret",
		InviteTTL:          14 * 24 * time.Hour,
	}, nil, log)

	e := echo.New()
	Register(e, svc, config.RateLimitConfig{Enabled: false}, nil)
	return &app{e: e, store: store}
}

func (a *app) seedUser(t *testing.T, username, role string) {
	t.Helper()
	hash, err := utils.HashPassword("pw", bcrypt.MinCost)
	require.NoError(t, err)
	u := &model.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		Role:         role,
		Locale:       "en",
		IsActive:     true,
		IsApproved:   true,
		IsVerified:   true,
	}
	require.NoError(t, a.store.Save(context.Background(), u))
}

func (a *app) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("User-Agent", "router-test/1.0")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func (a *app) login(t *testing.T, username string) (access, refresh string) {
	t.Helper()
	rec := a.do(http.MethodPost, "/v1/auth/login", "", echo.Map{
		"identifier": username, "password": "pw",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Access  struct{ Token string } `json:"access"`
		Refresh struct{ Token string } `json:"refresh"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Access.Token, resp.Refresh.Token
}

func TestHealthz(t *testing.T) {
	a := newApp(t)
	rec := a.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	a := newApp(t)
	rec := a.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "backoffice_token_rotations_total")
}

func TestLoginAndMe(t *testing.T) {
	a := newApp(t)
	a.seedUser(t, "ada", "EDITOR")

	access, _ := a.login(t, "ada")

	rec := a.do(http.MethodGet, "/v1/me", access, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"ada"`)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	a := newApp(t)
	a.seedUser(t, "ada", "EDITOR")

	rec := a.do(http.MethodPost, "/v1/auth/login", "", echo.Map{
		"identifier": "ada", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(http.MethodPost, "/v1/auth/login", "", echo.Map{"identifier": "ada"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProtectedRoutesRequireBearer(t *testing.T) {
	a := newApp(t)

	rec := a.do(http.MethodGet, "/v1/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(http.MethodGet, "/v1/me", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshEndpoint(t *testing.T) {
	a := newApp(t)
	a.seedUser(t, "ada", "EDITOR")
	_, refresh := a.login(t, "ada")

	rec := a.do(http.MethodPost, "/v1/auth/refresh", "", echo.Map{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, rec.Code)

	// The consumed token is rejected on replay.
	rec = a.do(http.MethodPost, "/v1/auth/refresh", "", echo.Map{"refresh_token": refresh})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutRevokesSession(t *testing.T) {
	a := newApp(t)
	a.seedUser(t, "ada", "EDITOR")
	access, _ := a.login(t, "ada")

	rec := a.do(http.MethodPost, "/v1/auth/logout", access, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = a.do(http.MethodGet, "/v1/me", access, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Logging out again still succeeds.
	rec = a.do(http.MethodPost, "/v1/auth/logout", access, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestInvitationRequiresAdminRole(t *testing.T) {
	a := newApp(t)
	a.seedUser(t, "root", "ADMIN")
	a.seedUser(t, "ada", "EDITOR")

	adminTok, _ := a.login(t, "root")
	editorTok, _ := a.login(t, "ada")

	body := echo.Map{"email": "invitee@example.com", "role": "VIEWER"}

	rec := a.do(http.MethodPost, "/v1/invitations", editorTok, body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(http.MethodPost, "/v1/invitations", adminTok, body)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestInvitationFlow(t *testing.T) {
	a := newApp(t)
	a.seedUser(t, "root", "ADMIN")
	adminTok, _ := a.login(t, "root")

	rec := a.do(http.MethodPost, "/v1/invitations", adminTok, echo.Map{
		"email": "invitee@example.com", "role": "VIEWER",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.Token)

	rec = a.do(http.MethodPost, "/v1/auth/accept-invitation", "", echo.Map{
		"token": created.Token, "username": "invitee", "password": "chosen pw",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Replay of an accepted invitation fails.
	rec = a.do(http.MethodPost, "/v1/auth/accept-invitation", "", echo.Map{
		"token": created.Token, "username": "again", "password": "pw",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticatedWritesAreAttributed(t *testing.T) {
	a := newApp(t)
	a.seedUser(t, "root", "ADMIN")
	adminTok, _ := a.login(t, "root")

	rec := a.do(http.MethodPost, "/v1/invitations", adminTok, echo.Map{
		"email": "traced@example.com", "role": "VIEWER",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	entries, err := a.store.Table("audit_logs").
		Where("resource_type", "invitations").
		Get(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.False(t, e["actor_id"].IsNull())
	assert.Equal(t, "router-test/1.0", e["user_agent"].Text())

	var md map[string]any
	require.NoError(t, json.Unmarshal([]byte(e["metadata"].Text()), &md))
	assert.Equal(t, "POST", md["method"])
	assert.Equal(t, "/v1/invitations", md["path"])
	assert.Equal(t, "ADMIN", md["actor_role"])
}
