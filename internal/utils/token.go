// Package utils provides token minting, hashing and password helpers
// shared by the authentication lifecycle.
package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token is a freshly minted opaque credential. Raw is handed to the
// client exactly once; only Hash is ever stored.
type Token struct {
	Raw       string
	Hash      string
	ExpiresAt time.Time
}

// NewToken returns a high-entropy random token (48 bytes, hex encoded)
// with its SHA-256 hash and UTC expiry.
func NewToken(ttl time.Duration) (Token, error) {
	raw, err := randomHex(48)
	if err != nil {
		return Token{}, err
	}
	return Token{
		Raw:       raw,
		Hash:      HashToken(raw),
		ExpiresAt: time.Now().UTC().Add(ttl),
	}, nil
}

// HashToken returns the SHA-256 hex digest of a raw token. Storing only
// the digest keeps stolen database rows from impersonating sessions.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// NewInvitationToken signs an HS256 invitation for the given address and
// role. The jti ties the token to its stored hash row for single use.
func NewInvitationToken(secret, email, role, jti string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub":  email,
		"role": role,
		"jti":  jti,
		"exp":  now.Add(ttl).Unix(),
		"iat":  now.Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(secret))
}

// ParseInvitationToken verifies the signature and expiry and returns the
// invited email and role.
func ParseInvitationToken(secret, token string) (email, role string, err error) {
	tok, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return "", "", errors.New("invalid invitation token")
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", errors.New("invalid invitation claims")
	}
	email, _ = claims["sub"].(string)
	role, _ = claims["role"].(string)
	if email == "" || role == "" {
		return "", "", errors.New("invalid invitation claims")
	}
	return email, role, nil
}
