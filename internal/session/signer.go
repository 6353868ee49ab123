// Package session issues and validates the signed session credential and
// the one-time keys used to hand it across windows.
package session

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/wolfeidau/salesboard/internal/models"
)

const issuer = "salesboard"

var (
	ErrInvalidCredential = errors.New("invalid session credential")
	ErrExpiredCredential = errors.New("session credential expired")
)

// Claims are carried by the session credential.
type Claims struct {
	TenantID uuid.UUID `json:"tenant_id"`
	UserID   uuid.UUID `json:"user_id"`
	Role     string    `json:"role"`
	jwt.RegisteredClaims
}

// Signer signs and verifies HS256 session credentials.
type Signer struct {
	secret []byte
	kid    string
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner creates a signer. The secret must be at least 32 bytes.
func NewSigner(secret []byte, ttl time.Duration) (*Signer, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("session secret must be at least 32 bytes")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("session TTL must be greater than 0")
	}

	// kid lets a rotated secret be told apart from the old one
	sum := sha256.Sum256(secret)

	return &Signer{
		secret: secret,
		kid:    base58.Encode(sum[:8]),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// TTL returns how long issued credentials stay valid.
func (s *Signer) TTL() time.Duration {
	return s.ttl
}

// Sign issues a credential for the user.
func (s *Signer) Sign(user *models.User) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)

	claims := &Claims{
		TenantID: user.TenantID,
		UserID:   user.UserID,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.UserID.String(),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = s.kid

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session credential: %w", err)
	}

	return signed, expiresAt, nil
}

// Verify checks the signature and expiry of a credential and returns its claims.
func (s *Signer) Verify(credential string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(credential, claims, func(t *jwt.Token) (any, error) {
		if kid, _ := t.Header["kid"].(string); kid != s.kid {
			return nil, errors.New("unknown key id")
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredCredential
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}

	if claims.TenantID == uuid.Nil || claims.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing tenant or user", ErrInvalidCredential)
	}

	return claims, nil
}
