package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wolfeidau/salesboard/internal/models"
	"github.com/wolfeidau/salesboard/internal/store"
	"github.com/wolfeidau/salesboard/internal/telemetry"
)

// DefaultKeyTTL bounds how long a popup has to hand its key to the opener.
const DefaultKeyTTL = 2 * time.Minute

var ErrInvalidOrExpiredKey = errors.New("invalid or expired session key")

// KeyExchanger maps single-use opaque keys to session credentials.
type KeyExchanger struct {
	keys store.SessionKeyStore
	ttl  time.Duration
	now  func() time.Time
}

// NewKeyExchanger creates a key exchanger. A ttl of zero uses DefaultKeyTTL.
func NewKeyExchanger(keys store.SessionKeyStore, ttl time.Duration) *KeyExchanger {
	if ttl <= 0 {
		ttl = DefaultKeyTTL
	}
	return &KeyExchanger{
		keys: keys,
		ttl:  ttl,
		now:  time.Now,
	}
}

// Issue stores a new key pointing at credential and returns it.
func (k *KeyExchanger) Issue(ctx context.Context, credential, ipAddress string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session key: %w", err)
	}

	now := k.now()
	key := &models.SessionKey{
		Key:        base58.Encode(buf),
		Credential: credential,
		CreatedAt:  now,
		ExpiresAt:  now.Add(k.ttl),
		IPAddress:  ipAddress,
	}

	if err := k.keys.Create(ctx, key); err != nil {
		return "", fmt.Errorf("failed to store session key: %w", err)
	}

	telemetry.GetMetrics().SessionKeysIssuedTotal.Add(ctx, 1)

	return key.Key, nil
}

// Redeem consumes key and returns its credential. A key can be redeemed once;
// concurrent redemptions of the same key see exactly one success.
func (k *KeyExchanger) Redeem(ctx context.Context, key string) (string, error) {
	credential, err := k.redeem(ctx, key)

	result := "ok"
	switch {
	case errors.Is(err, ErrInvalidOrExpiredKey):
		result = "invalid"
	case err != nil:
		result = "error"
	}
	telemetry.GetMetrics().SessionKeyRedemptionsTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("result", result)))

	return credential, err
}

func (k *KeyExchanger) redeem(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", ErrInvalidOrExpiredKey
	}

	now := k.now()

	if _, err := k.keys.DeleteExpired(ctx, now); err != nil {
		log.Warn().Err(err).Msg("Failed to purge expired session keys")
	}

	sk, err := k.keys.Take(ctx, key, now)
	if err != nil {
		if errors.Is(err, store.ErrSessionKeyNotFound) || errors.Is(err, store.ErrSessionKeyExpired) {
			return "", ErrInvalidOrExpiredKey
		}
		return "", fmt.Errorf("failed to redeem session key: %w", err)
	}

	return sk.Credential, nil
}
