package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/salesboard/internal/store/memory"
)

func TestKeyExchanger(t *testing.T) {
	ctx := context.Background()

	t.Run("redeem once", func(t *testing.T) {
		k := NewKeyExchanger(memory.NewSessionKeyStore(), 0)

		key, err := k.Issue(ctx, "credential", "127.0.0.1")
		require.NoError(t, err)
		require.NotEmpty(t, key)

		credential, err := k.Redeem(ctx, key)
		require.NoError(t, err)
		require.Equal(t, "credential", credential)

		_, err = k.Redeem(ctx, key)
		require.ErrorIs(t, err, ErrInvalidOrExpiredKey)
	})

	t.Run("expired key", func(t *testing.T) {
		k := NewKeyExchanger(memory.NewSessionKeyStore(), time.Minute)
		key, err := k.Issue(ctx, "credential", "")
		require.NoError(t, err)

		k.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
		_, err = k.Redeem(ctx, key)
		require.ErrorIs(t, err, ErrInvalidOrExpiredKey)
	})

	t.Run("unknown and empty keys", func(t *testing.T) {
		k := NewKeyExchanger(memory.NewSessionKeyStore(), 0)

		_, err := k.Redeem(ctx, "")
		require.ErrorIs(t, err, ErrInvalidOrExpiredKey)

		_, err = k.Redeem(ctx, "3mJr7AoUXx2Wqd")
		require.ErrorIs(t, err, ErrInvalidOrExpiredKey)
	})

	t.Run("concurrent redemption succeeds once", func(t *testing.T) {
		k := NewKeyExchanger(memory.NewSessionKeyStore(), 0)
		key, err := k.Issue(ctx, "credential", "")
		require.NoError(t, err)

		errs := make([]error, 2)
		var wg sync.WaitGroup
		for i := range errs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = k.Redeem(ctx, key)
			}()
		}
		wg.Wait()

		successes := 0
		for _, err := range errs {
			if err == nil {
				successes++
				continue
			}
			require.ErrorIs(t, err, ErrInvalidOrExpiredKey)
		}
		require.Equal(t, 1, successes)
	})

	t.Run("issued keys are unique", func(t *testing.T) {
		k := NewKeyExchanger(memory.NewSessionKeyStore(), 0)
		seen := make(map[string]struct{})
		for range 100 {
			key, err := k.Issue(ctx, "credential", "")
			require.NoError(t, err)
			_, dup := seen[key]
			require.False(t, dup)
			seen[key] = struct{}{}
		}
	})
}
