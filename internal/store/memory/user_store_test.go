package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/salesboard/internal/models"
	"github.com/wolfeidau/salesboard/internal/store"
)

func newTestUser(t *testing.T, tenantID uuid.UUID, email string) *models.User {
	t.Helper()
	id, err := uuid.NewV7()
	require.NoError(t, err)
	now := time.Now()
	return &models.User{
		UserID:    id,
		TenantID:  tenantID,
		Email:     email,
		Active:    true,
		Role:      models.RoleSalesRep,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestUserStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	st := NewUserStore()
	tenantID := uuid.New()

	user := newTestUser(t, tenantID, "Jane@Example.com")
	require.NoError(t, st.Create(ctx, user))

	got, err := st.Get(ctx, tenantID, user.UserID)
	require.NoError(t, err)
	require.Equal(t, user.Email, got.Email)

	t.Run("lookup is scoped to tenant", func(t *testing.T) {
		_, err := st.Get(ctx, uuid.New(), user.UserID)
		require.ErrorIs(t, err, store.ErrUserNotFound)
	})

	t.Run("email lookup ignores case", func(t *testing.T) {
		got, err := st.GetByEmail(ctx, tenantID, "jane@example.com")
		require.NoError(t, err)
		require.Equal(t, user.UserID, got.UserID)
	})

	t.Run("duplicate email in tenant", func(t *testing.T) {
		err := st.Create(ctx, newTestUser(t, tenantID, "jane@example.com"))
		require.ErrorIs(t, err, store.ErrUserAlreadyExists)
	})

	t.Run("same email in another tenant", func(t *testing.T) {
		require.NoError(t, st.Create(ctx, newTestUser(t, uuid.New(), "jane@example.com")))
	})
}

func TestUserStore_UpdateAndList(t *testing.T) {
	ctx := context.Background()
	st := NewUserStore()
	tenantID := uuid.New()

	first := newTestUser(t, tenantID, "a@example.com")
	second := newTestUser(t, tenantID, "b@example.com")
	require.NoError(t, st.Create(ctx, first))
	require.NoError(t, st.Create(ctx, second))

	second.OwnerID = "42"
	second.Active = false
	require.NoError(t, st.Update(ctx, second))

	users, err := st.ListByTenant(ctx, tenantID)
	require.NoError(t, err)
	require.Len(t, users, 2)
	require.Equal(t, first.UserID, users[0].UserID)
	require.Equal(t, "42", users[1].OwnerID)
	require.False(t, users[1].Active)

	count, err := st.CountByTenant(ctx, tenantID)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	err = st.Update(ctx, newTestUser(t, tenantID, "missing@example.com"))
	require.ErrorIs(t, err, store.ErrUserNotFound)
}
