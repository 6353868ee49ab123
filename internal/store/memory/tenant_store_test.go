package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/salesboard/internal/models"
	"github.com/wolfeidau/salesboard/internal/store"
)

func TestTenantStore(t *testing.T) {
	ctx := context.Background()
	st := NewTenantStore()

	tenant := &models.Tenant{TenantID: uuid.New(), PortalID: 4242, Name: "Acme", Domain: "acme.example"}
	require.NoError(t, st.Create(ctx, tenant))

	t.Run("duplicate portal", func(t *testing.T) {
		err := st.Create(ctx, &models.Tenant{TenantID: uuid.New(), PortalID: 4242})
		require.ErrorIs(t, err, store.ErrTenantAlreadyExists)
	})

	t.Run("lookup by portal", func(t *testing.T) {
		got, err := st.GetByPortalID(ctx, 4242)
		require.NoError(t, err)
		require.Equal(t, tenant.TenantID, got.TenantID)

		_, err = st.GetByPortalID(ctx, 1)
		require.ErrorIs(t, err, store.ErrTenantNotFound)
	})

	t.Run("update name and domain only", func(t *testing.T) {
		require.NoError(t, st.Update(ctx, &models.Tenant{TenantID: tenant.TenantID, PortalID: 99, Name: "Acme Inc", Domain: "acme.io"}))

		got, err := st.Get(ctx, tenant.TenantID)
		require.NoError(t, err)
		require.Equal(t, "Acme Inc", got.Name)
		require.Equal(t, "acme.io", got.Domain)
		require.Equal(t, int64(4242), got.PortalID)
		require.False(t, got.UpdatedAt.IsZero())
	})

	t.Run("update unknown", func(t *testing.T) {
		err := st.Update(ctx, &models.Tenant{TenantID: uuid.New()})
		require.ErrorIs(t, err, store.ErrTenantNotFound)
	})
}
