package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/salesboard/internal/models"
)

func TestDealStore_Upsert(t *testing.T) {
	ctx := context.Background()
	st := NewDealStore()
	tenantID := uuid.New()

	deal := &models.Deal{TenantID: tenantID, CRMDealID: "d-1", Amount: 100, Stage: "appointmentscheduled"}
	created, err := st.Upsert(ctx, deal)
	require.NoError(t, err)
	require.True(t, created)
	require.NotEqual(t, uuid.Nil, deal.DealID)
	firstID := deal.DealID

	updated := &models.Deal{TenantID: tenantID, CRMDealID: "d-1", Amount: 250, Stage: models.DealStageClosedWon}
	created, err = st.Upsert(ctx, updated)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, firstID, updated.DealID)

	deals, err := st.ListByTenant(ctx, tenantID)
	require.NoError(t, err)
	require.Len(t, deals, 1)
	require.Equal(t, 250.0, deals[0].Amount)
	require.True(t, deals[0].IsWon())

	deals, err = st.ListByTenant(ctx, uuid.New())
	require.NoError(t, err)
	require.Empty(t, deals)
}

func TestDealStore_DeleteExcept(t *testing.T) {
	ctx := context.Background()
	st := NewDealStore()
	tenantID := uuid.New()
	otherTenant := uuid.New()

	for _, d := range []*models.Deal{
		{TenantID: tenantID, CRMDealID: "d-1"},
		{TenantID: tenantID, CRMDealID: "d-2"},
		{TenantID: tenantID, CRMDealID: "d-3"},
		{TenantID: otherTenant, CRMDealID: "d-2"},
	} {
		_, err := st.Upsert(ctx, d)
		require.NoError(t, err)
	}

	removed, err := st.DeleteExcept(ctx, tenantID, []string{"d-1", "d-9"})
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	deals, err := st.ListByTenant(ctx, tenantID)
	require.NoError(t, err)
	require.Len(t, deals, 1)
	require.Equal(t, "d-1", deals[0].CRMDealID)

	others, err := st.ListByTenant(ctx, otherTenant)
	require.NoError(t, err)
	require.Len(t, others, 1)

	removed, err = st.DeleteExcept(ctx, tenantID, nil)
	require.NoError(t, err)
	require.Equal(t, 1, removed)
}
