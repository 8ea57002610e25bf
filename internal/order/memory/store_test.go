package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-service-orders/internal/models"
)

func TestStore_PartitionsByArchivedAt(t *testing.T) {
	s := New()
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveOrder(ctx, models.ServiceOrder{ID: "101", Status: models.StatusReceived}))
	require.NoError(t, s.SaveOrder(ctx, models.ServiceOrder{ID: "202", Status: models.StatusArchived, ArchivedAt: &at}))

	active, err := s.LoadOrders(ctx, models.PartitionActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "101", active[0].ID)

	archived, err := s.LoadOrders(ctx, models.PartitionArchived)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, "202", archived[0].ID)

	require.NoError(t, s.DeleteOrder(ctx, "202"))
	require.NoError(t, s.DeleteOrder(ctx, "999"))
	assert.Equal(t, 1, s.Len())
}

func TestStore_CopiesOnSave(t *testing.T) {
	s := New()
	ctx := context.Background()

	o := models.ServiceOrder{ID: "303", StatusHistory: []models.StatusEvent{{Status: models.StatusReceived}}}
	require.NoError(t, s.SaveOrder(ctx, o))
	o.StatusHistory[0].Status = models.StatusReady

	loaded, err := s.LoadOrders(ctx, models.PartitionActive)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReceived, loaded[0].StatusHistory[0].Status)
}

func TestStore_UsedIDs(t *testing.T) {
	s := New()
	ctx := context.Background()

	ids, err := s.LoadUsedIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, s.SaveUsedIDs(ctx, []string{"101", "102"}))
	ids, err = s.LoadUsedIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"101", "102"}, ids)
}

func TestStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New().SaveOrder(ctx, models.ServiceOrder{ID: "101"})
	assert.ErrorIs(t, err, context.Canceled)
}
