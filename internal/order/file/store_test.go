package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-service-orders/internal/models"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "data")
	s, err := New(dir)
	require.NoError(t, err)
	return s, dir
}

func TestLoadOrders_EmptyDirectory(t *testing.T) {
	s, _ := newTestStore(t)

	orders, err := s.LoadOrders(context.Background(), models.PartitionActive)
	require.NoError(t, err)
	assert.Empty(t, orders)

	ids, err := s.LoadUsedIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSaveOrder_RoundTripAndMove(t *testing.T) {
	s, dir := newTestStore(t)
	ctx := context.Background()

	o := models.ServiceOrder{
		ID:         "123",
		Customer:   models.Customer{Name: "Sam", Phone: "1"},
		Status:     models.StatusReady,
		Parts:      []models.Part{{Description: "fan", Quantity: 1, Price: decimal.RequireFromString("12.34")}},
		Financials: models.Financials{Total: decimal.RequireFromString("12.34")},
		StatusHistory: []models.StatusEvent{
			{ID: "e1", OrderID: "123", Status: models.StatusReady},
		},
	}
	require.NoError(t, s.SaveOrder(ctx, o))

	active, err := s.LoadOrders(ctx, models.PartitionActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "12.34", active[0].Total.String())

	at := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	o.Status = models.StatusArchived
	o.ArchivedAt = &at
	require.NoError(t, s.SaveOrder(ctx, o))

	active, err = s.LoadOrders(ctx, models.PartitionActive)
	require.NoError(t, err)
	assert.Empty(t, active)

	archived, err := s.LoadOrders(ctx, models.PartitionArchived)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.True(t, archived[0].ArchivedAt.Equal(at))

	assert.FileExists(t, filepath.Join(dir, ActiveFile))
	assert.FileExists(t, filepath.Join(dir, ArchivedFile))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp", "temp files must not be left behind")
	}
}

func TestDeleteOrder(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveOrder(ctx, models.ServiceOrder{ID: "101"}))
	require.NoError(t, s.SaveOrder(ctx, models.ServiceOrder{ID: "102"}))
	require.NoError(t, s.DeleteOrder(ctx, "101"))
	require.NoError(t, s.DeleteOrder(ctx, "999"))

	active, err := s.LoadOrders(ctx, models.PartitionActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "102", active[0].ID)
}

func TestUsedIDsPersistAcrossInstances(t *testing.T) {
	s, dir := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveUsedIDs(ctx, []string{"101", "555"}))

	reopened, err := New(dir)
	require.NoError(t, err)
	ids, err := reopened.LoadUsedIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"101", "555"}, ids)
}

func TestLoadOrders_CorruptDocument(t *testing.T) {
	s, dir := newTestStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ActiveFile), []byte("{not json"), 0644))

	_, err := s.LoadOrders(context.Background(), models.PartitionActive)
	assert.Error(t, err)
}

func TestSaveOrder_FailedMoveKeepsSourceCopy(t *testing.T) {
	s, dir := newTestStore(t)
	ctx := context.Background()

	o := models.ServiceOrder{
		ID:            "321",
		Status:        models.StatusCompleted,
		StatusHistory: []models.StatusEvent{{ID: "e1", OrderID: "321", Status: models.StatusCompleted}},
	}
	require.NoError(t, s.SaveOrder(ctx, o))

	// A directory where the archive document should be makes every read of it fail.
	require.NoError(t, os.Mkdir(filepath.Join(dir, ArchivedFile), 0755))

	at := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	o.Status = models.StatusArchived
	o.ArchivedAt = &at
	assert.Error(t, s.SaveOrder(ctx, o))

	active, err := s.LoadOrders(ctx, models.PartitionActive)
	require.NoError(t, err)
	require.Len(t, active, 1, "the order must still be on disk")
	assert.Equal(t, models.StatusCompleted, active[0].Status)
	assert.Len(t, active[0].StatusHistory, 1)
}
