package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-service-orders/internal/models"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func useFileStore(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("STORE_BACKEND", "file")
	t.Setenv("STORE_FILE_DIR", filepath.Join(dir, "data"))
	t.Setenv("ID_STORE", "store")
	t.Setenv("KAFKA_ENABLED", "false")
	return dir
}

func writeBackup(t *testing.T, dir string) string {
	t.Helper()
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	doc := models.ExportDocument{
		Version: models.ExportVersion,
		Data: []models.ServiceOrder{
			{
				ID:          "512",
				Customer:    models.Customer{Name: "Dana Reyes", Phone: "555-0100"},
				ItemType:    "monitor",
				Quantity:    1,
				Description: "flicker",
				Status:      models.StatusNeedsQuote,
				Labor:       []models.Labor{{Description: "bench test", Hours: decimal.NewFromInt(1), Rate: decimal.NewFromInt(40)}},
				CreatedAt:   created,
			},
		},
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	path := filepath.Join(dir, "backup.json")
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	return path
}

func TestImportStatsExport(t *testing.T) {
	dir := useFileStore(t)
	backup := writeBackup(t, dir)

	out, err := run(t, "import", "--file", backup)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 1 new and 0 updated")

	out, err = run(t, "stats")
	require.NoError(t, err)
	assert.Regexp(t, `needs-quote\s+1`, out)
	assert.Contains(t, out, "Order ids: 1/899 used")

	exported := filepath.Join(dir, "out.json")
	out, err = run(t, "export", "--out", exported)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 1 service order(s)")

	raw, err := os.ReadFile(exported)
	require.NoError(t, err)
	var doc models.ExportDocument
	require.NoError(t, json.Unmarshal(raw, &doc))
	require.Len(t, doc.Data, 1)
	assert.Equal(t, "512", doc.Data[0].ID)
	assert.Equal(t, "40", doc.Data[0].Financials.Total.String())
}

func TestExportWorkbookFile(t *testing.T) {
	dir := useFileStore(t)
	_, err := run(t, "import", "--file", writeBackup(t, dir))
	require.NoError(t, err)

	path := filepath.Join(dir, "orders.xlsx")
	_, err = run(t, "export", "--format", "xlsx", "--out", path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestExport_RejectsUnknownFormat(t *testing.T) {
	useFileStore(t)
	_, err := run(t, "export", "--format", "csv")
	assert.ErrorContains(t, err, "unknown format")
}

func TestImport_RequiresFile(t *testing.T) {
	useFileStore(t)
	_, err := run(t, "import")
	assert.Error(t, err)
}

func TestClearAll_NeedsConfirmation(t *testing.T) {
	dir := useFileStore(t)
	_, err := run(t, "import", "--file", writeBackup(t, dir))
	require.NoError(t, err)

	_, err = run(t, "clear-all")
	assert.ErrorContains(t, err, "--yes")

	out, err := run(t, "clear-all", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "order id pool reset")

	out, err = run(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Order ids: 0/899 used")
	assert.Contains(t, out, "Archived orders: 0")
}
