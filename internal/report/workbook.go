// Package report renders an export document as an xlsx workbook for people who live in spreadsheets.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"ms-service-orders/internal/models"
)

const (
	SheetOrders  = "Orders"
	SheetHistory = "History"

	timeLayout = "2006-01-02 15:04"
)

var (
	orderColumns = []string{
		"Order ID", "Status", "Customer", "Company", "Phone", "Email", "Item", "Serial", "Qty",
		"Urgency", "Expected", "Created", "Archived", "Parts", "Labor", "Tax Rate %", "Tax", "Total",
	}
	historyColumns = []string{"Order ID", "Seq", "Status", "Notes", "Recorded"}
)

// WriteWorkbook writes one row per order to the Orders sheet and one row per status event to the
// History sheet.
func WriteWorkbook(w io.Writer, doc models.ExportDocument) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetOrders); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetHistory); err != nil {
		return fmt.Errorf("create history sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	if err := writeHeader(f, SheetOrders, orderColumns, headerStyle); err != nil {
		return err
	}
	if err := writeHeader(f, SheetHistory, historyColumns, headerStyle); err != nil {
		return err
	}

	historyRow := 2
	for i, o := range doc.Data {
		row := []interface{}{
			o.ID,
			string(o.Status),
			o.Customer.Name,
			o.Customer.Company,
			o.Customer.Phone,
			o.Customer.Email,
			o.ItemType,
			o.SerialNumber,
			o.Quantity,
			o.Urgency,
			o.ExpectedCompletion,
			formatTime(o.CreatedAt),
			formatTimePtr(o.ArchivedAt),
			o.PartsTotal.InexactFloat64(),
			o.LaborTotal.InexactFloat64(),
			o.TaxRate.InexactFloat64(),
			o.Tax.InexactFloat64(),
			o.Total.InexactFloat64(),
		}
		if err := setRow(f, SheetOrders, i+2, row); err != nil {
			return err
		}

		for _, ev := range o.StatusHistory {
			evRow := []interface{}{o.ID, ev.Seq, string(ev.Status), ev.Notes, formatTime(ev.CreatedAt)}
			if err := setRow(f, SheetHistory, historyRow, evRow); err != nil {
				return err
			}
			historyRow++
		}
	}

	if err := f.SetColWidth(SheetOrders, "A", "R", 14); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := f.SetColWidth(SheetHistory, "D", "D", 48); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeHeader(f *excelize.File, sheet string, columns []string, style int) error {
	header := make([]interface{}, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := setRow(f, sheet, 1, header); err != nil {
		return err
	}

	last, err := excelize.CoordinatesToCellName(len(columns), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
