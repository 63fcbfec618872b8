// Package audit renders the compensation trail for operators.
package audit

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/Latasoft/CitySoccer-sub001/internal/database"
)

// RefundSource lists unresolved refund-required records.
type RefundSource interface {
	ListUnresolvedRefunds(ctx context.Context) ([]database.RefundRecord, error)
}

// Exporter writes the unresolved refund ledger to an Excel workbook.
type Exporter struct {
	source RefundSource
}

// NewExporter constructs an exporter over the refund ledger.
func NewExporter(source RefundSource) *Exporter {
	return &Exporter{source: source}
}

var refundColumns = []string{
	"Order Ref", "Amount", "Currency", "Buyer Email",
	"Court", "Date", "Start Time", "Reason", "Flagged At",
}

// ExportUnresolved writes all unresolved refund-required rows to wr as a
// single-sheet .xlsx workbook.
func (e *Exporter) ExportUnresolved(ctx context.Context, wr io.Writer) (int, error) {
	records, err := e.source.ListUnresolvedRefunds(ctx)
	if err != nil {
		return 0, fmt.Errorf("list unresolved refunds: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Refunds Required"
	f.SetSheetName("Sheet1", sheet)

	for i, col := range refundColumns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return 0, err
		}
		if err := f.SetCellValue(sheet, cell, col); err != nil {
			return 0, err
		}
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		startCell, _ := excelize.CoordinatesToCellName(1, 1)
		endCell, _ := excelize.CoordinatesToCellName(len(refundColumns), 1)
		_ = f.SetCellStyle(sheet, startCell, endCell, style)
	}

	for i, r := range records {
		row := []interface{}{
			r.OrderRef, r.Amount, r.Currency, r.BuyerEmail,
			r.ResourceID, r.Date, r.StartTime, r.Reason,
			r.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		for j, val := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+2)
			if err != nil {
				return 0, err
			}
			if err := f.SetCellValue(sheet, cell, val); err != nil {
				return 0, err
			}
		}
	}

	if err := f.Write(wr); err != nil {
		return 0, fmt.Errorf("write workbook: %w", err)
	}
	return len(records), nil
}
