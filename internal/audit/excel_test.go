package audit

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Latasoft/CitySoccer-sub001/internal/database"
)

type fakeSource struct {
	records []database.RefundRecord
	err     error
}

func (f *fakeSource) ListUnresolvedRefunds(context.Context) ([]database.RefundRecord, error) {
	return f.records, f.err
}

func TestExportUnresolved(t *testing.T) {
	source := &fakeSource{records: []database.RefundRecord{
		{
			OrderRef: "CS-1-conflict", Amount: 30000, Currency: "CLP",
			BuyerEmail: "ana@example.com", ResourceID: 5,
			Date: "2025-03-01", StartTime: "18:00",
			Reason:    "slot taken at commit",
			CreatedAt: time.Date(2025, 3, 1, 18, 5, 0, 0, time.UTC),
		},
	}}

	var buf bytes.Buffer
	n, err := NewExporter(source).ExportUnresolved(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Refunds Required")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Order Ref", rows[0][0])
	assert.Equal(t, "CS-1-conflict", rows[1][0])
	assert.Equal(t, "ana@example.com", rows[1][3])
}

func TestExportUnresolved_Empty(t *testing.T) {
	var buf bytes.Buffer
	n, err := NewExporter(&fakeSource{}).ExportUnresolved(context.Background(), &buf)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NotZero(t, buf.Len())
}

func TestExportUnresolved_SourceError(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewExporter(&fakeSource{err: errors.New("db closed")}).ExportUnresolved(context.Background(), &buf)
	assert.Error(t, err)
}
