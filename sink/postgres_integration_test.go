//go:build integration

package sink

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"web/resalegeo/features"
	"web/resalegeo/table"
)

func TestPostgresTrainingRecorder(t *testing.T) {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}

	ctx := context.Background()
	db, err := Connect(ctx, dsn)
	require.NoError(t, err)
	defer db.Close()

	rec := NewPostgresTrainingRecorder(db)
	require.NoError(t, rec.EnsureSchema(ctx))

	frame := &table.Frame{Rows: []table.Record{
		{"floor_area_sqm": 92.0, "resale_price": 480000.0},
		{"floor_area_sqm": 67.0, "resale_price": 350000.0},
	}}
	schema := &features.Schema{Columns: []string{"floor_area_sqm"}, Target: "resale_price"}

	n, err := rec.SaveTrainingData(ctx, "itest0001", frame, schema)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Saving again replaces the rows.
	_, err = rec.SaveTrainingData(ctx, "itest0001", frame, schema)
	require.NoError(t, err)

	rows, err := rec.LoadRows(ctx, "itest0001")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 67.0, rows[1].Features["floor_area_sqm"])
	assert.Equal(t, 350000.0, *rows[1].Target)

	runs, err := rec.Runs(ctx)
	require.NoError(t, err)
	var found bool
	for _, r := range runs {
		if r.RunID == "itest0001" {
			found = true
			assert.Equal(t, 2, r.RowCount)
		}
	}
	assert.True(t, found)
}
