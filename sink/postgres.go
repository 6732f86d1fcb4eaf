// Package sink records engineered training features in Postgres so model
// training can read them by run.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"web/resalegeo/features"
	"web/resalegeo/table"
)

// TrainingRecorder stores the feature frame of a run.
type TrainingRecorder interface {
	SaveTrainingData(ctx context.Context, runID string, frame *table.Frame, schema *features.Schema) (int, error)
}

const createTables = `
CREATE TABLE IF NOT EXISTS feature_runs (
	run_id      TEXT PRIMARY KEY,
	columns     JSONB NOT NULL,
	target      TEXT NOT NULL,
	row_count   INTEGER NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS training_features (
	run_id    TEXT NOT NULL REFERENCES feature_runs(run_id) ON DELETE CASCADE,
	row_index INTEGER NOT NULL,
	features  JSONB NOT NULL,
	target    DOUBLE PRECISION,
	PRIMARY KEY (run_id, row_index)
);`

type PostgresTrainingRecorder struct {
	db *sqlx.DB
}

// Connect opens a Postgres pool through lib/pq.
func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return db, nil
}

func NewPostgresTrainingRecorder(db *sqlx.DB) *PostgresTrainingRecorder {
	return &PostgresTrainingRecorder{db: db}
}

// EnsureSchema creates the feature tables when missing.
func (r *PostgresTrainingRecorder) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createTables); err != nil {
		return fmt.Errorf("failed to create feature tables: %w", err)
	}
	return nil
}

// TrainingRow is one stored feature row.
type TrainingRow struct {
	Index    int
	Features map[string]float64
	Target   *float64
}

// Rows projects the frame onto the schema columns. Each row keeps the
// columns it has a number for.
func Rows(frame *table.Frame, schema *features.Schema) []TrainingRow {
	rows := make([]TrainingRow, len(frame.Rows))
	for i, rec := range frame.Rows {
		row := TrainingRow{Index: i, Features: make(map[string]float64, len(schema.Columns))}
		for _, c := range schema.Columns {
			if v, ok := rec.Float(c); ok {
				row.Features[c] = v
			}
		}
		if schema.Target != "" {
			if v, ok := rec.Float(schema.Target); ok {
				row.Target = &v
			}
		}
		rows[i] = row
	}
	return rows
}

// SaveTrainingData replaces the stored rows of runID in one transaction.
func (r *PostgresTrainingRecorder) SaveTrainingData(ctx context.Context, runID string, frame *table.Frame, schema *features.Schema) (int, error) {
	columnsJSON, err := json.Marshal(schema.Columns)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal columns: %w", err)
	}
	rows := Rows(frame, schema)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	const upsertRun = `
		INSERT INTO feature_runs (run_id, columns, target, row_count, recorded_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (run_id) DO UPDATE
		SET columns = EXCLUDED.columns, target = EXCLUDED.target,
			row_count = EXCLUDED.row_count, recorded_at = NOW()`
	if _, err := tx.ExecContext(ctx, upsertRun, runID, string(columnsJSON), schema.Target, len(rows)); err != nil {
		return 0, fmt.Errorf("failed to record run: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM training_features WHERE run_id = $1`, runID); err != nil {
		return 0, fmt.Errorf("failed to clear run rows: %w", err)
	}

	const insertRow = `
		INSERT INTO training_features (run_id, row_index, features, target)
		VALUES ($1, $2, $3, $4)`
	stmt, err := tx.PreparexContext(ctx, insertRow)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		featuresJSON, err := json.Marshal(row.Features)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal row %d: %w", row.Index, err)
		}
		if _, err := stmt.ExecContext(ctx, runID, row.Index, string(featuresJSON), row.Target); err != nil {
			return 0, fmt.Errorf("failed to insert row %d: %w", row.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit training data: %w", err)
	}
	return len(rows), nil
}

// FeatureRun is a stored run header.
type FeatureRun struct {
	RunID      string    `db:"run_id" json:"runId"`
	Target     string    `db:"target" json:"target"`
	RowCount   int       `db:"row_count" json:"rowCount"`
	RecordedAt time.Time `db:"recorded_at" json:"recordedAt"`
}

// Runs lists recorded runs, newest first.
func (r *PostgresTrainingRecorder) Runs(ctx context.Context) ([]FeatureRun, error) {
	const query = `
		SELECT run_id, target, row_count, recorded_at
		FROM feature_runs
		ORDER BY recorded_at DESC`

	var runs []FeatureRun
	if err := r.db.SelectContext(ctx, &runs, query); err != nil {
		return nil, fmt.Errorf("failed to query feature runs: %w", err)
	}
	return runs, nil
}

// LoadRows reads the feature rows of one run in row order.
func (r *PostgresTrainingRecorder) LoadRows(ctx context.Context, runID string) ([]TrainingRow, error) {
	const query = `
		SELECT row_index, features, target
		FROM training_features
		WHERE run_id = $1
		ORDER BY row_index`

	var stored []struct {
		Index    int      `db:"row_index"`
		Features []byte   `db:"features"`
		Target   *float64 `db:"target"`
	}
	if err := r.db.SelectContext(ctx, &stored, query, runID); err != nil {
		return nil, fmt.Errorf("failed to query training rows: %w", err)
	}

	rows := make([]TrainingRow, len(stored))
	for i, s := range stored {
		rows[i] = TrainingRow{Index: s.Index, Target: s.Target}
		if err := json.Unmarshal(s.Features, &rows[i].Features); err != nil {
			return nil, fmt.Errorf("failed to decode row %d: %w", s.Index, err)
		}
	}
	return rows, nil
}
