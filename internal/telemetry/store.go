package telemetry

import (
	"database/sql"
	"fmt"
	"time"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS telemetry_samples (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT NOT NULL,
	value       REAL NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_telemetry_lookup
ON telemetry_samples(name, id);
`
// #endregion schema

// timeLayout is a fixed-width UTC timestamp. RFC3339Nano trims trailing
// fractional zeros, which breaks the lexicographic range filter in Since;
// a padded fraction keeps string order equal to chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// #region types
// Sample is one observation of a named metric.
type Sample struct {
	Name      string
	Value     float64
	CreatedAt time.Time
}
// #endregion types

// #region store
// Store persists metric samples. Writers push lifecycle metrics; the
// anomaly monitor and rollback manager pull windows and ranges.
type Store struct {
	db *sql.DB
}

// NewStore initializes the telemetry table on a shared database handle.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate telemetry: %w", err)
	}
	return &Store{db: db}, nil
}
// #endregion store

// #region push
// Push records a sample stamped with the current time.
func (s *Store) Push(name string, value float64) error {
	return s.PushAt(name, value, time.Now().UTC())
}

// PushAt records a sample with an explicit timestamp.
func (s *Store) PushAt(name string, value float64, at time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO telemetry_samples (name, value, created_at) VALUES (?, ?, ?)`,
		name, value, at.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("push %s: %w", name, err)
	}
	return nil
}
// #endregion push

// #region window
// Window returns the most recent n samples of a metric, oldest first.
func (s *Store) Window(name string, n int) ([]Sample, error) {
	rows, err := s.db.Query(
		`SELECT name, value, created_at FROM telemetry_samples
		 WHERE name = ? ORDER BY id DESC LIMIT ?`, name, n,
	)
	if err != nil {
		return nil, fmt.Errorf("window %s: %w", name, err)
	}
	samples, err := scanSamples(rows)
	if err != nil {
		return nil, err
	}
	// Reverse into chronological order.
	for i, j := 0, len(samples)-1; i < j; i, j = i+1, j-1 {
		samples[i], samples[j] = samples[j], samples[i]
	}
	return samples, nil
}
// #endregion window

// #region since
// Since returns all samples of a metric at or after t, oldest first.
func (s *Store) Since(name string, t time.Time) ([]Sample, error) {
	rows, err := s.db.Query(
		`SELECT name, value, created_at FROM telemetry_samples
		 WHERE name = ? AND created_at >= ? ORDER BY id ASC`,
		name, t.UTC().Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("since %s: %w", name, err)
	}
	return scanSamples(rows)
}
// #endregion since

// #region helpers
func scanSamples(rows *sql.Rows) ([]Sample, error) {
	defer rows.Close()
	var samples []Sample
	for rows.Next() {
		var smp Sample
		var createdStr string
		if err := rows.Scan(&smp.Name, &smp.Value, &createdStr); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		smp.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		samples = append(samples, smp)
	}
	return samples, rows.Err()
}

// Mean computes the arithmetic mean of a sample slice. Returns 0 for empty input.
func Mean(samples []Sample) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, smp := range samples {
		sum += smp.Value
	}
	return sum / float64(len(samples))
}
// #endregion helpers
