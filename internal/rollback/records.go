package rollback

// #region imports
import (
	"database/sql"
	"fmt"
	"time"
)

// #endregion

// #region schema

const recordsSchema = `
CREATE TABLE IF NOT EXISTS action_records (
    id          TEXT PRIMARY KEY,
    key         TEXT NOT NULL,
    prev_value  REAL NOT NULL,
    new_value   REAL NOT NULL,
    signal      TEXT NOT NULL,
    direction   TEXT NOT NULL,
    baseline    REAL NOT NULL,
    tolerance   REAL NOT NULL,
    min_samples INTEGER NOT NULL,
    applied_at  TEXT NOT NULL,
    deadline    TEXT NOT NULL,
    outcome     TEXT NOT NULL DEFAULT 'pending',
    post_mean   REAL,
    resolved_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_action_records_pending
ON action_records(outcome, deadline);
`

// timeLayout pads the fraction so applied_at sorts lexicographically in
// chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// #endregion schema

// #region outcome

// Outcome is the terminal state of an observed action. A record moves
// from pending to exactly one terminal outcome, never both.
type Outcome string

const (
	OutcomePending    Outcome = "pending"
	OutcomeCommitted  Outcome = "committed"
	OutcomeRolledBack Outcome = "rolled_back"
)

// #endregion outcome

// #region record

// Record is the persisted observation state of one applied action. It is
// self-contained: a restart resumes the window from these fields alone.
type Record struct {
	ID         string
	Key        string
	PrevValue  float64
	NewValue   float64
	Signal     string
	Direction  string
	Baseline   float64
	Tolerance  float64
	MinSamples int
	AppliedAt  time.Time
	Deadline   time.Time
	Outcome    Outcome
	PostMean   sql.NullFloat64
	ResolvedAt sql.NullString
}

// #endregion record

// #region queries

func insertRecord(db *sql.DB, r Record) error {
	_, err := db.Exec(`
		INSERT INTO action_records
		(id, key, prev_value, new_value, signal, direction, baseline,
		 tolerance, min_samples, applied_at, deadline, outcome)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending')`,
		r.ID, r.Key, r.PrevValue, r.NewValue, r.Signal, r.Direction,
		r.Baseline, r.Tolerance, r.MinSamples,
		r.AppliedAt.UTC().Format(timeLayout),
		r.Deadline.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert action record: %w", err)
	}
	return nil
}

// resolveRecord transitions one record out of pending. The guard on
// outcome makes the transition happen at most once even if two resolvers
// race or a crash replays the resolution.
func resolveRecord(db *sql.DB, id string, outcome Outcome, postMean float64) (bool, error) {
	res, err := db.Exec(`
		UPDATE action_records
		SET outcome = ?, post_mean = ?, resolved_at = ?
		WHERE id = ? AND outcome = 'pending'`,
		string(outcome), postMean, time.Now().UTC().Format(timeLayout), id,
	)
	if err != nil {
		return false, fmt.Errorf("resolve action record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func pendingRecords(db *sql.DB) ([]Record, error) {
	rows, err := db.Query(selectRecords + ` WHERE outcome = 'pending' ORDER BY applied_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("load pending records: %w", err)
	}
	return scanRecords(rows)
}

// RecentRecords returns the newest records regardless of outcome.
func RecentRecords(db *sql.DB, limit int) ([]Record, error) {
	rows, err := db.Query(selectRecords+` ORDER BY applied_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	return scanRecords(rows)
}

const selectRecords = `
	SELECT id, key, prev_value, new_value, signal, direction, baseline,
	       tolerance, min_samples, applied_at, deadline, outcome,
	       post_mean, resolved_at
	FROM action_records`

func scanRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()
	var records []Record
	for rows.Next() {
		var r Record
		var appliedStr, deadlineStr, outcomeStr string
		if err := rows.Scan(
			&r.ID, &r.Key, &r.PrevValue, &r.NewValue, &r.Signal, &r.Direction,
			&r.Baseline, &r.Tolerance, &r.MinSamples, &appliedStr, &deadlineStr,
			&outcomeStr, &r.PostMean, &r.ResolvedAt,
		); err != nil {
			return nil, fmt.Errorf("scan action record: %w", err)
		}
		r.AppliedAt, _ = time.Parse(time.RFC3339Nano, appliedStr)
		r.Deadline, _ = time.Parse(time.RFC3339Nano, deadlineStr)
		r.Outcome = Outcome(outcomeStr)
		records = append(records, r)
	}
	return records, rows.Err()
}

// #endregion queries
