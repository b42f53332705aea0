package orchestrator

// #region imports
import (
	"database/sql"
	"math"
	"time"
)

// #endregion

// #region schema

const outcomeRecordsSchema = `
CREATE TABLE IF NOT EXISTS outcome_records (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    task_id     TEXT NOT NULL,
    strategy    TEXT NOT NULL,
    complexity  REAL NOT NULL,
    iteration   INTEGER NOT NULL,
    quality     REAL,
    tag         TEXT NOT NULL,
    accepted    INTEGER NOT NULL DEFAULT 0,
    created_at  TEXT NOT NULL
);
`

const outcomeRecordsIndex = `
CREATE INDEX IF NOT EXISTS idx_outcome_records_lookup
ON outcome_records(strategy, accepted, created_at);
`

// #endregion

// #region memory-struct

// OutcomeMemory persists per-attempt lifecycle outcomes in SQLite for
// offline analysis of strategy performance.
type OutcomeMemory struct {
	db *sql.DB
}

// NewOutcomeMemory initializes the outcome_records table.
func NewOutcomeMemory(db *sql.DB) (*OutcomeMemory, error) {
	if _, err := db.Exec(outcomeRecordsSchema); err != nil {
		return nil, err
	}
	if _, err := db.Exec(outcomeRecordsIndex); err != nil {
		return nil, err
	}
	return &OutcomeMemory{db: db}, nil
}

// #endregion memory-struct

// #region record-outcome

// RecordOutcome persists one row per attempt. Simple-path outcomes have no
// evaluated attempts and get a single row with NULL quality.
func (m *OutcomeMemory) RecordOutcome(out Outcome) error {
	now := time.Now().UTC().Format(time.RFC3339)

	if len(out.Attempts) == 0 {
		_, err := m.db.Exec(`
			INSERT INTO outcome_records
			(task_id, strategy, complexity, iteration, quality, tag, accepted, created_at)
			VALUES (?, ?, ?, 0, NULL, ?, 1, ?)`,
			out.TaskID, string(out.Strategy), out.Complexity, string(out.Tag), now,
		)
		return err
	}

	for _, a := range out.Attempts {
		accepted := 0
		if a.Result == out.Result {
			accepted = 1
		}
		_, err := m.db.Exec(`
			INSERT INTO outcome_records
			(task_id, strategy, complexity, iteration, quality, tag, accepted, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			out.TaskID, string(out.Strategy), out.Complexity,
			a.Iteration, a.Eval.Quality, string(out.Tag), accepted, now,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// #endregion record-outcome

// #region mean-quality

// MeanQuality returns the decay-weighted mean quality of accepted attempts
// for a strategy, and the sample count. Recent outcomes weigh more
// (7-day half-life). Returns (0, 0, nil) when no scored samples exist.
func (m *OutcomeMemory) MeanQuality(strategy StrategyID) (float32, int, error) {
	rows, err := m.db.Query(`
		SELECT quality, created_at FROM outcome_records
		WHERE strategy = ? AND accepted = 1 AND quality IS NOT NULL`,
		string(strategy),
	)
	if err != nil {
		return 0, 0, err
	}
	defer rows.Close()

	now := time.Now()
	halfLife := 7.0 * 24.0 // hours
	var weightedSum, totalWeight float64
	count := 0

	for rows.Next() {
		var quality float64
		var createdAtStr string
		if err := rows.Scan(&quality, &createdAtStr); err != nil {
			return 0, 0, err
		}
		createdAt, err := time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			continue
		}
		weight := math.Exp(-now.Sub(createdAt).Hours() / halfLife)
		weightedSum += quality * weight
		totalWeight += weight
		count++
	}
	if err := rows.Err(); err != nil {
		return 0, 0, err
	}
	if count == 0 || totalWeight == 0 {
		return 0, 0, nil
	}
	return float32(weightedSum / totalWeight), count, nil
}

// #endregion mean-quality
