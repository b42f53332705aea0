package narrative

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS episodes (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	kind        TEXT NOT NULL,
	ref_id      TEXT NOT NULL,
	summary     TEXT NOT NULL,
	detail_json TEXT,
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_episodes_range
ON episodes(created_at);
`
// #endregion schema

// timeLayout is a fixed-width UTC timestamp. RFC3339Nano trims trailing
// fractional zeros, so Range's lexicographic filter would misorder
// timestamps inside the same second; a padded fraction keeps string
// order equal to chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// #region types

// Episode kinds written by the supervisor.
const (
	KindTaskLifecycle   = "task_lifecycle"
	KindActionSuggested = "action_suggested"
	KindActionApplied   = "action_applied"
	KindActionResolved  = "action_resolved"
)

// Episode is one append-only record of a completed lifecycle or action.
type Episode struct {
	ID        int64
	Kind      string
	RefID     string
	Summary   string
	Detail    json.RawMessage
	CreatedAt time.Time
}

// #endregion types

// #region store

// Store is the append-only episode log. It is written off the hot path
// and queried by time range for offline analysis.
type Store struct {
	db *sql.DB
}

// NewStore initializes the episodes table on a shared database handle.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate narrative: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion store

// #region append

// Append writes one episode. detail is JSON-marshaled; nil detail is allowed.
func (s *Store) Append(kind, refID, summary string, detail any) error {
	var detailPtr interface{}
	if detail != nil {
		data, err := json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("marshal detail: %w", err)
		}
		detailPtr = string(data)
	}
	_, err := s.db.Exec(
		`INSERT INTO episodes (kind, ref_id, summary, detail_json, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		kind, refID, summary, detailPtr, time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("append episode: %w", err)
	}
	return nil
}

// #endregion append

// #region range

// Range returns episodes created in [from, to), oldest first.
func (s *Store) Range(from, to time.Time) ([]Episode, error) {
	rows, err := s.db.Query(
		`SELECT id, kind, ref_id, summary, detail_json, created_at FROM episodes
		 WHERE created_at >= ? AND created_at < ? ORDER BY id ASC`,
		from.UTC().Format(timeLayout), to.UTC().Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("range episodes: %w", err)
	}
	return scanEpisodes(rows)
}

// Recent returns the most recent episodes, newest first.
func (s *Store) Recent(limit int) ([]Episode, error) {
	rows, err := s.db.Query(
		`SELECT id, kind, ref_id, summary, detail_json, created_at FROM episodes
		 ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent episodes: %w", err)
	}
	return scanEpisodes(rows)
}

// #endregion range

// #region helpers
func scanEpisodes(rows *sql.Rows) ([]Episode, error) {
	defer rows.Close()
	var episodes []Episode
	for rows.Next() {
		var ep Episode
		var detail sql.NullString
		var createdStr string
		if err := rows.Scan(&ep.ID, &ep.Kind, &ep.RefID, &ep.Summary, &detail, &createdStr); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		if detail.Valid {
			ep.Detail = json.RawMessage(detail.String)
		}
		ep.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		episodes = append(episodes, ep)
	}
	return episodes, rows.Err()
}
// #endregion helpers
