package config

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS config_versions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	key         TEXT NOT NULL,
	value       REAL NOT NULL,
	prev_value  REAL,
	source      TEXT NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_config_versions_key
ON config_versions(key, id);

CREATE TABLE IF NOT EXISTS config_active (
	key         TEXT PRIMARY KEY,
	value       REAL NOT NULL,
	version_id  INTEGER NOT NULL,
	FOREIGN KEY (version_id) REFERENCES config_versions(id)
);
`
// #endregion schema

// #region version-record
// Version is one committed write of a config key.
type Version struct {
	ID        int64
	Key       string
	Value     float64
	PrevValue *float64 // nil for the first write of a key
	Source    string   // "file" | "autocorrect" | "rollback"
	CreatedAt time.Time
}
// #endregion version-record

// #region store-struct
// Store manages versioned tuning parameters in SQLite. Every write records
// the previous value; readers always see the latest committed value.
type Store struct {
	db *sql.DB
}
// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}
// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
// #endregion close

// #region db-accessor
// DB returns the underlying *sql.DB for use by the other stores
// (telemetry, narrative, action records) sharing this database file.
func (s *Store) DB() *sql.DB {
	return s.db
}
// #endregion db-accessor

// #region get
// Get reads the latest committed value for a key.
func (s *Store) Get(key string) (float64, error) {
	var v float64
	err := s.db.QueryRow(`SELECT value FROM config_active WHERE key = ?`, key).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", key, err)
	}
	return v, nil
}

// GetOr reads a key, falling back to a default when the key is absent.
func (s *Store) GetOr(key string, fallback float64) float64 {
	v, err := s.Get(key)
	if err != nil {
		return fallback
	}
	return v
}
// #endregion get

// #region set
// Set writes a new value for a key, recording the previous value in the
// version row and updating the active pointer atomically.
func (s *Store) Set(key string, value float64, source string) (Version, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return Version{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var prev sql.NullFloat64
	err = tx.QueryRow(`SELECT value FROM config_active WHERE key = ?`, key).Scan(&prev.Float64)
	if err == nil {
		prev.Valid = true
	} else if err != sql.ErrNoRows {
		return Version{}, fmt.Errorf("read prev %s: %w", key, err)
	}

	now := time.Now().UTC()
	res, err := tx.Exec(
		`INSERT INTO config_versions (key, value, prev_value, source, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		key, value, nullFloat(prev), source, now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Version{}, fmt.Errorf("insert version: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Version{}, fmt.Errorf("version id: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO config_active (key, value, version_id) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, version_id = excluded.version_id`,
		key, value, id,
	)
	if err != nil {
		return Version{}, fmt.Errorf("set active: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Version{}, fmt.Errorf("commit: %w", err)
	}

	ver := Version{ID: id, Key: key, Value: value, Source: source, CreatedAt: now}
	if prev.Valid {
		p := prev.Float64
		ver.PrevValue = &p
	}
	return ver, nil
}
// #endregion set

// #region seed
// Seed writes defaults for keys that have no committed value yet.
// Existing keys are left untouched so tuned values survive restarts.
func (s *Store) Seed(defaults map[string]float64) error {
	for key, value := range defaults {
		if _, err := s.Get(key); err == nil {
			continue
		}
		if _, err := s.Set(key, value, "file"); err != nil {
			return fmt.Errorf("seed %s: %w", key, err)
		}
	}
	return nil
}
// #endregion seed

// #region history
// History returns the most recent versions of a key, newest first.
func (s *Store) History(key string, limit int) ([]Version, error) {
	rows, err := s.db.Query(
		`SELECT id, key, value, prev_value, source, created_at
		 FROM config_versions WHERE key = ? ORDER BY id DESC LIMIT ?`, key, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", key, err)
	}
	defer rows.Close()

	var versions []Version
	for rows.Next() {
		var v Version
		var prev sql.NullFloat64
		var createdStr string
		if err := rows.Scan(&v.ID, &v.Key, &v.Value, &prev, &v.Source, &createdStr); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if prev.Valid {
			p := prev.Float64
			v.PrevValue = &p
		}
		v.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		versions = append(versions, v)
	}
	return versions, rows.Err()
}
// #endregion history

// #region helpers
func nullFloat(v sql.NullFloat64) interface{} {
	if !v.Valid {
		return nil
	}
	return v.Float64
}
// #endregion helpers
