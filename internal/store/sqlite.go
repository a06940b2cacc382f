package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"audiosched/internal/model"
)

// SQLiteStore keeps executed ids in a SQLite table. Reads are served from
// an in-memory copy loaded by Load.
type SQLiteStore struct {
	db   *sql.DB
	path string

	mu  sync.RWMutex
	ids map[model.EventID]struct{}
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &model.StoreError{Path: path, Op: "open", Err: err}
	}
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{db: db, path: path, ids: map[model.EventID]struct{}{}}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, &model.StoreError{Path: path, Op: "migrate", Err: err}
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	ctx := context.Background()
	query := `
	CREATE TABLE IF NOT EXISTS executed_events (
		id TEXT PRIMARY KEY,
		day TEXT NOT NULL,
		recorded_at TEXT NOT NULL
	);`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS executed_events_day ON executed_events(day)`)
	return err
}

func (s *SQLiteStore) Load(ctx context.Context) (map[model.EventID]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ids = map[model.EventID]struct{}{}
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM executed_events`)
	if err != nil {
		return copySet(s.ids), &model.StoreError{Path: s.path, Op: "read", Err: err}
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return copySet(s.ids), &model.StoreError{Path: s.path, Op: "read", Err: err}
		}
		s.ids[model.EventID(id)] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return copySet(s.ids), &model.StoreError{Path: s.path, Op: "read", Err: err}
	}
	return copySet(s.ids), nil
}

func (s *SQLiteStore) Contains(id model.EventID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

func (s *SQLiteStore) Record(ctx context.Context, id model.EventID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[id]; ok {
		return nil
	}
	s.ids[id] = struct{}{}

	day := ""
	if d, err := id.Date(); err == nil {
		day = d.Format("2006-01-02")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO executed_events (id, day, recorded_at) VALUES (?, ?, ?)`,
		string(id), day, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return &model.StoreError{Path: s.path, Op: "insert", Err: fmt.Errorf("record %s: %w", id, err)}
	}
	return nil
}

func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := cutoffDay(before)
	res, err := s.db.ExecContext(ctx, `DELETE FROM executed_events WHERE day <> '' AND day < ?`, cutoff)
	if err != nil {
		return 0, &model.StoreError{Path: s.path, Op: "prune", Err: err}
	}
	for id := range s.ids {
		if olderThan(id, cutoff) {
			delete(s.ids, id)
		}
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteStore) IDs() []model.EventID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedIDs(s.ids)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
