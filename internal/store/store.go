// Package store persists the set of EventIDs that were already dispatched,
// so no event fires twice even across restarts.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/afero"

	"audiosched/internal/config"
	appLog "audiosched/internal/log"
	"audiosched/internal/model"
)

// Store is the executed-event set. Record persists before returning.
type Store interface {
	// Load reads the persisted set. A *model.StoreError leaves the store
	// usable and empty; callers log it and carry on.
	Load(ctx context.Context) (map[model.EventID]struct{}, error)
	Contains(id model.EventID) bool
	Record(ctx context.Context, id model.EventID) error
	// Prune drops ids dated before the calendar day of before.
	Prune(ctx context.Context, before time.Time) (int, error)
	IDs() []model.EventID
	Close() error
}

// Open creates the state directory and opens the configured backend.
// Failing to create the directory is fatal; an unreadable store is not.
func Open(ctx context.Context, cfg *config.Config, fs afero.Fs) (Store, error) {
	if err := fs.MkdirAll(cfg.StateDir, 0o700); err != nil {
		return nil, &model.StoreError{Path: cfg.StateDir, Op: "mkdir", Err: err}
	}

	path := cfg.ExecutedStorePath()
	var s Store
	switch cfg.Store {
	case "sqlite":
		sq, err := OpenSQLite(path)
		if err != nil {
			sq, err = reopenSQLite(path, err)
			if err != nil {
				return nil, err
			}
		}
		s = sq
	case "json", "":
		s = NewFileStore(fs, path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store)
	}

	ids, err := s.Load(ctx)
	if err != nil {
		appLog.Error("executed-event store unreadable; starting empty", err, "path", path)
	}
	appLog.Info("executed-event store loaded", "backend", cfg.Store, "path", path, "ids", len(ids))
	return s, nil
}

// reopenSQLite moves an unusable database (and its journal files) aside and
// starts a fresh one.
func reopenSQLite(path string, cause error) (*SQLiteStore, error) {
	aside := fmt.Sprintf("%s.corrupt-%s", path, time.Now().UTC().Format("20060102T150405Z"))
	appLog.Error("executed-event store unusable; moving it aside and starting empty", cause,
		"path", path, "moved_to", aside)

	if err := os.Rename(path, aside); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, &model.StoreError{Path: path, Op: "rename", Err: err}
	}
	for _, suffix := range []string{"-wal", "-shm", "-journal"} {
		if err := os.Rename(path+suffix, aside+suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			appLog.Warn("could not move sqlite side file", "path", path+suffix, "err", err.Error())
		}
	}
	return OpenSQLite(path)
}

func sortedIDs(set map[model.EventID]struct{}) []model.EventID {
	out := make([]model.EventID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// olderThan reports whether id's date prefix sorts before cutoff ("YYYY-MM-DD").
// Ids without a parseable date are kept.
func olderThan(id model.EventID, cutoff string) bool {
	if _, err := id.Date(); err != nil {
		return false
	}
	return string(id)[:len(cutoff)] < cutoff
}

func cutoffDay(before time.Time) string {
	return before.Format("2006-01-02")
}
