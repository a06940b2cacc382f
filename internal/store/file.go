package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	appLog "audiosched/internal/log"
	"audiosched/internal/model"
)

// FileStore keeps executed ids as a JSON array, rewritten atomically
// (temp file, fsync, rename) on every change.
type FileStore struct {
	fs   afero.Fs
	path string

	mu  sync.RWMutex
	ids map[model.EventID]struct{}
}

// NewFileStore returns an empty store backed by path on fs. Call Load to
// read what is already persisted.
func NewFileStore(fs afero.Fs, path string) *FileStore {
	return &FileStore{fs: fs, path: path, ids: map[model.EventID]struct{}{}}
}

func (s *FileStore) Load(_ context.Context) (map[model.EventID]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ids = map[model.EventID]struct{}{}
	data, err := afero.ReadFile(s.fs, s.path)
	if errors.Is(err, os.ErrNotExist) {
		return copySet(s.ids), nil
	}
	if err != nil {
		return copySet(s.ids), &model.StoreError{Path: s.path, Op: "read", Err: err}
	}
	if len(data) == 0 {
		return copySet(s.ids), nil
	}

	var list []model.EventID
	if err := json.Unmarshal(data, &list); err != nil {
		return copySet(s.ids), &model.StoreError{Path: s.path, Op: "decode", Err: err}
	}
	for _, id := range list {
		s.ids[id] = struct{}{}
	}
	return copySet(s.ids), nil
}

func (s *FileStore) Contains(id model.EventID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

// Record adds id and persists. The in-memory set keeps id even when the
// write fails, so the running process never fires it twice.
func (s *FileStore) Record(_ context.Context, id model.EventID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[id]; ok {
		return nil
	}
	s.ids[id] = struct{}{}
	return s.persistLocked()
}

func (s *FileStore) Prune(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := cutoffDay(before)
	n := 0
	for id := range s.ids {
		if olderThan(id, cutoff) {
			delete(s.ids, id)
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	appLog.Debug("executed-event store pruned", "removed", n, "cutoff", cutoff)
	return n, s.persistLocked()
}

func (s *FileStore) IDs() []model.EventID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedIDs(s.ids)
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) persistLocked() error {
	data, err := json.MarshalIndent(sortedIDs(s.ids), "", "  ")
	if err != nil {
		return &model.StoreError{Path: s.path, Op: "encode", Err: err}
	}

	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0o700); err != nil {
		return &model.StoreError{Path: s.path, Op: "mkdir", Err: err}
	}

	tmp, err := afero.TempFile(s.fs, dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return &model.StoreError{Path: s.path, Op: "write", Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return &model.StoreError{Path: s.path, Op: "write", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return &model.StoreError{Path: s.path, Op: "sync", Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return &model.StoreError{Path: s.path, Op: "write", Err: err}
	}
	if err := s.fs.Rename(tmpName, s.path); err != nil {
		_ = s.fs.Remove(tmpName)
		return &model.StoreError{Path: s.path, Op: "rename", Err: err}
	}
	return nil
}

func copySet(in map[model.EventID]struct{}) map[model.EventID]struct{} {
	out := make(map[model.EventID]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}
