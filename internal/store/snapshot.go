package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/joescharf/pomo/internal/models"
)

// snapshotFile is the on-disk envelope. Key lets a reader reject files that
// were not written for the timer record.
type snapshotFile struct {
	Key   string            `json:"key"`
	State models.TimerState `json:"state"`
}

// SnapshotStore keeps the timer record in a small JSON file that the CLI can
// read without opening the database.
type SnapshotStore struct {
	path string
}

var _ TimerStore = (*SnapshotStore)(nil)

// NewSnapshotStore returns a SnapshotStore backed by path.
func NewSnapshotStore(path string) *SnapshotStore {
	return &SnapshotStore{path: path}
}

// Path returns the snapshot file location.
func (s *SnapshotStore) Path() string { return s.path }

// LoadTimer reads the snapshot. A missing, unreadable or corrupt file is
// reported as not found.
func (s *SnapshotStore) LoadTimer(context.Context) (models.TimerState, bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return models.IdleState(), false, nil
	}
	if err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("Cannot read timer snapshot")
		return models.IdleState(), false, nil
	}

	var f snapshotFile
	if err := json.Unmarshal(data, &f); err != nil || f.Key != models.TimerKey {
		log.Warn().Err(err).Str("path", s.path).Msg("Ignoring corrupt timer snapshot")
		return models.IdleState(), false, nil
	}
	return f.State, true, nil
}

// SaveTimer writes the snapshot atomically via a temp file and rename.
func (s *SnapshotStore) SaveTimer(_ context.Context, st models.TimerState) error {
	data, err := json.MarshalIndent(snapshotFile{Key: models.TimerKey, State: st}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".timer-*.json")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}
