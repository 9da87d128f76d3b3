package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/Waji18/CloseTable/sessions"
	"github.com/pkg/errors"
)

const snapshotFileName = "authstate.json"

var _ Repo = (*FileRepo)(nil)

// FileRepo is a file-backed Repo holding one JSON snapshot under the data
// folder. Writes go through a temp file so a crash mid-save never leaves a
// half-written snapshot behind.
type FileRepo struct {
	path string
	mu   sync.Mutex
}

func NewFileRepo(dataFolder string) *FileRepo {
	return &FileRepo{path: filepath.Join(dataFolder, snapshotFileName)}
}

func (r *FileRepo) Save(snapshot sessions.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "[FileRepo.Save] marshal snapshot")
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o700); err != nil {
		return errors.Wrap(err, "[FileRepo.Save] create data folder")
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrap(err, "[FileRepo.Save] write snapshot")
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return errors.Wrap(err, "[FileRepo.Save] replace snapshot")
	}
	return nil
}

func (r *FileRepo) Load() (*sessions.Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, false
	}

	var snapshot sessions.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, false
	}
	if !snapshot.Complete() {
		return nil, false
	}
	return &snapshot, true
}

func (r *FileRepo) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "[FileRepo.Clear] remove snapshot")
	}
	return nil
}
