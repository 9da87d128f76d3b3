package repofake

import (
	"sync"

	"github.com/Waji18/CloseTable/sessions"
	"github.com/Waji18/CloseTable/sessions/store"
)

var _ store.Repo = (*FakeStoreRepo)(nil)

// FakeStoreRepo is an in-memory Repo that records how it was used, for
// exercising the session manager without touching the filesystem.
type FakeStoreRepo struct {
	mu       sync.Mutex
	snapshot *sessions.Snapshot

	SaveErr  error // returned by Save when set (storage-unavailable runs)
	ClearErr error // returned by Clear when set

	Saves  int
	Loads  int
	Clears int
}

func NewFakeStoreRepo() *FakeStoreRepo {
	return &FakeStoreRepo{}
}

func (r *FakeStoreRepo) Save(snapshot sessions.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Saves++
	if r.SaveErr != nil {
		return r.SaveErr
	}
	r.snapshot = &snapshot
	return nil
}

func (r *FakeStoreRepo) Load() (*sessions.Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Loads++
	if r.snapshot == nil || !r.snapshot.Complete() {
		return nil, false
	}
	copied := *r.snapshot
	return &copied, true
}

func (r *FakeStoreRepo) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Clears++
	if r.ClearErr != nil {
		return r.ClearErr
	}
	r.snapshot = nil
	return nil
}

// Stored returns the currently held snapshot, or nil when empty.
func (r *FakeStoreRepo) Stored() *sessions.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.snapshot == nil {
		return nil
	}
	copied := *r.snapshot
	return &copied
}

// Seed places a snapshot in the store without counting as a Save.
func (r *FakeStoreRepo) Seed(snapshot sessions.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.snapshot = &snapshot
}
