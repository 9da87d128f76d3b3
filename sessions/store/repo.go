package store

import "github.com/Waji18/CloseTable/sessions"

// Repo persists at most one session snapshot per client instance, the way
// the web client keeps its auth state under a single storage key. Only the
// session manager writes to it; reads happen once at startup.
type Repo interface {
	// Save overwrites the stored snapshot. A failed save leaves the
	// session memory-only for this run; callers log and continue.
	Save(snapshot sessions.Snapshot) error

	// Load returns the previously saved snapshot. Absent, malformed or
	// partial data all come back as ok == false, never as an error.
	Load() (*sessions.Snapshot, bool)

	// Clear removes the snapshot unconditionally. Idempotent.
	Clear() error
}
