package auth

import "github.com/Waji18/CloseTable/users"

// State is the lifecycle state of the client's session.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticating  State = "authenticating"
	StateAuthenticated   State = "authenticated"
	StateRefreshing      State = "refreshing"
	// StateExpired is announced to state listeners when a session ends
	// because its credentials ran out (refresh rejection, idle timeout,
	// stale snapshot at startup) rather than by explicit logout. The
	// manager settles in StateUnauthenticated immediately after.
	StateExpired State = "expired"
)

// Snapshot is a point-in-time, read-only projection of the manager's
// state. Consumers derive everything from it and never mutate the session
// through it.
type Snapshot struct {
	State    State
	Resolved bool        // false until Start has settled the startup state
	User     *users.User // nil unless a session is live
}

// IsAuthenticated reports whether a session is live. A session being
// refreshed is still authenticated; its current token remains usable
// until the expiry moment.
func (s Snapshot) IsAuthenticated() bool {
	return s.State == StateAuthenticated || s.State == StateRefreshing
}

func (s Snapshot) IsCustomer() bool {
	return s.User.IsCustomer()
}

func (s Snapshot) IsOwner() bool {
	return s.User.IsOwner()
}

func (s Snapshot) IsAdmin() bool {
	return s.User.IsAdmin()
}
