package sessions

import (
	"time"

	"github.com/Waji18/CloseTable/users"
)

// Session is the client's record of an authenticated user and its
// credentials. At most one session is live per client instance; it is
// replaced wholesale on login, renewed in place on refresh, and destroyed
// on logout, refresh failure or idle timeout.
type Session struct {
	User         users.User // Identity the session belongs to
	AccessToken  string     // Short-lived bearer credential for API calls
	RefreshToken string     // Longer-lived credential, used only to mint new access tokens
	ExpiresAt    time.Time  // Moment the access token stops being usable
}

// Expired reports whether the access token is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return s == nil || !s.ExpiresAt.After(now)
}

// Valid reports whether the session is structurally complete and unexpired.
func (s *Session) Valid(now time.Time) bool {
	if s == nil {
		return false
	}
	if s.User.ID == "" || s.AccessToken == "" || s.ExpiresAt.IsZero() {
		return false
	}
	return !s.Expired(now)
}

// TokenSet is the persisted form of the session's credentials. Field names
// match the auth state the CloseTable web client stores.
type TokenSet struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
}

// Snapshot is the JSON shape written to the token store: one user record
// plus its token set, with the client instance that owns it.
type Snapshot struct {
	ClientID string     `json:"client_id,omitempty"`
	User     users.User `json:"user"`
	Tokens   TokenSet   `json:"tokens"`
}

// Complete reports whether the snapshot carries enough to rebuild a
// session. Partial or zeroed snapshots are treated as absent by the store.
func (sn *Snapshot) Complete() bool {
	if sn == nil {
		return false
	}
	return sn.User.ID != "" && sn.Tokens.AccessToken != "" && !sn.Tokens.Expiry.IsZero()
}

// ToSnapshot converts the session into its persisted form.
func (s *Session) ToSnapshot() Snapshot {
	return Snapshot{
		User: s.User,
		Tokens: TokenSet{
			AccessToken:  s.AccessToken,
			RefreshToken: s.RefreshToken,
			Expiry:       s.ExpiresAt,
		},
	}
}

// FromSnapshot rebuilds a session from its persisted form.
func FromSnapshot(sn Snapshot) *Session {
	return &Session{
		User:         sn.User,
		AccessToken:  sn.Tokens.AccessToken,
		RefreshToken: sn.Tokens.RefreshToken,
		ExpiresAt:    sn.Tokens.Expiry,
	}
}
