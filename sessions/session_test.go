package sessions_test

import (
	"testing"
	"time"

	"github.com/Waji18/CloseTable/sessions"
	"github.com/Waji18/CloseTable/users"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testSession(expiresAt time.Time) *sessions.Session {
	return &sessions.Session{
		User:         users.User{ID: "u-1", Name: "john", Email: "john@example.com", Role: users.RoleCustomer},
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    expiresAt,
	}
}

func TestExpired(t *testing.T) {
	s := testSession(testTime.Add(15 * time.Minute))

	require.False(t, s.Expired(testTime))
	require.False(t, s.Expired(testTime.Add(15*time.Minute-time.Second)))
	require.True(t, s.Expired(testTime.Add(15*time.Minute)))
	require.True(t, s.Expired(testTime.Add(time.Hour)))

	var nilSession *sessions.Session
	require.True(t, nilSession.Expired(testTime))
}

func TestValid(t *testing.T) {
	require.True(t, testSession(testTime.Add(time.Minute)).Valid(testTime))
	require.False(t, testSession(testTime.Add(-time.Minute)).Valid(testTime))

	missingToken := testSession(testTime.Add(time.Minute))
	missingToken.AccessToken = ""
	require.False(t, missingToken.Valid(testTime))

	missingUser := testSession(testTime.Add(time.Minute))
	missingUser.User = users.User{}
	require.False(t, missingUser.Valid(testTime))
}

func TestSnapshotRebuildsSession(t *testing.T) {
	s := testSession(testTime.Add(15 * time.Minute))

	rebuilt := sessions.FromSnapshot(s.ToSnapshot())
	require.Equal(t, s, rebuilt)
}

func TestSnapshotComplete(t *testing.T) {
	sn := testSession(testTime.Add(time.Minute)).ToSnapshot()
	require.True(t, sn.Complete())

	var absent *sessions.Snapshot
	require.False(t, absent.Complete())

	noTokens := sn
	noTokens.Tokens.AccessToken = ""
	require.False(t, noTokens.Complete())

	noExpiry := sn
	noExpiry.Tokens.Expiry = time.Time{}
	require.False(t, noExpiry.Complete())
}
