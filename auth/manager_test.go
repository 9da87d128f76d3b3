package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Waji18/CloseTable/auth"
	"github.com/Waji18/CloseTable/identity"
	"github.com/Waji18/CloseTable/identity/identityfake"
	"github.com/Waji18/CloseTable/sessions"
	"github.com/Waji18/CloseTable/sessions/store/repofake"
	"github.com/Waji18/CloseTable/users"
)

const (
	testEmail    = "john.doe@example.com"
	testPassword = "password123"
	refreshLead  = 60 * time.Second
	idleTimeout  = 1 * time.Hour
	tokenLife    = 15 * time.Minute
)

var startTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeTimer records its schedule and lets tests fire it by hand.
type fakeTimer struct {
	mu      sync.Mutex
	d       time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// fire runs the callback unless the timer was cancelled. The callback runs
// without the timer lock held, like a real time.AfterFunc goroutine.
func (t *fakeTimer) fire() {
	t.mu.Lock()
	if t.stopped || t.fired {
		t.mu.Unlock()
		return
	}
	t.fired = true
	fn := t.fn
	t.mu.Unlock()
	fn()
}

func (t *fakeTimer) live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.stopped && !t.fired
}

// timerRecorder hands out fakeTimers and keeps them in creation order.
type timerRecorder struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (r *timerRecorder) factory(d time.Duration, fn func()) auth.Timer {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := &fakeTimer{d: d, fn: fn}
	r.timers = append(r.timers, t)
	return t
}

// lastWithDelay returns the most recent live timer scheduled with delay d.
func (r *timerRecorder) lastWithDelay(t *testing.T, d time.Duration) *fakeTimer {
	t.Helper()

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.timers) - 1; i >= 0; i-- {
		if r.timers[i].d == d && r.timers[i].live() {
			return r.timers[i]
		}
	}
	t.Fatalf("no live timer with delay %s", d)
	return nil
}

func (r *timerRecorder) liveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, tm := range r.timers {
		if tm.live() {
			n++
		}
	}
	return n
}

// testFixture holds all manager dependencies.
type testFixture struct {
	api    *identityfake.FakeIdentityAPI
	repo   *repofake.FakeStoreRepo
	timers *timerRecorder
	mgr    *auth.Manager

	mu     sync.Mutex
	now    time.Time
	states []auth.State
}

func (f *testFixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *testFixture) nowTime() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *testFixture) recordState(s auth.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, s)
}

func (f *testFixture) observedStates() []auth.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]auth.State(nil), f.states...)
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	f := &testFixture{
		api:    identityfake.NewFakeIdentityAPI(),
		repo:   repofake.NewFakeStoreRepo(),
		timers: &timerRecorder{},
		now:    startTime,
	}
	f.api.LoginCreds = testCredentials()
	f.api.Renewed = &identity.RenewedToken{AccessToken: "access-2", ExpiresIn: tokenLife}

	mgr, err := auth.NewManager(f.api, f.repo,
		auth.WithNowTime(f.nowTime),
		auth.WithTimerFactory(f.timers.factory),
		auth.WithRefreshLead(refreshLead),
		auth.WithIdleTimeout(idleTimeout),
		auth.WithStateListener(f.recordState),
	)
	require.NoError(t, err)
	f.mgr = mgr
	t.Cleanup(mgr.Close)
	return f
}

func testUser() users.User {
	return users.User{ID: "u-1", Name: "john", Email: testEmail, Role: users.RoleCustomer}
}

func testCredentials() *identity.Credentials {
	return &identity.Credentials{
		User:         testUser(),
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresIn:    tokenLife,
	}
}

func seededSnapshot(expiry time.Time) sessions.Snapshot {
	return sessions.Snapshot{
		ClientID: "client-1",
		User:     testUser(),
		Tokens: sessions.TokenSet{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			Expiry:       expiry,
		},
	}
}

func (f *testFixture) login(t *testing.T) {
	t.Helper()

	f.mgr.Start()
	require.NoError(t, f.mgr.Login(context.Background(), testEmail, testPassword))
	require.Equal(t, auth.StateAuthenticated, f.mgr.State())
}

func TestNewManagerRequiresDependencies(t *testing.T) {
	_, err := auth.NewManager(nil, repofake.NewFakeStoreRepo())
	require.Error(t, err)

	_, err = auth.NewManager(identityfake.NewFakeIdentityAPI(), nil)
	require.Error(t, err)
}

func TestStartRestoresUnexpiredSnapshot(t *testing.T) {
	f := setupTestFixture(t)
	f.repo.Seed(seededSnapshot(startTime.Add(10 * time.Minute)))

	f.mgr.Start()

	require.Equal(t, auth.StateAuthenticated, f.mgr.State())
	require.Equal(t, testEmail, f.mgr.CurrentUser().Email)
	require.Equal(t, "access-1", f.api.CurrentBearer())
	// Restoration is purely local.
	require.Zero(t, f.api.LoginCalls)
	require.Zero(t, f.api.Refreshes())
}

func TestStartDiscardsExpiredSnapshot(t *testing.T) {
	f := setupTestFixture(t)
	f.repo.Seed(seededSnapshot(startTime.Add(-time.Minute)))

	f.mgr.Start()

	require.Equal(t, auth.StateUnauthenticated, f.mgr.State())
	require.Nil(t, f.mgr.CurrentUser())
	require.Equal(t, 1, f.repo.Clears)
	require.Nil(t, f.repo.Stored())
	require.Contains(t, f.observedStates(), auth.StateExpired)
}

func TestStartWithEmptyStore(t *testing.T) {
	f := setupTestFixture(t)

	f.mgr.Start()

	require.Equal(t, auth.StateUnauthenticated, f.mgr.State())
	require.False(t, f.mgr.IsAuthenticated())
	require.True(t, f.mgr.Snapshot().Resolved)
}

func TestSnapshotUnresolvedBeforeStart(t *testing.T) {
	f := setupTestFixture(t)

	require.False(t, f.mgr.Snapshot().Resolved)
}

func TestLoginEstablishesAndPersists(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	require.True(t, f.mgr.IsAuthenticated())
	require.True(t, f.mgr.IsCustomer())
	require.False(t, f.mgr.IsOwner())
	require.Equal(t, "access-1", f.api.CurrentBearer())

	stored := f.repo.Stored()
	require.NotNil(t, stored)
	require.Equal(t, "access-1", stored.Tokens.AccessToken)
	require.Equal(t, "refresh-1", stored.Tokens.RefreshToken)
	require.Equal(t, startTime.Add(tokenLife), stored.Tokens.Expiry)
	require.NotEmpty(t, stored.ClientID)

	// One refresh timer at expiry-lead, one idle timer.
	f.timers.lastWithDelay(t, tokenLife-refreshLead)
	f.timers.lastWithDelay(t, idleTimeout)
}

func TestLoginFailureLeavesNothingBehind(t *testing.T) {
	f := setupTestFixture(t)
	f.mgr.Start()
	f.api.LoginErr = identity.InvalidCredentialsErr

	err := f.mgr.Login(context.Background(), testEmail, "wrong")

	require.ErrorIs(t, err, identity.InvalidCredentialsErr)
	require.Equal(t, auth.StateUnauthenticated, f.mgr.State())
	require.Zero(t, f.repo.Saves)
	require.Empty(t, f.api.CurrentBearer())
}

func TestLoginFederated(t *testing.T) {
	f := setupTestFixture(t)
	f.mgr.Start()
	f.api.GoogleCreds = testCredentials()

	err := f.mgr.LoginFederated(context.Background(), identity.FederatedIdentity{
		Email: testEmail, Name: "john", GoogleID: "g-123",
	})

	require.NoError(t, err)
	require.Equal(t, 1, f.api.GoogleCalls)
	require.True(t, f.mgr.IsAuthenticated())
}

func TestScheduledRefreshFiresExactlyOnce(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	refreshTimer := f.timers.lastWithDelay(t, tokenLife-refreshLead)
	f.advance(tokenLife - refreshLead)
	refreshTimer.fire()

	require.Equal(t, 1, f.api.Refreshes())
	require.Equal(t, "refresh-1", f.api.RefreshedWith)
	require.Equal(t, auth.StateAuthenticated, f.mgr.State())
	require.Equal(t, "access-2", f.api.CurrentBearer())

	stored := f.repo.Stored()
	require.Equal(t, "access-2", stored.Tokens.AccessToken)
	require.Equal(t, "refresh-1", stored.Tokens.RefreshToken) // refresh token retained
	require.Equal(t, f.nowTime().Add(tokenLife), stored.Tokens.Expiry)

	// The next refresh is scheduled; firing the old handle again is inert.
	refreshTimer.fire()
	require.Equal(t, 1, f.api.Refreshes())
	f.timers.lastWithDelay(t, tokenLife-refreshLead)
}

func TestShortLivedTokenRefreshesImmediately(t *testing.T) {
	f := setupTestFixture(t)
	f.api.LoginCreds.ExpiresIn = 30 * time.Second // shorter than the lead
	f.mgr.Start()

	require.NoError(t, f.mgr.Login(context.Background(), testEmail, testPassword))

	f.timers.lastWithDelay(t, 0)
}

func TestRefreshFailureEndsSessionSilently(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	f.api.RefreshErr = identity.RefreshRejectedErr
	clearsBefore := f.repo.Clears

	f.timers.lastWithDelay(t, tokenLife-refreshLead).fire()

	require.Equal(t, auth.StateUnauthenticated, f.mgr.State())
	require.Nil(t, f.mgr.CurrentUser())
	require.Equal(t, clearsBefore+1, f.repo.Clears)
	require.Nil(t, f.repo.Stored())
	require.Empty(t, f.api.CurrentBearer())
	require.Zero(t, f.timers.liveCount()) // no timer left against a dead session
	require.Contains(t, f.observedStates(), auth.StateExpired)
}

func TestManualRefreshNow(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	require.NoError(t, f.mgr.RefreshNow(context.Background()))

	require.Equal(t, 1, f.api.Refreshes())
	require.Equal(t, "access-2", f.api.CurrentBearer())
}

func TestRefreshNowWithoutSession(t *testing.T) {
	f := setupTestFixture(t)
	f.mgr.Start()

	err := f.mgr.RefreshNow(context.Background())
	require.ErrorIs(t, err, auth.NotAuthenticatedErr)
	require.Zero(t, f.api.Refreshes())
}

func TestOverlappingRefreshTriggersMakeOneCall(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	f.api.RefreshGate = make(chan struct{})
	f.api.RefreshStarted = make(chan struct{})
	started := f.api.RefreshStarted

	done := make(chan error, 1)
	go func() { done <- f.mgr.RefreshNow(context.Background()) }()
	<-started

	// Second trigger while the first is in flight: no second call.
	require.NoError(t, f.mgr.RefreshNow(context.Background()))
	require.Equal(t, 1, f.api.Refreshes())

	close(f.api.RefreshGate)
	require.NoError(t, <-done)
	require.Equal(t, 1, f.api.Refreshes())
	require.Equal(t, auth.StateAuthenticated, f.mgr.State())
}

func TestIdleSignalsPostponeLogout(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	first := f.timers.lastWithDelay(t, idleTimeout)
	f.advance(30 * time.Minute)
	f.mgr.Touch()
	second := f.timers.lastWithDelay(t, idleTimeout)
	require.NotSame(t, first, second)

	// The superseded timer firing must not log the user out.
	first.fire()
	require.Equal(t, auth.StateAuthenticated, f.mgr.State())

	f.advance(30 * time.Minute)
	f.mgr.Touch()
	require.Equal(t, auth.StateAuthenticated, f.mgr.State())
}

func TestIdleTimeoutEndsSession(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	f.advance(idleTimeout)
	f.timers.lastWithDelay(t, idleTimeout).fire()

	require.Equal(t, auth.StateUnauthenticated, f.mgr.State())
	require.Nil(t, f.repo.Stored())
	require.Empty(t, f.api.CurrentBearer())
	require.Zero(t, f.timers.liveCount())
}

func TestIdleWinsOverInFlightRefresh(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	f.api.RefreshGate = make(chan struct{})
	f.api.RefreshStarted = make(chan struct{})
	started := f.api.RefreshStarted

	done := make(chan error, 1)
	go func() { done <- f.mgr.RefreshNow(context.Background()) }()
	<-started

	// Idle fires while the refresh is in flight: the session ends and the
	// refresh result is discarded.
	f.timers.lastWithDelay(t, idleTimeout).fire()
	require.Equal(t, auth.StateUnauthenticated, f.mgr.State())

	close(f.api.RefreshGate)
	require.NoError(t, <-done)

	require.Equal(t, auth.StateUnauthenticated, f.mgr.State())
	require.Nil(t, f.repo.Stored()) // the discarded refresh re-persisted nothing
	require.Empty(t, f.api.CurrentBearer())
}

func TestLogoutAlwaysTearsDownLocally(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	f.api.LogoutErr = identity.UnreachableErr

	f.mgr.Logout(context.Background())

	require.Equal(t, 1, f.api.LogoutCalls)
	require.Equal(t, auth.StateUnauthenticated, f.mgr.State())
	require.Nil(t, f.repo.Stored())
	require.Empty(t, f.api.CurrentBearer())
	require.Zero(t, f.timers.liveCount())
	// Explicit logout is not an expiry.
	require.NotContains(t, f.observedStates(), auth.StateExpired)
}

func TestLogoutWithoutSessionIsNoop(t *testing.T) {
	f := setupTestFixture(t)
	f.mgr.Start()

	f.mgr.Logout(context.Background())
	require.Zero(t, f.api.LogoutCalls)
}

func TestUpgradeRoleReplacesUserWholesale(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	upgraded := testUser()
	upgraded.Role = users.RoleOwner
	f.api.RoleUser = &upgraded

	require.NoError(t, f.mgr.UpgradeRole(context.Background(), users.RoleOwner))

	require.True(t, f.mgr.IsOwner())
	require.False(t, f.mgr.IsCustomer())
	require.Equal(t, users.RoleOwner, f.repo.Stored().User.Role)
	// Tokens are untouched by a role change.
	require.Equal(t, "access-1", f.repo.Stored().Tokens.AccessToken)
}

func TestStorageFailureDegradesToMemoryOnly(t *testing.T) {
	f := setupTestFixture(t)
	f.mgr.Start()
	f.repo.SaveErr = errors.New("storage quota exhausted")

	require.NoError(t, f.mgr.Login(context.Background(), testEmail, testPassword))

	// Login still succeeds; the session just will not survive a restart.
	require.True(t, f.mgr.IsAuthenticated())
	require.Nil(t, f.repo.Stored())
}

func TestCloseCancelsTimersAndRejectsOperations(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	f.mgr.Close()

	require.Zero(t, f.timers.liveCount())
	require.ErrorIs(t, f.mgr.Login(context.Background(), testEmail, testPassword), auth.ManagerClosedErr)
	require.ErrorIs(t, f.mgr.RefreshNow(context.Background()), auth.ManagerClosedErr)
}

func TestStateListenerSeesLifecycle(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	f.mgr.Logout(context.Background())

	require.Equal(t, []auth.State{
		auth.StateAuthenticating,
		auth.StateAuthenticated,
		auth.StateUnauthenticated,
	}, f.observedStates())
}
