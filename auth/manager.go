package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/Waji18/CloseTable/identity"
	"github.com/Waji18/CloseTable/internal/obs"
	"github.com/Waji18/CloseTable/internal/utils"
	"github.com/Waji18/CloseTable/sessions"
	"github.com/Waji18/CloseTable/sessions/store"
	"github.com/Waji18/CloseTable/users"
)

const (
	defaultRefreshLead = 60 * time.Second
	defaultIdleTimeout = 1 * time.Hour
)

// Manager owns the client's session: it establishes sessions through the
// identity API, persists them to the token store, renews the access token
// ahead of expiry, ends sessions left idle too long, and exposes read-only
// projections for the rest of the application. It is the only writer of
// the token store.
type Manager struct {
	client identity.API
	store  store.Repo
	log    zerolog.Logger

	refreshLead   time.Duration
	idleTimeout   time.Duration
	nowTime       func() time.Time
	newTimer      TimerFactory
	onStateChange func(State)

	mu           sync.Mutex
	state        State
	resolved     bool
	session      *sessions.Session
	clientID     string
	refreshTimer Timer
	idleTimer    Timer
	pending      []State
	closed       bool
}

// ManagerOption defines a function type to modify the Manager instance.
type ManagerOption func(*Manager)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// WithTimerFactory overrides how timers are created (primarily for testing)
func WithTimerFactory(factory TimerFactory) ManagerOption {
	return func(m *Manager) {
		m.newTimer = factory
	}
}

// WithLogger sets the manager's logger.
func WithLogger(log zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.log = log
	}
}

// WithRefreshLead sets how long before token expiry the refresh fires.
func WithRefreshLead(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.refreshLead = d
	}
}

// WithIdleTimeout sets the inactivity window that ends the session.
func WithIdleTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.idleTimeout = d
	}
}

// WithStateListener registers a callback invoked after every state
// transition. The callback must not call back into the Manager.
func WithStateListener(fn func(State)) ManagerOption {
	return func(m *Manager) {
		m.onStateChange = fn
	}
}

// NewManager initializes a Manager with its required dependencies.
func NewManager(client identity.API, repo store.Repo, options ...ManagerOption) (*Manager, error) {
	if client == nil {
		return nil, errors.New("[NewManager] identity client is required")
	}
	if repo == nil {
		return nil, errors.New("[NewManager] session store is required")
	}

	m := &Manager{
		client:      client,
		store:       repo,
		log:         zerolog.Nop(),
		refreshLead: defaultRefreshLead,
		idleTimeout: defaultIdleTimeout,
		nowTime:     time.Now,
		newTimer:    stdTimerFactory,
		state:       StateUnauthenticated,
	}

	for _, opt := range options {
		opt(m)
	}

	return m, nil
}

// Start resolves the startup state from the token store: a complete,
// unexpired snapshot restores the session with no network call; anything
// else leaves the manager unauthenticated. Call once, before any other
// operation.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.unlockAndNotify()

	m.resolved = true

	snapshot, ok := m.store.Load()
	if !ok {
		m.transitionLocked(StateUnauthenticated)
		return
	}

	s := sessions.FromSnapshot(*snapshot)
	if s.Expired(m.nowTime()) {
		m.log.Info().Str("user", s.User.Email).Msg("discarding expired persisted session")
		if err := m.store.Clear(); err != nil {
			m.log.Warn().Err(err).Msg("failed to clear expired session from store")
		}
		obs.SessionsDiscardedTotal.Inc()
		m.transitionLocked(StateExpired)
		m.transitionLocked(StateUnauthenticated)
		return
	}

	m.session = s
	m.clientID = snapshot.ClientID
	m.client.SetAccessToken(s.AccessToken)
	m.transitionLocked(StateAuthenticated)
	m.scheduleRefreshLocked()
	m.resetIdleLocked()
	obs.SessionsRestoredTotal.Inc()
	m.log.Info().Str("user", s.User.Email).Time("expiry", s.ExpiresAt).Msg("restored persisted session")
}

// Login establishes a session from local credentials. On failure the
// error is returned for the caller to display and any existing session is
// left untouched.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	return m.establish("password", func() (*identity.Credentials, error) {
		return m.client.Login(ctx, email, password)
	})
}

// LoginFederated establishes a session from a verified federated identity.
func (m *Manager) LoginFederated(ctx context.Context, fid identity.FederatedIdentity) error {
	return m.establish("google", func() (*identity.Credentials, error) {
		return m.client.LoginWithGoogle(ctx, fid)
	})
}

func (m *Manager) establish(method string, exchange func() (*identity.Credentials, error)) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ManagerClosedErr
	}
	prev := m.state
	m.transitionLocked(StateAuthenticating)
	p := m.takePendingLocked()
	m.mu.Unlock()
	m.notify(p)

	creds, err := exchange()

	m.mu.Lock()
	defer m.unlockAndNotify()

	if m.closed {
		return ManagerClosedErr
	}
	if err != nil {
		obs.LoginsTotal.WithLabelValues(method, "failure").Inc()
		m.log.Info().Err(err).Str("method", method).Msg("login failed")
		m.transitionLocked(prev)
		return err
	}

	now := m.nowTime()
	m.session = &sessions.Session{
		User:         creds.User,
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		ExpiresAt:    now.Add(creds.ExpiresIn),
	}
	if m.clientID == "" {
		m.clientID = uuid.New().String()
	}
	m.client.SetAccessToken(creds.AccessToken)
	m.persistLocked()
	m.transitionLocked(StateAuthenticated)
	m.scheduleRefreshLocked()
	m.resetIdleLocked()
	obs.LoginsTotal.WithLabelValues(method, "success").Inc()
	m.log.Info().Str("user", creds.User.Email).Str("role", string(creds.User.Role)).
		Time("expiry", m.session.ExpiresAt).Msg("session established")
	return nil
}

// RefreshNow renews the access token immediately. It is a no-op while a
// refresh is already in flight; a rejected refresh ends the session
// silently (the store is cleared and the state drops to unauthenticated).
func (m *Manager) RefreshNow(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ManagerClosedErr
	}
	if m.state == StateRefreshing {
		// Single-flight: the in-progress refresh covers this trigger.
		m.mu.Unlock()
		return nil
	}
	if m.state != StateAuthenticated || m.session == nil {
		m.mu.Unlock()
		return NotAuthenticatedErr
	}
	refreshToken := m.session.RefreshToken
	m.stopRefreshTimerLocked()
	m.transitionLocked(StateRefreshing)
	p := m.takePendingLocked()
	m.mu.Unlock()
	m.notify(p)

	renewed, err := m.client.Refresh(ctx, refreshToken)

	m.mu.Lock()
	defer m.unlockAndNotify()

	if m.state != StateRefreshing {
		// The session was torn down while the refresh was in flight
		// (idle timeout or logout); its outcome no longer matters.
		return nil
	}
	if err != nil {
		obs.RefreshesTotal.WithLabelValues("failure").Inc()
		m.log.Warn().Err(err).Msg("token refresh rejected, ending session")
		m.teardownLocked(true)
		return nil
	}

	m.session.AccessToken = renewed.AccessToken
	m.session.ExpiresAt = m.nowTime().Add(renewed.ExpiresIn)
	m.client.SetAccessToken(renewed.AccessToken)
	m.persistLocked()
	m.transitionLocked(StateAuthenticated)
	m.scheduleRefreshLocked()
	obs.RefreshesTotal.WithLabelValues("success").Inc()
	m.log.Debug().Time("expiry", m.session.ExpiresAt).Msg("access token renewed")
	return nil
}

// Logout ends the session. The server-side invalidation is best-effort;
// local teardown always completes.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	if err := m.client.Logout(ctx); err != nil {
		m.log.Warn().Err(err).Msg("server logout failed, tearing down locally")
	}

	m.mu.Lock()
	defer m.unlockAndNotify()
	m.log.Info().Msg("logged out")
	m.teardownLocked(false)
}

// Touch records a user-interaction signal, postponing the idle logout.
func (m *Manager) Touch() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	if m.state == StateAuthenticated || m.state == StateRefreshing {
		m.resetIdleLocked()
	}
}

// UpgradeRole changes the current user's role through the backend and
// replaces the session's identity wholesale with the updated record.
func (m *Manager) UpgradeRole(ctx context.Context, role users.RoleType) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ManagerClosedErr
	}
	if m.state != StateAuthenticated && m.state != StateRefreshing {
		m.mu.Unlock()
		return NotAuthenticatedErr
	}
	m.mu.Unlock()

	updated, err := m.client.UpgradeRole(ctx, role)
	if err != nil {
		return errors.Wrap(err, "[UpgradeRole] identity api")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return NotAuthenticatedErr
	}
	m.session.User = *updated
	m.persistLocked()
	m.log.Info().Str("role", string(updated.Role)).Msg("role upgraded")
	return nil
}

// Close cancels all timers and rejects further operations. It does not
// end the session: the persisted snapshot survives for the next run.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.stopRefreshTimerLocked()
	m.stopIdleTimerLocked()
}

// Projections -------------------------------------------------------------

// Snapshot returns a read-only view of the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{State: m.state, Resolved: m.resolved}
	if m.session != nil {
		snap.User = utils.Ptr(m.session.User)
	}
	return snap
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CurrentUser returns a copy of the authenticated user, or nil.
func (m *Manager) CurrentUser() *users.User {
	return m.Snapshot().User
}

func (m *Manager) IsAuthenticated() bool {
	return m.Snapshot().IsAuthenticated()
}

func (m *Manager) IsCustomer() bool {
	return m.Snapshot().IsCustomer()
}

func (m *Manager) IsOwner() bool {
	return m.Snapshot().IsOwner()
}

func (m *Manager) IsAdmin() bool {
	return m.Snapshot().IsAdmin()
}

// Internals ---------------------------------------------------------------

// timer callbacks run on their own goroutines.

func (m *Manager) refreshDue() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	_ = m.RefreshNow(context.Background())
}

func (m *Manager) idleDue() {
	m.mu.Lock()
	defer m.unlockAndNotify()

	if m.closed {
		return
	}
	// Idle logout applies even mid-refresh: it cancels every timer and
	// the in-flight refresh result is discarded on return.
	if m.state != StateAuthenticated && m.state != StateRefreshing {
		return
	}
	obs.IdleLogoutsTotal.Inc()
	m.log.Info().Dur("idle_timeout", m.idleTimeout).Msg("idle timeout elapsed, ending session")
	m.teardownLocked(true)
}

// teardownLocked destroys the session, clears the store and cancels all
// timers. expired marks terminations caused by credentials running out,
// announced to listeners as StateExpired before settling.
func (m *Manager) teardownLocked(expired bool) {
	m.stopRefreshTimerLocked()
	m.stopIdleTimerLocked()
	m.session = nil
	m.client.SetAccessToken("")
	if err := m.store.Clear(); err != nil {
		m.log.Warn().Err(err).Msg("failed to clear session store")
	}
	if expired {
		m.transitionLocked(StateExpired)
	}
	m.transitionLocked(StateUnauthenticated)
}

func (m *Manager) persistLocked() {
	snapshot := m.session.ToSnapshot()
	snapshot.ClientID = m.clientID
	if err := m.store.Save(snapshot); err != nil {
		// Storage trouble is never fatal: the session stays memory-only
		// for this run and will not survive a restart.
		m.log.Warn().Err(err).Msg("failed to persist session, continuing memory-only")
	}
}

func (m *Manager) scheduleRefreshLocked() {
	m.stopRefreshTimerLocked()
	delay := m.session.ExpiresAt.Sub(m.nowTime()) - m.refreshLead
	if delay < 0 {
		delay = 0
	}
	m.refreshTimer = m.newTimer(delay, m.refreshDue)
}

func (m *Manager) resetIdleLocked() {
	m.stopIdleTimerLocked()
	m.idleTimer = m.newTimer(m.idleTimeout, m.idleDue)
}

func (m *Manager) stopRefreshTimerLocked() {
	if m.refreshTimer != nil {
		m.refreshTimer.Stop()
		m.refreshTimer = nil
	}
}

func (m *Manager) stopIdleTimerLocked() {
	if m.idleTimer != nil {
		m.idleTimer.Stop()
		m.idleTimer = nil
	}
}

func (m *Manager) transitionLocked(next State) {
	if m.state == next {
		return
	}
	m.state = next
	if m.onStateChange != nil {
		m.pending = append(m.pending, next)
	}
}

func (m *Manager) takePendingLocked() []State {
	p := m.pending
	m.pending = nil
	return p
}

// unlockAndNotify releases the lock and delivers queued state
// notifications outside of it.
func (m *Manager) unlockAndNotify() {
	p := m.takePendingLocked()
	m.mu.Unlock()
	m.notify(p)
}

func (m *Manager) notify(transitions []State) {
	if m.onStateChange == nil {
		return
	}
	for _, s := range transitions {
		m.onStateChange(s)
	}
}
