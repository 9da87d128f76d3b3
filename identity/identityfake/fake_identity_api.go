package identityfake

import (
	"context"
	"sync"

	"github.com/Waji18/CloseTable/identity"
	"github.com/Waji18/CloseTable/users"
)

var _ identity.API = (*FakeIdentityAPI)(nil)

// FakeIdentityAPI is a scripted identity backend for session manager
// tests. Each operation returns its configured result or error and counts
// the call.
type FakeIdentityAPI struct {
	mu sync.Mutex

	LoginCreds  *identity.Credentials
	LoginErr    error
	GoogleCreds *identity.Credentials
	GoogleErr   error
	SignupUser  *users.User
	SignupErr   error
	Renewed     *identity.RenewedToken
	RefreshErr  error
	LogoutErr   error
	ProfileUser *users.User
	ProfileErr  error
	UpdatedUser *users.User
	UpdateErr   error
	RoleUser    *users.User
	RoleErr     error

	// When set, Refresh blocks until the channel is closed, so tests can
	// hold a refresh in flight while triggering another.
	RefreshGate chan struct{}
	// Closed when a gated Refresh has started waiting.
	RefreshStarted chan struct{}

	LoginCalls   int
	GoogleCalls  int
	SignupCalls  int
	RefreshCalls int
	LogoutCalls  int
	ProfileCalls int
	UpdateCalls  int
	RoleCalls    int

	Bearer        string // last value passed to SetAccessToken
	RefreshedWith string // last refresh token presented to Refresh
}

func NewFakeIdentityAPI() *FakeIdentityAPI {
	return &FakeIdentityAPI{}
}

func (f *FakeIdentityAPI) Login(_ context.Context, _, _ string) (*identity.Credentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.LoginCalls++
	if f.LoginErr != nil {
		return nil, f.LoginErr
	}
	return f.LoginCreds, nil
}

func (f *FakeIdentityAPI) LoginWithGoogle(_ context.Context, _ identity.FederatedIdentity) (*identity.Credentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.GoogleCalls++
	if f.GoogleErr != nil {
		return nil, f.GoogleErr
	}
	return f.GoogleCreds, nil
}

func (f *FakeIdentityAPI) Signup(_ context.Context, _ identity.SignupRequest) (*users.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.SignupCalls++
	if f.SignupErr != nil {
		return nil, f.SignupErr
	}
	return f.SignupUser, nil
}

func (f *FakeIdentityAPI) Refresh(_ context.Context, refreshToken string) (*identity.RenewedToken, error) {
	f.mu.Lock()
	f.RefreshCalls++
	f.RefreshedWith = refreshToken
	gate, started := f.RefreshGate, f.RefreshStarted
	f.mu.Unlock()

	if gate != nil {
		if started != nil {
			close(started)
			f.mu.Lock()
			f.RefreshStarted = nil
			f.mu.Unlock()
		}
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RefreshErr != nil {
		return nil, f.RefreshErr
	}
	return f.Renewed, nil
}

func (f *FakeIdentityAPI) Logout(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.LogoutCalls++
	return f.LogoutErr
}

func (f *FakeIdentityAPI) FetchProfile(_ context.Context) (*users.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ProfileCalls++
	if f.ProfileErr != nil {
		return nil, f.ProfileErr
	}
	return f.ProfileUser, nil
}

func (f *FakeIdentityAPI) UpdateProfile(_ context.Context, _ identity.ProfileUpdate) (*users.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.UpdateCalls++
	if f.UpdateErr != nil {
		return nil, f.UpdateErr
	}
	return f.UpdatedUser, nil
}

func (f *FakeIdentityAPI) UpgradeRole(_ context.Context, _ users.RoleType) (*users.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.RoleCalls++
	if f.RoleErr != nil {
		return nil, f.RoleErr
	}
	return f.RoleUser, nil
}

func (f *FakeIdentityAPI) SetAccessToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Bearer = token
}

// Refreshes returns the refresh call count, safe to read while a gated
// refresh is still in flight.
func (f *FakeIdentityAPI) Refreshes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.RefreshCalls
}

// CurrentBearer returns the last access token set on the fake.
func (f *FakeIdentityAPI) CurrentBearer() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Bearer
}
