package identity

import (
	"context"
	"time"

	"github.com/Waji18/CloseTable/users"
)

// Credentials is the result of a successful login exchange: the identity
// record plus the token pair authorizing it.
type Credentials struct {
	User         users.User
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration // Access token lifetime from the moment of issue
}

// RenewedToken is the result of a refresh: a new access token with its
// lifetime. The refresh token itself is retained across renewals.
type RenewedToken struct {
	AccessToken string
	ExpiresIn   time.Duration
}

// FederatedIdentity is the payload the backend accepts for a federated
// (Google) login, extracted from a verified provider ID token.
type FederatedIdentity struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	GoogleID string `json:"googleId"`
}

// SignupRequest creates a new account. The backend assigns the Customer
// role to every signup.
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ProfileUpdate carries the fields a user may change on their own record.
type ProfileUpdate struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// API is the surface of the CloseTable identity backend the session
// manager consumes. SetAccessToken is the one piece of shared mutable
// request configuration: every call except Refresh attaches the current
// access token as a bearer credential.
type API interface {
	Login(ctx context.Context, email, password string) (*Credentials, error)
	LoginWithGoogle(ctx context.Context, fid FederatedIdentity) (*Credentials, error)
	Signup(ctx context.Context, req SignupRequest) (*users.User, error)
	Refresh(ctx context.Context, refreshToken string) (*RenewedToken, error)
	Logout(ctx context.Context) error
	FetchProfile(ctx context.Context) (*users.User, error)
	UpdateProfile(ctx context.Context, req ProfileUpdate) (*users.User, error)
	UpgradeRole(ctx context.Context, role users.RoleType) (*users.User, error)
	SetAccessToken(token string)
}
