package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/Waji18/CloseTable/users"
)

const (
	loginPath       = "/api/login"
	googleLoginPath = "/api/auth/google"
	signupPath      = "/api/signup"
	refreshPath     = "/api/refresh"
	logoutPath      = "/api/logout"
	profilePath     = "/api/profile"
	rolePath        = "/api/users/role"

	defaultHTTPTimeout = 15 * time.Second

	// Nominal access token lifetime when the response carries neither an
	// expires_in field nor a readable exp claim.
	defaultTokenLifetime = 15 * time.Minute
)

var _ API = (*Client)(nil)

// Client is the typed wrapper over the identity API's REST contract. It
// owns the current access token and attaches it to outbound requests;
// transport failures are translated into the package's error taxonomy.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	log           zerolog.Logger
	nowTime       func() time.Time
	tokenLifetime time.Duration

	mu          sync.RWMutex
	accessToken string
}

// ClientOption defines a function type to modify the Client instance.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger used for request-level diagnostics.
func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ClientOption {
	return func(c *Client) {
		c.nowTime = nowFunc
	}
}

// WithNominalTokenLifetime overrides the fallback access token lifetime.
func WithNominalTokenLifetime(d time.Duration) ClientOption {
	return func(c *Client) {
		c.tokenLifetime = d
	}
}

// NewClient creates a Client for the identity API at baseURL.
func NewClient(baseURL string, options ...ClientOption) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    &http.Client{Timeout: defaultHTTPTimeout},
		log:           zerolog.Nop(),
		nowTime:       time.Now,
		tokenLifetime: defaultTokenLifetime,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// SetAccessToken replaces the bearer credential attached to subsequent
// requests. An empty token detaches it.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	c.accessToken = token
	c.mu.Unlock()
}

func (c *Client) currentToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// Wire shapes -------------------------------------------------------------

type userPayload struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func (p userPayload) toUser() users.User {
	name := p.Username
	if name == "" {
		name = p.Name
	}
	return users.User{
		ID:        p.ID,
		Name:      name,
		Email:     p.Email,
		Role:      users.RoleType(p.Role),
		CreatedAt: p.CreatedAt,
	}
}

type authResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int64       `json:"expires_in"`
	User         userPayload `json:"user"`
}

type userResponse struct {
	User userPayload `json:"user"`
}

type apiError struct {
	Error string `json:"error"`
}

// Operations --------------------------------------------------------------

// Login exchanges local credentials for a token pair.
func (c *Client) Login(ctx context.Context, email, password string) (*Credentials, error) {
	body := map[string]string{"email": email, "password": password}

	var resp authResponse
	status, err := c.do(ctx, http.MethodPost, loginPath, body, c.currentToken(), &resp)
	if err != nil {
		return nil, errors.Wrap(err, "[Login] identity api call")
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return nil, InvalidCredentialsErr
	}
	if status != http.StatusOK {
		return nil, errors.Errorf("[Login] unexpected status %d", status)
	}
	return c.credentialsFrom(resp), nil
}

// LoginWithGoogle exchanges a verified federated identity for a token pair.
func (c *Client) LoginWithGoogle(ctx context.Context, fid FederatedIdentity) (*Credentials, error) {
	var resp authResponse
	status, err := c.do(ctx, http.MethodPost, googleLoginPath, fid, c.currentToken(), &resp)
	if err != nil {
		return nil, errors.Wrap(err, "[LoginWithGoogle] identity api call")
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return nil, FederatedAuthRejectedErr
	}
	if status != http.StatusOK {
		return nil, errors.Errorf("[LoginWithGoogle] unexpected status %d", status)
	}
	return c.credentialsFrom(resp), nil
}

// Signup registers a new account. The backend forces the Customer role.
func (c *Client) Signup(ctx context.Context, req SignupRequest) (*users.User, error) {
	payload := struct {
		SignupRequest
		Role users.RoleType `json:"role"`
	}{SignupRequest: req, Role: users.RoleCustomer}

	var resp userResponse
	status, err := c.do(ctx, http.MethodPost, signupPath, payload, "", &resp)
	if err != nil {
		return nil, errors.Wrap(err, "[Signup] identity api call")
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, errors.Errorf("[Signup] unexpected status %d", status)
	}
	u := resp.User.toUser()
	return &u, nil
}

// Refresh mints a new access token. This is the only call that presents
// the refresh token, and it presents nothing else.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*RenewedToken, error) {
	var resp authResponse
	status, err := c.do(ctx, http.MethodPost, refreshPath, nil, refreshToken, &resp)
	if err != nil {
		return nil, errors.Wrap(err, "[Refresh] identity api call")
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return nil, RefreshRejectedErr
	}
	if status != http.StatusOK {
		return nil, errors.Errorf("[Refresh] unexpected status %d", status)
	}
	return &RenewedToken{
		AccessToken: resp.AccessToken,
		ExpiresIn:   c.lifetimeOf(resp.AccessToken, resp.ExpiresIn),
	}, nil
}

// Logout asks the server to invalidate the session. Callers treat failure
// as non-fatal; local teardown never waits on it.
func (c *Client) Logout(ctx context.Context) error {
	status, err := c.do(ctx, http.MethodPost, logoutPath, nil, c.currentToken(), nil)
	if err != nil {
		return errors.Wrap(err, "[Logout] identity api call")
	}
	if status != http.StatusOK {
		return errors.Errorf("[Logout] unexpected status %d", status)
	}
	return nil
}

// FetchProfile returns the user the current access token belongs to.
func (c *Client) FetchProfile(ctx context.Context) (*users.User, error) {
	var payload userPayload
	status, err := c.do(ctx, http.MethodGet, profilePath, nil, c.currentToken(), &payload)
	if err != nil {
		return nil, errors.Wrap(err, "[FetchProfile] identity api call")
	}
	if status == http.StatusUnauthorized {
		return nil, UnauthorizedErr
	}
	if status != http.StatusOK {
		return nil, errors.Errorf("[FetchProfile] unexpected status %d", status)
	}
	u := payload.toUser()
	return &u, nil
}

// UpdateProfile changes the current user's own record.
func (c *Client) UpdateProfile(ctx context.Context, req ProfileUpdate) (*users.User, error) {
	var resp userResponse
	status, err := c.do(ctx, http.MethodPut, profilePath, req, c.currentToken(), &resp)
	if err != nil {
		return nil, errors.Wrap(err, "[UpdateProfile] identity api call")
	}
	if status == http.StatusUnauthorized {
		return nil, UnauthorizedErr
	}
	if status != http.StatusOK {
		return nil, errors.Errorf("[UpdateProfile] unexpected status %d", status)
	}
	u := resp.User.toUser()
	return &u, nil
}

// UpgradeRole asks the backend to change the current user's role and
// returns the updated record.
func (c *Client) UpgradeRole(ctx context.Context, role users.RoleType) (*users.User, error) {
	if !users.ValidRole(role) {
		return nil, errors.Errorf("[UpgradeRole] invalid role %q", role)
	}

	body := map[string]users.RoleType{"role": role}
	var resp userResponse
	status, err := c.do(ctx, http.MethodPut, rolePath, body, c.currentToken(), &resp)
	if err != nil {
		return nil, errors.Wrap(err, "[UpgradeRole] identity api call")
	}
	if status == http.StatusUnauthorized {
		return nil, UnauthorizedErr
	}
	if status != http.StatusOK {
		return nil, errors.Errorf("[UpgradeRole] unexpected status %d", status)
	}
	u := resp.User.toUser()
	return &u, nil
}

// Helpers -----------------------------------------------------------------

func (c *Client) credentialsFrom(resp authResponse) *Credentials {
	return &Credentials{
		User:         resp.User.toUser(),
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresIn:    c.lifetimeOf(resp.AccessToken, resp.ExpiresIn),
	}
}

// lifetimeOf resolves the access token lifetime: expires_in from the
// response when present, the token's own exp claim next, the nominal
// lifetime last.
func (c *Client) lifetimeOf(accessToken string, expiresIn int64) time.Duration {
	if expiresIn > 0 {
		return time.Duration(expiresIn) * time.Second
	}
	if exp, ok := tokenExpiry(accessToken); ok {
		if d := exp.Sub(c.nowTime()); d > 0 {
			return d
		}
	}
	return c.tokenLifetime
}

// tokenExpiry reads the exp claim without verifying the signature. The
// client holds no signing keys; it only needs the timestamp for
// scheduling, never for trust decisions.
func tokenExpiry(rawToken string) (time.Time, bool) {
	token, _, err := jwtlib.NewParser().ParseUnverified(rawToken, jwtlib.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// do performs one API call. It returns the HTTP status for the caller to
// map into the error taxonomy; transport failures come back wrapping
// UnreachableErr. Non-2xx bodies are drained for their error message and
// logged, not returned.
func (c *Client) do(ctx context.Context, method, path string, body any, bearer string, out any) (int, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, errors.Wrap(err, "marshal request body")
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", bearer))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, errors.Wrapf(UnreachableErr, "%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return resp.StatusCode, errors.Wrapf(err, "decode %s %s response", method, path)
			}
		}
		return resp.StatusCode, nil
	}

	var apiErr apiError
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
		c.log.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).
			Str("error", apiErr.Error).Msg("identity api rejected request")
	}
	return resp.StatusCode, nil
}
