package federated

import (
	"context"
	"crypto/rand"
	"encoding/base64"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	"github.com/Waji18/CloseTable/identity"
)

const googleIssuer = "https://accounts.google.com"

// GoogleAuthenticator drives the Google sign-in flow: it produces the
// authorization URL, exchanges the returned code, verifies the ID token
// and extracts the identity payload the CloseTable backend accepts. The
// session manager stays agnostic to the provider; it only ever sees the
// resulting FederatedIdentity.
type GoogleAuthenticator struct {
	oauthConfig *oauth2.Config
	verifier    *oidc.IDTokenVerifier
}

func NewGoogleAuthenticator(ctx context.Context, clientID, clientSecret, redirectURL string) (*GoogleAuthenticator, error) {
	if clientID == "" {
		return nil, errors.New("[NewGoogleAuthenticator] client ID is required")
	}

	provider, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return nil, errors.Wrap(err, "[NewGoogleAuthenticator] discover provider")
	}

	return &GoogleAuthenticator{
		oauthConfig: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

// AuthURL returns the URL the user visits to grant access. state is echoed
// back on the redirect and must be checked by the caller.
func (g *GoogleAuthenticator) AuthURL(state string) string {
	return g.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades the authorization code for tokens, verifies the ID token
// and returns the identity payload for the backend's federated login.
func (g *GoogleAuthenticator) Exchange(ctx context.Context, code string) (identity.FederatedIdentity, error) {
	oauth2Token, err := g.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return identity.FederatedIdentity{}, errors.Wrap(err, "[Exchange] token exchange")
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return identity.FederatedIdentity{}, errors.New("[Exchange] no ID token in response")
	}

	idToken, err := g.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return identity.FederatedIdentity{}, errors.Wrap(err, "[Exchange] ID token verification")
	}

	var claims struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return identity.FederatedIdentity{}, errors.Wrap(err, "[Exchange] parse claims")
	}
	if claims.Email == "" || !claims.EmailVerified {
		return identity.FederatedIdentity{}, errors.New("[Exchange] provider did not return a verified email")
	}

	return identity.FederatedIdentity{
		Email:    claims.Email,
		Name:     claims.Name,
		GoogleID: claims.Sub,
	}, nil
}

// State generates a random state value for the authorization request.
func State() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", errors.Wrap(err, "[State] rand.Read")
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}
