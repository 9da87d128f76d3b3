package identity

import "errors"

var (
	InvalidCredentialsErr    = errors.New("invalid credentials")
	FederatedAuthRejectedErr = errors.New("federated identity rejected")
	RefreshRejectedErr       = errors.New("refresh token rejected")
	UnauthorizedErr          = errors.New("access token rejected")
	UnreachableErr           = errors.New("identity api unreachable")
)
