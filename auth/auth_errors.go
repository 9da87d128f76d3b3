package auth

import "errors"

var (
	NotAuthenticatedErr = errors.New("no session is active")
	ManagerClosedErr    = errors.New("session manager is closed")
)
