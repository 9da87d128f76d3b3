package config

import "time"

type SessionConfig interface {
	GetHTTPTimeout() time.Duration
	GetRefreshLead() time.Duration
	GetIdleTimeout() time.Duration
	GetNominalTokenLifetime() time.Duration
}

type Session struct{}

var _ SessionConfig = Session{}

func (Session) GetHTTPTimeout() time.Duration {
	return 15 * time.Second
}

// GetRefreshLead is how long before the access token expiry a refresh is
// scheduled to fire.
func (Session) GetRefreshLead() time.Duration {
	return 60 * time.Second
}

// GetIdleTimeout is the inactivity window after which the session is ended.
func (Session) GetIdleTimeout() time.Duration {
	return 1 * time.Hour
}

// GetNominalTokenLifetime is the assumed access token lifetime when the
// backend reports none.
func (Session) GetNominalTokenLifetime() time.Duration {
	return 15 * time.Minute
}
