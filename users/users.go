package users

import "time"

// RoleType represents a user's role within CloseTable. A user holds exactly
// one role, assigned at signup and changed only through a role upgrade.
type RoleType string

const (
	RoleCustomer RoleType = "Customer"         // Can browse and book reservations
	RoleOwner    RoleType = "Restaurant Owner" // Can register restaurants and manage menus
	RoleAdmin    RoleType = "Admin"            // Can approve restaurants and manage users
)

// ValidRole reports whether r is one of the roles the backend accepts.
func ValidRole(r RoleType) bool {
	switch r {
	case RoleCustomer, RoleOwner, RoleAdmin:
		return true
	}
	return false
}

type User struct {
	ID        string    `json:"id,omitempty"`         // Unique identifier for the user
	Name      string    `json:"name,omitempty"`       // Display name
	Email     string    `json:"email,omitempty"`      // User's email address
	Role      RoleType  `json:"role,omitempty"`       // One of Customer, Restaurant Owner, Admin
	CreatedAt time.Time `json:"created_at,omitempty"` // When the account was created
}

func (u *User) IsCustomer() bool {
	return u != nil && u.Role == RoleCustomer
}

func (u *User) IsOwner() bool {
	return u != nil && u.Role == RoleOwner
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// HasAnyRole checks if the user's role matches any of the given roles.
func (u *User) HasAnyRole(roles ...RoleType) bool {
	if u == nil {
		return false
	}
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}
