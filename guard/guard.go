package guard

import (
	"github.com/Waji18/CloseTable/auth"
	"github.com/Waji18/CloseTable/users"
)

// Decision is the navigation layer's verdict for a protected view.
type Decision string

const (
	// Pending means the lifecycle is still resolving its startup state;
	// render nothing conclusive.
	Pending Decision = "pending"
	// Allow renders the view.
	Allow Decision = "allow"
	// RedirectToLogin sends an unauthenticated user to the login view.
	RedirectToLogin Decision = "redirect_to_login"
	// RedirectToHome sends an authenticated user without a matching role
	// back to the home view.
	RedirectToHome Decision = "redirect_to_home"
)

// Decide gates access to a view from the manager's current snapshot. It
// has no side effects; callers re-evaluate it on every state change so a
// session ending mid-visit redirects away from the protected view. With
// no required roles any authenticated user is allowed.
func Decide(snap auth.Snapshot, requiredRoles ...users.RoleType) Decision {
	if !snap.Resolved {
		return Pending
	}
	if !snap.IsAuthenticated() || snap.User == nil {
		return RedirectToLogin
	}
	if len(requiredRoles) == 0 {
		return Allow
	}
	if snap.User.HasAnyRole(requiredRoles...) {
		return Allow
	}
	return RedirectToHome
}
