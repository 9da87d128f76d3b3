package users_test

import (
	"testing"

	"github.com/Waji18/CloseTable/users"
	"github.com/stretchr/testify/require"
)

func TestRolePredicates(t *testing.T) {
	customer := &users.User{ID: "u-1", Role: users.RoleCustomer}
	owner := &users.User{ID: "u-2", Role: users.RoleOwner}
	admin := &users.User{ID: "u-3", Role: users.RoleAdmin}

	require.True(t, customer.IsCustomer())
	require.False(t, customer.IsOwner())
	require.False(t, customer.IsAdmin())

	require.True(t, owner.IsOwner())
	require.False(t, owner.IsCustomer())

	require.True(t, admin.IsAdmin())
	require.False(t, admin.IsCustomer())
}

func TestRolePredicatesNilUser(t *testing.T) {
	var u *users.User
	require.False(t, u.IsCustomer())
	require.False(t, u.IsOwner())
	require.False(t, u.IsAdmin())
	require.False(t, u.HasAnyRole(users.RoleAdmin))
}

func TestHasAnyRole(t *testing.T) {
	owner := &users.User{ID: "u-2", Role: users.RoleOwner}

	require.True(t, owner.HasAnyRole(users.RoleOwner))
	require.True(t, owner.HasAnyRole(users.RoleAdmin, users.RoleOwner))
	require.False(t, owner.HasAnyRole(users.RoleAdmin))
	require.False(t, owner.HasAnyRole())
}

func TestValidRole(t *testing.T) {
	require.True(t, users.ValidRole(users.RoleCustomer))
	require.True(t, users.ValidRole(users.RoleOwner))
	require.True(t, users.ValidRole(users.RoleAdmin))
	require.False(t, users.ValidRole("Moderator"))
	require.False(t, users.ValidRole(""))
}
