package services

import "github.com/userhub/apiserver/types"

// Access control predicates. Pure functions over the explicit actor; no
// ambient request state is consulted anywhere.

// CanUpdate reports whether actor may modify target: admins may modify
// anyone, everyone may modify themselves.
func CanUpdate(actor, target types.User) bool {
	return actor.IsAdmin() || actor.ID == target.ID
}

// CanDelete reports whether actor may delete target: admins only, and never
// their own account.
func CanDelete(actor, target types.User) bool {
	return actor.IsAdmin() && actor.ID != target.ID
}

// CanSetRole reports whether actor may choose a role for a user record.
func CanSetRole(actor types.User) bool {
	return actor.IsAdmin()
}
