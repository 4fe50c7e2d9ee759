package auth

import "github.com/healingspace/healingspace/internal/database"

// Scope names a group of endpoints that share one access rule.
type Scope string

const (
	ScopeMessaging Scope = "messaging"
	ScopePatient   Scope = "patient"
	ScopeClinician Scope = "clinician"
	ScopeDeveloper Scope = "developer"
	ScopeTherapy   Scope = "therapy"
	ScopeFeedback  Scope = "feedback"
)

// accessMatrix lists the roles allowed into each scope. Anything absent is
// denied, including unknown scopes and roles.
var accessMatrix = map[Scope]map[string]bool{
	ScopeMessaging: {database.RolePatient: true, database.RoleClinician: true, database.RoleDeveloper: true},
	ScopePatient:   {database.RolePatient: true},
	ScopeClinician: {database.RoleClinician: true, database.RoleDeveloper: true},
	ScopeDeveloper: {database.RoleDeveloper: true},
	ScopeTherapy:   {database.RolePatient: true, database.RoleDeveloper: true},
	ScopeFeedback:  {database.RolePatient: true, database.RoleClinician: true, database.RoleDeveloper: true},
}

// Allowed reports whether role may access scope.
func Allowed(scope Scope, role string) bool {
	return accessMatrix[scope][NormalizeRole(role)]
}

// NormalizeRole maps stored role values onto the current role set.
func NormalizeRole(role string) string {
	if role == database.RoleLegacyUser || role == "" {
		return database.RolePatient
	}
	return role
}
