package auth

// Role groups used by route guards.
var (
	AdminOnly = []Role{RoleAdmin}
	Managers  = []Role{RoleAdmin, RoleManager}
	Staff     = []Role{RoleAdmin, RoleManager, RoleEmployee}
)
