package auth

// Allowed reports whether p may pass a guard for roles.
// An empty role set means any authenticated principal is allowed.
func Allowed(p Principal, roles ...Role) bool {
	if p == nil {
		return false
	}
	if len(roles) == 0 {
		return true
	}
	current := p.Role()
	for _, r := range roles {
		if r == current {
			return true
		}
	}
	return false
}

// Authorize is Allowed returning the taxonomy error for a mismatch.
func Authorize(p Principal, roles ...Role) error {
	if p == nil {
		return ErrNotAuthenticated
	}
	if !Allowed(p, roles...) {
		return InsufficientPermissions(roles, p.Role())
	}
	return nil
}
