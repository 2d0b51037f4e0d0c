package policy

// RoleSet is the set of roles a caller presents when invoking a tool or model.
type RoleSet map[string]struct{}

// NewRoleSet builds a role set from role names.
func NewRoleSet(roles ...string) RoleSet {
	rs := make(RoleSet, len(roles))
	for _, r := range roles {
		rs[r] = struct{}{}
	}
	return rs
}

// Has reports whether the set contains the given role.
func (rs RoleSet) Has(role string) bool {
	_, ok := rs[role]
	return ok
}

// Satisfies reports whether the role set grants access to a target guarded
// by the given access tags. An empty tag list means unrestricted; otherwise
// any one matching role suffices.
func (rs RoleSet) Satisfies(tags []string) bool {
	if len(tags) == 0 {
		return true
	}
	for _, tag := range tags {
		if rs.Has(tag) {
			return true
		}
	}
	return false
}

// List returns the role names in unspecified order.
func (rs RoleSet) List() []string {
	out := make([]string, 0, len(rs))
	for r := range rs {
		out = append(out, r)
	}
	return out
}
