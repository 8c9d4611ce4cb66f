package common

// Role names shared across the native modules.
const (
	RoleAdmin  = "ROLE_ADMIN"
	RoleMinter = "MINTER_ROLE"
)

// RoleView answers capability checks for privileged module operations. Engines
// receive a view instead of embedding role tables so they stay testable
// without a full access-control subsystem.
type RoleView interface {
	HasRole(role string, addr [20]byte) bool
}

// StaticRoles is a fixed role table, primarily used for wiring and tests.
type StaticRoles struct {
	grants map[string]map[[20]byte]struct{}
}

// NewStaticRoles returns an empty role table.
func NewStaticRoles() *StaticRoles {
	return &StaticRoles{grants: make(map[string]map[[20]byte]struct{})}
}

// Grant adds the role to the address. Granting twice is a no-op.
func (r *StaticRoles) Grant(role string, addr [20]byte) {
	if r.grants[role] == nil {
		r.grants[role] = make(map[[20]byte]struct{})
	}
	r.grants[role][addr] = struct{}{}
}

// HasRole implements the RoleView interface.
func (r *StaticRoles) HasRole(role string, addr [20]byte) bool {
	if r == nil {
		return false
	}
	_, ok := r.grants[role][addr]
	return ok
}

// Authorized reports whether the view grants the role to the address. A nil
// view denies everything.
func Authorized(view RoleView, role string, addr [20]byte) bool {
	if view == nil {
		return false
	}
	return view.HasRole(role, addr)
}
