// Package auth resolves bearer credentials into principals.
//
// Account management (registration, login, password storage) lives in the
// storefront API; this package only verifies what that service issued.
package auth

// Role is the closed set of principal roles.
type Role string

const (
	// RoleUser is a regular storefront customer.
	RoleUser Role = "user"
	// RoleAdmin is a member of the support-admin pool.
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Principal is the authenticated identity attached to a connection.
// It is a projection of a verified credential, produced fresh per connection
// and never mutated.
type Principal struct {
	ID       string
	Username string
	Role     Role
}

// IsAdmin reports whether the principal belongs to the admin pool.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
