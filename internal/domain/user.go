package domain

import "time"

// Role is the caller role carried by the identity token.
type Role string

// Roles.
const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// HasPermission reports whether r satisfies the required role.
func (r Role) HasPermission(required Role) bool {
	if required == RoleUser {
		return r == RoleUser || r == RoleAdmin
	}
	return r == required
}

// User is owned by the external auth subsystem. Push code only reads it.
type User struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}
