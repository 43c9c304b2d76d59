package auth

import "errors"

// Role is the product role attached to an authenticated user.
type Role string

const (
	RoleChild  Role = "child"
	RoleMentor Role = "mentor"
	RoleAdmin  Role = "admin"
)

// ErrInvalidRole is returned when a credential carries an unknown role.
var ErrInvalidRole = errors.New("invalid role")

// ParseRole validates a role string.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleChild, RoleMentor, RoleAdmin:
		return Role(s), nil
	default:
		return "", ErrInvalidRole
	}
}

// Identity is the verified principal behind a connection.
// It is a value type: a role change requires a new connection.
type Identity struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role"`
	Age         int    `json:"age"`
}

// CanComment reports whether the role may author mentor comments.
func (i Identity) CanComment() bool {
	return i.Role == RoleMentor || i.Role == RoleAdmin
}

// IsAdmin reports whether the identity has the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}
