package domain

// Role differentiates administrators from regular users.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Principal is the authenticated caller attached to a request.
type Principal struct {
	UserID string
	Email  string
	Role   Role
}

// IsAdmin reports whether the principal may see every ticket and the reports.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}
