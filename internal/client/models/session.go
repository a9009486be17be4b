package models

// Role is the user's role inside a company.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleCashier Role = "cashier"
)

// SessionContext identifies who is acting. It is passed explicitly to the
// services that need it.
type SessionContext struct {
	UserID    string `json:"userId"`
	Email     string `json:"email,omitempty"`
	Role      Role   `json:"role"`
	CompanyID string `json:"companyId"`
}

// IsAdmin reports whether the session has unrestricted access.
func (s SessionContext) IsAdmin() bool {
	return s.Role == RoleAdmin
}
