// Package models defines server-side data models persisted in the database.
package models

import "time"

// Roles assigned to users. Register always creates an admin of a new
// company.
const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
	RoleViewer  = "viewer"
)

type User struct {
	ID           string
	Email        string
	PasswordHash string
	DisplayName  string
	CompanyID    string
	CompanyName  string
	Role         string
	CreatedAt    time.Time
}

// Identity is what an access token asserts about its bearer.
type Identity struct {
	UserID    string `json:"userId"`
	Email     string `json:"email"`
	CompanyID string `json:"companyId"`
	Role      string `json:"role"`
}

// Identity returns the token identity of u.
func (u *User) Identity() Identity {
	return Identity{UserID: u.ID, Email: u.Email, CompanyID: u.CompanyID, Role: u.Role}
}
