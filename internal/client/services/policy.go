package services

import (
	"slices"

	"github.com/dmitrijs2005/bizsync/internal/client/models"
)

// Policy decides whether a session may see a record. Policies are pure
// post-filters over Local Store results.
type Policy interface {
	Allow(s models.SessionContext, r *models.Record) bool
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(s models.SessionContext, r *models.Record) bool

func (f PolicyFunc) Allow(s models.SessionContext, r *models.Record) bool { return f(s, r) }

// AllowAll admits every record.
var AllowAll Policy = PolicyFunc(func(models.SessionContext, *models.Record) bool { return true })

// CompanyScope hides records that belong to another company. Records
// without a company id are visible.
type CompanyScope struct{}

func (CompanyScope) Allow(s models.SessionContext, r *models.Record) bool {
	c, _ := r.Fields[models.FieldCompanyID].(string)
	return c == "" || s.CompanyID == "" || c == s.CompanyID
}

// RolePolicy restricts the listed roles to records they created. Admins
// always see everything.
type RolePolicy struct {
	OwnRecordsOnly []models.Role
}

func (p RolePolicy) Allow(s models.SessionContext, r *models.Record) bool {
	if s.IsAdmin() || !slices.Contains(p.OwnRecordsOnly, s.Role) {
		return true
	}
	by, _ := r.Fields[models.FieldCreatedBy].(string)
	return by == s.UserID
}

// All combines policies; a record must pass each of them.
func All(ps ...Policy) Policy {
	return PolicyFunc(func(s models.SessionContext, r *models.Record) bool {
		for _, p := range ps {
			if !p.Allow(s, r) {
				return false
			}
		}
		return true
	})
}

// DefaultPolicy scopes by company and limits cashiers to their own
// records.
func DefaultPolicy() Policy {
	return All(CompanyScope{}, RolePolicy{OwnRecordsOnly: []models.Role{models.RoleCashier}})
}

// Filter returns the records p allows for s.
func Filter(p Policy, s models.SessionContext, recs []*models.Record) []*models.Record {
	out := make([]*models.Record, 0, len(recs))
	for _, r := range recs {
		if p.Allow(s, r) {
			out = append(out, r)
		}
	}
	return out
}
