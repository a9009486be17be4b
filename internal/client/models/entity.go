package models

import (
	"fmt"
	"regexp"
)

// EntityType names a record collection (one Local Store table, one server
// collection).
type EntityType string

const (
	Invoices         EntityType = "invoices"
	Parties          EntityType = "parties"
	Items            EntityType = "items"
	Expenses         EntityType = "expenses"
	Quotations       EntityType = "quotations"
	Payments         EntityType = "payments"
	DeliveryChallans EntityType = "delivery_challans"
)

// KnownEntityTypes are the collections the application ships with.
var KnownEntityTypes = []EntityType{Invoices, Parties, Items, Expenses, Quotations, Payments, DeliveryChallans}

var entityTypeRe = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

// Validate rejects names that cannot be used as a collection name.
func (t EntityType) Validate() error {
	if !entityTypeRe.MatchString(string(t)) {
		return fmt.Errorf("%w: %q", ErrInvalidEntityType, string(t))
	}
	return nil
}

func (t EntityType) String() string { return string(t) }
