package models

import (
	"strings"
	"time"
)

// Reserved document keys. Everything else in a document is domain data.
const (
	FieldID        = "id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// Record is a schemaless domain document owned by one company.
type Record struct {
	ID        string
	CompanyID string
	Type      string
	Data      map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Document renders r the way clients see it: data fields plus id and
// RFC 3339 timestamps.
func (r *Record) Document() map[string]any {
	doc := make(map[string]any, len(r.Data)+3)
	for k, v := range r.Data {
		doc[k] = v
	}
	doc[FieldID] = r.ID
	doc[FieldCreatedAt] = r.CreatedAt.UTC().Format(time.RFC3339Nano)
	doc[FieldUpdatedAt] = r.UpdatedAt.UTC().Format(time.RFC3339Nano)
	return doc
}

// StripReserved returns a copy of fields without keys the server owns.
// Keys of the client-side sync metadata are dropped too, so a misbehaving
// client cannot persist them.
func StripReserved(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch k {
		case FieldID, FieldCreatedAt, FieldUpdatedAt,
			"pendingSync", "savedAt", "syncedAt", "syncError":
			continue
		}
		out[k] = v
	}
	return out
}

// Backup is a point-in-time export of a company's records.
type Backup struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	Records   int       `json:"records"`
	CreatedAt time.Time `json:"createdAt"`
}

// ValidTypeName reports whether name is a usable collection name:
// lowercase letter first, then up to 63 of [a-z0-9_].
func ValidTypeName(name string) bool {
	if name == "" || len(name) > 64 {
		return false
	}
	if name[0] < 'a' || name[0] > 'z' {
		return false
	}
	return strings.IndexFunc(name, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_')
	}) < 0
}
