// Package models defines client-side data models for the offline-first
// record sync core: records, queue entries, entity types and the session.
package models

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

// Wire keys for the server-owned record attributes.
const (
	FieldID        = "id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
	FieldCompanyID = "companyId"
	FieldCreatedBy = "createdBy"
)

// clientOnlyFields are never sent to the server.
var clientOnlyFields = []string{"pendingSync", "savedAt", "syncedAt", "syncError"}

// Record is one domain entity (invoice, party, expense, ...) as kept in the
// Local Store. Domain data lives in Fields; the remaining attributes are
// server-owned timestamps and client-only sync metadata.
type Record struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// PendingSync marks local changes not yet confirmed by the server.
	PendingSync bool `json:"pendingSync"`
	// SavedAt is the time of the last local write.
	SavedAt time.Time `json:"savedAt"`
	// SyncedAt is the time of the last confirmed server write.
	SyncedAt *time.Time `json:"syncedAt,omitempty"`
	// SyncError holds the reason the record's mutation was dead-lettered.
	SyncError string `json:"syncError,omitempty"`
}

// NewRecord returns a record with the given fields and no id.
func NewRecord(fields map[string]any) *Record {
	if fields == nil {
		fields = map[string]any{}
	}
	return &Record{Fields: fields}
}

// IsLocal reports whether the record still carries a device-generated id.
func (r *Record) IsLocal() bool {
	return IsLocalID(r.ID)
}

// Clone returns a deep enough copy: the field map and the SyncedAt pointer
// are not shared with r. Nested field values are shared.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Fields = maps.Clone(r.Fields)
	if c.Fields == nil {
		c.Fields = map[string]any{}
	}
	if r.SyncedAt != nil {
		t := *r.SyncedAt
		c.SyncedAt = &t
	}
	return &c
}

// Get returns a domain field; id/createdAt/updatedAt resolve to the
// record attributes.
func (r *Record) Get(name string) (any, bool) {
	switch name {
	case FieldID:
		return r.ID, true
	case FieldCreatedAt:
		return r.CreatedAt, !r.CreatedAt.IsZero()
	case FieldUpdatedAt:
		return r.UpdatedAt, !r.UpdatedAt.IsZero()
	}
	v, ok := r.Fields[name]
	return v, ok
}

// Merge overlays partial fields onto the record.
func (r *Record) Merge(partial map[string]any) {
	if r.Fields == nil {
		r.Fields = map[string]any{}
	}
	for k, v := range partial {
		r.Fields[k] = v
	}
}

// MarkSynced clears the pending flag and stamps SyncedAt.
func (r *Record) MarkSynced(at time.Time) {
	at = at.UTC()
	r.PendingSync = false
	r.SyncedAt = &at
	r.SyncError = ""
}

// WireFields returns what the server should see: domain fields plus id and
// timestamps, without client-only sync metadata. An empty or local id is
// omitted so the server assigns its own.
func (r *Record) WireFields() map[string]any {
	out := make(map[string]any, len(r.Fields)+3)
	for k, v := range r.Fields {
		out[k] = v
	}
	for _, k := range clientOnlyFields {
		delete(out, k)
	}
	delete(out, FieldID)

	if r.ID != "" && !IsLocalID(r.ID) {
		out[FieldID] = r.ID
	}
	if !r.CreatedAt.IsZero() {
		out[FieldCreatedAt] = r.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	if !r.UpdatedAt.IsZero() {
		out[FieldUpdatedAt] = r.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return out
}

// RecordFromWire builds a record from a server document. Unknown keys become
// domain fields; client-only metadata keys are dropped.
func RecordFromWire(doc map[string]any) (*Record, error) {
	r := NewRecord(make(map[string]any, len(doc)))

	for k, v := range doc {
		switch k {
		case FieldID:
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("record id must be a string, got %T", v)
			}
			r.ID = s
		case FieldCreatedAt, FieldUpdatedAt:
			t, err := parseWireTime(v)
			if err != nil {
				return nil, fmt.Errorf("record %s: %w", k, err)
			}
			if k == FieldCreatedAt {
				r.CreatedAt = t
			} else {
				r.UpdatedAt = t
			}
		default:
			r.Fields[k] = v
		}
	}
	for _, k := range clientOnlyFields {
		delete(r.Fields, k)
	}
	return r, nil
}

func parseWireTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case string:
		if t == "" {
			return time.Time{}, nil
		}
		return time.Parse(time.RFC3339Nano, t)
	case time.Time:
		return t, nil
	case float64:
		return time.UnixMilli(int64(t)).UTC(), nil
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return time.Time{}, err
		}
		return time.UnixMilli(n).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported time value %T", v)
	}
}
