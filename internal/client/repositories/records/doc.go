// Package records provides the client-side Local Store for domain records.
//
// # Overview
//
// The package defines a Repository interface over models.Record keyed by
// entity type and id. SQLiteRepository persists rows through a dbx.DBTX
// (either *sql.DB or *sql.Tx); domain fields are stored as a JSON document
// and the sync metadata (pending_sync, saved_at, synced_at, sync_error) as
// columns.
//
// # Id remap
//
// Remap deletes the local-id row and upserts the server-id row. When the
// repository is bound to a *sql.DB it opens its own transaction, so readers
// never observe both rows or neither. When bound to a *sql.Tx the caller's
// transaction provides the same guarantee.
//
// # Errors
//
// Storage failures are wrapped with common.ErrorStorage so the fallback store
// can tell them apart from caller errors. A missing id is not an error: Get
// returns (nil, nil) and Delete is a no-op.
package records
