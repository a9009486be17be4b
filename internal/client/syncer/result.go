package syncer

import (
	"github.com/dmitrijs2005/bizsync/internal/client/models"
)

// SyncStatus is the outcome of a mutation as far as the server goes.
type SyncStatus string

const (
	// StatusSynced: the server has the change, or nothing needed sending.
	StatusSynced SyncStatus = "synced"
	// StatusQueued: the change is stored locally and waits in the queue.
	StatusQueued SyncStatus = "queued"
	// StatusDeadLettered: the server refused the change, or it failed too
	// many times; it will not be retried without operator action.
	StatusDeadLettered SyncStatus = "dead_lettered"
)

// Result describes one mutation. Record is the local copy after the
// operation (nil for deletes) and carries the server id once synced. Err
// explains a Queued or DeadLettered status; it is informational, the
// local step succeeded.
type Result struct {
	Status SyncStatus
	Record *models.Record
	Err    error
}

// Report summarizes one drain.
type Report struct {
	Synced       int
	DeadLettered int
	// Remapped maps local ids to the server ids assigned during the drain.
	Remapped map[string]string
	// Blocked lists entity types whose drain stopped on a transient failure.
	Blocked []models.EntityType
	// Offline is set when the drain stopped because connectivity was lost.
	Offline bool
	// Errs holds the last remote error per record id.
	Errs map[string]error
	// StoreErr is the first local storage failure, if any.
	StoreErr error
}

func newReport() *Report {
	return &Report{Remapped: map[string]string{}, Errs: map[string]error{}}
}

// Clean reports whether the drain finished without a transient failure.
func (r *Report) Clean() bool {
	return len(r.Blocked) == 0 && !r.Offline && r.StoreErr == nil
}
