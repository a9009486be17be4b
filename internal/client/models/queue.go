package models

import "time"

// Operation is the kind of mutation an entry carries.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// EntryState is the lifecycle of a queue entry.
type EntryState string

const (
	// EntryPending entries are drained in FIFO order.
	EntryPending EntryState = "pending"
	// EntryDead entries exhausted their attempts or were rejected by the
	// server; they wait for an operator to retry or discard them.
	EntryDead EntryState = "dead"
)

// QueueEntry is one mutation not yet confirmed by the server.
type QueueEntry struct {
	ID         string     `json:"id"`
	Seq        int64      `json:"seq"`
	Operation  Operation  `json:"operation"`
	EntityType EntityType `json:"entityType"`
	RecordID   string     `json:"recordId"`
	// Payload is the record to send; nil for deletes.
	Payload    *Record   `json:"payload,omitempty"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"lastError,omitempty"`
	// Revision increases whenever the payload is replaced in place.
	Revision int        `json:"revision"`
	State    EntryState `json:"state"`
}

// Clone copies the entry and its payload.
func (e *QueueEntry) Clone() *QueueEntry {
	if e == nil {
		return nil
	}
	c := *e
	c.Payload = e.Payload.Clone()
	return &c
}

// QueueCounts summarizes the queue.
type QueueCounts struct {
	Pending int `json:"pending"`
	Dead    int `json:"dead"`
}
