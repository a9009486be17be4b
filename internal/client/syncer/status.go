package syncer

import (
	"sort"
	"sync"
	"time"
)

// Status is a snapshot of the engine for display.
type Status struct {
	Online       bool       `json:"online"`
	Syncing      bool       `json:"syncing"`
	Pending      int        `json:"pending"`
	Dead         int        `json:"dead"`
	LastSyncTime *time.Time `json:"lastSyncTime,omitempty"`
	LastError    string     `json:"lastError,omitempty"`
	Degraded     bool       `json:"degraded,omitempty"`
}

type statusHub struct {
	mu     sync.Mutex
	status Status
	subs   map[int]func(Status)
	nextID int
}

func (h *statusHub) get() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

func (h *statusHub) subscribe(fn func(Status)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs == nil {
		h.subs = map[int]func(Status){}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

// update applies fn and notifies subscribers if the status changed.
func (h *statusHub) update(fn func(s *Status)) {
	h.mu.Lock()
	before := h.status
	fn(&h.status)
	after := h.status
	if statusEqual(before, after) {
		h.mu.Unlock()
		return
	}

	ids := make([]int, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]func(Status), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, h.subs[id])
	}
	h.mu.Unlock()

	for _, fn := range subs {
		fn(after)
	}
}

func statusEqual(a, b Status) bool {
	if (a.LastSyncTime == nil) != (b.LastSyncTime == nil) {
		return false
	}
	if a.LastSyncTime != nil && !a.LastSyncTime.Equal(*b.LastSyncTime) {
		return false
	}
	a.LastSyncTime, b.LastSyncTime = nil, nil
	return a == b
}
