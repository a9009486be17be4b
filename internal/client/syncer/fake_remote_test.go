package syncer

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/dmitrijs2005/bizsync/internal/client/client"
	"github.com/dmitrijs2005/bizsync/internal/client/models"
)

// fakeRemote is an in-memory backend. fail, when set, is consulted before
// every call; hook runs inside the call, after fail.
type fakeRemote struct {
	mu     sync.Mutex
	docs   map[string]map[string]map[string]any
	ids    []string
	nextID int
	calls  []string

	fail func(op, collection, id string) error
	hook func(op, collection, id string)
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{docs: map[string]map[string]map[string]any{}}
}

func (f *fakeRemote) before(op, collection, id string) error {
	f.mu.Lock()
	f.calls = append(f.calls, op+":"+id)
	fail, hook := f.fail, f.hook
	f.mu.Unlock()

	if fail != nil {
		if err := fail(op, collection, id); err != nil {
			return err
		}
	}
	if hook != nil {
		hook(op, collection, id)
	}
	return nil
}

func (f *fakeRemote) Create(ctx context.Context, collection string, rec *models.Record) (*models.Record, error) {
	if err := f.before("create", collection, rec.ID); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var id string
	if len(f.ids) > 0 {
		id, f.ids = f.ids[0], f.ids[1:]
	} else {
		f.nextID++
		id = fmt.Sprintf("srv_%d", f.nextID)
	}
	doc := rec.WireFields()
	doc[models.FieldID] = id
	doc[models.FieldCreatedAt] = "2026-01-01T00:00:00Z"
	if f.docs[collection] == nil {
		f.docs[collection] = map[string]map[string]any{}
	}
	f.docs[collection][id] = doc
	return models.RecordFromWire(maps.Clone(doc))
}

func (f *fakeRemote) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := f.before("update", collection, id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[collection][id]
	if !ok {
		return fmt.Errorf("%w: %s", client.ErrNotFound, id)
	}
	for k, v := range fields {
		doc[k] = v
	}
	return nil
}

func (f *fakeRemote) Delete(ctx context.Context, collection, id string) error {
	if err := f.before("delete", collection, id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[collection][id]; !ok {
		return fmt.Errorf("%w: %s", client.ErrNotFound, id)
	}
	delete(f.docs[collection], id)
	return nil
}

func (f *fakeRemote) List(ctx context.Context, collection string) ([]*models.Record, error) {
	if err := f.before("list", collection, ""); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Record
	for _, d := range f.docs[collection] {
		r, err := models.RecordFromWire(maps.Clone(d))
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeRemote) Ping(ctx context.Context) error { return nil }

func (f *fakeRemote) seed(collection, id string, fields map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.docs[collection] == nil {
		f.docs[collection] = map[string]map[string]any{}
	}
	doc := maps.Clone(fields)
	if doc == nil {
		doc = map[string]any{}
	}
	doc[models.FieldID] = id
	f.docs[collection][id] = doc
}

func (f *fakeRemote) doc(collection, id string) (map[string]any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[collection][id]
	return maps.Clone(d), ok
}

func (f *fakeRemote) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRemote) setFail(fn func(op, collection, id string) error) {
	f.mu.Lock()
	f.fail = fn
	f.mu.Unlock()
}

func (f *fakeRemote) setHook(fn func(op, collection, id string)) {
	f.mu.Lock()
	f.hook = fn
	f.mu.Unlock()
}
