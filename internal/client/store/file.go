package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/bizsync/internal/client/models"
	"github.com/dmitrijs2005/bizsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/bizsync/internal/client/repositories/queue"
	"github.com/dmitrijs2005/bizsync/internal/client/repositories/records"
	"github.com/dmitrijs2005/bizsync/internal/common"
	"github.com/dmitrijs2005/bizsync/internal/filex"
	"github.com/google/uuid"
)

// fileState is the whole store content; it is also the snapshot format.
type fileState struct {
	Records map[models.EntityType]map[string]*models.Record `json:"records"`
	Queue   []*models.QueueEntry                            `json:"queue"`
	NextSeq int64                                           `json:"nextSeq"`
	Meta    map[string][]byte                               `json:"meta"`
}

func newFileState() *fileState {
	return &fileState{
		Records: map[models.EntityType]map[string]*models.Record{},
		Meta:    map[string][]byte{},
		NextSeq: 1,
	}
}

func (st *fileState) clone() *fileState {
	c := &fileState{
		Records: make(map[models.EntityType]map[string]*models.Record, len(st.Records)),
		Queue:   make([]*models.QueueEntry, 0, len(st.Queue)),
		NextSeq: st.NextSeq,
		Meta:    make(map[string][]byte, len(st.Meta)),
	}
	for t, byID := range st.Records {
		m := make(map[string]*models.Record, len(byID))
		for id, r := range byID {
			m[id] = r.Clone()
		}
		c.Records[t] = m
	}
	for _, e := range st.Queue {
		c.Queue = append(c.Queue, e.Clone())
	}
	for k, v := range st.Meta {
		c.Meta[k] = slices.Clone(v)
	}
	return c
}

// FileStore keeps everything in memory and, when path is set, rewrites a
// JSON snapshot atomically after every committed change. Writers are
// serialized; readers see the last committed state.
type FileStore struct {
	path string

	writeMu sync.Mutex
	mu      sync.RWMutex
	state   *fileState
}

// NewMemoryStore returns a FileStore without persistence.
func NewMemoryStore() *FileStore {
	return &FileStore{state: newFileState()}
}

// OpenFileStore loads the snapshot at path, or starts empty if it does not
// exist yet.
func OpenFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path, state: newFileState()}

	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w: %w", common.ErrorStorage, err)
	}

	st := newFileState()
	if err := json.Unmarshal(b, st); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w: %w", path, common.ErrorStorage, err)
	}
	if st.Records == nil {
		st.Records = map[models.EntityType]map[string]*models.Record{}
	}
	if st.Meta == nil {
		st.Meta = map[string][]byte{}
	}
	s.state = st
	return s, nil
}

func (s *FileStore) Records() records.Repository   { return fileRecords{view: s.view()} }
func (s *FileStore) Queue() queue.Repository       { return fileQueue{view: s.view()} }
func (s *FileStore) Metadata() metadata.Repository { return fileMeta{view: s.view()} }

// InTx applies fn to a private copy and commits it in one swap.
func (s *FileStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	work := s.state.clone()
	s.mu.RUnlock()

	if err := fn(ctx, &fileTx{st: work}); err != nil {
		return err
	}
	return s.commit(work)
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) commit(st *fileState) error {
	if s.path != "" {
		b, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}
		if err := filex.WriteFileAtomic(s.path, b); err != nil {
			return fmt.Errorf("write snapshot: %w: %w", common.ErrorStorage, err)
		}
	}
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	return nil
}

func (s *FileStore) view() *fileView {
	return &fileView{
		read: func(fn func(st *fileState) error) error {
			s.mu.RLock()
			defer s.mu.RUnlock()
			return fn(s.state)
		},
		write: func(fn func(st *fileState) error) error {
			s.writeMu.Lock()
			defer s.writeMu.Unlock()

			s.mu.RLock()
			work := s.state.clone()
			s.mu.RUnlock()

			if err := fn(work); err != nil {
				return err
			}
			return s.commit(work)
		},
	}
}

// fileTx is the Store handed to InTx callbacks.
type fileTx struct {
	st *fileState
}

func (t *fileTx) view() *fileView {
	direct := func(fn func(st *fileState) error) error { return fn(t.st) }
	return &fileView{read: direct, write: direct}
}

func (t *fileTx) Records() records.Repository   { return fileRecords{view: t.view()} }
func (t *fileTx) Queue() queue.Repository       { return fileQueue{view: t.view()} }
func (t *fileTx) Metadata() metadata.Repository { return fileMeta{view: t.view()} }
func (t *fileTx) Close() error                  { return nil }

func (t *fileTx) InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return fn(ctx, t)
}

type fileView struct {
	read  func(fn func(st *fileState) error) error
	write func(fn func(st *fileState) error) error
}

type fileRecords struct{ view *fileView }

func (r fileRecords) Put(ctx context.Context, t models.EntityType, rec *models.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("put record: %w: empty id", common.ErrorValidation)
	}
	return r.view.write(func(st *fileState) error {
		byID := st.Records[t]
		if byID == nil {
			byID = map[string]*models.Record{}
			st.Records[t] = byID
		}
		byID[rec.ID] = rec.Clone()
		return nil
	})
}

func (r fileRecords) Get(ctx context.Context, t models.EntityType, id string) (*models.Record, error) {
	var out *models.Record
	err := r.view.read(func(st *fileState) error {
		out = st.Records[t][id].Clone()
		return nil
	})
	return out, err
}

func (r fileRecords) GetAll(ctx context.Context, t models.EntityType) ([]*models.Record, error) {
	var out []*models.Record
	err := r.view.read(func(st *fileState) error {
		for _, rec := range st.Records[t] {
			out = append(out, rec.Clone())
		}
		return nil
	})
	return out, err
}

func (r fileRecords) Delete(ctx context.Context, t models.EntityType, id string) error {
	return r.view.write(func(st *fileState) error {
		delete(st.Records[t], id)
		if len(st.Records[t]) == 0 {
			delete(st.Records, t)
		}
		return nil
	})
}

func (r fileRecords) Remap(ctx context.Context, t models.EntityType, oldID string, rec *models.Record) error {
	return r.view.write(func(st *fileState) error {
		byID := st.Records[t]
		if byID == nil {
			byID = map[string]*models.Record{}
			st.Records[t] = byID
		}
		delete(byID, oldID)
		byID[rec.ID] = rec.Clone()
		return nil
	})
}

func (r fileRecords) Types(ctx context.Context) ([]models.EntityType, error) {
	var out []models.EntityType
	err := r.view.read(func(st *fileState) error {
		for t, byID := range st.Records {
			if len(byID) > 0 {
				out = append(out, t)
			}
		}
		return nil
	})
	slices.Sort(out)
	return out, err
}

func (r fileRecords) Count(ctx context.Context, t models.EntityType) (int, error) {
	var n int
	err := r.view.read(func(st *fileState) error {
		n = len(st.Records[t])
		return nil
	})
	return n, err
}

func (r fileRecords) Clear(ctx context.Context) error {
	return r.view.write(func(st *fileState) error {
		st.Records = map[models.EntityType]map[string]*models.Record{}
		return nil
	})
}

type fileQueue struct{ view *fileView }

func (q fileQueue) Enqueue(ctx context.Context, e *models.QueueEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.State == "" {
		e.State = models.EntryPending
	}
	if e.EnqueuedAt.IsZero() {
		e.EnqueuedAt = time.Now().UTC()
	}
	return q.view.write(func(st *fileState) error {
		if e.Seq == 0 {
			e.Seq = st.NextSeq
		}
		if e.Seq >= st.NextSeq {
			st.NextSeq = e.Seq + 1
		}
		st.Queue = append(st.Queue, e.Clone())
		sort.SliceStable(st.Queue, func(i, j int) bool { return st.Queue[i].Seq < st.Queue[j].Seq })
		return nil
	})
}

func (q fileQueue) Get(ctx context.Context, id string) (*models.QueueEntry, error) {
	var out *models.QueueEntry
	err := q.view.read(func(st *fileState) error {
		for _, e := range st.Queue {
			if e.ID == id {
				out = e.Clone()
				break
			}
		}
		return nil
	})
	return out, err
}

func (q fileQueue) filter(keep func(e *models.QueueEntry) bool) ([]*models.QueueEntry, error) {
	var out []*models.QueueEntry
	err := q.view.read(func(st *fileState) error {
		for _, e := range st.Queue {
			if keep(e) {
				out = append(out, e.Clone())
			}
		}
		return nil
	})
	return out, err
}

func (q fileQueue) Pending(ctx context.Context, t models.EntityType) ([]*models.QueueEntry, error) {
	return q.filter(func(e *models.QueueEntry) bool {
		return e.EntityType == t && e.State == models.EntryPending
	})
}

func (q fileQueue) ForRecord(ctx context.Context, t models.EntityType, recordID string) ([]*models.QueueEntry, error) {
	return q.filter(func(e *models.QueueEntry) bool {
		return e.EntityType == t && e.RecordID == recordID
	})
}

func (q fileQueue) DeadLetters(ctx context.Context) ([]*models.QueueEntry, error) {
	return q.filter(func(e *models.QueueEntry) bool { return e.State == models.EntryDead })
}

func (q fileQueue) All(ctx context.Context) ([]*models.QueueEntry, error) {
	return q.filter(func(*models.QueueEntry) bool { return true })
}

func (q fileQueue) Update(ctx context.Context, e *models.QueueEntry) error {
	return q.view.write(func(st *fileState) error {
		for i, cur := range st.Queue {
			if cur.ID == e.ID {
				c := e.Clone()
				c.Seq = cur.Seq
				c.EnqueuedAt = cur.EnqueuedAt
				c.EntityType = cur.EntityType
				st.Queue[i] = c
				return nil
			}
		}
		return fmt.Errorf("update queue entry %s: %w", e.ID, common.ErrorNotFound)
	})
}

func (q fileQueue) Remove(ctx context.Context, id string) error {
	return q.view.write(func(st *fileState) error {
		st.Queue = slices.DeleteFunc(st.Queue, func(e *models.QueueEntry) bool { return e.ID == id })
		return nil
	})
}

func (q fileQueue) Retarget(ctx context.Context, t models.EntityType, oldID, newID string) error {
	return q.view.write(func(st *fileState) error {
		for _, e := range st.Queue {
			if e.EntityType == t && e.RecordID == oldID {
				e.RecordID = newID
				if e.Payload != nil {
					e.Payload.ID = newID
				}
			}
		}
		return nil
	})
}

func (q fileQueue) Types(ctx context.Context) ([]models.EntityType, error) {
	var out []models.EntityType
	err := q.view.read(func(st *fileState) error {
		seen := map[models.EntityType]bool{}
		for _, e := range st.Queue {
			if e.State == models.EntryPending && !seen[e.EntityType] {
				seen[e.EntityType] = true
				out = append(out, e.EntityType)
			}
		}
		return nil
	})
	return out, err
}

func (q fileQueue) Counts(ctx context.Context) (models.QueueCounts, error) {
	var c models.QueueCounts
	err := q.view.read(func(st *fileState) error {
		for _, e := range st.Queue {
			switch e.State {
			case models.EntryPending:
				c.Pending++
			case models.EntryDead:
				c.Dead++
			}
		}
		return nil
	})
	return c, err
}

func (q fileQueue) Clear(ctx context.Context) error {
	return q.view.write(func(st *fileState) error {
		st.Queue = nil
		return nil
	})
}

type fileMeta struct{ view *fileView }

func (m fileMeta) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := m.view.read(func(st *fileState) error {
		out = slices.Clone(st.Meta[key])
		return nil
	})
	return out, err
}

func (m fileMeta) Set(ctx context.Context, key string, value []byte) error {
	return m.view.write(func(st *fileState) error {
		st.Meta[key] = slices.Clone(value)
		return nil
	})
}

func (m fileMeta) Delete(ctx context.Context, key string) error {
	return m.view.write(func(st *fileState) error {
		delete(st.Meta, key)
		return nil
	})
}

func (m fileMeta) List(ctx context.Context) (map[string][]byte, error) {
	out := map[string][]byte{}
	err := m.view.read(func(st *fileState) error {
		for k, v := range st.Meta {
			out[k] = slices.Clone(v)
		}
		return nil
	})
	return out, err
}

func (m fileMeta) Clear(ctx context.Context) error {
	return m.view.write(func(st *fileState) error {
		st.Meta = map[string][]byte{}
		return nil
	})
}
