package services

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/bizsync/internal/client/client"
	"github.com/dmitrijs2005/bizsync/internal/client/connectivity"
	"github.com/dmitrijs2005/bizsync/internal/client/models"
	"github.com/dmitrijs2005/bizsync/internal/client/store"
	"github.com/dmitrijs2005/bizsync/internal/client/syncer"
	"github.com/dmitrijs2005/bizsync/internal/logging"
)

// memRemote is a minimal in-memory backend.
type memRemote struct {
	mu     sync.Mutex
	docs   map[string]map[string]map[string]any
	n      int
	listed int
	down   bool

	// tokens for the Transport half
	tokens    client.Tokens
	onRefresh func(client.Tokens)
	loginErr  error
	session   models.SessionContext
	regArgs   []string
}

var _ client.Transport = (*memRemote)(nil)

func newMemRemote() *memRemote {
	return &memRemote{docs: map[string]map[string]map[string]any{}}
}

func (m *memRemote) err() error {
	if m.down {
		return client.ErrUnavailable
	}
	return nil
}

func (m *memRemote) Create(ctx context.Context, coll string, rec *models.Record) (*models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err(); err != nil {
		return nil, err
	}
	m.n++
	doc := rec.WireFields()
	doc[models.FieldID] = fmt.Sprintf("S%d", m.n)
	if m.docs[coll] == nil {
		m.docs[coll] = map[string]map[string]any{}
	}
	m.docs[coll][doc[models.FieldID].(string)] = doc
	return models.RecordFromWire(maps.Clone(doc))
}

func (m *memRemote) Update(ctx context.Context, coll, id string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err(); err != nil {
		return err
	}
	d, ok := m.docs[coll][id]
	if !ok {
		return client.ErrNotFound
	}
	maps.Copy(d, fields)
	return nil
}

func (m *memRemote) Delete(ctx context.Context, coll, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err(); err != nil {
		return err
	}
	delete(m.docs[coll], id)
	return nil
}

func (m *memRemote) List(ctx context.Context, coll string) ([]*models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err(); err != nil {
		return nil, err
	}
	m.listed++
	var out []*models.Record
	for _, d := range m.docs[coll] {
		r, err := models.RecordFromWire(maps.Clone(d))
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *memRemote) Ping(ctx context.Context) error { return m.err() }

func (m *memRemote) seed(coll, id string, fields map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.docs[coll] == nil {
		m.docs[coll] = map[string]map[string]any{}
	}
	d := maps.Clone(fields)
	d[models.FieldID] = id
	m.docs[coll][id] = d
}

func (m *memRemote) listCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listed
}

func (m *memRemote) Register(ctx context.Context, email, password, displayName, companyName string) error {
	m.regArgs = []string{email, password, displayName, companyName}
	return m.loginErr
}

func (m *memRemote) Login(ctx context.Context, email, password string) (*client.Session, error) {
	if m.loginErr != nil {
		return nil, m.loginErr
	}
	t := client.Tokens{AccessToken: "A-" + email, RefreshToken: "R-" + email}
	m.SetTokens(t)
	return &client.Session{Tokens: t, Context: m.session}, nil
}

func (m *memRemote) SetTokens(t client.Tokens) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = t
}

func (m *memRemote) Tokens() client.Tokens {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens
}

func (m *memRemote) OnTokensRefreshed(fn func(client.Tokens)) { m.onRefresh = fn }

func (m *memRemote) Close() error { return nil }

type fixture struct {
	engine *syncer.Engine
	oracle *connectivity.Manual
	store  store.Store
	remote *memRemote
}

func newFixture(t *testing.T, online bool) *fixture {
	t.Helper()
	f := &fixture{
		oracle: connectivity.NewManual(online),
		store:  store.NewMemoryStore(),
		remote: newMemRemote(),
	}
	opts := syncer.DefaultOptions()
	opts.RemoteTimeout = time.Second
	f.engine = syncer.New(f.store, f.remote, f.oracle, logging.Nop(), opts)
	return f
}

var (
	adminSession   = models.SessionContext{UserID: "u-admin", Role: models.RoleAdmin, CompanyID: "c1"}
	cashierSession = models.SessionContext{UserID: "u-cash", Role: models.RoleCashier, CompanyID: "c1"}
)
