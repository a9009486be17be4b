package cli

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/bizsync/internal/client/client"
	"github.com/dmitrijs2005/bizsync/internal/client/config"
	"github.com/dmitrijs2005/bizsync/internal/client/connectivity"
	"github.com/dmitrijs2005/bizsync/internal/client/models"
	"github.com/dmitrijs2005/bizsync/internal/client/store"
	"github.com/dmitrijs2005/bizsync/internal/logging"
)

type manualOracle struct {
	*connectivity.Manual
}

func (m manualOracle) CheckNow(context.Context) bool { return m.IsOnline() }
func (m manualOracle) Run(ctx context.Context)       { <-ctx.Done() }

type fakeTransport struct {
	mu      sync.Mutex
	docs    map[string]map[string]any
	n       int
	reject  bool
	tokens  client.Tokens
	session models.SessionContext
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		docs:    map[string]map[string]any{},
		session: models.SessionContext{UserID: "u1", Role: models.RoleAdmin, CompanyID: "c1"},
	}
}

func (f *fakeTransport) Create(ctx context.Context, coll string, rec *models.Record) (*models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reject {
		return nil, fmt.Errorf("%w: total must be positive", client.ErrRejected)
	}
	f.n++
	doc := rec.WireFields()
	doc[models.FieldID] = fmt.Sprintf("S%d", f.n)
	f.docs[coll+"/"+doc[models.FieldID].(string)] = doc
	return models.RecordFromWire(maps.Clone(doc))
}

func (f *fakeTransport) Update(ctx context.Context, coll, id string, fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[coll+"/"+id]
	if !ok {
		return client.ErrNotFound
	}
	maps.Copy(d, fields)
	return nil
}

func (f *fakeTransport) Delete(ctx context.Context, coll, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, coll+"/"+id)
	return nil
}

func (f *fakeTransport) List(ctx context.Context, coll string) ([]*models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Record
	for k, d := range f.docs {
		if strings.HasPrefix(k, coll+"/") {
			r, err := models.RecordFromWire(maps.Clone(d))
			if err != nil {
				return nil, err
			}
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeTransport) Ping(ctx context.Context) error { return nil }

func (f *fakeTransport) Register(ctx context.Context, email, password, displayName, companyName string) error {
	return nil
}

func (f *fakeTransport) Login(ctx context.Context, email, password string) (*client.Session, error) {
	if password != "secret" {
		return nil, client.ErrUnauthorized
	}
	t := client.Tokens{AccessToken: "a", RefreshToken: "r"}
	f.SetTokens(t)
	return &client.Session{Tokens: t, Context: f.session}, nil
}

func (f *fakeTransport) SetTokens(t client.Tokens) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = t
}

func (f *fakeTransport) Tokens() client.Tokens {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokens
}

func (f *fakeTransport) OnTokensRefreshed(func(client.Tokens)) {}
func (f *fakeTransport) Close() error                         { return nil }

type testEnv struct {
	app    *App
	out    *bytes.Buffer
	oracle manualOracle
	remote *fakeTransport
	store  store.Store
}

func newTestEnv(t *testing.T, online bool) *testEnv {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.DataDir = t.TempDir()
	cfg.RemoteTimeout = time.Second

	env := &testEnv{
		out:    &bytes.Buffer{},
		oracle: manualOracle{connectivity.NewManual(online)},
		remote: newFakeTransport(),
		store:  store.NewMemoryStore(),
	}
	a, err := newApp(context.Background(), cfg, logging.Nop(), env.store, env.remote, env.oracle)
	require.NoError(t, err)
	a.out = env.out
	a.reader = bufio.NewReader(strings.NewReader(""))
	env.app = a
	return env
}

// login stubs the password prompt and logs in.
func (e *testEnv) login(t *testing.T) {
	t.Helper()
	stubPassword(t, "secret")
	require.NoError(t, e.app.Login(context.Background(), "ann@example.com"))
	e.out.Reset()
}

func stubPassword(t *testing.T, pw string) {
	t.Helper()
	orig := getPassword
	getPassword = func(*bufio.Reader, io.Writer) (string, error) { return pw, nil }
	t.Cleanup(func() { getPassword = orig })
}
