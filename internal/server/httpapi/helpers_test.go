package httpapi

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/bizsync/internal/common"
	"github.com/dmitrijs2005/bizsync/internal/logging"
	"github.com/dmitrijs2005/bizsync/internal/server/auth"
	"github.com/dmitrijs2005/bizsync/internal/server/models"
	"github.com/dmitrijs2005/bizsync/internal/server/services"
)

const testSecret = "http-test-secret-0123"

var adminUser = &models.User{ID: "u1", Email: "a@b.c", CompanyID: "c1", Role: models.RoleAdmin}

func tokenFor(t *testing.T, u *models.User, validity time.Duration) string {
	t.Helper()
	tok, err := auth.GenerateToken(u.Identity(), []byte(testSecret), validity)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

type fakeUsers struct {
	mu             sync.Mutex
	accessValidity time.Duration
	refreshed      int
}

func (f *fakeUsers) Register(_ context.Context, email, password, displayName, companyName string) (*models.User, error) {
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", common.ErrorValidation)
	}
	if email == "taken@b.c" {
		return nil, fmt.Errorf("user %s: %w", email, common.ErrorConflict)
	}
	return &models.User{ID: "u-new", Email: email, CompanyID: "c-new", Role: models.RoleAdmin}, nil
}

func (f *fakeUsers) Login(_ context.Context, email, password string) (*services.TokenPair, *models.User, error) {
	if password != "secret" {
		return nil, nil, common.ErrorUnauthorized
	}
	validity := f.accessValidity
	if validity == 0 {
		validity = time.Hour
	}
	tok, err := auth.GenerateToken(adminUser.Identity(), []byte(testSecret), validity)
	if err != nil {
		return nil, nil, err
	}
	return &services.TokenPair{AccessToken: tok, RefreshToken: "refresh-1"}, adminUser, nil
}

func (f *fakeUsers) RefreshToken(_ context.Context, refreshToken string) (*services.TokenPair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if refreshToken == "stale" {
		return nil, common.ErrRefreshTokenExpired
	}
	if refreshToken != "refresh-1" {
		return nil, common.ErrorUnauthorized
	}
	f.refreshed++
	tok, err := auth.GenerateToken(adminUser.Identity(), []byte(testSecret), time.Hour)
	if err != nil {
		return nil, err
	}
	return &services.TokenPair{AccessToken: tok, RefreshToken: "refresh-2"}, nil
}

type fakeRecords struct {
	mu   sync.Mutex
	n    int
	rows map[string]*models.Record
	err  error
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{rows: map[string]*models.Record{}}
}

func recKey(id models.Identity, typ, recID string) string {
	return id.CompanyID + "/" + typ + "/" + recID
}

func (f *fakeRecords) List(_ context.Context, id models.Identity, typ string) ([]*models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if !models.ValidTypeName(typ) {
		return nil, fmt.Errorf("%w: invalid record type", common.ErrorValidation)
	}
	var out []*models.Record
	for _, r := range f.rows {
		if r.CompanyID == id.CompanyID && r.Type == typ {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRecords) Get(_ context.Context, id models.Identity, typ, recID string) (*models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[recKey(id, typ, recID)]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return r, nil
}

func (f *fakeRecords) Create(_ context.Context, id models.Identity, typ string, doc map[string]any) (*models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id.Role == models.RoleViewer {
		return nil, fmt.Errorf("%w: viewers are read-only", common.ErrorForbidden)
	}
	f.n++
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r := &models.Record{
		ID: fmt.Sprintf("srv_%d", f.n), CompanyID: id.CompanyID, Type: typ,
		Data: models.StripReserved(doc), CreatedAt: now, UpdatedAt: now,
	}
	f.rows[recKey(id, typ, r.ID)] = r
	return r, nil
}

func (f *fakeRecords) Update(_ context.Context, id models.Identity, typ, recID string, fields map[string]any) (*models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[recKey(id, typ, recID)]
	if !ok {
		return nil, common.ErrorNotFound
	}
	maps.Copy(r.Data, models.StripReserved(fields))
	return r, nil
}

func (f *fakeRecords) Delete(_ context.Context, id models.Identity, typ, recID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := recKey(id, typ, recID)
	if _, ok := f.rows[k]; !ok {
		return common.ErrorNotFound
	}
	delete(f.rows, k)
	return nil
}

type fakeBackups struct {
	calls int
}

func (f *fakeBackups) Export(_ context.Context, id models.Identity) (*models.Backup, error) {
	if id.Role != models.RoleAdmin {
		return nil, fmt.Errorf("%w: only admins can export backups", common.ErrorForbidden)
	}
	f.calls++
	return &models.Backup{Key: "backups/" + id.CompanyID + "/x.json", URL: "http://s3/x", Records: 3}, nil
}

type fixture struct {
	users   *fakeUsers
	records *fakeRecords
	backups *fakeBackups
	srv     *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithLogger(t, logging.Nop())
}

func newFixtureWithLogger(t *testing.T, l logging.Logger) *fixture {
	t.Helper()
	f := &fixture{users: &fakeUsers{}, records: newFakeRecords(), backups: &fakeBackups{}}
	router := NewRouter(l, f.users, f.records, f.backups, testSecret)
	f.srv = httptest.NewServer(router)
	t.Cleanup(f.srv.Close)
	return f
}

// syncBuffer is a bytes.Buffer safe for the server goroutines to write to.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
