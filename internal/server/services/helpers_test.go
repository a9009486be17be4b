package services

import (
	"context"
	"database/sql"
	"maps"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrijs2005/bizsync/internal/common"
	"github.com/dmitrijs2005/bizsync/internal/dbx"
	"github.com/dmitrijs2005/bizsync/internal/server/config"
	"github.com/dmitrijs2005/bizsync/internal/server/models"
	"github.com/dmitrijs2005/bizsync/internal/server/repositories/records"
	"github.com/dmitrijs2005/bizsync/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/bizsync/internal/server/repositories/users"
)

// --- in-memory repositories ---

type memUsers struct {
	byID   map[string]*models.User
	getErr error
}

func (m *memUsers) Create(_ context.Context, u *models.User) error {
	for _, x := range m.byID {
		if x.Email == u.Email {
			return common.ErrorConflict
		}
	}
	c := *u
	m.byID[u.ID] = &c
	return nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, u := range m.byID {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (m *memUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	u, ok := m.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *u
	return &c, nil
}

type memTokens struct {
	tokens    map[string]*models.RefreshToken
	createErr error
}

func (m *memTokens) Create(_ context.Context, userID, token string, validity time.Duration) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.tokens[token] = &models.RefreshToken{UserID: userID, Token: token, Expires: time.Now().Add(validity)}
	return nil
}

func (m *memTokens) Find(_ context.Context, token string) (*models.RefreshToken, error) {
	t, ok := m.tokens[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *t
	return &c, nil
}

func (m *memTokens) Delete(_ context.Context, token string) error {
	delete(m.tokens, token)
	return nil
}

func (m *memTokens) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for k, t := range m.tokens {
		if t.Expires.Before(now) {
			delete(m.tokens, k)
			n++
		}
	}
	return n, nil
}

type memRecords struct {
	rows    map[string]*models.Record
	listErr error
}

func recKey(company, typ, id string) string { return company + "/" + typ + "/" + id }

func cloneRecord(r *models.Record) *models.Record {
	c := *r
	c.Data = maps.Clone(r.Data)
	return &c
}

func (m *memRecords) List(_ context.Context, company, typ string) ([]*models.Record, error) {
	var out []*models.Record
	for _, r := range m.rows {
		if r.CompanyID == company && r.Type == typ {
			out = append(out, cloneRecord(r))
		}
	}
	return out, nil
}

func (m *memRecords) ListCompany(_ context.Context, company string) ([]*models.Record, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*models.Record
	for _, r := range m.rows {
		if r.CompanyID == company {
			out = append(out, cloneRecord(r))
		}
	}
	return out, nil
}

func (m *memRecords) Get(_ context.Context, company, typ, id string) (*models.Record, error) {
	r, ok := m.rows[recKey(company, typ, id)]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return cloneRecord(r), nil
}

func (m *memRecords) GetForUpdate(ctx context.Context, company, typ, id string) (*models.Record, error) {
	return m.Get(ctx, company, typ, id)
}

func (m *memRecords) Insert(_ context.Context, r *models.Record) error {
	k := recKey(r.CompanyID, r.Type, r.ID)
	if _, ok := m.rows[k]; ok {
		return common.ErrorConflict
	}
	m.rows[k] = cloneRecord(r)
	return nil
}

func (m *memRecords) Update(_ context.Context, r *models.Record) error {
	k := recKey(r.CompanyID, r.Type, r.ID)
	if _, ok := m.rows[k]; !ok {
		return common.ErrorNotFound
	}
	m.rows[k] = cloneRecord(r)
	return nil
}

func (m *memRecords) Delete(_ context.Context, company, typ, id string) error {
	k := recKey(company, typ, id)
	if _, ok := m.rows[k]; !ok {
		return common.ErrorNotFound
	}
	delete(m.rows, k)
	return nil
}

type fakeRepoManager struct {
	users   *memUsers
	tokens  *memTokens
	records *memRecords
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		users:   &memUsers{byID: map[string]*models.User{}},
		tokens:  &memTokens{tokens: map[string]*models.RefreshToken{}},
		records: &memRecords{rows: map[string]*models.Record{}},
	}
}

func (f *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (f *fakeRepoManager) Users(dbx.DBTX) users.Repository             { return f.users }
func (f *fakeRepoManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository {
	return f.tokens
}
func (f *fakeRepoManager) Records(dbx.DBTX) records.Repository { return f.records }

// --- fixtures ---

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func testConfig() *config.Config {
	var cfg config.Config
	cfg.LoadDefaults()
	cfg.SecretKey = "test-secret-0123456789"
	cfg.AccessTokenValidityDuration = time.Hour
	cfg.RefreshTokenValidityDuration = 2 * time.Hour
	cfg.S3Bucket = "backups"
	return &cfg
}

func newUserService(t *testing.T) (*UserService, *fakeRepoManager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	rm := newFakeRepoManager()
	s := NewUserService(db, rm, testConfig())
	s.bcryptCost = bcrypt.MinCost
	return s, rm, mock
}

var (
	admin  = models.Identity{UserID: "u1", Email: "a@x.io", CompanyID: "c1", Role: models.RoleAdmin}
	viewer = models.Identity{UserID: "u2", Email: "v@x.io", CompanyID: "c1", Role: models.RoleViewer}
	other  = models.Identity{UserID: "u3", Email: "o@y.io", CompanyID: "c2", Role: models.RoleAdmin}
)
