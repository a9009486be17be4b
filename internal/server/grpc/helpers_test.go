package grpc

import (
	"context"
	"fmt"
	"maps"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/test/bufconn"

	"github.com/dmitrijs2005/bizsync/internal/common"
	"github.com/dmitrijs2005/bizsync/internal/logging"
	"github.com/dmitrijs2005/bizsync/internal/server/auth"
	"github.com/dmitrijs2005/bizsync/internal/server/models"
	"github.com/dmitrijs2005/bizsync/internal/server/services"
)

const testSecret = "grpc-test-secret-0123"

var testUser = &models.User{ID: "u1", Email: "a@b.c", CompanyID: "c1", Role: models.RoleAdmin}

type fakeUsers struct {
	mu sync.Mutex
	// accessValidity is used for tokens issued by Login.
	accessValidity time.Duration
	refreshed      int
	registered     []string
}

func (f *fakeUsers) Register(_ context.Context, email, password, displayName, companyName string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if email == "taken@b.c" {
		return nil, fmt.Errorf("user %s: %w", email, common.ErrorConflict)
	}
	f.registered = append(f.registered, email+"|"+displayName+"|"+companyName)
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
	tok, err := auth.GenerateToken(testUser.Identity(), []byte(testSecret), validity)
	if err != nil {
		return nil, nil, err
	}
	return &services.TokenPair{AccessToken: tok, RefreshToken: "refresh-1"}, testUser, nil
}

func (f *fakeUsers) RefreshToken(_ context.Context, refreshToken string) (*services.TokenPair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if refreshToken != "refresh-1" {
		return nil, common.ErrorUnauthorized
	}
	f.refreshed++
	tok, err := auth.GenerateToken(testUser.Identity(), []byte(testSecret), time.Hour)
	if err != nil {
		return nil, err
	}
	return &services.TokenPair{AccessToken: tok, RefreshToken: "refresh-2"}, nil
}

type fakeRecords struct {
	mu   sync.Mutex
	n    int
	rows map[string]*models.Record
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{rows: map[string]*models.Record{}}
}

func (f *fakeRecords) key(id models.Identity, typ, recID string) string {
	return id.CompanyID + "/" + typ + "/" + recID
}

func (f *fakeRecords) List(_ context.Context, id models.Identity, typ string) ([]*models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !models.ValidTypeName(typ) {
		return nil, fmt.Errorf("%w: invalid collection", common.ErrorValidation)
	}
	var out []*models.Record
	for _, r := range f.rows {
		if r.CompanyID == id.CompanyID && r.Type == typ {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRecords) Get(_ context.Context, id models.Identity, typ, recID string) (*models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[f.key(id, typ, recID)]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return r, nil
}

func (f *fakeRecords) Create(_ context.Context, id models.Identity, typ string, doc map[string]any) (*models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if total, ok := doc["total"].(float64); ok && total < 0 {
		return nil, fmt.Errorf("%w: total must not be negative", common.ErrorValidation)
	}
	f.n++
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r := &models.Record{
		ID: fmt.Sprintf("srv_%d", f.n), CompanyID: id.CompanyID, Type: typ,
		Data: models.StripReserved(doc), CreatedAt: now, UpdatedAt: now,
	}
	f.rows[f.key(id, typ, r.ID)] = r
	return r, nil
}

func (f *fakeRecords) Update(_ context.Context, id models.Identity, typ, recID string, fields map[string]any) (*models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[f.key(id, typ, recID)]
	if !ok {
		return nil, common.ErrorNotFound
	}
	maps.Copy(r.Data, models.StripReserved(fields))
	return r, nil
}

func (f *fakeRecords) Delete(_ context.Context, id models.Identity, typ, recID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := f.key(id, typ, recID)
	if _, ok := f.rows[k]; !ok {
		return common.ErrorNotFound
	}
	delete(f.rows, k)
	return nil
}

func newTestServer(us UserService, rs RecordService) *GRPCServer {
	return NewGRPCServer("127.0.0.1:0", logging.Nop(), us, rs, testSecret)
}

// startBufServer serves s over an in-memory listener until the test ends.
func startBufServer(t *testing.T, s *GRPCServer) *bufconn.Listener {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, lis) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return lis
}

func bufDialer(lis *bufconn.Listener) func(context.Context, string) (net.Conn, error) {
	return func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}
}
