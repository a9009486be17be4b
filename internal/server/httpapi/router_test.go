package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/bizsync/internal/client/client"
	cm "github.com/dmitrijs2005/bizsync/internal/client/models"
	"github.com/dmitrijs2005/bizsync/internal/common"
	"github.com/dmitrijs2005/bizsync/internal/logging"
	"github.com/dmitrijs2005/bizsync/internal/server/models"
)

type rawResponse struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) (int, rawResponse) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rdr)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out rawResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestHTTPClient_EndToEnd(t *testing.T) {
	f := newFixture(t)
	c := client.NewHTTPClient(f.srv.URL, f.srv.Client())
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))
	require.NoError(t, c.Register(ctx, "new@b.c", "secret", "New", "Acme"))
	assert.ErrorIs(t, c.Register(ctx, "taken@b.c", "secret", "", ""), client.ErrRejected)

	sess, err := c.Login(ctx, "a@b.c", "secret")
	require.NoError(t, err)
	assert.Equal(t, "c1", sess.Context.CompanyID)
	assert.Equal(t, cm.RoleAdmin, sess.Context.Role)

	local := cm.NewRecord(map[string]any{"total": 15.0, "customer": "Acme"})
	local.ID = cm.NewLocalID()
	created, err := c.Create(ctx, "invoices", local)
	require.NoError(t, err)
	assert.Equal(t, "srv_1", created.ID)
	assert.Equal(t, "Acme", created.Fields["customer"])

	require.NoError(t, c.Update(ctx, "invoices", created.ID, map[string]any{"total": 18.0}))

	list, err := c.List(ctx, "invoices")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 18.0, list[0].Fields["total"])

	require.NoError(t, c.Delete(ctx, "invoices", created.ID))
	assert.ErrorIs(t, c.Delete(ctx, "invoices", created.ID), client.ErrNotFound)

	_, err = c.List(ctx, "Not-Valid")
	assert.ErrorIs(t, err, client.ErrRejected)
}

func TestHTTPClient_RefreshesExpiredToken(t *testing.T) {
	f := newFixture(t)
	f.users.accessValidity = -time.Second
	c := client.NewHTTPClient(f.srv.URL, f.srv.Client())
	ctx := context.Background()

	var persisted client.Tokens
	c.OnTokensRefreshed(func(tk client.Tokens) { persisted = tk })

	_, err := c.Login(ctx, "a@b.c", "secret")
	require.NoError(t, err)

	_, err = c.List(ctx, "invoices")
	require.NoError(t, err)
	assert.Equal(t, 1, f.users.refreshed)
	assert.Equal(t, "refresh-2", persisted.RefreshToken)
	assert.Equal(t, "refresh-2", c.Tokens().RefreshToken)
}

func TestAuthMiddleware(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name    string
		header  string
		wantMsg string
	}{
		{"missing", "", "authorization header required"},
		{"wrong scheme", "Basic abc", "invalid authorization header format"},
		{"expired", "Bearer " + tokenFor(t, adminUser, -time.Second), common.ErrTokenExpired.Error()},
		{"garbage", "Bearer nonsense", common.ErrInvalidToken.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/api/invoices", nil)
			require.NoError(t, err)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := f.srv.Client().Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			var out rawResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, tt.wantMsg, out.Error)
		})
	}
}

func TestRecords_RawRoutes(t *testing.T) {
	f := newFixture(t)
	tok := tokenFor(t, adminUser, time.Hour)

	code, resp := f.do(t, http.MethodPost, "/api/parties", tok, map[string]any{"data": map[string]any{"name": "Bob", "id": "localrecord_1_abc"}})
	require.Equal(t, http.StatusCreated, code)
	var created map[string]any
	require.NoError(t, json.Unmarshal(resp.Data, &created))
	assert.Equal(t, "srv_1", created["id"])
	assert.Equal(t, "Bob", created["name"])

	code, resp = f.do(t, http.MethodGet, "/api/parties/srv_1", tok, nil)
	require.Equal(t, http.StatusOK, code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(resp.Data, &got))
	assert.Equal(t, "Bob", got["name"])

	code, resp = f.do(t, http.MethodGet, "/api/parties/ghost", tok, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.NotEmpty(t, resp.Error)

	code, resp = f.do(t, http.MethodPost, "/api/parties", tok, map[string]any{"name": "unwrapped"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, resp.Error, "data is required")

	code, _ = f.do(t, http.MethodPatch, "/api/parties/srv_1", tok, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, code)

	code, _ = f.do(t, http.MethodGet, "/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRecords_ViewerForbidden(t *testing.T) {
	f := newFixture(t)
	viewer := &models.User{ID: "u2", CompanyID: "c1", Role: models.RoleViewer}

	code, resp := f.do(t, http.MethodPost, "/api/parties", tokenFor(t, viewer, time.Hour), map[string]any{"data": map[string]any{"name": "x"}})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Contains(t, resp.Error, "read-only")
}

func TestRecords_InternalErrorIsMasked(t *testing.T) {
	f := newFixture(t)
	f.records.err = errors.New("connection reset by peer")

	code, resp := f.do(t, http.MethodGet, "/api/parties", tokenFor(t, adminUser, time.Hour), nil)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "internal error", resp.Error)
}

func TestBackup(t *testing.T) {
	f := newFixture(t)

	code, resp := f.do(t, http.MethodPost, "/api/backup", tokenFor(t, adminUser, time.Hour), nil)
	require.Equal(t, http.StatusCreated, code)
	var b models.Backup
	require.NoError(t, json.Unmarshal(resp.Data, &b))
	assert.Equal(t, "backups/c1/x.json", b.Key)
	assert.Equal(t, 3, b.Records)

	cashier := &models.User{ID: "u3", CompanyID: "c1", Role: models.RoleCashier}
	code, _ = f.do(t, http.MethodPost, "/api/backup", tokenFor(t, cashier, time.Hour), nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, 1, f.backups.calls)
}

func TestRefresh_Errors(t *testing.T) {
	f := newFixture(t)

	code, _ := f.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]any{"data": map[string]any{"refreshToken": ""}})
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp := f.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]any{"data": map[string]any{"refreshToken": "stale"}})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, common.ErrRefreshTokenExpired.Error(), resp.Error)

	code, _ = f.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{"data": map[string]any{"email": "a@b.c", "password": "nope"}})
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("%w: x", common.ErrorValidation), http.StatusBadRequest},
		{fmt.Errorf("x: %w", common.ErrorConflict), http.StatusConflict},
		{common.ErrorNotFound, http.StatusNotFound},
		{common.ErrorUnauthorized, http.StatusUnauthorized},
		{common.ErrRefreshTokenExpired, http.StatusUnauthorized},
		{common.ErrorForbidden, http.StatusForbidden},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		code, _ := statusFor(tt.err)
		assert.Equal(t, tt.code, code, tt.err.Error())
	}
}

func TestAuthMiddleware_TagsLogsWithCaller(t *testing.T) {
	var buf syncBuffer
	l := logging.NewSlogLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	f := newFixtureWithLogger(t, l)

	code, _ := f.do(t, http.MethodPost, "/api/invoices", tokenFor(t, adminUser, time.Hour), map[string]any{"data": map[string]any{"total": 1}})
	require.Equal(t, http.StatusCreated, code)

	out := buf.String()
	assert.Contains(t, out, "msg=\"Record created\"")
	assert.Contains(t, out, "user=u1")
	assert.Contains(t, out, "company=c1")
}
