package client

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/dmitrijs2005/bizsync/internal/client/models"
	"github.com/dmitrijs2005/bizsync/internal/common"
	rpc "github.com/dmitrijs2005/bizsync/internal/rpc/recordsv1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

/*************
 * Fake stubs
 *************/

type fakeAuth struct {
	lastRefreshReq  *wrapperspb.StringValue
	lastLoginReq    *structpb.Struct
	lastRegisterReq *structpb.Struct

	refreshResp *structpb.Struct
	refreshErr  error
	loginResp   *structpb.Struct
	loginErr    error
	registerErr error
	pingResp    *wrapperspb.StringValue
	pingErr     error
}

func (f *fakeAuth) Register(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	f.lastRegisterReq = in
	return &structpb.Struct{}, f.registerErr
}
func (f *fakeAuth) Login(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	f.lastLoginReq = in
	return f.loginResp, f.loginErr
}
func (f *fakeAuth) Refresh(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	f.lastRefreshReq = in
	return f.refreshResp, f.refreshErr
}
func (f *fakeAuth) Ping(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	return f.pingResp, f.pingErr
}

type fakeRecords struct {
	lastCreate *structpb.Struct
	lastUpdate *structpb.Struct
	lastDelete *structpb.Struct
	lastList   *structpb.Struct

	createResp *structpb.Struct
	listResp   *structpb.Struct
	err        error
}

func (f *fakeRecords) Create(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	f.lastCreate = in
	return f.createResp, f.err
}
func (f *fakeRecords) List(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	f.lastList = in
	return f.listResp, f.err
}
func (f *fakeRecords) Update(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	f.lastUpdate = in
	return &emptypb.Empty{}, f.err
}
func (f *fakeRecords) Delete(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	f.lastDelete = in
	return &emptypb.Empty{}, f.err
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

/*************
 * accessTokenInterceptor tests
 *************/

func TestInterceptor_RefreshesTokenOnExpiredAndRetries(t *testing.T) {
	f := &fakeAuth{
		refreshResp: mustStruct(t, map[string]any{rpc.KeyAccessToken: "A2", rpc.KeyRefreshToken: "R2"}),
	}
	c := &GRPCClient{auth: f, tokens: Tokens{AccessToken: "A1", RefreshToken: "R1"}}

	var persisted Tokens
	c.OnTokensRefreshed(func(tk Tokens) { persisted = tk })

	callCount := 0
	invoker := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		callCount++
		md, _ := metadata.FromOutgoingContext(ctx)
		toks := md.Get(common.AccessTokenHeaderName)
		require.Len(t, toks, 1)

		if callCount == 1 {
			require.Equal(t, "A1", toks[0])
			return status.Error(codes.Unauthenticated, common.ErrTokenExpired.Error())
		}
		require.Equal(t, "A2", toks[0])
		return nil
	}

	err := c.accessTokenInterceptor(context.Background(), rpc.RecordsListMethod, nil, nil, nil, invoker)
	require.NoError(t, err)
	require.Equal(t, 2, callCount)
	require.Equal(t, Tokens{AccessToken: "A2", RefreshToken: "R2"}, c.Tokens())
	require.Equal(t, "R1", f.lastRefreshReq.GetValue())
	require.Equal(t, "A2", persisted.AccessToken)
}

func TestInterceptor_NoRefreshIfNoRefreshToken(t *testing.T) {
	f := &fakeAuth{}
	c := &GRPCClient{auth: f, tokens: Tokens{AccessToken: "A1"}}

	invoker := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		return status.Error(codes.Unauthenticated, common.ErrTokenExpired.Error())
	}

	err := c.accessTokenInterceptor(context.Background(), rpc.RecordsListMethod, nil, nil, nil, invoker)
	require.Error(t, err)
	require.Nil(t, f.lastRefreshReq)
}

func TestInterceptor_IgnoresOtherErrors(t *testing.T) {
	c := &GRPCClient{tokens: Tokens{AccessToken: "X", RefreshToken: "R"}}
	invoker := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		return status.Error(codes.Internal, "boom")
	}
	err := c.accessTokenInterceptor(context.Background(), rpc.RecordsListMethod, nil, nil, nil, invoker)
	require.Error(t, err)
}

func TestInterceptor_UnauthenticatedButDifferentMessage_NoRefresh(t *testing.T) {
	f := &fakeAuth{}
	c := &GRPCClient{auth: f, tokens: Tokens{AccessToken: "X", RefreshToken: "R"}}
	invoker := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		return status.Error(codes.Unauthenticated, "some other reason")
	}
	err := c.accessTokenInterceptor(context.Background(), rpc.RecordsListMethod, nil, nil, nil, invoker)
	require.Error(t, err)
	require.Nil(t, f.lastRefreshReq)
}

func TestInterceptor_RefreshMethodPassesThrough(t *testing.T) {
	c := &GRPCClient{tokens: Tokens{AccessToken: "A1", RefreshToken: "R1"}}
	invoker := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		md, _ := metadata.FromOutgoingContext(ctx)
		require.Empty(t, md.Get(common.AccessTokenHeaderName))
		return status.Error(codes.Unauthenticated, common.ErrTokenExpired.Error())
	}
	err := c.accessTokenInterceptor(context.Background(), rpc.AuthRefreshMethod, nil, nil, nil, invoker)
	require.Error(t, err)
}

/*************
 * mapError tests
 *************/

func TestMapError(t *testing.T) {
	c := &GRPCClient{}

	tests := []struct {
		err  error
		want error
	}{
		{status.Error(codes.Unauthenticated, "x"), ErrUnauthorized},
		{status.Error(codes.PermissionDenied, "x"), ErrUnauthorized},
		{status.Error(codes.Unavailable, "x"), ErrUnavailable},
		{status.Error(codes.DeadlineExceeded, "x"), ErrUnavailable},
		{status.Error(codes.InvalidArgument, "x"), ErrRejected},
		{status.Error(codes.AlreadyExists, "x"), ErrRejected},
		{status.Error(codes.NotFound, "x"), ErrNotFound},
		{context.DeadlineExceeded, ErrUnavailable},
	}
	for _, tt := range tests {
		require.ErrorIs(t, c.mapError(tt.err), tt.want)
	}

	e := errors.New("plain")
	require.ErrorContains(t, c.mapError(e), "rpc error:")
	require.True(t, IsTransient(c.mapError(e)))
	require.True(t, IsTransient(c.mapError(status.Error(codes.Internal, "x"))))
	require.NoError(t, c.mapError(nil))
}

func TestClassification(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(ErrUnavailable))
	assert.False(t, IsTransient(ErrRejected))
	assert.True(t, IsPermanent(ErrUnauthorized))
	assert.True(t, IsPermanent(ErrNotFound))
	assert.False(t, IsPermanent(errors.New("x")))
}

/*************
 * Ping / Login / Register tests
 *************/

func TestPing_OK(t *testing.T) {
	c := &GRPCClient{auth: &fakeAuth{pingResp: wrapperspb.String(rpc.PingOK)}}
	require.NoError(t, c.Ping(context.Background()))
}

func TestPing_NotOK_ReturnsUnavailable(t *testing.T) {
	c := &GRPCClient{auth: &fakeAuth{pingResp: wrapperspb.String("NOT_OK")}}
	require.ErrorIs(t, c.Ping(context.Background()), ErrUnavailable)
}

func TestPing_MapsRPCError(t *testing.T) {
	c := &GRPCClient{auth: &fakeAuth{pingErr: status.Error(codes.Unavailable, "down")}}
	require.ErrorIs(t, c.Ping(context.Background()), ErrUnavailable)
}

func TestLogin_SetsTokensAndSession(t *testing.T) {
	f := &fakeAuth{loginResp: mustStruct(t, map[string]any{
		rpc.KeyAccessToken:  "A",
		rpc.KeyRefreshToken: "R",
		rpc.KeySession: map[string]any{
			"userId": "u1", "email": "a@b.c", "role": "manager", "companyId": "c1",
		},
	})}
	c := &GRPCClient{auth: f}

	sess, err := c.Login(context.Background(), "a@b.c", "pw")
	require.NoError(t, err)
	require.Equal(t, Tokens{AccessToken: "A", RefreshToken: "R"}, c.Tokens())
	require.Equal(t, models.SessionContext{UserID: "u1", Email: "a@b.c", Role: models.RoleManager, CompanyID: "c1"}, sess.Context)
	require.Equal(t, "pw", rpc.String(f.lastLoginReq, rpc.KeyPassword))
}

func TestRegister_MapsError(t *testing.T) {
	f := &fakeAuth{registerErr: status.Error(codes.AlreadyExists, "taken")}
	c := &GRPCClient{auth: f}
	err := c.Register(context.Background(), "a@b.c", "pw", "Ann", "Acme")
	require.ErrorIs(t, err, ErrRejected)
	require.Equal(t, "Acme", rpc.String(f.lastRegisterReq, rpc.KeyCompanyName))
}

/*************
 * records tests
 *************/

func TestCreate_StripsClientFieldsAndDecodesServerRecord(t *testing.T) {
	f := &fakeRecords{createResp: mustStruct(t, map[string]any{
		"id": "srv_42", "total": 10.0, "createdAt": "2026-01-02T03:04:05Z",
	})}
	c := &GRPCClient{records: f}

	rec := models.NewRecord(map[string]any{"total": 10.0, "pendingSync": true})
	rec.ID = models.NewLocalID()

	got, err := c.Create(context.Background(), "invoices", rec)
	require.NoError(t, err)
	require.Equal(t, "srv_42", got.ID)
	require.Equal(t, 2026, got.CreatedAt.Year())

	sent := rpc.Object(f.lastCreate, rpc.KeyRecord)
	require.Equal(t, "invoices", rpc.String(f.lastCreate, rpc.KeyCollection))
	require.NotContains(t, sent, "id")
	require.NotContains(t, sent, "pendingSync")
	require.Equal(t, 10.0, sent["total"])
}

func TestCreate_NoIDIsAnError(t *testing.T) {
	f := &fakeRecords{createResp: mustStruct(t, map[string]any{"total": 1.0})}
	c := &GRPCClient{records: f}
	_, err := c.Create(context.Background(), "invoices", models.NewRecord(nil))
	require.Error(t, err)
}

func TestUpdateDeleteList(t *testing.T) {
	f := &fakeRecords{listResp: mustStruct(t, map[string]any{
		rpc.KeyRecords: []any{map[string]any{"id": "s1"}, map[string]any{"id": "s2"}},
	})}
	c := &GRPCClient{records: f}
	ctx := context.Background()

	require.NoError(t, c.Update(ctx, "parties", "s1", map[string]any{"name": "X"}))
	require.Equal(t, "s1", rpc.String(f.lastUpdate, rpc.KeyID))
	require.Equal(t, map[string]any{"name": "X"}, rpc.Object(f.lastUpdate, rpc.KeyFields))

	require.NoError(t, c.Delete(ctx, "parties", "s2"))
	require.Equal(t, "s2", rpc.String(f.lastDelete, rpc.KeyID))

	list, err := c.List(ctx, "parties")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "parties", rpc.String(f.lastList, rpc.KeyCollection))

	f.err = status.Error(codes.Unavailable, "down")
	require.ErrorIs(t, c.Update(ctx, "parties", "s1", nil), ErrUnavailable)
	_, err = c.List(ctx, "parties")
	require.ErrorIs(t, err, ErrUnavailable)
}

/*************
 * end-to-end over bufconn
 *************/

type bufServer struct {
	mu       sync.Mutex
	expired  bool
	seenTok  []string
	refreshN int
}

func (b *bufServer) token(ctx context.Context) string {
	md, _ := metadata.FromIncomingContext(ctx)
	if v := md.Get(common.AccessTokenHeaderName); len(v) > 0 {
		return v[0]
	}
	return ""
}

func (b *bufServer) Create(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	tok := b.token(ctx)
	b.seenTok = append(b.seenTok, tok)
	if b.expired && tok == "old" {
		return nil, status.Error(codes.Unauthenticated, common.ErrTokenExpired.Error())
	}
	rec := rpc.Object(req, rpc.KeyRecord)
	rec["id"] = "srv_1"
	return structpb.NewStruct(rec)
}
func (b *bufServer) Get(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.NotFound, "no")
}
func (b *bufServer) List(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{rpc.KeyRecords: []any{}})
}
func (b *bufServer) Update(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	return nil, status.Error(codes.InvalidArgument, "bad")
}
func (b *bufServer) Delete(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	return &emptypb.Empty{}, nil
}
func (b *bufServer) Register(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return &structpb.Struct{}, nil
}
func (b *bufServer) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{rpc.KeyAccessToken: "old", rpc.KeyRefreshToken: "r"})
}
func (b *bufServer) Refresh(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	b.mu.Lock()
	b.refreshN++
	b.expired = false
	b.mu.Unlock()
	return structpb.NewStruct(map[string]any{rpc.KeyAccessToken: "new", rpc.KeyRefreshToken: "r2"})
}
func (b *bufServer) Ping(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return wrapperspb.String(rpc.PingOK), nil
}

func TestGRPCClient_OverBufconn(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	impl := &bufServer{expired: true}
	rpc.RegisterRecordsServer(srv, impl)
	rpc.RegisterAuthServer(srv, impl)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	c, err := NewGRPCClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	require.NoError(t, c.Ping(ctx))

	_, err = c.Login(ctx, "a@b.c", "pw")
	require.NoError(t, err)

	created, err := c.Create(ctx, "invoices", models.NewRecord(map[string]any{"total": 3.0}))
	require.NoError(t, err)
	assert.Equal(t, "srv_1", created.ID)
	assert.Equal(t, 3.0, created.Fields["total"])

	assert.Equal(t, []string{"old", "new"}, impl.seenTok)
	assert.Equal(t, 1, impl.refreshN)
	assert.Equal(t, "new", c.Tokens().AccessToken)

	require.ErrorIs(t, c.Update(ctx, "invoices", "srv_1", map[string]any{"a": 1.0}), ErrRejected)
	require.NoError(t, c.Delete(ctx, "invoices", "srv_1"))

	list, err := c.List(ctx, "invoices")
	require.NoError(t, err)
	assert.Empty(t, list)
}
