package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/bizsync/internal/client/models"
	"github.com/dmitrijs2005/bizsync/internal/common"
	rpc "github.com/dmitrijs2005/bizsync/internal/rpc/recordsv1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type recordsAPI interface {
	Create(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	List(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Update(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error)
	Delete(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error)
}

type authAPI interface {
	Register(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Login(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Refresh(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error)
	Ping(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
}

type GRPCClient struct {
	endpointURL string
	dialOpts    []grpc.DialOption
	conn        *grpc.ClientConn
	records     recordsAPI
	auth        authAPI

	mu        sync.Mutex
	tokens    Tokens
	onRefresh func(Tokens)
}

var _ Transport = (*GRPCClient)(nil)

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	if token != "" {
		md.Set(common.AccessTokenHeaderName, token)
	}

	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {

	// the refresh call itself must not recurse into a refresh
	if method == rpc.AuthRefreshMethod {
		return invoker(ctx, method, req, reply, cc, opts...)
	}

	current := s.Tokens()
	err := invoker(withAccessToken(ctx, current.AccessToken), method, req, reply, cc, opts...)
	if err == nil {
		return nil
	}

	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	if st.Code() != codes.Unauthenticated {
		return err
	}
	if st.Message() != common.ErrTokenExpired.Error() {
		return err
	}
	if current.RefreshToken == "" {
		return err
	}

	fresh, rerr := s.refresh(ctx, current.RefreshToken)
	if rerr != nil {
		return rerr
	}

	return invoker(withAccessToken(ctx, fresh.AccessToken), method, req, reply, cc, opts...)
}

func (s *GRPCClient) refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	resp, err := s.auth.Refresh(ctx, wrapperspb.String(refreshToken))
	if err != nil {
		return Tokens{}, err
	}

	fresh := Tokens{
		AccessToken:  rpc.String(resp, rpc.KeyAccessToken),
		RefreshToken: rpc.String(resp, rpc.KeyRefreshToken),
	}

	s.mu.Lock()
	s.tokens = fresh
	fn := s.onRefresh
	s.mu.Unlock()

	if fn != nil {
		fn(fresh)
	}
	return fresh, nil
}

// NewGRPCClient creates a client for endpointURL. Extra dial options are
// appended after the defaults.
func NewGRPCClient(endpointURL string, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, dialOpts: opts}
	if err := c.InitGRPCClient(); err != nil {
		return nil, err
	}
	return c, nil
}

// InitGRPCClient dials lazily; it does not fail when the server is down.
func (s *GRPCClient) InitGRPCClient() error {
	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(s.accessTokenInterceptor),
	}, s.dialOpts...)
	conn, err := grpc.NewClient(s.endpointURL, opts...)
	if err != nil {
		return err
	}
	s.conn = conn
	s.records = rpc.NewRecordsClient(conn)
	s.auth = rpc.NewAuthClient(conn)
	return nil
}

func (s *GRPCClient) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *GRPCClient) SetTokens(t Tokens) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = t
}

func (s *GRPCClient) Tokens() Tokens {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens
}

func (s *GRPCClient) OnTokensRefreshed(fn func(Tokens)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRefresh = fn
}

func (s *GRPCClient) Register(ctx context.Context, email, password, displayName, companyName string) error {
	req, err := rpc.NewStruct(map[string]any{
		rpc.KeyEmail:       email,
		rpc.KeyPassword:    password,
		rpc.KeyDisplayName: displayName,
		rpc.KeyCompanyName: companyName,
	})
	if err != nil {
		return err
	}

	if _, err := s.auth.Register(ctx, req); err != nil {
		return s.mapError(err)
	}
	return nil
}

func (s *GRPCClient) Login(ctx context.Context, email, password string) (*Session, error) {
	req, err := rpc.NewStruct(map[string]any{rpc.KeyEmail: email, rpc.KeyPassword: password})
	if err != nil {
		return nil, err
	}

	resp, err := s.auth.Login(ctx, req)
	if err != nil {
		return nil, s.mapError(err)
	}

	sess := &Session{
		Tokens: Tokens{
			AccessToken:  rpc.String(resp, rpc.KeyAccessToken),
			RefreshToken: rpc.String(resp, rpc.KeyRefreshToken),
		},
		Context: sessionFromMap(rpc.Object(resp, rpc.KeySession)),
	}
	s.SetTokens(sess.Tokens)
	return sess, nil
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	resp, err := s.auth.Ping(ctx, &emptypb.Empty{})
	if err != nil {
		return s.mapError(err)
	}

	if resp.GetValue() != rpc.PingOK {
		return ErrUnavailable
	}

	return nil
}

func (s *GRPCClient) Create(ctx context.Context, collection string, rec *models.Record) (*models.Record, error) {
	req, err := rpc.NewStruct(map[string]any{
		rpc.KeyCollection: collection,
		rpc.KeyRecord:     rec.WireFields(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRejected, err)
	}

	resp, err := s.records.Create(ctx, req)
	if err != nil {
		return nil, s.mapError(err)
	}

	created, err := models.RecordFromWire(resp.AsMap())
	if err != nil {
		return nil, fmt.Errorf("decode created record: %w", err)
	}
	if created.ID == "" {
		return nil, fmt.Errorf("decode created record: %w", errors.New("server returned no id"))
	}
	return created, nil
}

func (s *GRPCClient) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	req, err := rpc.NewStruct(map[string]any{
		rpc.KeyCollection: collection,
		rpc.KeyID:         id,
		rpc.KeyFields:     fields,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRejected, err)
	}

	if _, err := s.records.Update(ctx, req); err != nil {
		return s.mapError(err)
	}
	return nil
}

func (s *GRPCClient) Delete(ctx context.Context, collection, id string) error {
	req, err := rpc.NewStruct(map[string]any{rpc.KeyCollection: collection, rpc.KeyID: id})
	if err != nil {
		return err
	}

	if _, err := s.records.Delete(ctx, req); err != nil {
		return s.mapError(err)
	}
	return nil
}

func (s *GRPCClient) List(ctx context.Context, collection string) ([]*models.Record, error) {
	req, err := rpc.NewStruct(map[string]any{rpc.KeyCollection: collection})
	if err != nil {
		return nil, err
	}

	resp, err := s.records.List(ctx, req)
	if err != nil {
		return nil, s.mapError(err)
	}

	return recordsFromWire(rpc.Objects(resp, rpc.KeyRecords))
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return fmt.Errorf("rpc error: %w", err)
	}
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %s", ErrUnauthorized, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled, codes.ResourceExhausted, codes.Aborted:
		return fmt.Errorf("%w: %s", ErrUnavailable, st.Message())
	case codes.InvalidArgument, codes.FailedPrecondition, codes.AlreadyExists, codes.OutOfRange, codes.Unimplemented:
		return fmt.Errorf("%w: %s", ErrRejected, st.Message())
	case codes.NotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, st.Message())
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
