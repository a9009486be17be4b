package recordsv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	AuthServiceName = "bizsync.v1.Auth"

	AuthRegisterMethod = "/" + AuthServiceName + "/Register"
	AuthLoginMethod    = "/" + AuthServiceName + "/Login"
	AuthRefreshMethod  = "/" + AuthServiceName + "/Refresh"
	AuthPingMethod     = "/" + AuthServiceName + "/Ping"
)

const (
	KeyEmail        = "email"
	KeyPassword     = "password"
	KeyDisplayName  = "displayName"
	KeyCompanyName  = "companyName"
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeySession      = "session"
	KeyUserID       = "userId"
	KeyCompanyID    = "companyId"
	KeyRole         = "role"
)

// PingOK is the Ping reply of a healthy server.
const PingOK = "OK"

type AuthServer interface {
	Register(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Refresh(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error)
	Ping(ctx context.Context, req *emptypb.Empty) (*wrapperspb.StringValue, error)
}

func RegisterAuthServer(s grpc.ServiceRegistrar, srv AuthServer) {
	s.RegisterService(&authServiceDesc, srv)
}

func unaryHandler[Req any, Resp any](method string, call func(AuthServer, context.Context, *Req) (Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AuthServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AuthServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var authServiceDesc = grpc.ServiceDesc{
	ServiceName: AuthServiceName,
	HandlerType: (*AuthServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Register", Handler: unaryHandler(AuthRegisterMethod, AuthServer.Register)},
		{MethodName: "Login", Handler: unaryHandler(AuthLoginMethod, AuthServer.Login)},
		{MethodName: "Refresh", Handler: unaryHandler(AuthRefreshMethod, AuthServer.Refresh)},
		{MethodName: "Ping", Handler: unaryHandler(AuthPingMethod, AuthServer.Ping)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bizsync/v1/auth.proto",
}

type AuthClient struct {
	cc grpc.ClientConnInterface
}

func NewAuthClient(cc grpc.ClientConnInterface) *AuthClient {
	return &AuthClient{cc: cc}
}

func (c *AuthClient) Register(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, AuthRegisterMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AuthClient) Login(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, AuthLoginMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AuthClient) Refresh(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, AuthRefreshMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AuthClient) Ping(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, AuthPingMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
