package grpc

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	rpc "github.com/dmitrijs2005/bizsync/internal/rpc/recordsv1"
	"github.com/dmitrijs2005/bizsync/internal/server/services"
)

func (s *GRPCServer) Register(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s.logger.Info(ctx, "Registration request")

	user, err := s.users.Register(ctx,
		rpc.String(req, rpc.KeyEmail),
		rpc.String(req, rpc.KeyPassword),
		rpc.String(req, rpc.KeyDisplayName),
		rpc.String(req, rpc.KeyCompanyName))
	if err != nil {
		s.logger.Warn(ctx, "Registration failed", "error", err)
		return nil, toStatus(err)
	}

	s.logger.Info(ctx, "Registered", "user", user.ID, "company", user.CompanyID)
	return rpc.NewStruct(map[string]any{
		rpc.KeyUserID:    user.ID,
		rpc.KeyCompanyID: user.CompanyID,
	})
}

func tokensStruct(pair *services.TokenPair, extra map[string]any) (*structpb.Struct, error) {
	m := map[string]any{
		rpc.KeyAccessToken:  pair.AccessToken,
		rpc.KeyRefreshToken: pair.RefreshToken,
	}
	for k, v := range extra {
		m[k] = v
	}
	out, err := rpc.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func (s *GRPCServer) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	pair, user, err := s.users.Login(ctx, rpc.String(req, rpc.KeyEmail), rpc.String(req, rpc.KeyPassword))
	if err != nil {
		return nil, toStatus(err)
	}

	id := user.Identity()
	return tokensStruct(pair, map[string]any{
		rpc.KeySession: map[string]any{
			rpc.KeyUserID:    id.UserID,
			rpc.KeyEmail:     id.Email,
			rpc.KeyRole:      id.Role,
			rpc.KeyCompanyID: id.CompanyID,
		},
	})
}

func (s *GRPCServer) Refresh(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "refresh token is required")
	}

	pair, err := s.users.RefreshToken(ctx, req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return tokensStruct(pair, nil)
}

func (s *GRPCServer) Ping(ctx context.Context, req *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return wrapperspb.String(rpc.PingOK), nil
}
