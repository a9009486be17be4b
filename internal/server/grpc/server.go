// Package grpc exposes the record and auth services over the schemaless
// bizsync.v1 gRPC contract.
package grpc

import (
	"context"
	"net"

	"google.golang.org/grpc"

	"github.com/dmitrijs2005/bizsync/internal/logging"
	rpc "github.com/dmitrijs2005/bizsync/internal/rpc/recordsv1"
	"github.com/dmitrijs2005/bizsync/internal/server/models"
	"github.com/dmitrijs2005/bizsync/internal/server/services"
)

// UserService is what the auth endpoints need from the users service.
type UserService interface {
	Register(ctx context.Context, email, password, displayName, companyName string) (*models.User, error)
	Login(ctx context.Context, email, password string) (*services.TokenPair, *models.User, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
}

// RecordService is what the records endpoints need.
type RecordService interface {
	List(ctx context.Context, id models.Identity, recordType string) ([]*models.Record, error)
	Get(ctx context.Context, id models.Identity, recordType, recordID string) (*models.Record, error)
	Create(ctx context.Context, id models.Identity, recordType string, doc map[string]any) (*models.Record, error)
	Update(ctx context.Context, id models.Identity, recordType, recordID string, fields map[string]any) (*models.Record, error)
	Delete(ctx context.Context, id models.Identity, recordType, recordID string) error
}

// GRPCServer implements rpc.RecordsServer and rpc.AuthServer.
type GRPCServer struct {
	address   string
	users     UserService
	records   RecordService
	logger    logging.Logger
	jwtSecret []byte
}

var (
	_ rpc.RecordsServer = (*GRPCServer)(nil)
	_ rpc.AuthServer    = (*GRPCServer)(nil)
)

func NewGRPCServer(a string, l logging.Logger, us UserService, rs RecordService, secretKey string) *GRPCServer {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		users:     us,
		records:   rs,
		jwtSecret: []byte(secretKey),
	}
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.accessTokenInterceptor))
	rpc.RegisterRecordsServer(srv, s)
	rpc.RegisterAuthServer(srv, s)
	return srv
}

// Run listens on the configured address and serves until ctx is done.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is done, then stops
// gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}
	<-stopped
	return nil
}
