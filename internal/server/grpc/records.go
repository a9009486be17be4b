package grpc

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	rpc "github.com/dmitrijs2005/bizsync/internal/rpc/recordsv1"
	"github.com/dmitrijs2005/bizsync/internal/server/models"
)

func (s *GRPCServer) identity(ctx context.Context) (models.Identity, error) {
	id, ok := identityFromContext(ctx)
	if !ok {
		return models.Identity{}, status.Error(codes.Unauthenticated, "missing token")
	}
	return id, nil
}

func required(req *structpb.Struct, key string) (string, error) {
	v := rpc.String(req, key)
	if v == "" {
		return "", status.Errorf(codes.InvalidArgument, "%s is required", key)
	}
	return v, nil
}

func encodeRecord(rec *models.Record) (*structpb.Struct, error) {
	out, err := rpc.NewStruct(rec.Document())
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func (s *GRPCServer) Create(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}
	collection, err := required(req, rpc.KeyCollection)
	if err != nil {
		return nil, err
	}
	doc := rpc.Object(req, rpc.KeyRecord)
	if doc == nil {
		return nil, status.Error(codes.InvalidArgument, "record is required")
	}

	rec, err := s.records.Create(ctx, id, collection, doc)
	if err != nil {
		return nil, toStatus(err)
	}
	s.logger.Info(ctx, "Record created", "collection", collection, "id", rec.ID)
	return encodeRecord(rec)
}

func (s *GRPCServer) Get(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}
	collection, err := required(req, rpc.KeyCollection)
	if err != nil {
		return nil, err
	}
	recordID, err := required(req, rpc.KeyID)
	if err != nil {
		return nil, err
	}

	rec, err := s.records.Get(ctx, id, collection, recordID)
	if err != nil {
		return nil, toStatus(err)
	}
	return encodeRecord(rec)
}

func (s *GRPCServer) List(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}
	collection, err := required(req, rpc.KeyCollection)
	if err != nil {
		return nil, err
	}

	recs, err := s.records.List(ctx, id, collection)
	if err != nil {
		return nil, toStatus(err)
	}

	docs := make([]any, 0, len(recs))
	for _, r := range recs {
		docs = append(docs, r.Document())
	}
	out, err := rpc.NewStruct(map[string]any{rpc.KeyRecords: docs})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func (s *GRPCServer) Update(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	id, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}
	collection, err := required(req, rpc.KeyCollection)
	if err != nil {
		return nil, err
	}
	recordID, err := required(req, rpc.KeyID)
	if err != nil {
		return nil, err
	}
	fields := rpc.Object(req, rpc.KeyFields)
	if fields == nil {
		fields = map[string]any{}
	}

	if _, err := s.records.Update(ctx, id, collection, recordID, fields); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *GRPCServer) Delete(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	id, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}
	collection, err := required(req, rpc.KeyCollection)
	if err != nil {
		return nil, err
	}
	recordID, err := required(req, rpc.KeyID)
	if err != nil {
		return nil, err
	}

	if err := s.records.Delete(ctx, id, collection, recordID); err != nil {
		return nil, toStatus(err)
	}
	s.logger.Info(ctx, "Record deleted", "collection", collection, "id", recordID)
	return &emptypb.Empty{}, nil
}
