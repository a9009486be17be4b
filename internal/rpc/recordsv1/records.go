package recordsv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	RecordsServiceName = "bizsync.v1.Records"

	RecordsCreateMethod = "/" + RecordsServiceName + "/Create"
	RecordsGetMethod    = "/" + RecordsServiceName + "/Get"
	RecordsListMethod   = "/" + RecordsServiceName + "/List"
	RecordsUpdateMethod = "/" + RecordsServiceName + "/Update"
	RecordsDeleteMethod = "/" + RecordsServiceName + "/Delete"
)

// Request and response keys.
const (
	KeyCollection = "collection"
	KeyID         = "id"
	KeyRecord     = "record"
	KeyFields     = "fields"
	KeyRecords    = "records"
)

// RecordsServer is implemented by the server.
type RecordsServer interface {
	Create(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Get(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	List(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Update(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error)
	Delete(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error)
}

// RegisterRecordsServer attaches srv to a gRPC server.
func RegisterRecordsServer(s grpc.ServiceRegistrar, srv RecordsServer) {
	s.RegisterService(&recordsServiceDesc, srv)
}

func structHandler[Resp any](method string, call func(RecordsServer, context.Context, *structpb.Struct) (Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(RecordsServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(RecordsServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var recordsServiceDesc = grpc.ServiceDesc{
	ServiceName: RecordsServiceName,
	HandlerType: (*RecordsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Create", Handler: structHandler(RecordsCreateMethod, RecordsServer.Create)},
		{MethodName: "Get", Handler: structHandler(RecordsGetMethod, RecordsServer.Get)},
		{MethodName: "List", Handler: structHandler(RecordsListMethod, RecordsServer.List)},
		{MethodName: "Update", Handler: structHandler(RecordsUpdateMethod, RecordsServer.Update)},
		{MethodName: "Delete", Handler: structHandler(RecordsDeleteMethod, RecordsServer.Delete)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bizsync/v1/records.proto",
}

// RecordsClient is the client stub.
type RecordsClient struct {
	cc grpc.ClientConnInterface
}

func NewRecordsClient(cc grpc.ClientConnInterface) *RecordsClient {
	return &RecordsClient{cc: cc}
}

func (c *RecordsClient) Create(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, RecordsCreateMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RecordsClient) Get(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, RecordsGetMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RecordsClient) List(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, RecordsListMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RecordsClient) Update(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, RecordsUpdateMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RecordsClient) Delete(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, RecordsDeleteMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
