package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name
const ServiceName = "topvoter.v1.DAOService"

// RPC method names
const (
	MethodJoin             = "Join"
	MethodTransfer         = "Transfer"
	MethodSubmitView       = "SubmitView"
	MethodFinalizeRound    = "FinalizeRound"
	MethodGetRoundView     = "GetRoundView"
	MethodGetDominantView  = "GetDominantView"
	MethodGetRoundState    = "GetRoundState"
	MethodGetMembership    = "GetMembership"
	MethodListRoundResults = "ListRoundResults"
)

// FullMethod returns the "/service/method" path of an RPC
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// DAOServiceServer is the server API for the DAO service
// Requests and responses are google.protobuf.Struct documents
type DAOServiceServer interface {
	Join(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Transfer(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubmitView(context.Context, *structpb.Struct) (*structpb.Struct, error)
	FinalizeRound(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetRoundView(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetDominantView(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetRoundState(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetMembership(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRoundResults(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type rpcMethod func(srv DAOServiceServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

func methodDesc(name string, call rpcMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(DAOServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: FullMethod(name),
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(DAOServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc is the grpc.ServiceDesc for the DAO service
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DAOServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		methodDesc(MethodJoin, DAOServiceServer.Join),
		methodDesc(MethodTransfer, DAOServiceServer.Transfer),
		methodDesc(MethodSubmitView, DAOServiceServer.SubmitView),
		methodDesc(MethodFinalizeRound, DAOServiceServer.FinalizeRound),
		methodDesc(MethodGetRoundView, DAOServiceServer.GetRoundView),
		methodDesc(MethodGetDominantView, DAOServiceServer.GetDominantView),
		methodDesc(MethodGetRoundState, DAOServiceServer.GetRoundState),
		methodDesc(MethodGetMembership, DAOServiceServer.GetMembership),
		methodDesc(MethodListRoundResults, DAOServiceServer.ListRoundResults),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "topvoter/v1/dao.proto",
}

// RegisterDAOServiceServer registers srv on the gRPC server
func RegisterDAOServiceServer(s grpc.ServiceRegistrar, srv DAOServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client calls the DAO service over a client connection
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient creates a new DAO service client
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Call invokes method with req; a nil req sends an empty document
func (c *Client) Call(ctx context.Context, method string, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if req == nil {
		req = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// CallFields builds the request document from fields and invokes method
func (c *Client) CallFields(ctx context.Context, method string, fields map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	return c.Call(ctx, method, req, opts...)
}
