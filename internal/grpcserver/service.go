package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "watch.v1.WatchService"

// WatchServiceServer is the server API for WatchService. Messages are
// google.protobuf.Struct values carrying the same JSON shapes as the HTTP API.
type WatchServiceServer interface {
	CreateWatch(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RunWatch(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteWatch(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteByToken(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RunAll(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type rpc func(WatchServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call rpc) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(WatchServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(WatchServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes WatchService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*WatchServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateWatch", WatchServiceServer.CreateWatch),
		unary("RunWatch", WatchServiceServer.RunWatch),
		unary("DeleteWatch", WatchServiceServer.DeleteWatch),
		unary("DeleteByToken", WatchServiceServer.DeleteByToken),
		unary("RunAll", WatchServiceServer.RunAll),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "watch/v1/watch.proto",
}

// RegisterWatchServiceServer registers srv on s.
func RegisterWatchServiceServer(s grpc.ServiceRegistrar, srv WatchServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client calls WatchService over a client connection.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateWatch(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "CreateWatch", in, opts...)
}

func (c *Client) RunWatch(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "RunWatch", in, opts...)
}

func (c *Client) DeleteWatch(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "DeleteWatch", in, opts...)
}

func (c *Client) DeleteByToken(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "DeleteByToken", in, opts...)
}

func (c *Client) RunAll(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "RunAll", in, opts...)
}
