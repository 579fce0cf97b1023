package receiver

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "roomsync.v1.RoomStateService"

// RoomStateServer is the server API for RoomStateService.
type RoomStateServer interface {
	ReadRoomState(context.Context, *ReadRequest) (*ReadResponse, error)
	WriteRoomState(context.Context, *WriteRequest) (*WriteResponse, error)
	Health(context.Context, *HealthRequest) (*HealthResponse, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RoomStateServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("ReadRoomState", RoomStateServer.ReadRoomState),
		unary("WriteRoomState", RoomStateServer.WriteRoomState),
		unary("Health", RoomStateServer.Health),
	},
	Streams: []grpc.StreamDesc{},
}

// Register attaches srv to s. s must have been created with ServerOptions().
func Register(s grpc.ServiceRegistrar, srv RoomStateServer) {
	s.RegisterService(&serviceDesc, srv)
}

// unary builds a MethodDesc that decodes Req, runs any interceptor, and
// dispatches to call.
func unary[Req, Resp any](method string, call func(RoomStateServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(RoomStateServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(RoomStateServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// Client is the typed client for RoomStateService.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc. The JSON codec is forced on every call.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) ReadRoomState(ctx context.Context, in *ReadRequest, opts ...grpc.CallOption) (*ReadResponse, error) {
	out := new(ReadResponse)
	if err := c.invoke(ctx, "ReadRoomState", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) WriteRoomState(ctx context.Context, in *WriteRequest, opts ...grpc.CallOption) (*WriteResponse, error) {
	out := new(WriteResponse)
	if err := c.invoke(ctx, "WriteRoomState", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Health(ctx context.Context, in *HealthRequest, opts ...grpc.CallOption) (*HealthResponse, error) {
	out := new(HealthResponse)
	if err := c.invoke(ctx, "Health", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) invoke(ctx context.Context, method string, in, out interface{}, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.ForceCodec(Codec{})}, opts...)
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...)
}
