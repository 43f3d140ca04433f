package wire

import (
	"context"

	"google.golang.org/grpc"
)

// serviceName is the gRPC service path every component registers its
// Invoke handler under.
const serviceName = "mqplane.wire.Invoke"

// ServiceDesc is the same shape protoc-gen-go-grpc emits for a
// single-method service; handwritten here since Envelope is not a
// generated protobuf message.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*InvokeServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Invoke",
			Handler:    invokeHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/rpc/wire/service.go",
}

func invokeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(Envelope)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InvokeServer).Invoke(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + serviceName + "/Invoke",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(InvokeServer).Invoke(ctx, req.(*Envelope))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterInvokeServer registers an InvokeServer implementation with a
// *grpc.Server, mirroring the generated RegisterXxxServer helper.
func RegisterInvokeServer(s *grpc.Server, srv InvokeServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// InvokeClient is the generated-style client stub for the Invoke RPC.
type InvokeClient struct {
	cc grpc.ClientConnInterface
}

// NewInvokeClient wraps a *grpc.ClientConn (or any ClientConnInterface)
// as an InvokeClient.
func NewInvokeClient(cc grpc.ClientConnInterface) *InvokeClient {
	return &InvokeClient{cc: cc}
}

// Invoke performs a single Invoke RPC, encoding/decoding through the
// json codec registered in wire.go.
func (c *InvokeClient) Invoke(ctx context.Context, in *Envelope, opts ...grpc.CallOption) (*Envelope, error) {
	opts = append(opts, CallOption())
	out := new(Envelope)
	err := c.cc.Invoke(ctx, "/"+serviceName+"/Invoke", in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}
