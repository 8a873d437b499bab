package wire

import (
	"context"

	"google.golang.org/grpc"

	"github.com/biomirror/biomirror/pkg/types"
)

// PublishMethod is the fully-qualified gRPC method name.
const PublishMethod = "/biomirror.v1.SampleRelay/Publish"

// PublishRequest carries a batch of samples from one producer.
type PublishRequest struct {
	ProducerID string         `json:"producer_id"`
	Samples    []types.Sample `json:"samples"`
}

// PublishResponse reports how many samples the server relayed.
type PublishResponse struct {
	OK       bool   `json:"ok"`
	Accepted int    `json:"accepted"`
	Message  string `json:"message,omitempty"`
}

// SampleRelayServer is implemented by the server-side receiver.
type SampleRelayServer interface {
	Publish(context.Context, *PublishRequest) (*PublishResponse, error)
}

// SampleRelayClient is the agent-side stub.
type SampleRelayClient interface {
	Publish(ctx context.Context, in *PublishRequest, opts ...grpc.CallOption) (*PublishResponse, error)
}

// RegisterSampleRelayServer registers srv on s.
func RegisterSampleRelayServer(s grpc.ServiceRegistrar, srv SampleRelayServer) {
	s.RegisterService(&sampleRelayDesc, srv)
}

// NewSampleRelayClient returns a client bound to cc. Every call is sent with
// the JSON content-subtype.
func NewSampleRelayClient(cc grpc.ClientConnInterface) SampleRelayClient {
	return &sampleRelayClient{cc: cc}
}

type sampleRelayClient struct {
	cc grpc.ClientConnInterface
}

func (c *sampleRelayClient) Publish(ctx context.Context, in *PublishRequest, opts ...grpc.CallOption) (*PublishResponse, error) {
	out := new(PublishResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, PublishMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

var sampleRelayDesc = grpc.ServiceDesc{
	ServiceName: "biomirror.v1.SampleRelay",
	HandlerType: (*SampleRelayServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Publish", Handler: publishHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "biomirror/v1/relay",
}

func publishHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(PublishRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SampleRelayServer).Publish(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PublishMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SampleRelayServer).Publish(ctx, req.(*PublishRequest))
	}
	return interceptor(ctx, in, info, handler)
}
