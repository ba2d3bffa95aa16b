package wire

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/measurestack/measurestack/pkg/types"
)

const (
	ServiceName       = "spc.v1.DatasetService"
	PushDatasetMethod = "/" + ServiceName + "/PushDataset"
)

// PushRequest carries one ingested dataset from an agent.
type PushRequest struct {
	AgentID  string        `json:"agent_id"`
	SourceID string        `json:"source_id"`
	SentAt   time.Time     `json:"sent_at"`
	Dataset  types.Dataset `json:"dataset"`
}

// PushResponse acknowledges a PushRequest.
type PushResponse struct {
	Ok      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	// Records is the size of the server's working set after the push.
	Records int `json:"records"`
}

// DatasetServiceServer is implemented by the server-side receiver.
type DatasetServiceServer interface {
	PushDataset(context.Context, *PushRequest) (*PushResponse, error)
}

// UnimplementedDatasetServiceServer can be embedded for forward compatibility.
type UnimplementedDatasetServiceServer struct{}

func (UnimplementedDatasetServiceServer) PushDataset(context.Context, *PushRequest) (*PushResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method PushDataset not implemented")
}

// DatasetServiceClient is the agent-side stub.
type DatasetServiceClient interface {
	PushDataset(ctx context.Context, in *PushRequest, opts ...grpc.CallOption) (*PushResponse, error)
}

type datasetServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewDatasetServiceClient returns a client that speaks JSON over cc.
func NewDatasetServiceClient(cc grpc.ClientConnInterface) DatasetServiceClient {
	return &datasetServiceClient{cc: cc}
}

func (c *datasetServiceClient) PushDataset(ctx context.Context, in *PushRequest, opts ...grpc.CallOption) (*PushResponse, error) {
	out := new(PushResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, PushDatasetMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// RegisterDatasetServiceServer attaches srv to s.
func RegisterDatasetServiceServer(s grpc.ServiceRegistrar, srv DatasetServiceServer) {
	s.RegisterService(&DatasetServiceDesc, srv)
}

func pushDatasetHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(PushRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DatasetServiceServer).PushDataset(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: PushDatasetMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DatasetServiceServer).PushDataset(ctx, req.(*PushRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// DatasetServiceDesc is the grpc.ServiceDesc for spc.v1.DatasetService.
var DatasetServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DatasetServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "PushDataset",
			Handler:    pushDatasetHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "spc/v1/dataset",
}
