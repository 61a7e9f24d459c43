package api

import (
	"context"

	"google.golang.org/grpc"
)

// WorkflowServiceName is the fully-qualified service name used on the wire.
const WorkflowServiceName = "aadk.workflowsvc.WorkflowService"

// WorkflowServiceServer is the interface internal/workflowsvc/server
// implements: pipeline execution plus read access to run records. Clients
// watch pipeline progress via JobService.StreamRunEvents using the run ID
// RunPipeline returns, so WorkflowService itself exposes no streaming RPC.
type WorkflowServiceServer interface {
	RunPipeline(context.Context, *RunPipelineRequest) (*RunPipelineResponse, error)
	GetRun(context.Context, *GetRunRequest) (*GetRunResponse, error)
	CancelRun(context.Context, *CancelRunRequest) (*CancelRunResponse, error)
	ListRuns(context.Context, *ListRunsRequest) (*ListRunsResponse, error)
}

// RegisterWorkflowServiceServer registers srv's methods against s.
func RegisterWorkflowServiceServer(s *grpc.Server, srv WorkflowServiceServer) {
	s.RegisterService(&workflowServiceDesc, srv)
}

var workflowServiceDesc = grpc.ServiceDesc{
	ServiceName: WorkflowServiceName,
	HandlerType: (*WorkflowServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RunPipeline", Handler: workflowServiceUnaryHandler(WorkflowServiceServer.RunPipeline, "RunPipeline")},
		{MethodName: "GetRun", Handler: workflowServiceUnaryHandler(WorkflowServiceServer.GetRun, "GetRun")},
		{MethodName: "CancelRun", Handler: workflowServiceUnaryHandler(WorkflowServiceServer.CancelRun, "CancelRun")},
		{MethodName: "ListRuns", Handler: workflowServiceUnaryHandler(WorkflowServiceServer.ListRuns, "ListRuns")},
	},
	Metadata: "workflowsvc.api",
}

func workflowServiceUnaryHandler[Req any, Resp any](call func(WorkflowServiceServer, context.Context, *Req) (*Resp, error), method string) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(WorkflowServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: WorkflowServiceName + "/" + method}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(WorkflowServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// WorkflowServiceClient is the client side of WorkflowService.
type WorkflowServiceClient interface {
	RunPipeline(ctx context.Context, in *RunPipelineRequest, opts ...grpc.CallOption) (*RunPipelineResponse, error)
	GetRun(ctx context.Context, in *GetRunRequest, opts ...grpc.CallOption) (*GetRunResponse, error)
	CancelRun(ctx context.Context, in *CancelRunRequest, opts ...grpc.CallOption) (*CancelRunResponse, error)
	ListRuns(ctx context.Context, in *ListRunsRequest, opts ...grpc.CallOption) (*ListRunsResponse, error)
}

type workflowServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewWorkflowServiceClient builds a WorkflowServiceClient over cc.
func NewWorkflowServiceClient(cc grpc.ClientConnInterface) WorkflowServiceClient {
	return &workflowServiceClient{cc: cc}
}

func (c *workflowServiceClient) RunPipeline(ctx context.Context, in *RunPipelineRequest, opts ...grpc.CallOption) (*RunPipelineResponse, error) {
	out := new(RunPipelineResponse)
	if err := c.cc.Invoke(ctx, WorkflowServiceName+"/RunPipeline", in, out, withJSONCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *workflowServiceClient) GetRun(ctx context.Context, in *GetRunRequest, opts ...grpc.CallOption) (*GetRunResponse, error) {
	out := new(GetRunResponse)
	if err := c.cc.Invoke(ctx, WorkflowServiceName+"/GetRun", in, out, withJSONCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *workflowServiceClient) CancelRun(ctx context.Context, in *CancelRunRequest, opts ...grpc.CallOption) (*CancelRunResponse, error) {
	out := new(CancelRunResponse)
	if err := c.cc.Invoke(ctx, WorkflowServiceName+"/CancelRun", in, out, withJSONCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *workflowServiceClient) ListRuns(ctx context.Context, in *ListRunsRequest, opts ...grpc.CallOption) (*ListRunsResponse, error) {
	out := new(ListRunsResponse)
	if err := c.cc.Invoke(ctx, WorkflowServiceName+"/ListRuns", in, out, withJSONCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}
