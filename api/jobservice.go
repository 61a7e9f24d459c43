package api

import (
	"context"

	"google.golang.org/grpc"
)

// JobServiceName is the fully-qualified service name used on the wire.
const JobServiceName = "aadk.jobsvc.JobService"

// JobServiceServer is the interface internal/jobsvc/server implements: the
// RPC facade (Start, Get, Cancel, Publish, StreamJobEvents,
// StreamRunEvents, ListJobs, ListJobHistory).
type JobServiceServer interface {
	StartJob(context.Context, *StartJobRequest) (*StartJobResponse, error)
	GetJob(context.Context, *GetJobRequest) (*GetJobResponse, error)
	CancelJob(context.Context, *CancelJobRequest) (*CancelJobResponse, error)
	PublishJobEvent(context.Context, *PublishJobEventRequest) (*PublishJobEventResponse, error)
	ListJobs(context.Context, *ListJobsRequest) (*ListJobsResponse, error)
	ListJobHistory(context.Context, *ListJobHistoryRequest) (*ListJobHistoryResponse, error)
	StreamJobEvents(*StreamJobEventsRequest, JobService_StreamJobEventsServer) error
	StreamRunEvents(*StreamRunEventsRequest, JobService_StreamRunEventsServer) error
}

// JobService_StreamJobEventsServer is the server-side handle for a
// StreamJobEvents call.
type JobService_StreamJobEventsServer interface {
	Send(*JobEvent) error
	grpc.ServerStream
}

type jobServiceStreamJobEventsServer struct{ grpc.ServerStream }

func (x *jobServiceStreamJobEventsServer) Send(e *JobEvent) error { return x.ServerStream.SendMsg(e) }

// JobService_StreamRunEventsServer is the server-side handle for a
// StreamRunEvents call.
type JobService_StreamRunEventsServer interface {
	Send(*JobEvent) error
	grpc.ServerStream
}

type jobServiceStreamRunEventsServer struct{ grpc.ServerStream }

func (x *jobServiceStreamRunEventsServer) Send(e *JobEvent) error { return x.ServerStream.SendMsg(e) }

// RegisterJobServiceServer registers srv's methods against s.
func RegisterJobServiceServer(s *grpc.Server, srv JobServiceServer) {
	s.RegisterService(&jobServiceDesc, srv)
}

func jobServiceUnaryHandler[Req any, Resp any](call func(JobServiceServer, context.Context, *Req) (*Resp, error), method string) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(JobServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: JobServiceName + "/" + method}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(JobServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var jobServiceDesc = grpc.ServiceDesc{
	ServiceName: JobServiceName,
	HandlerType: (*JobServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "StartJob", Handler: jobServiceUnaryHandler(JobServiceServer.StartJob, "StartJob")},
		{MethodName: "GetJob", Handler: jobServiceUnaryHandler(JobServiceServer.GetJob, "GetJob")},
		{MethodName: "CancelJob", Handler: jobServiceUnaryHandler(JobServiceServer.CancelJob, "CancelJob")},
		{MethodName: "PublishJobEvent", Handler: jobServiceUnaryHandler(JobServiceServer.PublishJobEvent, "PublishJobEvent")},
		{MethodName: "ListJobs", Handler: jobServiceUnaryHandler(JobServiceServer.ListJobs, "ListJobs")},
		{MethodName: "ListJobHistory", Handler: jobServiceUnaryHandler(JobServiceServer.ListJobHistory, "ListJobHistory")},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName: "StreamJobEvents",
			Handler: func(srv interface{}, stream grpc.ServerStream) error {
				m := new(StreamJobEventsRequest)
				if err := stream.RecvMsg(m); err != nil {
					return err
				}
				return srv.(JobServiceServer).StreamJobEvents(m, &jobServiceStreamJobEventsServer{stream})
			},
			ServerStreams: true,
		},
		{
			StreamName: "StreamRunEvents",
			Handler: func(srv interface{}, stream grpc.ServerStream) error {
				m := new(StreamRunEventsRequest)
				if err := stream.RecvMsg(m); err != nil {
					return err
				}
				return srv.(JobServiceServer).StreamRunEvents(m, &jobServiceStreamRunEventsServer{stream})
			},
			ServerStreams: true,
		},
	},
	Metadata: "jobsvc.api",
}

// JobServiceClient is the client side of JobService.
type JobServiceClient interface {
	StartJob(ctx context.Context, in *StartJobRequest, opts ...grpc.CallOption) (*StartJobResponse, error)
	GetJob(ctx context.Context, in *GetJobRequest, opts ...grpc.CallOption) (*GetJobResponse, error)
	CancelJob(ctx context.Context, in *CancelJobRequest, opts ...grpc.CallOption) (*CancelJobResponse, error)
	PublishJobEvent(ctx context.Context, in *PublishJobEventRequest, opts ...grpc.CallOption) (*PublishJobEventResponse, error)
	ListJobs(ctx context.Context, in *ListJobsRequest, opts ...grpc.CallOption) (*ListJobsResponse, error)
	ListJobHistory(ctx context.Context, in *ListJobHistoryRequest, opts ...grpc.CallOption) (*ListJobHistoryResponse, error)
	StreamJobEvents(ctx context.Context, in *StreamJobEventsRequest, opts ...grpc.CallOption) (JobService_StreamJobEventsClient, error)
	StreamRunEvents(ctx context.Context, in *StreamRunEventsRequest, opts ...grpc.CallOption) (JobService_StreamRunEventsClient, error)
}

type jobServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewJobServiceClient builds a JobServiceClient over cc.
func NewJobServiceClient(cc grpc.ClientConnInterface) JobServiceClient {
	return &jobServiceClient{cc: cc}
}

func withJSONCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append(opts, grpc.CallContentSubtype(codecName))
}

func (c *jobServiceClient) StartJob(ctx context.Context, in *StartJobRequest, opts ...grpc.CallOption) (*StartJobResponse, error) {
	out := new(StartJobResponse)
	if err := c.cc.Invoke(ctx, JobServiceName+"/StartJob", in, out, withJSONCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *jobServiceClient) GetJob(ctx context.Context, in *GetJobRequest, opts ...grpc.CallOption) (*GetJobResponse, error) {
	out := new(GetJobResponse)
	if err := c.cc.Invoke(ctx, JobServiceName+"/GetJob", in, out, withJSONCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *jobServiceClient) CancelJob(ctx context.Context, in *CancelJobRequest, opts ...grpc.CallOption) (*CancelJobResponse, error) {
	out := new(CancelJobResponse)
	if err := c.cc.Invoke(ctx, JobServiceName+"/CancelJob", in, out, withJSONCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *jobServiceClient) PublishJobEvent(ctx context.Context, in *PublishJobEventRequest, opts ...grpc.CallOption) (*PublishJobEventResponse, error) {
	out := new(PublishJobEventResponse)
	if err := c.cc.Invoke(ctx, JobServiceName+"/PublishJobEvent", in, out, withJSONCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *jobServiceClient) ListJobs(ctx context.Context, in *ListJobsRequest, opts ...grpc.CallOption) (*ListJobsResponse, error) {
	out := new(ListJobsResponse)
	if err := c.cc.Invoke(ctx, JobServiceName+"/ListJobs", in, out, withJSONCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *jobServiceClient) ListJobHistory(ctx context.Context, in *ListJobHistoryRequest, opts ...grpc.CallOption) (*ListJobHistoryResponse, error) {
	out := new(ListJobHistoryResponse)
	if err := c.cc.Invoke(ctx, JobServiceName+"/ListJobHistory", in, out, withJSONCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

// JobService_StreamJobEventsClient is the client-side handle for a
// StreamJobEvents call.
type JobService_StreamJobEventsClient interface {
	Recv() (*JobEvent, error)
	grpc.ClientStream
}

type jobServiceStreamJobEventsClient struct{ grpc.ClientStream }

func (x *jobServiceStreamJobEventsClient) Recv() (*JobEvent, error) {
	m := new(JobEvent)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *jobServiceClient) StreamJobEvents(ctx context.Context, in *StreamJobEventsRequest, opts ...grpc.CallOption) (JobService_StreamJobEventsClient, error) {
	stream, err := c.cc.NewStream(ctx, &jobServiceDesc.Streams[0], JobServiceName+"/StreamJobEvents", withJSONCodec(opts)...)
	if err != nil {
		return nil, err
	}
	x := &jobServiceStreamJobEventsClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// JobService_StreamRunEventsClient is the client-side handle for a
// StreamRunEvents call.
type JobService_StreamRunEventsClient interface {
	Recv() (*JobEvent, error)
	grpc.ClientStream
}

type jobServiceStreamRunEventsClient struct{ grpc.ClientStream }

func (x *jobServiceStreamRunEventsClient) Recv() (*JobEvent, error) {
	m := new(JobEvent)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *jobServiceClient) StreamRunEvents(ctx context.Context, in *StreamRunEventsRequest, opts ...grpc.CallOption) (JobService_StreamRunEventsClient, error) {
	stream, err := c.cc.NewStream(ctx, &jobServiceDesc.Streams[1], JobServiceName+"/StreamRunEvents", withJSONCodec(opts)...)
	if err != nil {
		return nil, err
	}
	x := &jobServiceStreamRunEventsClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
