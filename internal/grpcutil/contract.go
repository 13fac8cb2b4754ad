// Package grpcutil defines the fluidwatch gRPC contract: a JSON codec, the
// ViewService descriptor and a typed client. Messages are plain Go structs
// so the service needs no generated code.
package grpcutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chrissnell/fluidwatch/internal/controllers"
	"github.com/chrissnell/fluidwatch/internal/device"
	"github.com/chrissnell/fluidwatch/internal/rate"
	"github.com/chrissnell/fluidwatch/internal/view"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"
)

const (
	ServiceName   = "fluidwatch.v1.ViewService"
	JSONCodecName = "json"

	methodGetView     = "/" + ServiceName + "/GetView"
	methodGetStatus   = "/" + ServiceName + "/GetStatus"
	methodStartDevice = "/" + ServiceName + "/StartDevice"
	methodStopDevice  = "/" + ServiceName + "/StopDevice"
	methodRefresh     = "/" + ServiceName + "/Refresh"
	methodWatchView   = "/" + ServiceName + "/WatchView"
)

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return JSONCodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type Empty struct{}

// ViewRequest selects a range and offset in hours. A zero range selects the
// default view; a zero weight uses the session weight.
type ViewRequest struct {
	RangeHours  int     `json:"range_hours"`
	OffsetHours float64 `json:"offset_hours"`
	Weight      float64 `json:"weight"`
}

type StartRequest struct {
	Weight float64 `json:"weight"`
}

type ViewServiceServer interface {
	GetView(ctx context.Context, in *ViewRequest) (*view.Result, error)
	GetStatus(ctx context.Context, in *Empty) (*controllers.Status, error)
	StartDevice(ctx context.Context, in *StartRequest) (*controllers.Status, error)
	StopDevice(ctx context.Context, in *Empty) (*controllers.Status, error)
	Refresh(ctx context.Context, in *Empty) (*controllers.Status, error)
	WatchView(in *ViewRequest, stream grpc.ServerStream) error
}

type ViewServiceClient interface {
	GetView(ctx context.Context, in *ViewRequest) (*view.Result, error)
	GetStatus(ctx context.Context) (*controllers.Status, error)
	StartDevice(ctx context.Context, in *StartRequest) (*controllers.Status, error)
	StopDevice(ctx context.Context) (*controllers.Status, error)
	Refresh(ctx context.Context) (*controllers.Status, error)
	WatchView(ctx context.Context, in *ViewRequest) (ViewStream, error)
}

// ViewStream receives a view each time the sample buffer is refreshed
type ViewStream interface {
	Recv() (*view.Result, error)
}

type viewServiceClient struct {
	conn *grpc.ClientConn
}

func NewViewServiceClient(conn *grpc.ClientConn) ViewServiceClient {
	return &viewServiceClient{conn: conn}
}

func (c *viewServiceClient) GetView(ctx context.Context, in *ViewRequest) (*view.Result, error) {
	out := &view.Result{}
	if err := c.conn.Invoke(ctx, methodGetView, in, out, grpc.CallContentSubtype(JSONCodecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *viewServiceClient) GetStatus(ctx context.Context) (*controllers.Status, error) {
	return c.invokeStatus(ctx, methodGetStatus, &Empty{})
}

func (c *viewServiceClient) StartDevice(ctx context.Context, in *StartRequest) (*controllers.Status, error) {
	return c.invokeStatus(ctx, methodStartDevice, in)
}

func (c *viewServiceClient) StopDevice(ctx context.Context) (*controllers.Status, error) {
	return c.invokeStatus(ctx, methodStopDevice, &Empty{})
}

func (c *viewServiceClient) Refresh(ctx context.Context) (*controllers.Status, error) {
	return c.invokeStatus(ctx, methodRefresh, &Empty{})
}

func (c *viewServiceClient) invokeStatus(ctx context.Context, method string, in any) (*controllers.Status, error) {
	out := &controllers.Status{}
	if err := c.conn.Invoke(ctx, method, in, out, grpc.CallContentSubtype(JSONCodecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *viewServiceClient) WatchView(ctx context.Context, in *ViewRequest) (ViewStream, error) {
	stream, err := c.conn.NewStream(ctx, &viewServiceDesc.Streams[0], methodWatchView, grpc.CallContentSubtype(JSONCodecName))
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &viewStream{stream}, nil
}

type viewStream struct {
	grpc.ClientStream
}

func (s *viewStream) Recv() (*view.Result, error) {
	out := &view.Result{}
	if err := s.ClientStream.RecvMsg(out); err != nil {
		return nil, err
	}
	return out, nil
}

// unary builds a MethodDesc handler for a method taking *Req
func unary[Req any](name, fullMethod string, call func(ViewServiceServer, context.Context, *Req) (any, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			impl := srv.(ViewServiceServer)
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(impl, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				r, ok := req.(*Req)
				if !ok {
					return nil, fmt.Errorf("invalid request type")
				}
				return call(impl, ctx, r)
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var viewServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ViewServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetView", methodGetView, func(s ViewServiceServer, ctx context.Context, in *ViewRequest) (any, error) {
			return s.GetView(ctx, in)
		}),
		unary("GetStatus", methodGetStatus, func(s ViewServiceServer, ctx context.Context, in *Empty) (any, error) {
			return s.GetStatus(ctx, in)
		}),
		unary("StartDevice", methodStartDevice, func(s ViewServiceServer, ctx context.Context, in *StartRequest) (any, error) {
			return s.StartDevice(ctx, in)
		}),
		unary("StopDevice", methodStopDevice, func(s ViewServiceServer, ctx context.Context, in *Empty) (any, error) {
			return s.StopDevice(ctx, in)
		}),
		unary("Refresh", methodRefresh, func(s ViewServiceServer, ctx context.Context, in *Empty) (any, error) {
			return s.Refresh(ctx, in)
		}),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchView",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := &ViewRequest{}
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(ViewServiceServer).WatchView(in, stream)
			},
		},
	},
	Metadata: "fluidwatch/v1/view.json",
}

func RegisterViewServiceServer(server grpc.ServiceRegistrar, impl ViewServiceServer) {
	server.RegisterService(&viewServiceDesc, impl)
}

// ToStatus maps domain errors onto gRPC status codes
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, controllers.ErrBadRequest), errors.Is(err, rate.ErrInvalidWeight):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, device.ErrActionFailed):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
