package control

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// The service is described by hand over protobuf well-known types, so no
// generated stubs are needed on either side.
const ServiceName = "hsu.supervisor.SupervisorService"

const (
	methodStart   = "/" + ServiceName + "/Start"
	methodStop    = "/" + ServiceName + "/Stop"
	methodRestart = "/" + ServiceName + "/Restart"
	methodStatus  = "/" + ServiceName + "/Status"
)

// SupervisorServiceServer is the server API of the control service
type SupervisorServiceServer interface {
	Start(ctx context.Context, target *wrapperspb.StringValue) (*structpb.Struct, error)
	Stop(ctx context.Context, target *wrapperspb.StringValue) (*structpb.Struct, error)
	Restart(ctx context.Context, target *wrapperspb.StringValue) (*structpb.Struct, error)
	Status(ctx context.Context, request *emptypb.Empty) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SupervisorServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Start", Handler: targetHandler(methodStart, SupervisorServiceServer.Start)},
		{MethodName: "Stop", Handler: targetHandler(methodStop, SupervisorServiceServer.Stop)},
		{MethodName: "Restart", Handler: targetHandler(methodRestart, SupervisorServiceServer.Restart)},
		{MethodName: "Status", Handler: statusHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "hsu/supervisor/v1/supervisor.proto",
}

// RegisterSupervisorServiceServer registers srv on registrar
func RegisterSupervisorServiceServer(registrar grpc.ServiceRegistrar, srv SupervisorServiceServer) {
	registrar.RegisterService(&serviceDesc, srv)
}

type targetMethod func(SupervisorServiceServer, context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)

func targetHandler(fullMethod string, method targetMethod) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(wrapperspb.StringValue)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return method(srv.(SupervisorServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return method(srv.(SupervisorServiceServer), ctx, req.(*wrapperspb.StringValue))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func statusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SupervisorServiceServer).Status(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: methodStatus,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SupervisorServiceServer).Status(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}
