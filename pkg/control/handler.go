package control

import (
	"context"

	"github.com/core-tools/hsu-supervisor/pkg/domain"
	"github.com/core-tools/hsu-supervisor/pkg/logging"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func RegisterGRPCServerHandler(grpcServerRegistrar grpc.ServiceRegistrar, handler domain.Contract, logger logging.Logger) {
	RegisterSupervisorServiceServer(grpcServerRegistrar, &grpcServerHandler{
		handler: handler,
		logger:  logger,
	})
}

type grpcServerHandler struct {
	handler domain.Contract
	logger  logging.Logger
}

type contractCommand func(ctx context.Context, target string) ([]domain.Result, error)

func (h *grpcServerHandler) Start(ctx context.Context, target *wrapperspb.StringValue) (*structpb.Struct, error) {
	return h.command(ctx, "Start", h.handler.Start, target)
}

func (h *grpcServerHandler) Stop(ctx context.Context, target *wrapperspb.StringValue) (*structpb.Struct, error) {
	return h.command(ctx, "Stop", h.handler.Stop, target)
}

func (h *grpcServerHandler) Restart(ctx context.Context, target *wrapperspb.StringValue) (*structpb.Struct, error) {
	return h.command(ctx, "Restart", h.handler.Restart, target)
}

func (h *grpcServerHandler) command(ctx context.Context, name string, call contractCommand, target *wrapperspb.StringValue) (*structpb.Struct, error) {
	results, err := call(ctx, target.GetValue())
	if err != nil {
		h.logger.Errorf("%s server handler, target: %s, error: %v", name, target.GetValue(), err)
		return nil, toStatusError(err)
	}
	response, err := resultsToStruct(results)
	if err != nil {
		h.logger.Errorf("%s server handler, encoding results: %v", name, err)
		return nil, status.Error(codes.Internal, err.Error())
	}
	h.logger.Debugf("%s server handler done, target: %s, results: %d", name, target.GetValue(), len(results))
	return response, nil
}

func (h *grpcServerHandler) Status(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	statuses, err := h.handler.Status(ctx)
	if err != nil {
		h.logger.Errorf("Status server handler: %v", err)
		return nil, toStatusError(err)
	}
	response, err := statusToStruct(statuses)
	if err != nil {
		h.logger.Errorf("Status server handler, encoding status: %v", err)
		return nil, status.Error(codes.Internal, err.Error())
	}
	h.logger.Debugf("Status server handler done")
	return response, nil
}
