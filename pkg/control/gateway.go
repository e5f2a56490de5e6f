package control

import (
	"context"

	"github.com/core-tools/hsu-supervisor/pkg/domain"
	"github.com/core-tools/hsu-supervisor/pkg/logging"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func NewGRPCClientGateway(grpcClientConnection grpc.ClientConnInterface, logger logging.Logger) domain.Contract {
	return &grpcClientGateway{
		conn:   grpcClientConnection,
		logger: logger,
	}
}

type grpcClientGateway struct {
	conn   grpc.ClientConnInterface
	logger logging.Logger
}

func (gw *grpcClientGateway) Start(ctx context.Context, target string) ([]domain.Result, error) {
	return gw.command(ctx, methodStart, target)
}

func (gw *grpcClientGateway) Stop(ctx context.Context, target string) ([]domain.Result, error) {
	return gw.command(ctx, methodStop, target)
}

func (gw *grpcClientGateway) Restart(ctx context.Context, target string) ([]domain.Result, error) {
	return gw.command(ctx, methodRestart, target)
}

func (gw *grpcClientGateway) command(ctx context.Context, method, target string) ([]domain.Result, error) {
	response := new(structpb.Struct)
	if err := gw.conn.Invoke(ctx, method, wrapperspb.String(target), response); err != nil {
		gw.logger.Errorf("%s client gateway, target: %s, error: %v", method, target, err)
		return nil, fromStatusError(err)
	}
	gw.logger.Debugf("%s client gateway done, target: %s", method, target)
	return resultsFromStruct(response), nil
}

func (gw *grpcClientGateway) Status(ctx context.Context) ([]domain.ProcessStatus, error) {
	response := new(structpb.Struct)
	if err := gw.conn.Invoke(ctx, methodStatus, &emptypb.Empty{}, response); err != nil {
		gw.logger.Errorf("Status client gateway: %v", err)
		return nil, fromStatusError(err)
	}
	gw.logger.Debugf("Status client gateway done")
	return statusFromStruct(response), nil
}
