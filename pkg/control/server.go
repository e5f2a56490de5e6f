package control

import (
	"context"

	"github.com/core-tools/hsu-supervisor/pkg/domain"
	"github.com/core-tools/hsu-supervisor/pkg/errors"
	"github.com/core-tools/hsu-supervisor/pkg/logging"

	corecontrol "github.com/core-tools/hsu-core/pkg/control"
	coredomain "github.com/core-tools/hsu-core/pkg/domain"
)

type ServerOptions struct {
	Port int
}

// Server hosts the core ping service and the supervisor service on one
// hsu-core gRPC server
type Server struct {
	options ServerOptions
	server  corecontrol.Server
	logger  logging.Logger
}

func NewServer(options ServerOptions, handler domain.Contract, logger logging.Logger) (*Server, error) {
	coreLogger := logging.NewCoreLogger(logger)

	server, err := corecontrol.NewServer(corecontrol.ServerOptions{Port: options.Port}, coreLogger)
	if err != nil {
		return nil, errors.NewIOError("failed to create control server", err).WithContext("port", options.Port)
	}

	// Clients ping before their first call
	coreHandler := coredomain.NewDefaultHandler(coreLogger)
	corecontrol.RegisterGRPCServerHandler(server.GRPC(), coreHandler, coreLogger)

	RegisterGRPCServerHandler(server.GRPC(), handler, logger)

	return &Server{
		options: options,
		server:  server,
		logger:  logger,
	}, nil
}

func (s *Server) Port() int { return s.options.Port }

// Start begins serving in the background
func (s *Server) Start(ctx context.Context) {
	s.logger.Infof("Control server starting, port: %d", s.options.Port)
	s.server.Start(ctx)
}

// Shutdown drains in-flight calls, bounded by ctx
func (s *Server) Shutdown(ctx context.Context) {
	s.server.Shutdown(ctx)
	s.logger.Infof("Control server stopped, port: %d", s.options.Port)
}
