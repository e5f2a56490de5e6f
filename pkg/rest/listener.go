package rest

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/core-tools/hsu-supervisor/pkg/domain"
	"github.com/core-tools/hsu-supervisor/pkg/errors"
	"github.com/core-tools/hsu-supervisor/pkg/logging"
)

// Server serves a Handler on a TCP address
type Server struct {
	lis    net.Listener
	srv    *http.Server
	logger logging.Logger
}

func NewServer(address string, c domain.Contract, logger logging.Logger) (*Server, error) {
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return nil, errors.NewIOError("failed to listen", err).WithContext("address", address)
	}
	return &Server{
		lis: lis,
		srv: &http.Server{
			Handler:           NewHandler(c, logger),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}, nil
}

func (s *Server) Addr() net.Addr { return s.lis.Addr() }

// Serve starts serving in the background
func (s *Server) Serve() {
	s.logger.Infof("REST server listening, address: %s", s.lis.Addr())
	go func() {
		if err := s.srv.Serve(s.lis); err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("REST server stopped serving: %v", err)
		}
	}()
}

func (s *Server) Stop(ctx context.Context) {
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Warnf("REST server shutdown: %v", err)
		s.srv.Close()
	}
	s.logger.Infof("REST server stopped")
}
