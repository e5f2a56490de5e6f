package supervisor

import (
	"context"

	"github.com/core-tools/hsu-supervisor/pkg/domain"
	"github.com/core-tools/hsu-supervisor/pkg/logging"
)

// NewHandler exposes a supervisor through the operator contract
func NewHandler(supervisor *Supervisor, logger logging.Logger) domain.Contract {
	return &handler{
		supervisor: supervisor,
		logger:     logger,
	}
}

type handler struct {
	supervisor *Supervisor
	logger     logging.Logger
}

func (h *handler) Start(ctx context.Context, target string) ([]domain.Result, error) {
	h.logger.Debugf("Start handler, target: %s", target)
	return h.supervisor.StartProcess(ctx, target)
}

func (h *handler) Stop(ctx context.Context, target string) ([]domain.Result, error) {
	h.logger.Debugf("Stop handler, target: %s", target)
	return h.supervisor.StopProcess(ctx, target)
}

func (h *handler) Restart(ctx context.Context, target string) ([]domain.Result, error) {
	h.logger.Debugf("Restart handler, target: %s", target)
	return h.supervisor.RestartProcess(ctx, target)
}

func (h *handler) Status(ctx context.Context) ([]domain.ProcessStatus, error) {
	h.logger.Debugf("Status handler")
	return h.supervisor.Status(), nil
}
