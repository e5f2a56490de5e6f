package main

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/core-tools/hsu-supervisor/pkg/control"
	"github.com/core-tools/hsu-supervisor/pkg/domain"
	"github.com/core-tools/hsu-supervisor/pkg/errors"
	"github.com/core-tools/hsu-supervisor/pkg/logging"

	coreControl "github.com/core-tools/hsu-core/pkg/control"
	coreDomain "github.com/core-tools/hsu-core/pkg/domain"
)

const (
	defaultPort = 50055
	portEnv     = "HSU_SUPERVISOR_PORT"
)

// resolvePort picks the flag, then the environment, then the default
func resolvePort(flagPort int) (int, error) {
	if flagPort != 0 {
		return flagPort, nil
	}
	if value := strings.TrimSpace(os.Getenv(portEnv)); value != "" {
		port, err := strconv.Atoi(value)
		if err != nil || port < 1 || port > 65535 {
			return 0, errors.NewValidationError("invalid port in $"+portEnv, err).WithContext("value", value)
		}
		return port, nil
	}
	return defaultPort, nil
}

// connect attaches to the supervisor, waits for it to answer a ping and
// returns its contract with a close func
func connect(ctx context.Context, opts *rootOptions) (domain.Contract, func(), error) {
	port, err := resolvePort(opts.port)
	if err != nil {
		return nil, nil, err
	}

	logger := logging.NewLogger("", logging.LogFuncs{})
	closeLogger := func() {}
	if opts.verbose {
		zapConfig := logging.DefaultZapConfig()
		zapConfig.Level = "debug"
		logger, closeLogger, err = logging.NewZapLogger(zapConfig)
		if err != nil {
			return nil, nil, err
		}
	}
	coreLogger := logging.NewCoreLogger(logger)

	connection, err := coreControl.NewConnection(coreControl.ConnectionOptions{AttachPort: port}, coreLogger)
	if err != nil {
		closeLogger()
		return nil, nil, errors.NewIOError("cannot connect to supervisor", err).WithContext("port", port)
	}

	retryPingOptions := coreDomain.RetryPingOptions{
		RetryAttempts: opts.pingAttempts,
		RetryInterval: 500 * time.Millisecond,
	}
	coreClientGateway := coreControl.NewGRPCClientGateway(connection.GRPC(), coreLogger)
	if err := coreDomain.RetryPing(ctx, coreClientGateway, retryPingOptions, coreLogger); err != nil {
		closeLogger()
		return nil, nil, errors.NewIOError("supervisor is not answering", err).WithContext("port", port)
	}

	return control.NewGRPCClientGateway(connection.GRPC(), logger), closeLogger, nil
}
