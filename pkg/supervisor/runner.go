package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/core-tools/hsu-supervisor/pkg/control"
	"github.com/core-tools/hsu-supervisor/pkg/domain"
	"github.com/core-tools/hsu-supervisor/pkg/errors"
	"github.com/core-tools/hsu-supervisor/pkg/logging"
	"github.com/core-tools/hsu-supervisor/pkg/processfile"
	"github.com/core-tools/hsu-supervisor/pkg/rest"
)

// RunOptions tune a supervisor run; zero values fall back to the
// configuration
type RunOptions struct {
	RunDuration time.Duration // Zero runs until a signal arrives
	GRPCPort    int
	HTTPAddress string
}

// Run supervises every enabled entry of config until a termination signal,
// ctx end, or the run duration. It returns the aggregated startup launch
// failures, so a caller can report a process-level outcome.
func Run(ctx context.Context, config *Config, options RunOptions, logger logging.Logger) error {
	logger.Infof("Supervisor runner starting...")

	if err := ValidateConfig(config); err != nil {
		return err
	}

	if options.RunDuration > 0 {
		logger.Infof("Using RUN DURATION of %v", options.RunDuration)
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, options.RunDuration)
		defer cancel()
	}

	specs, err := CreateSpecsFromConfig(config, logger)
	if err != nil {
		return err
	}
	logger.Infof("Created %d process specs", len(specs))

	supervisorOptions := Options{
		PIDFiles:        processfile.NewPIDFileManager(config.Supervisor.PIDDir, logger),
		MonitorInterval: config.Supervisor.MonitorInterval,
		ShutdownTimeout: config.Supervisor.ShutdownTimeout,
	}
	if supervisorOptions.PIDFiles.Enabled() {
		if err := processfile.ValidatePIDFileDirectory(supervisorOptions.PIDFiles.PIDFilePath("supervisord")); err != nil {
			return err
		}
	}

	supervisor, err := NewSupervisor(specs, supervisorOptions, logger)
	if err != nil {
		return errors.NewInternalError("failed to create supervisor", err)
	}
	if err := supervisor.Start(); err != nil {
		return err
	}

	handler := NewHandler(supervisor, logger)
	stopSurfaces, err := serveControlSurfaces(ctx, config, options, handler, logger)
	if err != nil {
		shutdownSupervisor(supervisor, logger)
		return err
	}

	sig := make(chan os.Signal, 1)
	if runtime.GOOS == "windows" {
		signal.Notify(sig) // Unix signals not implemented on Windows
	} else {
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	}
	defer signal.Stop(sig)

	logger.Infof("Supervisor is ready, starting processes...")

	startupFailures := errors.NewErrorCollection()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()

		results, err := supervisor.StartProcess(ctx, domain.TargetAll)
		if err != nil {
			startupFailures.Add(err)
			return
		}
		for _, result := range results {
			if !result.Success {
				startupFailures.Add(errors.NewLaunchError(result.Error, nil).WithContext("name", result.Name))
			}
		}
		logger.Infof("Startup finished, processes: %d, failed: %d", len(results), len(startupFailures.Errors))
	}()

	select {
	case receivedSignal := <-sig:
		logger.Infof("Supervisor runner received signal: %v", receivedSignal)
	case <-ctx.Done():
		logger.Infof("Supervisor runner context done: %v", ctx.Err())
	}

	wg.Wait()

	stopSurfaces()
	shutdownSupervisor(supervisor, logger)

	logger.Infof("Supervisor runner stopped")
	return startupFailures.ToError()
}

func serveControlSurfaces(ctx context.Context, config *Config, options RunOptions, handler domain.Contract, logger logging.Logger) (func(), error) {
	grpcPort := config.Supervisor.Control.GRPCPort
	if options.GRPCPort != 0 {
		grpcPort = options.GRPCPort
	}
	httpAddress := config.Supervisor.Control.HTTPAddress
	if options.HTTPAddress != "" {
		httpAddress = options.HTTPAddress
	}

	var restServer *rest.Server

	grpcServer, err := control.NewServer(control.ServerOptions{Port: grpcPort}, handler, logging.WithPrefix(logger, "module: grpc, "))
	if err != nil {
		return nil, err
	}
	grpcServer.Start(ctx)

	if httpAddress != "" {
		restServer, err = rest.NewServer(httpAddress, handler, logging.WithPrefix(logger, "module: rest, "))
		if err != nil {
			grpcServer.Shutdown(context.Background())
			return nil, err
		}
		restServer.Serve()
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if restServer != nil {
			restServer.Stop(ctx)
		}
		grpcServer.Shutdown(ctx)
	}, nil
}

func shutdownSupervisor(supervisor *Supervisor, logger logging.Logger) {
	// Reset to background so the shutdown timeout alone bounds termination
	ctx := context.Background()
	if err := supervisor.Shutdown(ctx); err != nil {
		logger.Errorf("Supervisor shutdown: %v", err)
	}
}

// GetConfigSummary renders a short description of a loaded configuration
func GetConfigSummary(config *Config) string {
	enabled := 0
	for _, processConfig := range config.Processes {
		if processConfig.Enabled == nil || *processConfig.Enabled {
			enabled++
		}
	}
	return fmt.Sprintf("processes: %d (enabled: %d), grpc_port: %d, http: %q, log_dir: %s, monitor_interval: %v",
		len(config.Processes), enabled,
		config.Supervisor.Control.GRPCPort, config.Supervisor.Control.HTTPAddress,
		config.Supervisor.LogDir, config.Supervisor.MonitorInterval)
}
