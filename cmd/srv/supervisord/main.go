package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/core-tools/hsu-supervisor/pkg/logging"
	"github.com/core-tools/hsu-supervisor/pkg/supervisor"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	Config      string `long:"config" short:"c" description:"path to the supervisor configuration file" required:"true"`
	LogLevel    string `long:"log-level" description:"override supervisor.log_level (debug, info, warn, error)"`
	LogFormat   string `long:"log-format" description:"override supervisor.log_format (console, json)"`
	LogOutput   string `long:"log-output" default:"stderr" description:"diagnostic log destination: stdout, stderr or a file path"`
	RunDuration int    `long:"run-duration" description:"Duration in seconds to run the supervisor (debug feature)"`
	Validate    bool   `long:"validate" description:"validate the configuration and exit"`
	GRPCPort    int    `long:"grpc-port" description:"override supervisor.control.grpc_port"`
	HTTPAddress string `long:"http-address" description:"override supervisor.control.http_address"`
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	var err error
	_, err = parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}

	if opts.Validate {
		if err := supervisor.ValidateConfigFile(opts.Config); err != nil {
			fmt.Fprintf(os.Stderr, "Configuration is invalid: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Configuration %s is valid\n", opts.Config)
		return
	}

	config, err := supervisor.LoadConfigFromFile(opts.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if opts.LogLevel != "" {
		config.Supervisor.LogLevel = opts.LogLevel
	}
	if opts.LogFormat != "" {
		config.Supervisor.LogFormat = opts.LogFormat
	}

	logger, syncLogger, err := logging.NewZapLogger(logging.ZapConfig{
		Level:      config.Supervisor.LogLevel,
		Format:     config.Supervisor.LogFormat,
		Output:     opts.LogOutput,
		Stacktrace: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	logger.Infof("opts: %+v", opts)
	logger.Infof("Using CONFIGURATION FILE: %s, %s", opts.Config, supervisor.GetConfigSummary(config))

	runOptions := supervisor.RunOptions{
		RunDuration: time.Duration(opts.RunDuration) * time.Second,
		GRPCPort:    opts.GRPCPort,
		HTTPAddress: opts.HTTPAddress,
	}

	err = supervisor.Run(context.Background(), config, runOptions, logger)
	if err != nil {
		logger.Errorf("Supervisor finished with failures: %v", err)
		syncLogger()
		os.Exit(1)
	}
	syncLogger()
}
