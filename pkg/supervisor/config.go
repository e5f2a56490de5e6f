package supervisor

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/core-tools/hsu-supervisor/pkg/errors"
	"github.com/core-tools/hsu-supervisor/pkg/logging"
	"github.com/core-tools/hsu-supervisor/pkg/logrouter"
	"github.com/core-tools/hsu-supervisor/pkg/process"
	"github.com/core-tools/hsu-supervisor/pkg/resourcemonitor"
	"github.com/core-tools/hsu-supervisor/pkg/restartpolicy"

	units "github.com/docker/go-units"
	"github.com/google/shlex"
	"gopkg.in/yaml.v3"
)

const (
	DefaultGRPCPort        = 50055
	DefaultShutdownTimeout = 30 * time.Second
	DefaultLogDir          = "logs"
)

// Config represents the top-level configuration file structure
type Config struct {
	Supervisor SupervisorOptions `yaml:"supervisor"`
	Processes  []ProcessConfig   `yaml:"processes"`
}

// SupervisorOptions represents supervisor-level configuration
type SupervisorOptions struct {
	LogLevel        string        `yaml:"log_level,omitempty"`
	LogFormat       string        `yaml:"log_format,omitempty"`
	MonitorInterval time.Duration `yaml:"monitor_interval,omitempty"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`
	PIDDir          string        `yaml:"pid_dir,omitempty"`
	LogDir          string        `yaml:"log_dir,omitempty"`
	Control         ControlConfig `yaml:"control"`
}

// ControlConfig holds the operator surfaces. The gRPC server always runs;
// an empty HTTP address disables the REST surface.
type ControlConfig struct {
	GRPCPort    int    `yaml:"grpc_port,omitempty"`
	HTTPAddress string `yaml:"http_address,omitempty"`
}

// ProcessConfig represents a single process entry
type ProcessConfig struct {
	Name             string                `yaml:"name"`
	Interpreter      string                `yaml:"interpreter,omitempty"`
	Command          string                `yaml:"command"`
	Args             Args                  `yaml:"args,omitempty"`
	Cwd              string                `yaml:"cwd,omitempty"`
	Env              map[string]string     `yaml:"env,omitempty"`
	MaxMemoryRestart MemorySize            `yaml:"max_memory_restart,omitempty"`
	Autorestart      *bool                 `yaml:"autorestart,omitempty"` // Pointer to distinguish unset from false
	KillTimeout      time.Duration         `yaml:"kill_timeout,omitempty"`
	Restart          restartpolicy.Options `yaml:"restart,omitempty"`
	OutFile          string                `yaml:"out_file,omitempty"`
	ErrorFile        string                `yaml:"error_file,omitempty"`
	LogFile          string                `yaml:"log_file,omitempty"`
	Enabled          *bool                 `yaml:"enabled,omitempty"`
}

// Args accepts a shell-style string or a list of strings
type Args []string

func (a *Args) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		parts, err := shlex.Split(value.Value)
		if err != nil {
			return fmt.Errorf("line %d: invalid args string: %w", value.Line, err)
		}
		*a = parts
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*a = list
		return nil
	default:
		return fmt.Errorf("line %d: args must be a string or a list", value.Line)
	}
}

// MemorySize accepts a byte count or a size string such as "512M" or "1G"
// (binary units)
type MemorySize uint64

func (m *MemorySize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: memory size must be a scalar", value.Line)
	}
	size, err := ParseMemorySize(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*m = MemorySize(size)
	return nil
}

// ParseMemorySize parses a byte count or binary size string
func ParseMemorySize(text string) (uint64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, nil
	}
	if size, err := strconv.ParseUint(text, 10, 64); err == nil {
		return size, nil
	}
	size, err := units.RAMInBytes(text)
	if err != nil {
		return 0, fmt.Errorf("invalid memory size %q: %w", text, err)
	}
	if size < 0 {
		return 0, fmt.Errorf("memory size cannot be negative: %q", text)
	}
	return uint64(size), nil
}

// LoadConfigFromFile loads the configuration from a YAML (or JSON) file.
// Relative paths resolve against the file's directory.
func LoadConfigFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.NewIOError("failed to read configuration file", err).WithContext("filename", filename)
	}

	absolute, err := filepath.Abs(filename)
	if err != nil {
		return nil, errors.NewIOError("failed to resolve configuration path", err).WithContext("filename", filename)
	}

	config, err := LoadConfig(data, filepath.Dir(absolute))
	if err != nil {
		if domainErr, ok := err.(*errors.DomainError); ok {
			return nil, domainErr.WithContext("filename", filename)
		}
		return nil, err
	}
	return config, nil
}

// LoadConfig parses configuration data and applies defaults
func LoadConfig(data []byte, baseDirectory string) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.NewValidationError("failed to parse YAML configuration", err)
	}

	if err := setConfigDefaults(&config, baseDirectory); err != nil {
		return nil, errors.NewValidationError("failed to apply configuration defaults", err)
	}

	return &config, nil
}

// ValidateConfig validates the entire configuration structure
func ValidateConfig(config *Config) error {
	if config == nil {
		return errors.NewValidationError("configuration cannot be nil", nil)
	}

	if err := validateSupervisorOptions(&config.Supervisor); err != nil {
		return errors.NewValidationError("invalid supervisor configuration", err)
	}

	if err := validateProcessesConfig(config.Processes); err != nil {
		return errors.NewValidationError("invalid processes configuration", err)
	}

	return nil
}

// ValidateConfigFile validates a configuration file without running it
func ValidateConfigFile(configFile string) error {
	config, err := LoadConfigFromFile(configFile)
	if err != nil {
		return err
	}
	if err := ValidateConfig(config); err != nil {
		return errors.NewValidationError("configuration validation failed", err).WithContext("config_file", configFile)
	}
	return nil
}

// CreateSpecsFromConfig builds the immutable specs, skipping disabled entries
func CreateSpecsFromConfig(config *Config, logger logging.Logger) ([]*ProcessSpec, error) {
	if config == nil {
		return nil, errors.NewValidationError("configuration cannot be nil", nil)
	}

	specs := make([]*ProcessSpec, 0, len(config.Processes))
	for _, processConfig := range config.Processes {
		if processConfig.Enabled != nil && !*processConfig.Enabled {
			logger.Infof("Skipping disabled process, name: %s", processConfig.Name)
			continue
		}
		specs = append(specs, createSpecFromConfig(processConfig))
	}
	return specs, nil
}

func createSpecFromConfig(config ProcessConfig) *ProcessSpec {
	execution := process.ExecutionConfig{
		Command:          config.Command,
		Args:             append([]string(nil), config.Args...),
		WorkingDirectory: config.Cwd,
		Environment:      config.Env,
	}
	// The interpreter runs the script, which becomes its first argument
	if config.Interpreter != "" {
		execution.Command = config.Interpreter
		execution.Args = append([]string{config.Command}, execution.Args...)
	}

	autorestart := true
	if config.Autorestart != nil {
		autorestart = *config.Autorestart
	}

	return &ProcessSpec{
		Name:           config.Name,
		Execution:      execution,
		MaxMemoryBytes: uint64(config.MaxMemoryRestart),
		Autorestart:    autorestart,
		Restart:        config.Restart,
		KillTimeout:    config.KillTimeout,
		Sinks: logrouter.Sinks{
			Stdout:   config.OutFile,
			Stderr:   config.ErrorFile,
			Combined: config.LogFile,
		},
	}
}

// setConfigDefaults applies default values and resolves relative paths
func setConfigDefaults(config *Config, baseDirectory string) error {
	options := &config.Supervisor
	if options.LogLevel == "" {
		options.LogLevel = "info"
	}
	if options.LogFormat == "" {
		options.LogFormat = "console"
	}
	if options.MonitorInterval == 0 {
		options.MonitorInterval = resourcemonitor.DefaultInterval
	}
	if options.ShutdownTimeout == 0 {
		options.ShutdownTimeout = DefaultShutdownTimeout
	}
	if options.Control.GRPCPort == 0 {
		options.Control.GRPCPort = DefaultGRPCPort
	}
	if options.LogDir == "" {
		options.LogDir = DefaultLogDir
	}
	options.LogDir = resolvePath(baseDirectory, options.LogDir)
	if options.PIDDir != "" {
		options.PIDDir = resolvePath(baseDirectory, options.PIDDir)
	}

	for i := range config.Processes {
		entry := &config.Processes[i]

		if entry.Enabled == nil {
			enabled := true
			entry.Enabled = &enabled
		}
		if entry.Autorestart == nil {
			autorestart := true
			entry.Autorestart = &autorestart
		}
		if entry.KillTimeout == 0 {
			entry.KillTimeout = process.DefaultForceKillTimeout
		}
		entry.Restart = entry.Restart.WithDefaults()

		if entry.Cwd == "" {
			entry.Cwd = baseDirectory
		} else {
			entry.Cwd = resolvePath(baseDirectory, entry.Cwd)
		}
		// Executables with a path component are relative to the process directory
		entry.Command = resolveExecutable(entry.Cwd, entry.Command)
		entry.Interpreter = resolveExecutable(entry.Cwd, entry.Interpreter)

		if entry.Name != "" {
			if entry.OutFile == "" {
				entry.OutFile = filepath.Join(options.LogDir, entry.Name+"-out.log")
			}
			if entry.ErrorFile == "" {
				entry.ErrorFile = filepath.Join(options.LogDir, entry.Name+"-err.log")
			}
			if entry.LogFile == "" {
				entry.LogFile = filepath.Join(options.LogDir, entry.Name+"-combined.log")
			}
		}
		entry.OutFile = resolvePath(baseDirectory, entry.OutFile)
		entry.ErrorFile = resolvePath(baseDirectory, entry.ErrorFile)
		entry.LogFile = resolvePath(baseDirectory, entry.LogFile)
	}

	return nil
}

func resolvePath(baseDirectory, path string) string {
	if path == "" || filepath.IsAbs(path) || baseDirectory == "" {
		return path
	}
	return filepath.Join(baseDirectory, path)
}

func resolveExecutable(directory, path string) string {
	if !strings.ContainsRune(path, '/') && !strings.ContainsRune(path, filepath.Separator) {
		return path
	}
	return resolvePath(directory, path)
}

// Validation functions

func validateSupervisorOptions(options *SupervisorOptions) error {
	if _, ok := logging.LevelFromString(options.LogLevel); !ok {
		return errors.NewValidationError(fmt.Sprintf("invalid log level: %s", options.LogLevel), nil).
			WithContext("valid_levels", "debug, info, warn, error")
	}

	if options.LogFormat != "console" && options.LogFormat != "json" {
		return errors.NewValidationError(fmt.Sprintf("invalid log format: %s", options.LogFormat), nil).
			WithContext("valid_formats", "console, json")
	}

	if err := ValidateTimeout(options.MonitorInterval, "monitor_interval"); err != nil {
		return err
	}
	if err := ValidateTimeout(options.ShutdownTimeout, "shutdown"); err != nil {
		return err
	}

	if err := ValidatePort(options.Control.GRPCPort); err != nil {
		return errors.NewValidationError("invalid grpc_port", err)
	}
	if options.Control.HTTPAddress != "" {
		if err := ValidateNetworkAddress(options.Control.HTTPAddress); err != nil {
			return errors.NewValidationError("invalid http_address", err)
		}
	}

	return nil
}

func validateProcessesConfig(processes []ProcessConfig) error {
	seenNames := make(map[string]int)
	for i, entry := range processes {
		if err := ValidateProcessName(entry.Name); err != nil {
			return errors.NewValidationError(fmt.Sprintf("invalid process name at index %d", i), err).
				WithContext("name", entry.Name)
		}

		if prevIndex, exists := seenNames[entry.Name]; exists {
			return errors.NewValidationError(
				fmt.Sprintf("duplicate process name '%s' found at indices %d and %d", entry.Name, prevIndex, i),
				nil,
			)
		}
		seenNames[entry.Name] = i

		if err := ValidateProcessSpec(createSpecFromConfig(entry)); err != nil {
			return errors.NewValidationError(fmt.Sprintf("invalid process at index %d", i), err).
				WithContext("name", entry.Name)
		}
	}

	return nil
}
