package logging

import (
	corelogging "github.com/core-tools/hsu-core/pkg/logging"
)

const corePrefix = "module: hsu-core, "

// NewCoreLogger routes hsu-core's diagnostics through logger
func NewCoreLogger(logger Logger) corelogging.Logger {
	return corelogging.NewLogger(corePrefix, corelogging.LogFuncs{
		Debugf: logger.Debugf,
		Infof:  logger.Infof,
		Warnf:  logger.Warnf,
		Errorf: logger.Errorf,
	})
}
