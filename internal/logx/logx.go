// Package logx wires the process-wide zap logger.
package logx

import (
	"os"

	"go.uber.org/zap"
)

// Init builds the logger, installs it as zap.L() and returns it.
// LOG_LEVEL=debug switches to the development config.
func Init(service string) *zap.Logger {
	var logger *zap.Logger
	var err error
	if os.Getenv("LOG_LEVEL") == "debug" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	logger = logger.With(zap.String("service", service))
	zap.ReplaceGlobals(logger)
	return logger
}
