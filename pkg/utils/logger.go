// Package utils provides the process logger and vector helpers shared by the embedders.
package utils

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLogger returns the simgroup process logger. Debug uses the development encoder at
// debug level; otherwise JSON at info level. Both write to stderr, leaving stdout to
// command output and the stdout sink.
func NewLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.Named("simgroup"), nil
}
