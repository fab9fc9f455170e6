package utils

import (
	"go.uber.org/zap"
)

// NewLogger builds the production zap logger, falling back to a no-op logger.
func NewLogger() *zap.Logger {
	logger, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
