package main

import (
	"go.uber.org/zap"

	"collabtext/internal/utils"
)

// swapped in tests to keep output quiet
var newLogger = func() *zap.Logger { return utils.NewLogger() }
