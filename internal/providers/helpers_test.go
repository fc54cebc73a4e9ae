package providers

import "go.uber.org/zap"

func nopLoggerForTest() *zap.Logger {
	return zap.NewNop()
}
