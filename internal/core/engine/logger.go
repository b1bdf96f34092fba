package engine

import "go.uber.org/zap"

// Logger is the subset of the structured logger used by the engine. Both the
// gofulmen logger and *zap.Logger satisfy it.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
}

func loggerOrNop(l Logger) Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
