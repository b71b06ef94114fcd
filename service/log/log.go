package log

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type loggerKey struct{}

var defaultLogger *zap.Logger

func init() {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if os.Getenv("DEBUG") != "" {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	var err error
	if defaultLogger, err = cfg.Build(zap.AddStacktrace(zapcore.ErrorLevel)); err != nil {
		panic(err)
	}
}

// Logger returns the logger attached to ctx, or the process-wide logger.
func Logger(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
		return l
	}
	return defaultLogger
}

// With returns a context whose logger carries the given key/value pairs.
func With(ctx context.Context, keysAndValues ...interface{}) context.Context {
	l := Logger(ctx)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		l = l.With(zap.Any(fmt.Sprintf("%v", keysAndValues[i]), keysAndValues[i+1]))
	}
	return context.WithValue(ctx, loggerKey{}, l)
}

func Fatal(msg string, fields ...zap.Field) {
	defaultLogger.Fatal(msg, fields...)
}
