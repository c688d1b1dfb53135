package observability

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process-wide structured logger: JSON to stdout in
// production, console output when LOG_DEV=1. Level comes from LOG_LEVEL.
func NewLogger() *zap.SugaredLogger {
	dev := os.Getenv("LOG_DEV") == "1"
	level := levelFromString(os.Getenv("LOG_LEVEL"), dev)

	if dev {
		config := zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(level)
		logger, err := config.Build()
		if err != nil {
			return zap.NewNop().Sugar()
		}
		return logger.Sugar()
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(os.Stdout), level)

	return zap.New(core, zap.AddStacktrace(zapcore.ErrorLevel)).Sugar()
}

func levelFromString(value string, dev bool) zapcore.Level {
	switch value {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		if dev {
			return zapcore.DebugLevel
		}
		return zapcore.InfoLevel
	}
}
