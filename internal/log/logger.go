package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func NewLogger(env string) (*zap.Logger, error) {
	var config zap.Config

	if env == "prod" {
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	} else {
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder

	return config.Build(zap.Fields(zap.String("service", "ecoearn")))
}

func NewSugar(env string) (*zap.SugaredLogger, error) {
	logger, err := NewLogger(env)
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// Nop is a discard logger for tests and the offline CLI.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// KVLogFunc adapts a sugared logger to the kv factory's fallback log hook.
func KVLogFunc(logger *zap.SugaredLogger) func(msg string, keysAndValues ...any) {
	return func(msg string, keysAndValues ...any) {
		logger.Warnw(msg, keysAndValues...)
	}
}
