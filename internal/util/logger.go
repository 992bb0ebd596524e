package util

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// InitLogger builds the global logger: JSON in production, colored console
// otherwise. Call it before any goroutine logs.
func InitLogger(env string) error {
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	config.InitialFields = map[string]interface{}{"service": "ticketing-service"}

	built, err := config.Build()
	if err != nil {
		return err
	}

	logger = built
	loggerOnce.Do(func() {})
	zap.ReplaceGlobals(logger)
	return nil
}

// GetLogger returns the global logger, falling back to a development logger
// when InitLogger was never called (tests, tools).
func GetLogger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger, _ = zap.NewDevelopment()
		}
	})
	return logger
}

// SyncLogger flushes any buffered log entries
func SyncLogger() {
	if logger != nil {
		_ = logger.Sync()
	}
}
