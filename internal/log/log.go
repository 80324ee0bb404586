// Package log provides the process-wide zap logger.
package log

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log *zap.SugaredLogger
var baseLogger *zap.Logger

// Init initializes the package-level logger. Debug mode uses the
// human-readable console encoder at debug level; otherwise JSON at info.
func Init(debug bool) error {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	// Reports go to stdout, so logs must not.
	cfg.OutputPaths = []string{"stderr"}

	zapLogger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return fmt.Errorf("can't initialize zap logger: %v", err)
	}

	baseLogger = zapLogger
	log = zapLogger.Sugar()
	return nil
}

// GetSugaredLogger returns the sugared logger instance. Components take it
// as a dependency rather than calling the package functions.
func GetSugaredLogger() *zap.SugaredLogger {
	if log == nil {
		// Fallback logger if not initialized
		baseLogger, _ = zap.NewProduction()
		log = baseLogger.Sugar()
	}
	return log
}

// Sync flushes any buffered log entries
func Sync() {
	if log != nil {
		log.Sync()
	}
}

func Debugw(msg string, keysAndValues ...interface{}) {
	GetSugaredLogger().Debugw(msg, keysAndValues...)
}

func Infow(msg string, keysAndValues ...interface{}) {
	GetSugaredLogger().Infow(msg, keysAndValues...)
}

func Warnw(msg string, keysAndValues ...interface{}) {
	GetSugaredLogger().Warnw(msg, keysAndValues...)
}

func Errorw(msg string, keysAndValues ...interface{}) {
	GetSugaredLogger().Errorw(msg, keysAndValues...)
}

func Fatalf(template string, args ...interface{}) {
	GetSugaredLogger().Fatalf(template, args...)
	os.Exit(1)
}
