package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the run logger. Console output with coloured levels unless
// jsonFormat is set; debug level when verbose. Both write to stderr.
func New(verbose bool, jsonFormat bool) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	var logConfig zap.Config
	if jsonFormat {
		logConfig = zap.NewProductionConfig()
	} else {
		logConfig = zap.NewDevelopmentConfig()
		logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		logConfig.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("02/01/2006 15:04:05")
	}
	logConfig.Level = zap.NewAtomicLevelAt(level)
	logConfig.DisableStacktrace = !verbose

	logger, err := logConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	return logger.Named("zsr"), nil
}
