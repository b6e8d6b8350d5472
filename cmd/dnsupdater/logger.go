package main

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Travis-Britz/dnsupdater/internal/config"
)

// newLogger writes JSON lines to cfg.LogFiles and additionally copies errors to cfg.ErrorLogFiles.
// Verbose enables V(1) messages.
func newLogger(cfg *config.Config) (logr.Logger, func(), error) {
	level := zapcore.InfoLevel
	if cfg.IsVerbose() {
		// zapr maps V(1) to zap's debug level
		level = zapcore.DebugLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderConfig)

	out, closeOut, err := zap.Open(cfg.LogFiles...)
	if err != nil {
		return logr.Discard(), nil, fmt.Errorf("error opening log files: %w", err)
	}
	cores := []zapcore.Core{zapcore.NewCore(encoder, out, level)}
	closers := []func(){closeOut}

	if len(cfg.ErrorLogFiles) > 0 {
		errOut, closeErr, err := zap.Open(cfg.ErrorLogFiles...)
		if err != nil {
			closeOut()
			return logr.Discard(), nil, fmt.Errorf("error opening error log files: %w", err)
		}
		cores = append(cores, zapcore.NewCore(encoder.Clone(), errOut, zapcore.ErrorLevel))
		closers = append(closers, closeErr)
	}

	z := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	return zapr.NewLogger(z), func() {
		_ = z.Sync()
		for _, c := range closers {
			c()
		}
	}, nil
}
