package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls where and how verbosely the daemon logs.
type Options struct {
	Level   string
	LogPath string
	InboxID int64
	// Container switches to JSON on stderr only; the orchestrator collects it.
	Container bool
}

// New creates a zap logger. Outside a container it writes JSON to LogPath and a
// console rendering to stderr. The inbox id and PID are included as initial fields.
func New(opts Options) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(opts.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	jsonEncoder := zapcore.NewJSONEncoder(encoderCfg)

	var core zapcore.Core
	if opts.Container {
		core = zapcore.NewCore(jsonEncoder, zapcore.Lock(os.Stderr), level)
	} else {
		if err := os.MkdirAll(filepath.Dir(opts.LogPath), 0700); err != nil {
			return nil, err
		}
		file, err := os.OpenFile(opts.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, err
		}
		consoleEncoder := zapcore.NewConsoleEncoder(encoderCfg)
		core = zapcore.NewTee(
			zapcore.NewCore(jsonEncoder, zapcore.AddSync(file), level),
			zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), level),
		)
	}

	return zap.New(core,
		zap.Fields(
			zap.Int64("inbox_id", opts.InboxID),
			zap.Int("pid", os.Getpid()),
		),
	), nil
}
