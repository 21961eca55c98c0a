package logging

import (
	"fmt"

	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
)

// WALogger exposes a zap logger through whatsmeow's logging interface.
type WALogger struct {
	logger *zap.Logger
}

var _ waLog.Logger = (*WALogger)(nil)

// NewWALogger wraps logger for whatsmeow under the given module name.
func NewWALogger(logger *zap.Logger, module string) *WALogger {
	return &WALogger{logger: logger.Named(module)}
}

func (l *WALogger) Debugf(msg string, args ...any) { l.logger.Debug(fmt.Sprintf(msg, args...)) }
func (l *WALogger) Infof(msg string, args ...any)  { l.logger.Info(fmt.Sprintf(msg, args...)) }
func (l *WALogger) Warnf(msg string, args ...any)  { l.logger.Warn(fmt.Sprintf(msg, args...)) }
func (l *WALogger) Errorf(msg string, args ...any) { l.logger.Error(fmt.Sprintf(msg, args...)) }

// Sub returns a child logger for a whatsmeow submodule.
func (l *WALogger) Sub(module string) waLog.Logger {
	return &WALogger{logger: l.logger.Named(module)}
}
