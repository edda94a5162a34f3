package badger

import (
	"fmt"
	"log/slog"
)

// slogAdapter adapts slog.Logger to badger's logger interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (l *slogAdapter) Errorf(format string, v ...any) {
	l.logger.Error(fmt.Sprintf(format, v...))
}

func (l *slogAdapter) Warningf(format string, v ...any) {
	l.logger.Warn(fmt.Sprintf(format, v...))
}

func (l *slogAdapter) Infof(format string, v ...any) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

func (l *slogAdapter) Debugf(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...))
}
