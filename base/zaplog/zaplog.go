// Package zaplog holds the process-wide logger for components that are not
// handed one explicitly.
package zaplog

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var logger atomic.Pointer[zap.Logger]

// Logger returns the registered process logger, or a no-op logger when none
// has been registered yet.
func Logger() *zap.Logger {
	l := logger.Load()
	if l == nil {
		return zap.NewNop()
	}
	return l
}

func SetLogger(l *zap.Logger) { logger.Store(l) }
