package corc

import (
	"sync"

	"github.com/rs/zerolog"
)

var (
	pkgLogger   = zerolog.Nop()
	pkgLoggerMu sync.RWMutex
)

// SetLogger sets the logger used while parsing embedded methodology data.
// Calculators carry their own logger; see WithLogger.
func SetLogger(logger zerolog.Logger) {
	pkgLoggerMu.Lock()
	defer pkgLoggerMu.Unlock()
	pkgLogger = logger
}

func packageLogger() zerolog.Logger {
	pkgLoggerMu.RLock()
	defer pkgLoggerMu.RUnlock()
	return pkgLogger
}
