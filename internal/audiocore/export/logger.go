package export

import (
	"sync"

	"github.com/tphakala/voicetrigger/internal/logger"
)

var (
	serviceLogger logger.Logger
	loggerOnce    sync.Once
)

// GetLogger returns the package logger.
func GetLogger() logger.Logger {
	loggerOnce.Do(func() {
		serviceLogger = logger.Global().Module("export")
	})
	return serviceLogger
}
