package utils

import (
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// InitLogger configures the process-wide charm logger.
func InitLogger(prefix, level string) {
	logger := log.NewWithOptions(os.Stdout, log.Options{
		Prefix:          prefix,
		ReportTimestamp: true,
		ReportCaller:    true,
		TimeFormat:      time.DateTime,
	})

	switch strings.ToLower(level) {
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "warn":
		logger.SetLevel(log.WarnLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}
	log.SetDefault(logger)
}
