package cli

import (
	"io"
	"os"
	"strings"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/natefinch/lumberjack"

	"github.com/GabrielNunesIT/analytics-transport/internal/config"
)

// SetupLogging creates and configures a logger with the specified level.
// When fileCfg.Path is set, output goes to a rotating file instead of stderr;
// the returned io.Closer releases it.
func SetupLogging(level string, fileCfg config.LogFileConfig) (logger.ILogger, io.Closer) {
	out := newLogWriter(fileCfg)
	log := logger.NewConsoleLogger(out)

	switch strings.ToLower(level) {
	case "trace":
		log.SetLevel(logger.LevelTrace)
	case "debug":
		log.SetLevel(logger.LevelDebug)
	case "warn", "warning":
		log.SetLevel(logger.LevelWarning)
	case "error":
		log.SetLevel(logger.LevelError)
	default:
		log.SetLevel(logger.LevelInfo)
	}

	// Set as default logger for global access if needed
	logger.SetDefaultLogger(log)
	logger.SetCtxFallbackLogger(log)

	return log, out
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func newLogWriter(cfg config.LogFileConfig) io.WriteCloser {
	if cfg.Path == "" {
		return nopCloser{os.Stderr}
	}
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
}
