package config

import (
	"io"
	"os"
	"time"

	"github.com/pharmds-ddi-server/internal/domain"
	"github.com/sirupsen/logrus"
)

// NewLogger builds the process logger from the logging section. Unknown
// levels fall back to info. Output "stderr" keeps stdout free for stdio
// transports and machine-readable CLI output.
func NewLogger(cfg domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	logger.SetOutput(logOutput(cfg.Output))
	return logger
}

func logOutput(name string) io.Writer {
	switch name {
	case "stderr":
		return os.Stderr
	case "discard":
		return io.Discard
	default:
		return os.Stdout
	}
}
