// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Setup applies level (debug, info, warn, error) and format (json or text)
// to the standard logger and returns it.
func Setup(level string, format string) (*logrus.Logger, error) {
	return configure(logrus.StandardLogger(), os.Stderr, level, format)
}

// New builds a standalone logger, mostly for tests and CLI subcommands.
func New(out io.Writer, level string, format string) (*logrus.Logger, error) {
	return configure(logrus.New(), out, level, format)
}

func configure(logger *logrus.Logger, out io.Writer, level string, format string) (*logrus.Logger, error) {
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return logger, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}
	logger.SetLevel(lvl)
	logger.SetOutput(out)

	switch format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	default:
		return logger, fmt.Errorf("invalid LOG_FORMAT %q", format)
	}
	return logger, nil
}

// LogError records a failed step with its payload.
func LogError(logger logrus.FieldLogger, component string, operation string, payload any, err error) {
	if logger == nil || err == nil {
		return
	}
	logger.WithFields(logrus.Fields{
		"component": component,
		"operation": operation,
		"payload":   fmt.Sprintf("%+v", payload),
	}).WithError(err).Error(operation + " failed")
}
