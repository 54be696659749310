package logging

import (
	"github.com/sirupsen/logrus"

	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/pkg/config"
)

// Logger is the shared logger handle passed through constructors.
type Logger = *logrus.Logger

// Fields holds structured logging fields.
type Fields = logrus.Fields

// NewLogger returns a JSON logger at the configured level.
func NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(config.GetLogLevel())
	return logger
}

// serviceHook stamps every entry with the service name.
type serviceHook struct {
	name string
}

func (h serviceHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h serviceHook) Fire(entry *logrus.Entry) error {
	entry.Data["service"] = h.name
	return nil
}

// NewLoggerWithService returns a logger that tags all entries with the
// service name.
func NewLoggerWithService(serviceName string) *logrus.Logger {
	logger := NewLogger()
	logger.AddHook(serviceHook{name: serviceName})
	return logger
}
