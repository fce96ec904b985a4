package logger

import (
	"io"
	"os"

	"github.com/rizkirmdhn/paipu/internal/common/config"
	"github.com/sirupsen/logrus"
)

// ComponentLogger wraps logrus.Logger to provide consistent component logging
type ComponentLogger struct {
	*logrus.Logger
	component string
}

// New creates a new logrus logger with standard configuration. Output always
// goes to stderr so stdout stays free for line-oriented results.
func New(cfg *config.Config) *logrus.Logger {
	return NewWithOutput(cfg, os.Stderr)
}

// NewWithOutput creates a logger writing to out
func NewWithOutput(cfg *config.Config, out io.Writer) *logrus.Logger {
	log := logrus.New()

	log.SetOutput(out)
	log.SetLevel(logrus.Level(cfg.GetAppConfig().LogLevel))
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	return log
}

// NewComponentLogger creates a logger with a component field
func NewComponentLogger(log *logrus.Logger, component string) *ComponentLogger {
	return &ComponentLogger{
		Logger:    log,
		component: component,
	}
}

// WithField adds a field to the log entry
func (c *ComponentLogger) WithField(key string, value interface{}) *logrus.Entry {
	return c.Logger.WithFields(logrus.Fields{
		"component": c.component,
		key:         value,
	})
}

// WithFields adds multiple fields to the log entry, always including component
func (c *ComponentLogger) WithFields(fields logrus.Fields) *logrus.Entry {
	if _, exists := fields["component"]; !exists {
		fields["component"] = c.component
	}
	return c.Logger.WithFields(fields)
}

// WithError adds an error field to the log entry
func (c *ComponentLogger) WithError(err error) *logrus.Entry {
	return c.Logger.WithFields(logrus.Fields{
		"component": c.component,
		"error":     err,
	})
}

// Entry returns an entry carrying only the component field
func (c *ComponentLogger) Entry() *logrus.Entry {
	return c.Logger.WithField("component", c.component)
}
