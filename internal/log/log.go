// Package log wraps logrus behind a small Logger interface. Output always
// goes to stdout, optionally teed into a lumberjack-rotated file.
package log

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

type Logger interface {
	Trace(args ...interface{})
	Tracef(format string, args ...interface{})

	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsTraceEnabled() bool
	IsDebugEnabled() bool
}

var (
	mu     sync.RWMutex
	logger Logger = newDefault()
)

// GetLogger returns the process logger. Before Init it logs text at info
// level to stdout.
func GetLogger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func setLogger(l Logger) {
	mu.Lock()
	logger = l
	mu.Unlock()
}

func newDefault() Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(logrus.InfoLevel)
	return &logrusAdapter{entry: logrus.NewEntry(l)}
}
