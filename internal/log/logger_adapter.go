package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"firestige.xyz/tapstack/internal/config"
)

type logrusAdapter struct {
	entry *logrus.Entry
}

// Init replaces the process logger according to cfg.
func Init(cfg config.LogConfig) error {
	l, err := build(cfg, os.Stdout)
	if err != nil {
		return err
	}
	setLogger(l)
	return nil
}

// build creates a logger writing to out plus the configured outputs.
func build(cfg config.LogConfig, out io.Writer) (*logrusAdapter, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	l := logrus.New()
	l.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
	case "pattern":
		l.SetFormatter(&formatter{pattern: cfg.Pattern, time: cfg.Time})
	default:
		return nil, fmt.Errorf("unsupported log format: %s (must be json, text or pattern)", cfg.Format)
	}

	writers := NewMultiWriter().Add(out)
	if cfg.Outputs.File.Enabled {
		if cfg.Outputs.File.Path == "" {
			return nil, fmt.Errorf("file output requires 'path' field")
		}
		writers.AddFileAppender(cfg.Outputs.File)
	}
	l.SetOutput(writers)

	return &logrusAdapter{entry: logrus.NewEntry(l)}, nil
}

func (l *logrusAdapter) Trace(args ...interface{})                 { l.entry.Trace(args...) }
func (l *logrusAdapter) Tracef(format string, args ...interface{}) { l.entry.Tracef(format, args...) }

func (l *logrusAdapter) Debug(args ...interface{})                 { l.entry.Debug(args...) }
func (l *logrusAdapter) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }

func (l *logrusAdapter) Info(args ...interface{})                 { l.entry.Info(args...) }
func (l *logrusAdapter) Infof(format string, args ...interface{}) { l.entry.Infof(format, args...) }

func (l *logrusAdapter) Warn(args ...interface{})                 { l.entry.Warn(args...) }
func (l *logrusAdapter) Warnf(format string, args ...interface{}) { l.entry.Warnf(format, args...) }

func (l *logrusAdapter) Error(args ...interface{})                 { l.entry.Error(args...) }
func (l *logrusAdapter) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

func (l *logrusAdapter) WithField(field string, value interface{}) Logger {
	return &logrusAdapter{entry: l.entry.WithField(field, value)}
}
func (l *logrusAdapter) WithFields(fields map[string]interface{}) Logger {
	return &logrusAdapter{entry: l.entry.WithFields(fields)}
}
func (l *logrusAdapter) WithError(err error) Logger {
	return &logrusAdapter{entry: l.entry.WithError(err)}
}

func (l *logrusAdapter) IsTraceEnabled() bool {
	return l.entry.Logger.IsLevelEnabled(logrus.TraceLevel)
}
func (l *logrusAdapter) IsDebugEnabled() bool {
	return l.entry.Logger.IsLevelEnabled(logrus.DebugLevel)
}
