package log

import (
	"io"

	"gopkg.in/natefinch/lumberjack.v2"

	"firestige.xyz/tapstack/internal/config"
)

// MultiWriter writes every entry to all appenders. A failing appender does
// not stop the others.
type MultiWriter struct {
	writers []io.Writer
}

func (m *MultiWriter) Write(p []byte) (n int, err error) {
	for _, w := range m.writers {
		_, e := w.Write(p)
		if e != nil {
			err = e
		}
	}
	return len(p), err
}

func (m *MultiWriter) Add(writer io.Writer) *MultiWriter {
	m.writers = append(m.writers, writer)
	return m
}

// AddFileAppender adds a size-rotated log file.
func (m *MultiWriter) AddFileAppender(fc config.FileOutputConfig) *MultiWriter {
	writer := &lumberjack.Logger{
		Filename:   fc.Path,
		MaxSize:    fc.Rotation.MaxSizeMB,  // megabytes
		MaxBackups: fc.Rotation.MaxBackups, // number of backups
		MaxAge:     fc.Rotation.MaxAgeDays, // days
		Compress:   fc.Rotation.Compress,
	}
	m.writers = append(m.writers, writer)
	return m
}

func NewMultiWriter() *MultiWriter {
	return &MultiWriter{writers: make([]io.Writer, 0)}
}
