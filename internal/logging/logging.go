// Package logging builds the process logger: stderr plus an optional
// rotating file.
package logging

import (
	"io"
	"log"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/MSghais/focus-afk-sub001/internal/config"
)

// Logger is a writer shared by every component logger.
type Logger struct {
	out  io.Writer
	file *lumberjack.Logger
}

// New returns a Logger writing to stderr and, when cfg.File is set, to a
// file rotated by size and age.
func New(cfg config.LogConfig) *Logger {
	return newWithWriter(os.Stderr, cfg)
}

func newWithWriter(w io.Writer, cfg config.LogConfig) *Logger {
	l := &Logger{out: w}
	if cfg.File != "" {
		l.file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		l.out = io.MultiWriter(w, l.file)
	}
	return l
}

// Discard returns a Logger that writes nowhere.
func Discard() *Logger { return &Logger{out: io.Discard} }

// Writer returns the combined output.
func (l *Logger) Writer() io.Writer { return l.out }

// For returns a logger prefixed with "[name] ".
func (l *Logger) For(name string) *log.Logger {
	return For(l.out, name)
}

// Close flushes and closes the log file.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// For returns a standard logger on w prefixed with "[name] ".
func For(w io.Writer, name string) *log.Logger {
	return log.New(w, "["+strings.TrimSpace(name)+"] ", log.LstdFlags)
}
