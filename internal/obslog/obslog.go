// Package obslog hands every subsystem its own leveled logger, the way the
// teacher hands every subsystem its own *log.Logger with a bracketed
// prefix, optionally redirected to its own file.
package obslog

import (
	"io"
	"os"

	"github.com/pion/logging"
)

// Factory mints a logging.LeveledLogger per subsystem name, all sharing one
// output writer and scope level.
type Factory struct {
	inner *logging.DefaultLoggerFactory
}

// NewFactory builds a Factory writing to w (os.Stdout if w is nil) at the
// given scope level for every subsystem unless overridden.
func NewFactory(w io.Writer, level logging.LogLevel) *Factory {
	if w == nil {
		w = os.Stdout
	}
	f := logging.NewDefaultLoggerFactory()
	f.Writer = w
	f.DefaultLogLevel = level
	return &Factory{inner: f}
}

// NewFileFactory opens path as a file (truncating any existing content)
// and returns a Factory whose every subsystem logs there instead of the
// default writer. Mirrors the teacher's per-subsystem optional log file.
func NewFileFactory(path string, level logging.LogLevel) (*Factory, *os.File, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return NewFactory(file, level), file, nil
}

// For returns the leveled logger for the named subsystem, e.g.
// "directory", "router", "session", "sweeper", "admission", "history",
// "http".
func (f *Factory) For(subsystem string) logging.LeveledLogger {
	return f.inner.NewLogger(subsystem)
}
