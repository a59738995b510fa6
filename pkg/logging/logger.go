package logging

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/fatih/color"
)

// writer is an io.Writer that splits its input stream into lines and writes
// those lines to an underlying logger.
type writer struct {
	// callback is the logging callback.
	callback func(string)
	// buffer is any incomplete line fragment left over from a previous write.
	buffer []byte
}

// trimCarriageReturn trims any single trailing carriage return from the end
// of a byte slice.
func trimCarriageReturn(buffer []byte) []byte {
	if len(buffer) > 0 && buffer[len(buffer)-1] == '\r' {
		return buffer[:len(buffer)-1]
	}
	return buffer
}

// Write implements io.Writer.Write.
func (w *writer) Write(buffer []byte) (int, error) {
	w.buffer = append(w.buffer, buffer...)

	var processed int
	remaining := w.buffer
	for {
		index := bytes.IndexByte(remaining, '\n')
		if index == -1 {
			break
		}
		w.callback(string(trimCarriageReturn(remaining[:index])))
		processed += index + 1
		remaining = remaining[index+1:]
	}

	if processed > 0 {
		leftover := len(w.buffer) - processed
		if leftover > 0 {
			copy(w.buffer[:leftover], w.buffer[processed:])
		}
		w.buffer = w.buffer[:leftover]
	}

	return len(buffer), nil
}

// Logger is the main logger type. It wraps the standard library's log
// package so that it respects any flags set for that logger, but adds level
// filtering, colorized warning/error output, and hierarchical sublogger
// prefixes. A nil *Logger is safe to call methods on and discards output,
// which lets callers accept an optional logger without nil-checking at every
// call site.
type Logger struct {
	// root is the underlying standard library logger shared by this logger
	// and all of its subloggers.
	root *log.Logger
	// level is the minimum level at which this logger (and its subloggers)
	// emit output.
	level Level
	// prefix is the dotted hierarchy name for this logger, empty at the
	// root.
	prefix string
}

// NewLogger creates a new root logger that writes to the specified writer,
// filtering output below the specified level.
func NewLogger(level Level, output io.Writer) *Logger {
	return &Logger{
		root:  log.New(output, "", log.LstdFlags),
		level: level,
	}
}

// Sublogger creates a new logger that shares this logger's level and output
// but prefixes its lines with the specified name, nested under this logger's
// own prefix.
func (l *Logger) Sublogger(name string) *Logger {
	if l == nil {
		return nil
	}
	prefix := name
	if l.prefix != "" {
		prefix = l.prefix + "." + name
	}
	return &Logger{
		root:   l.root,
		level:  l.level,
		prefix: prefix,
	}
}

// Level returns the logger's configured level.
func (l *Logger) Level() Level {
	if l == nil {
		return LevelDisabled
	}
	return l.level
}

// enabled reports whether the given level would actually produce output.
func (l *Logger) enabled(level Level) bool {
	return l != nil && l.level >= level
}

func (l *Logger) output(line string) {
	if l.prefix != "" {
		line = fmt.Sprintf("[%s] %s", l.prefix, line)
	}
	l.root.Output(3, line)
}

// Info logs basic execution information.
func (l *Logger) Info(v ...any) {
	if l.enabled(LevelInfo) {
		l.output(fmt.Sprint(v...))
	}
}

// Infof logs basic execution information using a format string.
func (l *Logger) Infof(format string, v ...any) {
	if l.enabled(LevelInfo) {
		l.output(fmt.Sprintf(format, v...))
	}
}

// Debug logs advanced execution information, only if debugging is enabled.
func (l *Logger) Debug(v ...any) {
	if l.enabled(LevelDebug) {
		l.output(fmt.Sprint(v...))
	}
}

// Debugf logs advanced execution information using a format string, only if
// debugging is enabled.
func (l *Logger) Debugf(format string, v ...any) {
	if l.enabled(LevelDebug) {
		l.output(fmt.Sprintf(format, v...))
	}
}

// Warn logs a non-fatal problem.
func (l *Logger) Warn(v ...any) {
	if l.enabled(LevelWarn) {
		l.output(color.YellowString("Warning: %s", fmt.Sprint(v...)))
	}
}

// Warnf logs a non-fatal problem using a format string.
func (l *Logger) Warnf(format string, v ...any) {
	if l.enabled(LevelWarn) {
		l.output(color.YellowString("Warning: %s", fmt.Sprintf(format, v...)))
	}
}

// Error logs a fatal or otherwise serious problem.
func (l *Logger) Error(v ...any) {
	if l.enabled(LevelError) {
		l.output(color.RedString("Error: %s", fmt.Sprint(v...)))
	}
}

// Errorf logs a fatal or otherwise serious problem using a format string.
func (l *Logger) Errorf(format string, v ...any) {
	if l.enabled(LevelError) {
		l.output(color.RedString("Error: %s", fmt.Sprintf(format, v...)))
	}
}

// Writer returns an io.Writer that logs each line it receives at info level.
// It is safe for concurrent use as the target of an io.Copy or similar.
func (l *Logger) Writer() io.Writer {
	if l == nil {
		return io.Discard
	}
	w := &writer{callback: func(s string) { l.Info(s) }}
	return &syncWriter{w: w}
}

// syncWriter serializes writes to an underlying writer.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
