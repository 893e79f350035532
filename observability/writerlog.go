package observability

import (
	"fmt"
	"io"
	"sync"
)

// WriterLogger writes one line per event to an io.Writer. It exists so the
// example programs have something to plug in; production callers are expected
// to adapt their own logging framework to the Logger interface.
type WriterLogger struct {
	mu     sync.Mutex
	w      io.Writer
	bound  []Field
	debugs bool
}

// NewWriterLogger returns a Logger emitting to w. Debug lines are suppressed
// unless debug is true.
func NewWriterLogger(w io.Writer, debug bool) *WriterLogger {
	return &WriterLogger{w: w, debugs: debug}
}

func (l *WriterLogger) Debug(msg string, fields ...Field) {
	if l.debugs {
		l.emit("DEBUG", msg, fields)
	}
}
func (l *WriterLogger) Info(msg string, fields ...Field)  { l.emit("INFO", msg, fields) }
func (l *WriterLogger) Warn(msg string, fields ...Field)  { l.emit("WARN", msg, fields) }
func (l *WriterLogger) Error(msg string, fields ...Field) { l.emit("ERROR", msg, fields) }

func (l *WriterLogger) With(fields ...Field) Logger {
	child := &WriterLogger{w: l.w, debugs: l.debugs}
	child.bound = append(append([]Field(nil), l.bound...), fields...)
	return child
}

func (l *WriterLogger) emit(level, msg string, fields []Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "%s %s", level, msg)
	for _, f := range l.bound {
		fmt.Fprintf(l.w, " %s=%v", f.Key(), f.Value())
	}
	for _, f := range fields {
		fmt.Fprintf(l.w, " %s=%v", f.Key(), f.Value())
	}
	fmt.Fprintln(l.w)
}
