package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const timestampFormat = "02-01-06:15:04:05"

// contextKey type for storing context values
type contextKey string

// RequestIDKey carries the per-request ID assigned by the access log middleware.
const RequestIDKey contextKey = "request_id"

// Logger wraps a logrus logger with the props-map call style used across the code base.
type Logger struct {
	base   *logrus.Logger
	fields logrus.Fields
}

var (
	instance *Logger
	once     sync.Once
)

// GetLogger returns a singleton logger instance writing to stderr.
func GetLogger() *Logger {
	once.Do(func() {
		instance = New(os.Stderr)
	})
	return instance
}

// New creates a logger writing text lines to out at info level.
func New(out io.Writer) *Logger {
	base := logrus.New()
	base.SetOutput(out)
	base.SetLevel(logrus.InfoLevel)
	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: timestampFormat,
	})
	return &Logger{base: base}
}

// Configure sets the level ("debug", "info", ...) and the format ("text" or "json").
func (l *Logger) Configure(level, format string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	switch strings.ToLower(format) {
	case "", "text":
		l.base.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timestampFormat,
		})
	case "json":
		l.base.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	default:
		return fmt.Errorf("invalid log format %q", format)
	}

	l.base.SetLevel(lvl)
	return nil
}

// Writer returns a writer whose lines are logged at error level, for use as
// a standard library *log.Logger output. Close it when done.
func (l *Logger) Writer() *io.PipeWriter {
	return l.base.WriterLevel(logrus.ErrorLevel)
}

// EnableDebug enables debug logging
func (l *Logger) EnableDebug() {
	l.base.SetLevel(logrus.DebugLevel)
}

// WithContext returns a logger that adds the request ID stored in ctx, if any.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	reqID := RequestID(ctx)
	if reqID == "" {
		return l
	}
	return l.With(map[string]interface{}{"request_id": reqID})
}

// With returns a logger that adds props to every line.
func (l *Logger) With(props map[string]interface{}) *Logger {
	fields := make(logrus.Fields, len(l.fields)+len(props))
	for k, v := range l.fields {
		fields[k] = v
	}
	for k, v := range props {
		fields[k] = v
	}
	return &Logger{base: l.base, fields: fields}
}

func (l *Logger) entry(props []map[string]interface{}) *logrus.Entry {
	// Caller of Info/Error/...
	pc, file, line, ok := runtime.Caller(2)

	fields := make(logrus.Fields, len(l.fields)+2)
	for k, v := range l.fields {
		fields[k] = v
	}
	if ok {
		fields["location"] = fmt.Sprintf("%s:%d", filepath.Base(file), line)
		if fn := runtime.FuncForPC(pc); fn != nil {
			fields["function"] = filepath.Base(fn.Name())
		}
	}
	if len(props) > 0 {
		for k, v := range props[0] {
			fields[k] = v
		}
	}
	return l.base.WithFields(fields)
}

func (l *Logger) Info(msg string, props ...map[string]interface{}) {
	l.entry(props).Info(msg)
}

func (l *Logger) Warn(msg string, props ...map[string]interface{}) {
	l.entry(props).Warn(msg)
}

func (l *Logger) Error(msg string, props ...map[string]interface{}) {
	l.entry(props).Error(msg)
}

func (l *Logger) Debug(msg string, props ...map[string]interface{}) {
	l.entry(props).Debug(msg)
}

// Fatal logs at fatal level and exits the process with status 1.
func (l *Logger) Fatal(msg string, props ...map[string]interface{}) {
	l.entry(props).Fatal(msg)
}

// ContextWithRequestID stores a request ID for WithContext.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// RequestID returns the request ID stored in ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}
