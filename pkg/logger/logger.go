package logger

import (
	"io"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"
)

// LogField represents a structured log field with concrete types
type LogField struct {
	Key   string
	Value string
}

// Logger is the logging surface every component receives through its Config.
type Logger interface {
	Info(msg string, fields ...LogField)
	Error(msg string, fields ...LogField)
	Debug(msg string, fields ...LogField)
	Warn(msg string, fields ...LogField)
	WithFields(fields ...LogField) Logger
	WithCorrelationID(id string) Logger
	HTTPMiddleware(next http.Handler) http.Handler
}

// Config represents logger configuration
type Config struct {
	Level   Level
	Format  string
	Service string
	Output  io.Writer // defaults to os.Stdout
}

type logger struct {
	logrus *logrus.Logger
	fields []LogField
}

// NewLogger creates a new logger instance with the given configuration
func NewLogger(config Config) Logger {
	l := logrus.New()

	if config.Format == "text" {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}

	if config.Output != nil {
		l.SetOutput(config.Output)
	} else {
		l.SetOutput(os.Stdout)
	}

	l.SetLevel(config.Level.logrusLevel())

	var fields []LogField
	if config.Service != "" {
		fields = []LogField{StringField("service", config.Service)}
	}

	return &logger{logrus: l, fields: fields}
}

// WithFields returns a new logger carrying the additional fields. The receiver is not modified.
func (l *logger) WithFields(fields ...LogField) Logger {
	merged := make([]LogField, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &logger{logrus: l.logrus, fields: merged}
}

// WithCorrelationID returns a new logger with correlation ID field
func (l *logger) WithCorrelationID(id string) Logger {
	return l.WithFields(CorrelationIDField(id))
}

func (l *logger) Info(msg string, fields ...LogField)  { l.log(logrus.InfoLevel, msg, fields) }
func (l *logger) Error(msg string, fields ...LogField) { l.log(logrus.ErrorLevel, msg, fields) }
func (l *logger) Debug(msg string, fields ...LogField) { l.log(logrus.DebugLevel, msg, fields) }
func (l *logger) Warn(msg string, fields ...LogField)  { l.log(logrus.WarnLevel, msg, fields) }

func (l *logger) log(level logrus.Level, msg string, fields []LogField) {
	if !l.logrus.IsLevelEnabled(level) {
		return
	}
	entryFields := make(logrus.Fields, len(l.fields)+len(fields))
	for _, f := range l.fields {
		entryFields[f.Key] = f.Value
	}
	for _, f := range fields {
		entryFields[f.Key] = f.Value
	}
	l.logrus.WithFields(entryFields).Log(level, msg)
}
