// Package logging provides named, levelled, structured logging for costlens.
//
// Every component asks for a named logger once and keeps it:
//
//	logger := logging.GetLogger("graph.sync.rules")
//	logger.Info("rule %s created %d edges", id, n)
//	logger.InfoWithFields("stage complete",
//	    logging.Field("stage", "projection"),
//	    logging.Field("duration_ms", elapsed.Milliseconds()),
//	)
//
// Child loggers carry persistent fields (WithField, WithFields) and an optional
// context (WithContext). When the context carries an active OpenTelemetry span,
// its trace_id and span_id are added to every line.
//
// Levels can be overridden per package with exact names or wildcard patterns:
//
//	logging.Initialize("info", map[string]string{"graph.*": "debug"})
//
// Output format is "[ts] [LEVEL] name: msg | k=v ..." with fields sorted by key.
// Set LOG_TIMESTAMP to pin the timestamp in tests.
package logging

import (
	"context"
	"os"
	"sync"
)

var (
	globalLogger *Logger
	globalMu     sync.RWMutex
	// exitFunc is called by Fatal. Tests replace it.
	exitFunc = os.Exit
)

// Initialize sets the default level and optional per-package overrides.
// Unknown default levels fall back to INFO.
func Initialize(levelStr string, packageLevels ...map[string]string) error {
	level, err := parseLevel(levelStr)
	if err != nil {
		level = INFO
	}

	globalMu.Lock()
	globalLogger = &Logger{
		level: level,
		name:  "costlens",
	}
	globalMu.Unlock()

	if len(packageLevels) > 0 && packageLevels[0] != nil {
		if err := SetPackageLogLevels(packageLevels[0]); err != nil {
			return err
		}
	}

	return nil
}

// GetLogger returns a logger with the specified name, initializing the global
// logger at INFO on first use
func GetLogger(name string) *Logger {
	globalMu.RLock()
	root := globalLogger
	globalMu.RUnlock()

	if root == nil {
		_ = Initialize("info")
		globalMu.RLock()
		root = globalLogger
		globalMu.RUnlock()
	}

	return &Logger{
		level:  root.level,
		name:   name,
		fields: make(map[string]interface{}),
	}
}

// shouldLog checks package overrides first, then the logger's own level
func (l *Logger) shouldLog(level LogLevel) bool {
	if pkgLevel := GetPackageLogLevel(l.name); pkgLevel >= 0 {
		return level >= pkgLevel
	}
	return level >= l.level
}

// Name returns the logger name
func (l *Logger) Name() string {
	return l.name
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...interface{}) {
	if l.shouldLog(DEBUG) {
		l.logf(levelDebug, msg, args...)
	}
}

// Info logs an info message
func (l *Logger) Info(msg string, args ...interface{}) {
	if l.shouldLog(INFO) {
		l.logf(levelInfo, msg, args...)
	}
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, args ...interface{}) {
	if l.shouldLog(WARN) {
		l.logf(levelWarn, msg, args...)
	}
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...interface{}) {
	if l.shouldLog(ERROR) {
		l.logf(levelError, msg, args...)
	}
}

// Fatal logs a fatal message and exits with code 1
func (l *Logger) Fatal(msg string, args ...interface{}) {
	if l.shouldLog(FATAL) {
		l.logf(levelFatal, msg, args...)
		exitFunc(1)
	}
}

// ErrorWithErr logs msg followed by the error
func (l *Logger) ErrorWithErr(msg string, err error, args ...interface{}) {
	if l.shouldLog(ERROR) {
		args = append(args, err)
		l.logf(levelError, msg+" - %v", args...)
	}
}

// WithField returns a child logger with one more persistent field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	child := l.clone()
	child.fields[key] = value
	return child
}

// WithFields returns a child logger with additional persistent fields
func (l *Logger) WithFields(fields ...LogField) *Logger {
	child := l.clone()
	for _, f := range fields {
		child.fields[f.Key] = f.Value
	}
	return child
}

// WithContext returns a child logger that reads trace and span ids from ctx
func (l *Logger) WithContext(ctx context.Context) *Logger {
	child := l.clone()
	child.ctx = ctx
	return child
}

func (l *Logger) clone() *Logger {
	return &Logger{
		level:  l.level,
		name:   l.name,
		fields: cloneFields(l.fields),
		ctx:    l.ctx,
	}
}

// DebugWithFields logs a debug message with structured fields
func (l *Logger) DebugWithFields(msg string, fields ...LogField) {
	if l.shouldLog(DEBUG) {
		l.logWithFields(levelDebug, msg, fields...)
	}
}

// InfoWithFields logs an info message with structured fields
func (l *Logger) InfoWithFields(msg string, fields ...LogField) {
	if l.shouldLog(INFO) {
		l.logWithFields(levelInfo, msg, fields...)
	}
}

// WarnWithFields logs a warning message with structured fields
func (l *Logger) WarnWithFields(msg string, fields ...LogField) {
	if l.shouldLog(WARN) {
		l.logWithFields(levelWarn, msg, fields...)
	}
}

// ErrorWithFields logs an error message with structured fields
func (l *Logger) ErrorWithFields(msg string, fields ...LogField) {
	if l.shouldLog(ERROR) {
		l.logWithFields(levelError, msg, fields...)
	}
}

// logWithFields merges context < persistent < call-site fields, last wins
func (l *Logger) logWithFields(level, msg string, fields ...LogField) {
	merged := l.mergedFields()
	if len(fields) > 0 && merged == nil {
		merged = make(map[string]interface{}, len(fields))
	}
	for _, f := range fields {
		merged[f.Key] = f.Value
	}
	l.writeLog(level, msg, merged)
}

// mergedFields returns context and persistent fields, or nil when there are none
func (l *Logger) mergedFields() map[string]interface{} {
	contextFields := extractContextFields(l.ctx)
	if contextFields == nil && len(l.fields) == 0 {
		return nil
	}

	merged := make(map[string]interface{}, len(contextFields)+len(l.fields))
	for k, v := range contextFields {
		merged[k] = v
	}
	for k, v := range l.fields {
		merged[k] = v
	}
	return merged
}
