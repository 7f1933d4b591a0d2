package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	levelDebug = "DEBUG"
	levelInfo  = "INFO"
	levelWarn  = "WARN"
	levelError = "ERROR"
	levelFatal = "FATAL"
)

var (
	outMu  sync.Mutex
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// SetOutput redirects log output. ERROR and FATAL go to errOut, everything else to out.
// Passing nil restores the process streams.
func SetOutput(out, errOut io.Writer) {
	outMu.Lock()
	defer outMu.Unlock()
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	stdout, stderr = out, errOut
}

// writeLog formats one line and routes it by severity
func (l *Logger) writeLog(level, msg string, fields map[string]interface{}) {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] [%s] %s: %s", GetTimestamp(), level, l.name, msg)

	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString(" |")
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, fields[k])
		}
	}
	b.WriteByte('\n')

	outMu.Lock()
	defer outMu.Unlock()
	if level == levelError || level == levelFatal {
		_, _ = io.WriteString(stderr, b.String())
	} else {
		_, _ = io.WriteString(stdout, b.String())
	}
}

// logf formats msg and writes it with context and persistent fields
func (l *Logger) logf(level, msg string, args ...interface{}) {
	l.writeLog(level, fmt.Sprintf(msg, args...), l.mergedFields())
}

// GetTimestamp returns an RFC3339 timestamp, or LOG_TIMESTAMP when set
func GetTimestamp() string {
	if override := os.Getenv("LOG_TIMESTAMP"); override != "" {
		return override
	}
	return time.Now().Format(time.RFC3339)
}
