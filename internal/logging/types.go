package logging

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// LogLevel represents the logging level
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

// LogField is a single structured key/value pair
type LogField struct {
	Key   string
	Value interface{}
}

// Field creates a structured logging field
func Field(key string, value interface{}) LogField {
	return LogField{Key: key, Value: value}
}

// Logger is a named logger with persistent fields and an optional context
type Logger struct {
	level  LogLevel
	name   string
	fields map[string]interface{}
	ctx    context.Context
}

// Per-package overrides. Keys are exact logger names or "prefix.*" patterns.
var (
	packageLogLevels = make(map[string]LogLevel)
	packageLogMutex  sync.RWMutex
)

// SetPackageLogLevels replaces all per-package overrides.
// Input format: map["graph.sync"]="DEBUG" or map["graph.*"]="INFO".
func SetPackageLogLevels(levels map[string]string) error {
	if levels == nil {
		return nil
	}

	parsed := make(map[string]LogLevel, len(levels))
	for pkg, levelStr := range levels {
		level, err := parseLevel(levelStr)
		if err != nil {
			return fmt.Errorf("invalid log level for package %q: %w", pkg, err)
		}
		parsed[pkg] = level
	}

	packageLogMutex.Lock()
	packageLogLevels = parsed
	packageLogMutex.Unlock()
	return nil
}

// GetPackageLogLevel returns the override for a logger name, or -1 when none applies.
// Exact matches win, then the longest matching wildcard pattern.
func GetPackageLogLevel(packageName string) LogLevel {
	packageLogMutex.RLock()
	defer packageLogMutex.RUnlock()

	if level, ok := packageLogLevels[packageName]; ok {
		return level
	}

	var patterns []string
	for pattern := range packageLogLevels {
		if matchesPattern(packageName, pattern) {
			patterns = append(patterns, pattern)
		}
	}
	if len(patterns) == 0 {
		return LogLevel(-1)
	}

	sort.Slice(patterns, func(i, j int) bool { return len(patterns[i]) > len(patterns[j]) })
	return packageLogLevels[patterns[0]]
}

// matchesPattern reports whether "graph.sync" matches "graph.sync" or "graph.*"
func matchesPattern(packageName, pattern string) bool {
	if packageName == pattern {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, ".*"); ok {
		return strings.HasPrefix(packageName, prefix+".")
	}
	return false
}

func parseLevel(levelStr string) (LogLevel, error) {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return DEBUG, nil
	case "INFO":
		return INFO, nil
	case "WARN":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	case "FATAL":
		return FATAL, nil
	default:
		return -1, fmt.Errorf("invalid level: %s (must be DEBUG, INFO, WARN, ERROR, or FATAL)", levelStr)
	}
}

func cloneFields(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
