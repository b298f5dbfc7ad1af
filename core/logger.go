package core

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/taskgraphd/taskgraph/ratelimit"
)

// StructuredLogger is a dual text/JSON logger: JSON when running in
// Kubernetes (or when explicitly requested) for log aggregation,
// human-readable text otherwise, with error-level output rate-limited
// so a failing run doesn't flood stdout.
type StructuredLogger struct {
	level       string
	debug       bool
	serviceName string
	component   string
	format      string
	output      io.Writer

	errorGate *ratelimit.IntervalGate
}

// NewStructuredLogger builds a logger for serviceName. Format resolves
// in priority order: TASKGRAPH_LOG_FORMAT, then auto-detected Kubernetes
// ("json"), then "text". Level defaults to INFO; debug mode follows
// TASKGRAPH_DEBUG or an explicit DEBUG level.
func NewStructuredLogger(serviceName string) *StructuredLogger {
	level := os.Getenv("TASKGRAPH_LOG_LEVEL")
	if level == "" {
		level = "INFO"
	}
	level = strings.ToUpper(level)
	debug := os.Getenv("TASKGRAPH_DEBUG") == "true" || level == "DEBUG"

	format := "text"
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		format = "json"
	}
	if f := os.Getenv("TASKGRAPH_LOG_FORMAT"); f != "" {
		format = f
	}

	return &StructuredLogger{
		level:       level,
		debug:       debug,
		serviceName: serviceName,
		format:      format,
		output:      os.Stdout,
		errorGate:   ratelimit.NewIntervalGate(time.Second),
	}
}

// WithComponent returns a logger tagging every line with component,
// sharing this logger's level/format/output/rate limiter.
func (l *StructuredLogger) WithComponent(component string) Logger {
	clone := *l
	clone.component = component
	return &clone
}

func (l *StructuredLogger) Info(msg string, fields map[string]interface{}) {
	l.log("INFO", msg, fields)
}

func (l *StructuredLogger) Warn(msg string, fields map[string]interface{}) {
	l.log("WARN", msg, fields)
}

func (l *StructuredLogger) Error(msg string, fields map[string]interface{}) {
	// Non-blocking rate limit: TryAcquire drops a suppressed line instead
	// of waiting for the gate to reopen.
	if !l.errorGate.TryAcquire(l.errorGateKey()) {
		return
	}
	l.log("ERROR", msg, fields)
}

func (l *StructuredLogger) Debug(msg string, fields map[string]interface{}) {
	if !l.debug {
		return
	}
	l.log("DEBUG", msg, fields)
}

func (l *StructuredLogger) errorGateKey() string {
	if l.component != "" {
		return l.component
	}
	return l.serviceName
}

func (l *StructuredLogger) log(level, msg string, fields map[string]interface{}) {
	if !l.shouldLog(level) {
		return
	}
	timestamp := time.Now().Format(time.RFC3339)
	if l.format == "json" {
		l.logJSON(timestamp, level, msg, fields)
	} else {
		l.logText(timestamp, level, msg, fields)
	}
}

func (l *StructuredLogger) logJSON(timestamp, level, msg string, fields map[string]interface{}) {
	entry := map[string]interface{}{
		"timestamp": timestamp,
		"level":     level,
		"service":   l.serviceName,
		"message":   msg,
	}
	if l.component != "" {
		entry["component"] = l.component
	}
	for k, v := range fields {
		if _, reserved := entry[k]; !reserved {
			entry[k] = v
		}
	}
	if data, err := json.Marshal(entry); err == nil {
		fmt.Fprintln(l.output, string(data))
	}
}

func (l *StructuredLogger) logText(timestamp, level, msg string, fields map[string]interface{}) {
	var b strings.Builder
	for k, v := range fields {
		fmt.Fprintf(&b, " %s=%v", k, v)
	}
	component := l.component
	if component == "" {
		component = l.serviceName
	}
	fmt.Fprintf(l.output, "%s [%s] [%s] %s%s\n", timestamp, level, component, msg, b.String())
}

func (l *StructuredLogger) shouldLog(level string) bool {
	order := map[string]int{"DEBUG": 0, "INFO": 1, "WARN": 2, "ERROR": 3}
	cur, ok1 := order[l.level]
	msg, ok2 := order[level]
	if !ok1 || !ok2 {
		return true
	}
	return msg >= cur
}

// SetOutput redirects log output; used by tests to capture lines.
func (l *StructuredLogger) SetOutput(w io.Writer) {
	l.output = w
}
