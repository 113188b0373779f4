package logging

import (
	"fmt"
	"sync"
	"time"
)

// ErrorCategory groups faults by the stage that raised them
type ErrorCategory string

const (
	ErrorCategoryLoad     ErrorCategory = "load"
	ErrorCategoryLookup   ErrorCategory = "lookup"
	ErrorCategoryFrame    ErrorCategory = "frame"
	ErrorCategoryDatabase ErrorCategory = "database"
	ErrorCategoryServer   ErrorCategory = "server"
)

// ErrorSeverity represents the severity of an error
type ErrorSeverity string

const (
	ErrorSeverityLow      ErrorSeverity = "low"
	ErrorSeverityHigh     ErrorSeverity = "high"
	ErrorSeverityCritical ErrorSeverity = "critical"
)

// ErrorReport is one recorded fault
type ErrorReport struct {
	Timestamp time.Time              `json:"timestamp"`
	Category  ErrorCategory          `json:"category"`
	Severity  ErrorSeverity          `json:"severity"`
	Component string                 `json:"component"`
	Message   string                 `json:"message"`
	Error     string                 `json:"error,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

// ErrorCallback is called synchronously for every report
type ErrorCallback func(report ErrorReport)

// ErrorReporter logs faults and keeps a bounded history for status pages
type ErrorReporter struct {
	logger     *Logger
	maxHistory int

	history   []ErrorReport
	callbacks []ErrorCallback
	mu        sync.RWMutex
}

// NewErrorReporter creates a reporter that logs through logger
func NewErrorReporter(logger *Logger, maxHistory int) *ErrorReporter {
	if maxHistory <= 0 {
		maxHistory = 100
	}
	return &ErrorReporter{logger: logger, maxHistory: maxHistory}
}

// Report records a fault
func (er *ErrorReporter) Report(category ErrorCategory, severity ErrorSeverity, component, message string, err error, context map[string]interface{}) {
	report := ErrorReport{
		Timestamp: time.Now(),
		Category:  category,
		Severity:  severity,
		Component: component,
		Message:   message,
		Context:   context,
	}
	if err != nil {
		report.Error = err.Error()
	}

	logContext := map[string]interface{}{
		"category":  string(category),
		"component": component,
	}
	for k, v := range context {
		logContext[k] = v
	}
	switch severity {
	case ErrorSeverityCritical, ErrorSeverityHigh:
		er.logger.ErrorWithContext(message, err, logContext)
	default:
		er.logger.WarnWithContext(message, logContext)
	}

	er.mu.Lock()
	er.history = append(er.history, report)
	if len(er.history) > er.maxHistory {
		er.history = er.history[len(er.history)-er.maxHistory:]
	}
	callbacks := append([]ErrorCallback(nil), er.callbacks...)
	er.mu.Unlock()

	for _, cb := range callbacks {
		cb(report)
	}
}

// OnError registers a callback for every future report
func (er *ErrorReporter) OnError(cb ErrorCallback) {
	er.mu.Lock()
	defer er.mu.Unlock()
	er.callbacks = append(er.callbacks, cb)
}

// Recent returns up to n of the newest reports, oldest first
func (er *ErrorReporter) Recent(n int) []ErrorReport {
	er.mu.RLock()
	defer er.mu.RUnlock()

	if n > len(er.history) {
		n = len(er.history)
	}
	out := make([]ErrorReport, n)
	copy(out, er.history[len(er.history)-n:])
	return out
}

// Stats counts reports by category and severity
func (er *ErrorReporter) Stats() map[string]int {
	er.mu.RLock()
	defer er.mu.RUnlock()

	stats := map[string]int{"total": len(er.history)}
	for _, r := range er.history {
		stats[fmt.Sprintf("category_%s", r.Category)]++
		stats[fmt.Sprintf("severity_%s", r.Severity)]++
	}
	return stats
}
