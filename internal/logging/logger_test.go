package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", LogLevelDebug, false},
		{" Warn ", LogLevelWarn, false},
		{"ERROR", LogLevelError, false},
		{"loud", LogLevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo("Test", &buf).SetMinLevel(LogLevelWarn)

	logger.Debug("debug line")
	logger.Info("info line")
	logger.Warn("warn line")
	logger.Error("error line", errors.New("boom"))

	out := buf.String()
	if strings.Contains(out, "debug line") || strings.Contains(out, "info line") {
		t.Errorf("Entries below WARN were written: %q", out)
	}
	if !strings.Contains(out, "WARN [Test] warn line") {
		t.Errorf("Missing warn entry: %q", out)
	}
	if !strings.Contains(out, "error line | error=boom") {
		t.Errorf("Missing error entry: %q", out)
	}
}

func TestTextFormatterSortsContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo("Test", &buf)
	logger.InfoWithContext("loaded", map[string]interface{}{"views": 3, "object_id": "cup", "level": 1})

	line := buf.String()
	if !strings.HasSuffix(line, "| level=1 object_id=cup views=3\n") {
		t.Errorf("Context not sorted: %q", line)
	}
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo("Test", &buf).SetFormatter(&JSONFormatter{})
	logger.ErrorWithContext("failed", errors.New("boom"), map[string]interface{}{"frame": 4})

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["level"] != "ERROR" || entry["component"] != "Test" || entry["error"] != "boom" {
		t.Errorf("Unexpected entry: %v", entry)
	}
	ctx, _ := entry["context"].(map[string]interface{})
	if ctx["frame"] != float64(4) {
		t.Errorf("Expected context frame=4, got %v", entry["context"])
	}
}

func TestChildAndContextLogger(t *testing.T) {
	var buf bytes.Buffer
	root := NewLoggerTo("Detect", &buf)
	child := root.Child("session")

	cl := child.WithContext(map[string]interface{}{"session_id": "abc"})
	cl.InfoWith("done", map[string]interface{}{"frames": 2})
	cl.Info("plain")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "[Detect.session] done | frames=2 session_id=abc") {
		t.Errorf("Unexpected first line: %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], "plain | session_id=abc") {
		t.Errorf("Unexpected second line: %q", lines[1])
	}
}

func TestErrorReporter(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewErrorReporter(NewLoggerTo("Faults", &buf), 2)

	var seen []ErrorReport
	reporter.OnError(func(r ErrorReport) { seen = append(seen, r) })

	reporter.Report(ErrorCategoryLoad, ErrorSeverityHigh, "session", "load failed", errors.New("bad mask"), map[string]interface{}{"object_id": "cup"})
	reporter.Report(ErrorCategoryFrame, ErrorSeverityLow, "session", "frame skipped", nil, nil)
	reporter.Report(ErrorCategoryFrame, ErrorSeverityLow, "session", "frame skipped", nil, nil)

	if len(seen) != 3 {
		t.Fatalf("Expected 3 callbacks, got %d", len(seen))
	}
	if seen[0].Error != "bad mask" || seen[0].Context["object_id"] != "cup" {
		t.Errorf("Unexpected first report: %+v", seen[0])
	}

	// history is bounded
	recent := reporter.Recent(10)
	if len(recent) != 2 || recent[0].Category != ErrorCategoryFrame {
		t.Errorf("Expected the 2 newest reports, got %+v", recent)
	}
	stats := reporter.Stats()
	if stats["total"] != 2 || stats["category_frame"] != 2 || stats["severity_low"] != 2 {
		t.Errorf("Unexpected stats: %v", stats)
	}

	out := buf.String()
	if !strings.Contains(out, "ERROR [Faults] load failed | error=bad mask") {
		t.Errorf("High severity should log at ERROR: %q", out)
	}
	if !strings.Contains(out, "WARN [Faults] frame skipped") {
		t.Errorf("Low severity should log at WARN: %q", out)
	}
}
