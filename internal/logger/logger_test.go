package logger

import (
	"bytes"
	"strings"
	"testing"
)

func resetLogger() {
	Init(Options{})
}

func TestInit_DefaultLevel_Info(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(Options{Output: buf})
	defer resetLogger()

	Info("test info")
	if !strings.Contains(buf.String(), "test info") {
		t.Error("Info message should be logged at default level")
	}

	buf.Reset()

	Debug("test debug")
	if strings.Contains(buf.String(), "test debug") {
		t.Error("Debug message should not be logged at default level")
	}
}

func TestInit_DebugLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(Options{Debug: true, Output: buf})
	defer resetLogger()

	Debug("test debug message")
	if !strings.Contains(buf.String(), "test debug message") {
		t.Error("Debug message should be logged when Debug=true")
	}
}

func TestInit_QuietLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(Options{Quiet: true, Output: buf})
	defer resetLogger()

	Info("should be suppressed")
	if strings.Contains(buf.String(), "should be suppressed") {
		t.Error("Info message should not be logged in quiet mode")
	}

	Error("an error")
	if !strings.Contains(buf.String(), "an error") {
		t.Error("Error message should be logged in quiet mode")
	}
}

func TestInit_JSONOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(Options{JSON: true, Output: buf})
	defer resetLogger()

	Info("json message", "key", "value")
	out := buf.String()
	if !strings.Contains(out, `"msg":"json message"`) {
		t.Errorf("expected JSON output, got %q", out)
	}
	if !strings.Contains(out, `"key":"value"`) {
		t.Errorf("expected attribute in JSON output, got %q", out)
	}
}

func TestWith_AddsAttributes(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(Options{Output: buf})
	defer resetLogger()

	l := With("worker", 3)
	l.Info("scoped")
	if !strings.Contains(buf.String(), "worker=3") {
		t.Errorf("expected worker attribute, got %q", buf.String())
	}
}
