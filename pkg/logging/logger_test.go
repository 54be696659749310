package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLoggerWithServiceStampsField(t *testing.T) {
	l := NewLoggerWithService("almanac")
	var buf bytes.Buffer
	l.SetOutput(&buf)

	l.Info("hello")

	out := buf.String()
	if !strings.Contains(out, `"service":"almanac"`) {
		t.Fatalf("expected service field in output, got %s", out)
	}
	if !strings.Contains(out, `"msg":"hello"`) {
		t.Fatalf("expected message in output, got %s", out)
	}
}
