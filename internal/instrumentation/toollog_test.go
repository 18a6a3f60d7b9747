package instrumentation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func newCapturingLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to decode log line %q: %v", buf.String(), err)
	}
	return entry
}

func TestToolInvocation_Complete(t *testing.T) {
	ti := NewToolInvocation("gmail_search").WithAccount("work").WithFilter("from:a@example.com")
	if ti.StartTime.IsZero() {
		t.Fatal("expected start time to be set")
	}

	ti.Complete(false, errors.New("boom"))

	if ti.Success {
		t.Error("expected Success to be false")
	}
	if ti.Error != "boom" {
		t.Errorf("expected error 'boom', got %q", ti.Error)
	}
	if ti.Status() != StatusError {
		t.Errorf("expected status %q, got %q", StatusError, ti.Status())
	}
	if ti.Duration < 0 {
		t.Errorf("expected non-negative duration, got %v", ti.Duration)
	}
}

func TestToolLogger_Log(t *testing.T) {
	tests := []struct {
		name       string
		config     ToolLoggingConfig
		ti         *ToolInvocation
		wantMsg    string
		wantLevel  string
		wantFields map[string]string
		absent     []string
	}{
		{
			name:   "success anonymizes account and filter",
			config: ToolLoggingConfig{Enabled: true},
			ti: (&ToolInvocation{Tool: "gmail_delete", Account: "jane@example.com", Filter: "from:news@example.com"}).
				Complete(true, nil),
			wantMsg:    "tool_executed",
			wantLevel:  "INFO",
			wantFields: map[string]string{"tool": "gmail_delete"},
			absent:     []string{"jane@example.com", "news@example.com"},
		},
		{
			name:   "pii logged when configured",
			config: ToolLoggingConfig{Enabled: true, IncludePII: true},
			ti: (&ToolInvocation{Tool: "gmail_delete", Account: "jane@example.com", Filter: "from:news@example.com"}).
				Complete(true, nil),
			wantMsg:    "tool_executed",
			wantLevel:  "INFO",
			wantFields: map[string]string{"account": "jane@example.com", "filter": "from:news@example.com"},
		},
		{
			name:       "default account kept in the clear",
			config:     ToolLoggingConfig{Enabled: true},
			ti:         (&ToolInvocation{Tool: "gmail_count", Account: "default"}).Complete(true, nil),
			wantMsg:    "tool_executed",
			wantLevel:  "INFO",
			wantFields: map[string]string{"account": "default"},
		},
		{
			name:   "policy rejection logged as warning",
			config: ToolLoggingConfig{Enabled: true},
			ti: (&ToolInvocation{Tool: "gmail_delete"}).WithCode("limit_exceeded").
				Complete(false, errors.New("too many")),
			wantMsg:    "tool_failed",
			wantLevel:  "WARN",
			wantFields: map[string]string{"code": "limit_exceeded", "error": "too many"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buf := newCapturingLogger()
			NewToolLogger(logger, tt.config).Log(context.Background(), tt.ti)

			entry := decodeLine(t, buf)
			if entry["msg"] != tt.wantMsg {
				t.Errorf("expected msg %q, got %v", tt.wantMsg, entry["msg"])
			}
			if entry["level"] != tt.wantLevel {
				t.Errorf("expected level %q, got %v", tt.wantLevel, entry["level"])
			}
			for k, v := range tt.wantFields {
				if entry[k] != v {
					t.Errorf("expected %s=%q, got %v", k, v, entry[k])
				}
			}
			for _, s := range tt.absent {
				if strings.Contains(buf.String(), s) {
					t.Errorf("expected %q to be absent from %s", s, buf.String())
				}
			}
		})
	}
}

func TestToolLogger_Disabled(t *testing.T) {
	logger, buf := newCapturingLogger()
	NewToolLogger(logger, ToolLoggingConfig{Enabled: false}).
		Log(context.Background(), NewToolInvocation("gmail_search").Complete(true, nil))

	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}

	var nilLogger *ToolLogger
	nilLogger.Log(context.Background(), NewToolInvocation("gmail_search"))
}
