package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/inboxprune/internal/logging"
)

// ToolInvocation captures one MCP tool call for the tool log.
//
// Account and Filter may identify a person. LogAttrs hashes both unless the
// logger was configured with IncludePII.
type ToolInvocation struct {
	Tool    string
	Account string
	Filter  string

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string
	// Code is the policy code when a delete was stopped by policy.
	Code string

	TraceID string
	SpanID  string
}

// NewToolInvocation starts timing a tool call. Call Complete when it returns.
func NewToolInvocation(tool string) *ToolInvocation {
	return &ToolInvocation{
		Tool:      tool,
		StartTime: time.Now(),
	}
}

// WithAccount sets the account name.
func (ti *ToolInvocation) WithAccount(account string) *ToolInvocation {
	ti.Account = account
	return ti
}

// WithFilter sets the mailbox filter the tool ran.
func (ti *ToolInvocation) WithFilter(filter string) *ToolInvocation {
	ti.Filter = filter
	return ti
}

// WithCode sets the policy code of a rejected delete.
func (ti *ToolInvocation) WithCode(code string) *ToolInvocation {
	ti.Code = code
	return ti
}

// WithSpanContext copies the trace and span ids from ctx.
func (ti *ToolInvocation) WithSpanContext(ctx context.Context) *ToolInvocation {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if sc.IsValid() {
		ti.TraceID = sc.TraceID().String()
		ti.SpanID = sc.SpanID().String()
	}
	return ti
}

// Complete stops the timer.
func (ti *ToolInvocation) Complete(success bool, err error) *ToolInvocation {
	ti.Duration = time.Since(ti.StartTime)
	ti.Success = success
	if err != nil {
		ti.Error = err.Error()
	}
	return ti
}

// Status returns "success" or "error".
func (ti *ToolInvocation) Status() string {
	if ti.Success {
		return StatusSuccess
	}
	return StatusError
}

// LogAttrs returns the slog attributes for the invocation.
func (ti *ToolInvocation) LogAttrs(includePII bool) []slog.Attr {
	attrs := []slog.Attr{
		logging.Tool(ti.Tool),
		slog.Duration("duration", ti.Duration),
		slog.Bool("success", ti.Success),
	}
	if ti.Account != "" {
		if includePII || ti.Account == "default" {
			attrs = append(attrs, logging.Account(ti.Account))
		} else {
			attrs = append(attrs, logging.UserHash(ti.Account))
		}
	}
	if ti.Filter != "" {
		attrs = append(attrs, logging.Filter(ti.Filter, includePII))
	}
	if ti.Code != "" {
		attrs = append(attrs, slog.String("code", ti.Code))
	}
	if ti.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", ti.TraceID))
	}
	if ti.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", ti.SpanID))
	}
	if ti.Error != "" {
		attrs = append(attrs, slog.String(logging.KeyError, ti.Error))
	}
	return attrs
}

// ToolLogger writes one line per tool invocation.
type ToolLogger struct {
	logger *slog.Logger
	config ToolLoggingConfig
}

// NewToolLogger returns a ToolLogger. A nil logger uses slog.Default.
func NewToolLogger(logger *slog.Logger, config ToolLoggingConfig) *ToolLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &ToolLogger{logger: logger, config: config}
}

// Log writes ti at info level on success and warn level otherwise.
func (tl *ToolLogger) Log(ctx context.Context, ti *ToolInvocation) {
	if tl == nil || !tl.config.Enabled {
		return
	}
	level := slog.LevelInfo
	msg := "tool_executed"
	if !ti.Success {
		level = slog.LevelWarn
		msg = "tool_failed"
	}
	tl.logger.LogAttrs(ctx, level, msg, ti.LogAttrs(tl.config.IncludePII)...)
}
