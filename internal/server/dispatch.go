// Copyright 2025 Joseph Cumines
//
// Tool dispatch: per-call timeout, fault isolation, and the audit, metrics
// and tracing that wrap every invocation

package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/joeycumines/WindowsUseSDK/internal/desktop"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ToolInvocation is one tools/call request.
type ToolInvocation struct {
	ID        json.RawMessage `json:"id,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Name      string          `json:"name"`
}

// ToolResult represents a tool call result. A failed call has Failure set,
// IsError true, and the failure repeated under structuredContent.error.
type ToolResult struct {
	Failure           *Failure  `json:"-"`
	StructuredContent any       `json:"structuredContent,omitempty"`
	Content           []Content `json:"content"`
	IsError           bool      `json:"isError,omitempty"`
}

// Content represents a content item in a tool result
type Content struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MIMEType string `json:"mimeType,omitempty"`
}

// Failure is the structured error of a failed call.
type Failure struct {
	Kind    desktop.ErrorKind `json:"kind"`
	Field   string            `json:"field,omitempty"`
	Message string            `json:"message"`
}

// Outcome returns "ok", or the failure kind.
func (r *ToolResult) Outcome() string {
	if r.Failure != nil {
		return string(r.Failure.Kind)
	}
	return "ok"
}

// Text joins the text content of the result.
func (r *ToolResult) Text() string {
	var s string
	for _, c := range r.Content {
		if c.Type == "text" {
			if s != "" {
				s += "\n"
			}
			s += c.Text
		}
	}
	return s
}

// Output is what a tool handler produces on success.
type Output struct {
	// Data becomes structuredContent.
	Data   any
	Text   string
	Images []Image
}

// Image is an encoded image returned alongside the text.
type Image struct {
	MIMEType string
	Data     []byte
}

func successResult(out *Output) *ToolResult {
	if out == nil {
		out = &Output{Text: "OK"}
	}
	res := &ToolResult{StructuredContent: out.Data}
	if out.Text != "" {
		res.Content = append(res.Content, Content{Type: "text", Text: out.Text})
	}
	for _, img := range out.Images {
		res.Content = append(res.Content, Content{
			Type:     "image",
			Data:     base64.StdEncoding.EncodeToString(img.Data),
			MIMEType: img.MIMEType,
		})
	}
	if res.Content == nil {
		res.Content = []Content{}
	}
	return res
}

// failureResult classifies err. Unclassified errors become DriverError.
func failureResult(err error) *ToolResult {
	f := &Failure{
		Kind:    desktop.KindOf(err),
		Field:   desktop.FieldOf(err),
		Message: err.Error(),
	}
	var de *desktop.Error
	if errors.As(err, &de) && de.Message != "" {
		f.Message = de.Message
		if de.Err != nil {
			f.Message += ": " + de.Err.Error()
		}
	}
	return &ToolResult{
		Failure:           f,
		IsError:           true,
		StructuredContent: map[string]any{"error": f},
		Content:           []Content{{Type: "text", Text: fmt.Sprintf("%s: %s", f.Kind, f.Message)}},
	}
}

// Invoke runs one tool call to completion and always returns a result:
// unknown tools, bad arguments, timeouts, driver errors and panics all
// become failures, leaving the session usable.
func (s *MCPServer) Invoke(ctx context.Context, inv ToolInvocation) (res *ToolResult) {
	s.callMu.Lock()
	defer s.callMu.Unlock()

	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "tools/call "+inv.Name,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("mcp.tool", inv.Name),
			attribute.String("mcp.request_id", string(inv.ID)),
		))

	defer func() {
		elapsed := time.Since(start)
		outcome := res.Outcome()

		span.SetAttributes(attribute.String("mcp.outcome", outcome))
		if res.Failure != nil {
			span.SetStatus(codes.Error, res.Failure.Message)
		}
		span.End()

		toolLabel := inv.Name
		if _, ok := s.tools[toolLabel]; !ok {
			toolLabel = "unknown"
		}
		if s.metrics != nil {
			s.metrics.ObserveTool(toolLabel, outcome, elapsed)
		}
		s.audit.LogToolCall(AuditRecord{
			SessionID: s.sessionID,
			RequestID: inv.ID,
			Tool:      inv.Name,
			Arguments: inv.Arguments,
			Status:    outcome,
			Duration:  elapsed,
		})

		fields := []zap.Field{
			zap.String("tool", inv.Name),
			zap.ByteString("request_id", inv.ID),
			zap.String("outcome", outcome),
			zap.Duration("duration", elapsed),
		}
		if res.Failure != nil {
			s.logger.Info("tool call failed", append(fields, zap.String("error", res.Failure.Message))...)
		} else {
			s.logger.Debug("tool call", fields...)
		}
	}()

	tool, ok := s.tools[inv.Name]
	if !ok {
		return failureResult(&desktop.Error{
			Kind:    desktop.KindUnknownTool,
			Field:   "name",
			Message: fmt.Sprintf("unknown tool %q", inv.Name),
		})
	}

	c, err := tool.prepare(inv.Arguments)
	if err != nil {
		return failureResult(err)
	}

	out, err := s.execute(ctx, inv.Name, c)
	if err != nil {
		return failureResult(err)
	}
	return successResult(out)
}

// handlerDrain bounds how long a call that hit its deadline waits for the
// handler to return.
var handlerDrain = 2 * time.Second

// execute runs c under the request timeout extended by its budget. The
// handler runs on its own goroutine so that a handler ignoring its context
// cannot hold the session past the deadline.
func (s *MCPServer) execute(ctx context.Context, name string, c call) (*Output, error) {
	timeout := s.RequestTimeout() + c.budget
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		out *Output
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("tool handler panicked",
					zap.String("tool", name),
					zap.Any("panic", r),
					zap.Stack("stack"))
				done <- outcome{err: desktop.DriverErrorf("%s failed with an internal error: %v", name, r)}
			}
		}()
		out, err := c.run(ctx)
		done <- outcome{out, err}
	}()

	select {
	case r := <-done:
		var de *desktop.Error
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) && !errors.As(r.err, &de) {
			return nil, desktop.Timeoutf("%s did not complete within %v", name, timeout)
		}
		return r.out, r.err
	case <-ctx.Done():
		// the session stays held until the handler stops touching the desktop
		t := time.NewTimer(handlerDrain)
		select {
		case <-done:
		case <-t.C:
			s.logger.Warn("tool handler still running after its deadline", zap.String("tool", name))
		}
		t.Stop()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, desktop.Timeoutf("%s did not complete within %v", name, timeout)
		}
		return nil, desktop.Wrap(desktop.KindDriverError, ctx.Err(), "%s was cancelled", name)
	}
}
