// Copyright 2025 Joseph Cumines
//
// Audit logging for MCP tool invocations

package server

import (
	"encoding/json"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// AuditLogger provides structured audit logging for tool invocations.
// It logs tool name, redacted arguments, result status, and duration, one
// JSON object per line, in invocation order.
type AuditLogger struct {
	logger  *zap.Logger
	file    *os.File
	enabled bool
	mu      sync.RWMutex
}

// AuditRecord is one logged invocation.
type AuditRecord struct {
	RequestID json.RawMessage
	Arguments json.RawMessage
	SessionID string
	Tool      string
	// Status is "ok" or the failure kind.
	Status   string
	Duration time.Duration
}

// redactedKeys is the list of argument keys that should be redacted in audit logs.
var redactedKeys = map[string]bool{
	"password":       true,
	"secret":         true,
	"token":          true,
	"api_key":        true,
	"apikey":         true,
	"credential":     true,
	"credentials":    true,
	"private_key":    true,
	"privatekey":     true,
	"access_token":   true,
	"refresh_token":  true,
	"authorization":  true,
	"bearer":         true,
	"cookie":         true,
	"passphrase":     true,
	"encryption_key": true,
	"decryption_key": true,
}

// NewAuditLogger creates a new audit logger that appends to the specified
// file. If filePath is empty, audit logging is disabled.
func NewAuditLogger(filePath string) (*AuditLogger, error) {
	if filePath == "" {
		return &AuditLogger{enabled: false}, nil
	}

	file, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	a := newAuditLogger(zapcore.Lock(file))
	a.file = file
	return a, nil
}

// newAuditLogger writes audit records to ws.
func newAuditLogger(ws zapcore.WriteSyncer) *AuditLogger {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	enc.CallerKey = zapcore.OmitKey
	enc.StacktraceKey = zapcore.OmitKey
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), ws, zapcore.InfoLevel)
	return &AuditLogger{
		logger:  zap.New(core),
		enabled: true,
	}
}

// Close flushes and closes the audit log file if it is open.
// Safe to call multiple times.
func (a *AuditLogger) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.logger != nil {
		_ = a.logger.Sync()
	}
	a.enabled = false
	if a.file != nil {
		err := a.file.Close()
		a.file = nil
		return err
	}
	return nil
}

// IsEnabled returns true if audit logging is enabled.
func (a *AuditLogger) IsEnabled() bool {
	if a == nil {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// LogToolCall logs a tool invocation with redacted arguments.
// Sensitive fields like passwords and tokens are automatically redacted.
func (a *AuditLogger) LogToolCall(rec AuditRecord) {
	if !a.IsEnabled() {
		return
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.logger == nil {
		return
	}

	requestID := rec.RequestID
	if len(requestID) == 0 {
		requestID = json.RawMessage("null")
	}

	a.logger.Info("tool_invocation",
		zap.String("session_id", rec.SessionID),
		zap.Reflect("request_id", requestID),
		zap.String("tool", rec.Tool),
		zap.Reflect("arguments", redactArguments(rec.Arguments)),
		zap.String("status", rec.Status),
		zap.Float64("duration_seconds", rec.Duration.Seconds()),
	)
}

// redactArguments redacts sensitive values from JSON arguments. The result
// is always valid JSON.
func redactArguments(args json.RawMessage) json.RawMessage {
	if len(args) == 0 {
		return json.RawMessage("{}")
	}

	var parsed any
	dec := json.NewDecoder(strings.NewReader(string(args)))
	dec.UseNumber()
	if err := dec.Decode(&parsed); err != nil {
		return json.RawMessage(`"[unparseable]"`)
	}

	redactValue(parsed)

	redacted, err := json.Marshal(parsed)
	if err != nil {
		return json.RawMessage(`"[error]"`)
	}
	return redacted
}

// redactValue recursively redacts sensitive values in maps, including maps
// nested in arrays.
func redactValue(v any) {
	switch x := v.(type) {
	case map[string]any:
		for key, value := range x {
			if isRedactedKey(key) {
				x[key] = "[REDACTED]"
				continue
			}
			redactValue(value)
		}
	case []any:
		for _, item := range x {
			redactValue(item)
		}
	}
}

func isRedactedKey(key string) bool {
	lowerKey := strings.ToLower(key)
	if redactedKeys[lowerKey] {
		return true
	}
	// partial matches, e.g. "db_password"
	for redactKey := range redactedKeys {
		if strings.Contains(lowerKey, redactKey) {
			return true
		}
	}
	return false
}
