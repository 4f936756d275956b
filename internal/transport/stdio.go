// Copyright 2025 Joseph Cumines
//
// Stdio transport for JSON-RPC 2.0 communication

package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ErrClosed is returned by operations on a closed transport.
var ErrClosed = errors.New("transport is closed")

// ParseError is returned by ReadMessage for a line that is not a JSON-RPC
// message. The transport remains usable.
type ParseError struct {
	Err  error
	Line string
}

func (e *ParseError) Error() string { return fmt.Sprintf("failed to parse JSON: %v", e.Err) }

func (e *ParseError) Unwrap() error { return e.Err }

// maxLineSize bounds a single message; screenshots are returned, not sent, so
// requests are small.
const maxLineSize = 16 << 20

// StdioTransport implements JSON-RPC 2.0 transport over stdin/stdout.
// Reads and writes are serialized independently, so a blocked read never
// holds up a response.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type StdioTransport struct {
	reader  *bufio.Reader
	writer  io.Writer
	logger  *zap.Logger
	readMu  sync.Mutex
	writeMu sync.Mutex
	mu      sync.Mutex
	closed  bool
}

// NewStdioTransport creates a new stdio transport. A nil logger discards.
func NewStdioTransport(stdin io.Reader, stdout io.Writer, logger *zap.Logger) *StdioTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StdioTransport{
		reader: bufio.NewReaderSize(stdin, 64<<10),
		writer: stdout,
		logger: logger,
	}
}

// Message represents a JSON-RPC 2.0 message.
//
// This is a union type that can represent either a Request or a Response:
//
// Request format:
//   - JSONRPC: "2.0" (required)
//   - Method: The method name (required)
//   - Params: Method parameters (optional)
//   - ID: Request identifier (optional; omit for notifications)
//
// Response format:
//   - JSONRPC: "2.0" (required)
//   - Result: Success result (mutually exclusive with Error)
//   - Error: Error object (mutually exclusive with Result)
//   - ID: Matches the request ID (null when the request could not be read)
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type Message struct {
	// Error contains error details for failed requests.
	Error *ErrorObj `json:"error,omitempty"`

	// JSONRPC is always "2.0" per the JSON-RPC specification.
	JSONRPC string `json:"jsonrpc"`

	// Method is the name of the method to invoke.
	Method string `json:"method,omitempty"`

	// ID is the request identifier, echoed verbatim in the response.
	// Omitted for notifications.
	ID json.RawMessage `json:"id,omitempty"`

	// Params contains the method parameters.
	Params json.RawMessage `json:"params,omitempty"`

	// Result contains the success response data.
	Result json.RawMessage `json:"result,omitempty"`
}

// IsNotification reports whether msg is a request that expects no response.
func (m *Message) IsNotification() bool {
	return m.Method != "" && len(m.ID) == 0
}

// ErrorObj represents a JSON-RPC 2.0 error object.
//
// Standard error codes:
//   - -32700: Parse error
//   - -32600: Invalid Request
//   - -32601: Method not found
//   - -32602: Invalid params
//   - -32603: Internal error
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type ErrorObj struct {
	// Message is a human-readable description of the error.
	Message string `json:"message"`

	// Data contains additional error information.
	Data json.RawMessage `json:"data,omitempty"`

	// Code is a number indicating the error type.
	Code int `json:"code"`
}

// ErrorResponse builds an error response to the request with the given id.
func ErrorResponse(id json.RawMessage, code int, message string) *Message {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return &Message{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &ErrorObj{Code: code, Message: message},
	}
}

// ReadMessage reads the next non-empty line as a JSON-RPC 2.0 message.
// It returns io.EOF once stdin is exhausted.
func (t *StdioTransport) ReadMessage() (*Message, error) {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	for {
		if t.IsClosed() {
			return nil, ErrClosed
		}

		line, err := t.readLine()
		if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("failed to read line: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var msg Message
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			return nil, &ParseError{Err: err, Line: line}
		}
		if msg.JSONRPC != "2.0" {
			return nil, &ParseError{Err: fmt.Errorf("unsupported jsonrpc version %q", msg.JSONRPC), Line: line}
		}
		return &msg, nil
	}
}

func (t *StdioTransport) readLine() (string, error) {
	var sb strings.Builder
	for {
		chunk, err := t.reader.ReadSlice('\n')
		sb.Write(chunk)
		if sb.Len() > maxLineSize {
			// discard the rest of the line
			for errors.Is(err, bufio.ErrBufferFull) {
				_, err = t.reader.ReadSlice('\n')
			}
			return "", fmt.Errorf("message exceeds %d bytes", maxLineSize)
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return sb.String(), err
		}
	}
}

// WriteMessage writes a JSON-RPC 2.0 message followed by a newline.
func (t *StdioTransport) WriteMessage(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	data = append(data, '\n')

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.IsClosed() {
		return ErrClosed
	}
	if _, err := t.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Close closes the transport
func (t *StdioTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// IsClosed returns whether the transport is closed
func (t *StdioTransport) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Serve reads and handles messages one at a time until stdin closes, the
// transport is closed, or ctx ends. Lines that are not JSON-RPC are answered
// with a parse error and do not end the session.
func (t *StdioTransport) Serve(ctx context.Context, handler Handler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := t.ReadMessage()
		if err != nil {
			var perr *ParseError
			switch {
			case errors.Is(err, io.EOF):
				t.logger.Info("stdin closed, exiting")
				return nil
			case errors.Is(err, ErrClosed):
				return nil
			case errors.As(err, &perr):
				t.logger.Warn("invalid message", zap.Error(err))
				if werr := t.WriteMessage(ErrorResponse(nil, ErrCodeParseError, err.Error())); werr != nil {
					t.logger.Error("error writing message", zap.Error(werr))
				}
				continue
			default:
				t.logger.Error("error reading message", zap.Error(err))
				return err
			}
		}

		response, err := handler(ctx, msg)
		if err != nil {
			t.logger.Error("error handling message", zap.String("method", msg.Method), zap.Error(err))
			if msg.IsNotification() {
				continue
			}
			response = ErrorResponse(msg.ID, ErrCodeInternalError, err.Error())
		}

		if response != nil {
			if err := t.WriteMessage(response); err != nil {
				t.logger.Error("error writing message", zap.Error(err))
				if errors.Is(err, ErrClosed) {
					return nil
				}
			}
		}
	}
}
