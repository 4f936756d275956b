// Copyright 2025 Joseph Cumines

// Package transport provides MCP message transport interfaces and implementations
// for JSON-RPC 2.0 communication over stdio and HTTP.
package transport

import "context"

// JSON-RPC 2.0 standard error codes.
// See: https://www.jsonrpc.org/specification#error_object
const (
	// ErrCodeParseError indicates invalid JSON was received by the server.
	ErrCodeParseError = -32700

	// ErrCodeInvalidRequest indicates the JSON sent is not a valid Request object.
	ErrCodeInvalidRequest = -32600

	// ErrCodeMethodNotFound indicates the method does not exist or is not available.
	ErrCodeMethodNotFound = -32601

	// ErrCodeInvalidParams indicates invalid method parameter(s).
	ErrCodeInvalidParams = -32602

	// ErrCodeInternalError indicates an internal JSON-RPC error.
	ErrCodeInternalError = -32603
)

// Handler processes one request and returns its response, or nil for a
// notification. A returned error is sent as an internal error response.
//
// Both transports call the handler for one message at a time, in arrival
// order, so responses are produced in the order requests were read.
type Handler func(ctx context.Context, msg *Message) (*Message, error)

// Transport defines the interface for MCP message transport.
//
// Implementations must be safe for concurrent use from multiple goroutines.
//
// There are two implementations:
//   - StdioTransport: newline-delimited JSON over stdin/stdout (default)
//   - HTTPTransport: one JSON-RPC request per HTTP POST
//
// Error handling:
//   - io.EOF indicates the transport was closed by the peer
//   - ErrClosed indicates the transport was closed locally
//   - *ParseError indicates a line that was not valid JSON-RPC
//   - Other errors indicate transport-layer failures
type Transport interface {
	// ReadMessage reads a JSON-RPC 2.0 message from the transport.
	// Blocks until a message is available, an error occurs, or the transport is closed.
	//
	// HTTPTransport delivers requests to the handler given to Serve and
	// returns an error from ReadMessage.
	ReadMessage() (*Message, error)

	// WriteMessage writes a JSON-RPC 2.0 message to the transport.
	WriteMessage(msg *Message) error

	// Serve reads requests and writes responses until ctx ends or the peer
	// goes away.
	Serve(ctx context.Context, handler Handler) error

	// Close closes the transport and releases any resources.
	// Close is idempotent and safe to call multiple times.
	Close() error

	// IsClosed returns whether the transport has been closed.
	IsClosed() bool
}

// Ensure StdioTransport implements Transport interface
var _ Transport = (*StdioTransport)(nil)
