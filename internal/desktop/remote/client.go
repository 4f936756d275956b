// Copyright 2025 Joseph Cumines

package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"time"

	longrunningpb "cloud.google.com/go/longrunning/autogen/longrunningpb"
	"github.com/joeycumines/WindowsUseSDK/internal/desktop"
	"github.com/joeycumines/WindowsUseSDK/internal/wait"
	"google.golang.org/genproto/googleapis/api/httpbody"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const defaultOperationPollInterval = 100 * time.Millisecond

// DialConfig holds the connection settings of a desktop agent.
type DialConfig struct {
	// Address is the agent's gRPC target, e.g. localhost:50051.
	Address string
	// CertFile optionally pins the agent's certificate when TLS is enabled.
	CertFile string
	TLS      bool
}

// Client is a desktop.Desktop backed by a remote agent.
type Client struct {
	conn         grpc.ClientConnInterface
	ops          longrunningpb.OperationsClient
	closer       io.Closer
	pollInterval time.Duration
}

var _ desktop.Desktop = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithOperationPollInterval sets how often launches are polled until done.
func WithOperationPollInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// NewClient creates a Client over conn. Closing the client does not close
// conn.
func NewClient(conn grpc.ClientConnInterface, opts ...ClientOption) *Client {
	c := &Client{
		conn:         conn,
		ops:          longrunningpb.NewOperationsClient(conn),
		pollInterval: defaultOperationPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial connects to the agent described by cfg. The returned client owns the
// connection.
func Dial(cfg DialConfig, opts ...ClientOption) (*Client, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("agent address cannot be empty")
	}
	var dialOpts []grpc.DialOption
	if cfg.TLS {
		creds := credentials.NewTLS(nil)
		if cfg.CertFile != "" {
			var err error
			creds, err = credentials.NewClientTLSFromFile(cfg.CertFile, "")
			if err != nil {
				return nil, fmt.Errorf("failed to load TLS cert: %w", err)
			}
		}
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(creds))
	} else {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(cfg.Address, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	c := NewClient(conn, opts...)
	c.closer = conn
	return c, nil
}

// Close closes the connection if the client owns it.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

// invoke calls a Struct method and decodes its value into a T.
func invoke[T any](ctx context.Context, c *Client, method string, req request) (T, error) {
	var out response[T]
	in, err := toStruct(req)
	if err != nil {
		return out.Value, desktop.Wrap(desktop.KindDriverError, err, "%s request", method)
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, fullMethod(method), in, resp); err != nil {
		return out.Value, fromStatus(err)
	}
	if err := fromStruct(resp, &out); err != nil {
		return out.Value, desktop.Wrap(desktop.KindDriverError, err, "%s response", method)
	}
	return out.Value, nil
}

// exec calls a Struct method that returns nothing.
func exec(ctx context.Context, c *Client, method string, req request) error {
	_, err := invoke[struct{}](ctx, c, method, req)
	return err
}

func (c *Client) ListWindows(ctx context.Context) ([]desktop.Window, error) {
	return invoke[[]desktop.Window](ctx, c, methodListWindows, request{})
}

func (c *Client) GetWindow(ctx context.Context, h desktop.Handle) (desktop.Window, error) {
	return invoke[desktop.Window](ctx, c, methodGetWindow, request{Handle: h})
}

func (c *Client) ForegroundWindow(ctx context.Context) (desktop.Window, error) {
	return invoke[desktop.Window](ctx, c, methodForegroundWindow, request{})
}

func (c *Client) SetWindowState(ctx context.Context, h desktop.Handle, state desktop.WindowState) (desktop.Window, error) {
	return invoke[desktop.Window](ctx, c, methodSetWindowState, request{Handle: h, State: state})
}

func (c *Client) ActivateWindow(ctx context.Context, h desktop.Handle) (desktop.Window, error) {
	return invoke[desktop.Window](ctx, c, methodActivateWindow, request{Handle: h})
}

func (c *Client) MoveWindow(ctx context.Context, h desktop.Handle, x, y int) (desktop.Window, error) {
	return invoke[desktop.Window](ctx, c, methodMoveWindow, request{Handle: h, X: x, Y: y})
}

func (c *Client) ResizeWindow(ctx context.Context, h desktop.Handle, width, height int) (desktop.Window, error) {
	return invoke[desktop.Window](ctx, c, methodResizeWindow, request{Handle: h, Width: width, Height: height})
}

func (c *Client) CloseWindow(ctx context.Context, h desktop.Handle) error {
	return exec(ctx, c, methodCloseWindow, request{Handle: h})
}

// StartProcess starts a launch operation on the agent and polls it until
// done.
func (c *Client) StartProcess(ctx context.Context, spec desktop.LaunchSpec) (desktop.Process, error) {
	in, err := toStruct(request{Spec: &spec})
	if err != nil {
		return desktop.Process{}, desktop.Wrap(desktop.KindDriverError, err, "StartProcess request")
	}
	op := new(longrunningpb.Operation)
	if err := c.conn.Invoke(ctx, fullMethod(methodStartProcess), in, op); err != nil {
		return desktop.Process{}, fromStatus(err)
	}
	if op, err = c.awaitOperation(ctx, op); err != nil {
		return desktop.Process{}, err
	}
	if opErr := op.GetError(); opErr != nil {
		return desktop.Process{}, fromStatus(status.FromProto(opErr).Err())
	}
	st := new(structpb.Struct)
	if err := op.GetResponse().UnmarshalTo(st); err != nil {
		return desktop.Process{}, desktop.Wrap(desktop.KindDriverError, err, "failed to parse launch result")
	}
	var out response[desktop.Process]
	if err := fromStruct(st, &out); err != nil {
		return desktop.Process{}, desktop.Wrap(desktop.KindDriverError, err, "failed to parse launch result")
	}
	return out.Value, nil
}

// awaitOperation polls op until it is done.
func (c *Client) awaitOperation(ctx context.Context, op *longrunningpb.Operation) (*longrunningpb.Operation, error) {
	if op.GetDone() {
		return op, nil
	}
	err := wait.PollUntilContext(ctx, c.pollInterval, func(ctx context.Context) (bool, error) {
		latest, err := c.ops.GetOperation(ctx, &longrunningpb.GetOperationRequest{Name: op.GetName()})
		if err != nil {
			return false, fromStatus(err)
		}
		op = latest
		return op.GetDone(), nil
	})
	if err != nil {
		kind := desktop.KindDriverError
		if errors.Is(err, context.DeadlineExceeded) {
			kind = desktop.KindTimeout
		}
		return nil, desktop.Wrap(kind, err, "waiting for %s", op.GetName())
	}
	return op, nil
}

func (c *Client) GetProcess(ctx context.Context, pid int) (desktop.Process, error) {
	return invoke[desktop.Process](ctx, c, methodGetProcess, request{PID: pid})
}

func (c *Client) ListProcesses(ctx context.Context) ([]desktop.Process, error) {
	return invoke[[]desktop.Process](ctx, c, methodListProcesses, request{})
}

func (c *Client) MoveMouse(ctx context.Context, p desktop.Point) error {
	return exec(ctx, c, methodMoveMouse, request{Point: &p})
}

func (c *Client) MouseButton(ctx context.Context, button desktop.MouseButton, down bool) error {
	return exec(ctx, c, methodMouseButton, request{Button: button, Down: down})
}

func (c *Client) CursorPosition(ctx context.Context) (desktop.Point, error) {
	return invoke[desktop.Point](ctx, c, methodCursorPosition, request{})
}

func (c *Client) PressKeys(ctx context.Context, chord desktop.KeyChord) error {
	return exec(ctx, c, methodPressKeys, request{Chord: &chord})
}

func (c *Client) TypeText(ctx context.Context, text string) error {
	return exec(ctx, c, methodTypeText, request{Text: text})
}

func (c *Client) ElementTree(ctx context.Context, h desktop.Handle) (desktop.Element, error) {
	return invoke[desktop.Element](ctx, c, methodElementTree, request{Handle: h})
}

func (c *Client) SetElementValue(ctx context.Context, h desktop.Handle, elementID, value string) error {
	return exec(ctx, c, methodSetElementValue, request{Handle: h, ElementID: elementID, Value: value})
}

func (c *Client) Monitors(ctx context.Context) ([]desktop.Monitor, error) {
	return invoke[[]desktop.Monitor](ctx, c, methodMonitors, request{})
}

// Capture fetches a PNG of r from the agent and decodes it.
func (c *Client) Capture(ctx context.Context, r desktop.Rect) (image.Image, error) {
	in, err := toStruct(request{Rect: &r})
	if err != nil {
		return nil, desktop.Wrap(desktop.KindDriverError, err, "Capture request")
	}
	body := new(httpbody.HttpBody)
	if err := c.conn.Invoke(ctx, fullMethod(methodCapture), in, body); err != nil {
		return nil, fromStatus(err)
	}
	if ct := body.GetContentType(); ct != "image/png" {
		return nil, desktop.DriverErrorf("capture returned %q, want image/png", ct)
	}
	img, err := png.Decode(bytes.NewReader(body.GetData()))
	if err != nil {
		return nil, desktop.Wrap(desktop.KindDriverError, err, "failed to decode capture")
	}
	return img, nil
}
