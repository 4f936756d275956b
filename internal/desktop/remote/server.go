// Copyright 2025 Joseph Cumines

package remote

import (
	"bytes"
	"context"
	"image/png"
	"time"

	longrunningpb "cloud.google.com/go/longrunning/autogen/longrunningpb"
	"github.com/joeycumines/WindowsUseSDK/internal/desktop"
	"go.uber.org/zap"
	"google.golang.org/genproto/googleapis/api/httpbody"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Server serves a desktop.Desktop as windowsuse.v1.Desktop, together with the
// Operations service its launches run under.
type Server struct {
	desk desktop.Desktop
	log  *zap.Logger
	ops  *operations
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the server's logger.
func WithServerLogger(log *zap.Logger) ServerOption {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// NewServer creates a Server for desk. The caller keeps ownership of desk.
func NewServer(desk desktop.Desktop, opts ...ServerOption) *Server {
	s := &Server{desk: desk, log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.ops = newOperations(s.log)
	return s
}

// Register registers the desktop and Operations services on gs.
func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(&serviceDesc, s)
	longrunningpb.RegisterOperationsServer(gs, s.ops)
}

// Close cancels launches still in flight and waits for them.
func (s *Server) Close() error {
	s.ops.close()
	return nil
}

func (s *Server) call(ctx context.Context, method string, in *structpb.Struct) (*structpb.Struct, error) {
	var req request
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	v, err := s.dispatch(ctx, method, req)
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := toStruct(response[any]{Value: v})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func (s *Server) dispatch(ctx context.Context, method string, req request) (any, error) {
	d := s.desk
	switch method {
	case methodListWindows:
		return d.ListWindows(ctx)
	case methodGetWindow:
		return d.GetWindow(ctx, req.Handle)
	case methodForegroundWindow:
		return d.ForegroundWindow(ctx)
	case methodSetWindowState:
		return d.SetWindowState(ctx, req.Handle, req.State)
	case methodActivateWindow:
		return d.ActivateWindow(ctx, req.Handle)
	case methodMoveWindow:
		return d.MoveWindow(ctx, req.Handle, req.X, req.Y)
	case methodResizeWindow:
		return d.ResizeWindow(ctx, req.Handle, req.Width, req.Height)
	case methodCloseWindow:
		return nil, d.CloseWindow(ctx, req.Handle)
	case methodGetProcess:
		return d.GetProcess(ctx, req.PID)
	case methodListProcesses:
		return d.ListProcesses(ctx)
	case methodMoveMouse:
		if req.Point == nil {
			return nil, desktop.InvalidArgumentf("point", "point is required")
		}
		return nil, d.MoveMouse(ctx, *req.Point)
	case methodMouseButton:
		return nil, d.MouseButton(ctx, req.Button, req.Down)
	case methodCursorPosition:
		return d.CursorPosition(ctx)
	case methodPressKeys:
		if req.Chord == nil {
			return nil, desktop.InvalidArgumentf("chord", "chord is required")
		}
		return nil, d.PressKeys(ctx, *req.Chord)
	case methodTypeText:
		return nil, d.TypeText(ctx, req.Text)
	case methodElementTree:
		return d.ElementTree(ctx, req.Handle)
	case methodSetElementValue:
		return nil, d.SetElementValue(ctx, req.Handle, req.ElementID, req.Value)
	case methodMonitors:
		return d.Monitors(ctx)
	}
	return nil, status.Errorf(codes.Unimplemented, "method %s not implemented", method)
}

func (s *Server) capture(ctx context.Context, in *structpb.Struct) (*httpbody.HttpBody, error) {
	var req request
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.Rect == nil || req.Rect.Empty() {
		return nil, toStatus(desktop.InvalidArgumentf("rect", "capture needs a non-empty rect"))
	}
	img, err := s.desk.Capture(ctx, *req.Rect)
	if err != nil {
		return nil, toStatus(err)
	}
	var buf bytes.Buffer
	if err := (&png.Encoder{CompressionLevel: png.BestSpeed}).Encode(&buf, img); err != nil {
		return nil, status.Errorf(codes.Internal, "encode capture: %v", err)
	}
	return &httpbody.HttpBody{ContentType: "image/png", Data: buf.Bytes()}, nil
}

// startProcess launches under an operation. The process is started with the
// operation's context, not the request's, so the launch outlives a caller
// that stops waiting.
func (s *Server) startProcess(ctx context.Context, in *structpb.Struct) (*longrunningpb.Operation, error) {
	var req request
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.Spec == nil || req.Spec.Program == "" {
		return nil, toStatus(desktop.InvalidArgumentf("spec.program", "program is required"))
	}
	spec := *req.Spec
	md, err := structpb.NewStruct(map[string]any{
		"program":    spec.Program,
		"submitTime": time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	op, err := s.ops.start(md, func(ctx context.Context) (proto.Message, error) {
		p, err := s.desk.StartProcess(ctx, spec)
		if err != nil {
			return nil, err
		}
		s.log.Info("launched process", zap.String("program", spec.Program), zap.Int("pid", p.PID))
		st, err := toStruct(response[desktop.Process]{Value: p})
		if err != nil {
			return nil, err
		}
		return st, nil
	})
	if err != nil {
		return nil, err
	}
	return op, nil
}

// UnaryServerLogger logs every unary call at debug level, and failures other
// than a missing target at warn level.
func UnaryServerLogger(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("duration", time.Since(start)),
		}
		switch code {
		case codes.OK, codes.NotFound, codes.Canceled:
			log.Debug("grpc call", fields...)
		default:
			log.Warn("grpc call failed", append(fields, zap.Error(err))...)
		}
		return resp, err
	}
}
