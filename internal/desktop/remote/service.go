// Copyright 2025 Joseph Cumines

// Package remote carries the desktop.Desktop interface over gRPC, so the MCP
// front end can drive a desktop agent running in the interactive session of
// another process or machine.
//
// The service is windowsuse.v1.Desktop. Requests and most responses are
// google.protobuf.Struct values holding the JSON form of the desktop types.
// Capture answers with a google.api.HttpBody carrying a PNG, and
// StartProcess answers with a google.longrunning.Operation, which clients
// poll through the standard Operations service served alongside it.
//
// Errors cross the wire as gRPC statuses with a google.rpc.ErrorInfo detail
// whose reason is the desktop.ErrorKind, so desktop.KindOf gives the same
// answer on both sides.
package remote

import (
	"context"

	longrunningpb "cloud.google.com/go/longrunning/autogen/longrunningpb"
	"google.golang.org/genproto/googleapis/api/httpbody"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "windowsuse.v1.Desktop"

const (
	methodListWindows      = "ListWindows"
	methodGetWindow        = "GetWindow"
	methodForegroundWindow = "ForegroundWindow"
	methodSetWindowState   = "SetWindowState"
	methodActivateWindow   = "ActivateWindow"
	methodMoveWindow       = "MoveWindow"
	methodResizeWindow     = "ResizeWindow"
	methodCloseWindow      = "CloseWindow"
	methodStartProcess     = "StartProcess"
	methodGetProcess       = "GetProcess"
	methodListProcesses    = "ListProcesses"
	methodMoveMouse        = "MoveMouse"
	methodMouseButton      = "MouseButton"
	methodCursorPosition   = "CursorPosition"
	methodPressKeys        = "PressKeys"
	methodTypeText         = "TypeText"
	methodElementTree      = "ElementTree"
	methodSetElementValue  = "SetElementValue"
	methodMonitors         = "Monitors"
	methodCapture          = "Capture"
)

// structMethods answer a Struct with a Struct.
var structMethods = []string{
	methodListWindows,
	methodGetWindow,
	methodForegroundWindow,
	methodSetWindowState,
	methodActivateWindow,
	methodMoveWindow,
	methodResizeWindow,
	methodCloseWindow,
	methodGetProcess,
	methodListProcesses,
	methodMoveMouse,
	methodMouseButton,
	methodCursorPosition,
	methodPressKeys,
	methodTypeText,
	methodElementTree,
	methodSetElementValue,
	methodMonitors,
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// desktopService is implemented by *Server. It is the HandlerType of the
// service descriptor.
type desktopService interface {
	call(ctx context.Context, method string, in *structpb.Struct) (*structpb.Struct, error)
	capture(ctx context.Context, in *structpb.Struct) (*httpbody.HttpBody, error)
	startProcess(ctx context.Context, in *structpb.Struct) (*longrunningpb.Operation, error)
}

// unaryHandler adapts fn to a grpc.MethodHandler, in the shape protoc-gen-go-grpc
// generates.
func unaryHandler[Resp any](method string, fn func(desktopService, context.Context, *structpb.Struct) (Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return fn(srv.(desktopService), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod(method),
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return fn(srv.(desktopService), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// serviceDesc describes windowsuse.v1.Desktop.
var serviceDesc = newServiceDesc()

func newServiceDesc() grpc.ServiceDesc {
	methods := make([]grpc.MethodDesc, 0, len(structMethods)+2)
	for _, m := range structMethods {
		methods = append(methods, grpc.MethodDesc{
			MethodName: m,
			Handler: unaryHandler(m, func(s desktopService, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return s.call(ctx, m, in)
			}),
		})
	}
	methods = append(methods,
		grpc.MethodDesc{
			MethodName: methodCapture,
			Handler:    unaryHandler(methodCapture, desktopService.capture),
		},
		grpc.MethodDesc{
			MethodName: methodStartProcess,
			Handler:    unaryHandler(methodStartProcess, desktopService.startProcess),
		},
	)
	return grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*desktopService)(nil),
		Methods:     methods,
		Streams:     []grpc.StreamDesc{},
		Metadata:    "windowsuse/v1/desktop.proto",
	}
}
