// Copyright 2025 Joseph Cumines

package remote

import (
	"context"
	"errors"

	"github.com/joeycumines/WindowsUseSDK/internal/desktop"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// errorDomain is the ErrorInfo domain of desktop failures.
const errorDomain = "windowsuse.desktop"

var kindCodes = map[desktop.ErrorKind]codes.Code{
	desktop.KindUnknownTool:      codes.Unimplemented,
	desktop.KindInvalidArgument:  codes.InvalidArgument,
	desktop.KindTargetNotFound:   codes.NotFound,
	desktop.KindTimeout:          codes.DeadlineExceeded,
	desktop.KindDialogError:      codes.FailedPrecondition,
	desktop.KindDriverError:      codes.Internal,
	desktop.KindPermissionDenied: codes.PermissionDenied,
}

// errorMessage is the text of err without the kind prefix desktop.Error adds.
func errorMessage(err error) string {
	var de *desktop.Error
	if !errors.As(err, &de) {
		return err.Error()
	}
	msg := de.Message
	if msg == "" && de.Err != nil {
		msg = de.Err.Error()
	} else if de.Err != nil {
		msg += ": " + de.Err.Error()
	}
	return msg
}

// toStatus converts a desktop failure to a gRPC status error.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok && !isDesktopError(err) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return status.Error(codes.Canceled, err.Error())
	}
	kind := desktop.KindOf(err)
	st := status.New(kindCodes[kind], errorMessage(err))
	info := &errdetails.ErrorInfo{
		Reason: string(kind),
		Domain: errorDomain,
	}
	if field := desktop.FieldOf(err); field != "" {
		info.Metadata = map[string]string{"field": field}
	}
	if detailed, derr := st.WithDetails(info); derr == nil {
		st = detailed
	}
	return st.Err()
}

func isDesktopError(err error) bool {
	var de *desktop.Error
	return errors.As(err, &de)
}

// fromStatus converts a gRPC error back to a classified desktop failure.
func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return desktop.Wrap(desktop.KindDriverError, err, "desktop agent call failed")
	}
	for _, d := range st.Details() {
		info, ok := d.(*errdetails.ErrorInfo)
		if !ok || info.GetDomain() != errorDomain {
			continue
		}
		if kind := desktop.ErrorKind(info.GetReason()); kind.Valid() {
			return &desktop.Error{Kind: kind, Field: info.GetMetadata()["field"], Message: st.Message()}
		}
	}
	switch st.Code() {
	case codes.DeadlineExceeded:
		return &desktop.Error{Kind: desktop.KindTimeout, Message: st.Message(), Err: context.DeadlineExceeded}
	case codes.Canceled:
		return &desktop.Error{Kind: desktop.KindDriverError, Message: st.Message(), Err: context.Canceled}
	case codes.Unavailable:
		return &desktop.Error{Kind: desktop.KindDriverError, Message: "desktop agent unavailable: " + st.Message()}
	}
	for kind, code := range kindCodes {
		if code == st.Code() {
			return &desktop.Error{Kind: kind, Message: st.Message()}
		}
	}
	return &desktop.Error{Kind: desktop.KindDriverError, Message: st.Message()}
}
