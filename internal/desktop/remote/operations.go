// Copyright 2025 Joseph Cumines

package remote

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"time"

	longrunningpb "cloud.google.com/go/longrunning/autogen/longrunningpb"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/emptypb"
)

const (
	// operationTimeout bounds the work behind a single operation.
	operationTimeout = 2 * time.Minute
	// maxFinishedOperations is how many completed operations are kept for
	// GetOperation and ListOperations; the oldest are dropped first.
	maxFinishedOperations = 256
	defaultPageSize       = 50
)

type operation struct {
	op       *longrunningpb.Operation
	cancel   context.CancelFunc
	done     chan struct{}
	finished time.Time
}

// operations is an in-memory google.longrunning.Operations service.
type operations struct {
	longrunningpb.UnimplementedOperationsServer

	log *zap.Logger
	ops map[string]*operation
	wg  sync.WaitGroup
	mu  sync.Mutex
}

func newOperations(log *zap.Logger) *operations {
	return &operations{log: log, ops: make(map[string]*operation)}
}

// start runs fn in the background under a new operation, whose metadata is
// metadata, and returns a snapshot of it. If fn finishes quickly the
// snapshot may already be done.
func (o *operations) start(metadata proto.Message, fn func(ctx context.Context) (proto.Message, error)) (*longrunningpb.Operation, error) {
	op := &longrunningpb.Operation{Name: "operations/" + uuid.NewString()}
	if metadata != nil {
		md, err := anypb.New(metadata)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "operation metadata: %v", err)
		}
		op.Metadata = md
	}
	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	entry := &operation{op: op, cancel: cancel, done: make(chan struct{})}

	o.mu.Lock()
	o.ops[op.Name] = entry
	o.evictLocked()
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		res, err := fn(ctx)
		o.finish(entry, res, err)
	}()

	return o.snapshot(entry), nil
}

func (o *operations) finish(entry *operation, res proto.Message, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if entry.op.Done {
		// cancelled first
		return
	}
	if err == nil && res != nil {
		var resp *anypb.Any
		if resp, err = anypb.New(res); err == nil {
			entry.op.Result = &longrunningpb.Operation_Response{Response: resp}
		}
	}
	if err != nil {
		st, _ := status.FromError(toStatus(err))
		entry.op.Result = &longrunningpb.Operation_Error{Error: st.Proto()}
		o.log.Debug("operation failed", zap.String("name", entry.op.Name), zap.Error(err))
	}
	o.completeLocked(entry)
}

func (o *operations) completeLocked(entry *operation) {
	entry.op.Done = true
	entry.finished = time.Now()
	close(entry.done)
}

// evictLocked drops the oldest finished operations beyond the retention
// limit.
func (o *operations) evictLocked() {
	var finished []*operation
	for _, e := range o.ops {
		if e.op.Done {
			finished = append(finished, e)
		}
	}
	if len(finished) <= maxFinishedOperations {
		return
	}
	slices.SortFunc(finished, func(a, b *operation) int { return a.finished.Compare(b.finished) })
	for _, e := range finished[:len(finished)-maxFinishedOperations] {
		delete(o.ops, e.op.Name)
	}
}

func (o *operations) snapshot(entry *operation) *longrunningpb.Operation {
	o.mu.Lock()
	defer o.mu.Unlock()
	return proto.Clone(entry.op).(*longrunningpb.Operation)
}

func (o *operations) lookup(name string) (*operation, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	entry, ok := o.ops[name]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "operation %q not found", name)
	}
	return entry, nil
}

func (o *operations) GetOperation(ctx context.Context, req *longrunningpb.GetOperationRequest) (*longrunningpb.Operation, error) {
	entry, err := o.lookup(req.GetName())
	if err != nil {
		return nil, err
	}
	return o.snapshot(entry), nil
}

// ListOperations lists operations by name. The filter is not supported;
// page tokens are offsets into the name order.
func (o *operations) ListOperations(ctx context.Context, req *longrunningpb.ListOperationsRequest) (*longrunningpb.ListOperationsResponse, error) {
	if req.GetFilter() != "" {
		return nil, status.Error(codes.InvalidArgument, "filter is not supported")
	}
	offset := 0
	if tok := req.GetPageToken(); tok != "" {
		n, err := strconv.Atoi(tok)
		if err != nil || n < 0 {
			return nil, status.Errorf(codes.InvalidArgument, "invalid page token %q", tok)
		}
		offset = n
	}
	size := int(req.GetPageSize())
	if size <= 0 {
		size = defaultPageSize
	}

	o.mu.Lock()
	names := make([]string, 0, len(o.ops))
	for name := range o.ops {
		names = append(names, name)
	}
	slices.Sort(names)
	resp := &longrunningpb.ListOperationsResponse{}
	for i := offset; i < len(names) && len(resp.Operations) < size; i++ {
		resp.Operations = append(resp.Operations, proto.Clone(o.ops[names[i]].op).(*longrunningpb.Operation))
	}
	if next := offset + len(resp.Operations); next < len(names) {
		resp.NextPageToken = strconv.Itoa(next)
	}
	o.mu.Unlock()
	return resp, nil
}

func (o *operations) DeleteOperation(ctx context.Context, req *longrunningpb.DeleteOperationRequest) (*emptypb.Empty, error) {
	entry, err := o.lookup(req.GetName())
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if !entry.op.Done {
		return nil, status.Errorf(codes.FailedPrecondition, "operation %q is still running", req.GetName())
	}
	delete(o.ops, req.GetName())
	return &emptypb.Empty{}, nil
}

func (o *operations) CancelOperation(ctx context.Context, req *longrunningpb.CancelOperationRequest) (*emptypb.Empty, error) {
	entry, err := o.lookup(req.GetName())
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if !entry.op.Done {
		entry.cancel()
		entry.op.Result = &longrunningpb.Operation_Error{
			Error: status.New(codes.Canceled, "operation cancelled").Proto(),
		}
		o.completeLocked(entry)
	}
	return &emptypb.Empty{}, nil
}

// WaitOperation blocks until the operation is done, the request timeout
// elapses, or ctx ends, and returns the latest state.
func (o *operations) WaitOperation(ctx context.Context, req *longrunningpb.WaitOperationRequest) (*longrunningpb.Operation, error) {
	entry, err := o.lookup(req.GetName())
	if err != nil {
		return nil, err
	}
	var timeout <-chan time.Time
	if d := req.GetTimeout(); d != nil {
		t := time.NewTimer(d.AsDuration())
		defer t.Stop()
		timeout = t.C
	}
	select {
	case <-entry.done:
	case <-timeout:
	case <-ctx.Done():
		return nil, status.FromContextError(ctx.Err()).Err()
	}
	return o.snapshot(entry), nil
}

// close cancels running operations and waits for them to return.
func (o *operations) close() {
	o.mu.Lock()
	for _, e := range o.ops {
		if !e.op.Done {
			e.cancel()
		}
	}
	o.mu.Unlock()
	o.wg.Wait()
}
