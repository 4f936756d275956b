// Copyright 2025 Joseph Cumines

package wait

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/joeycumines/WindowsUseSDK/internal/desktop"
	"go.uber.org/zap"
)

// DefaultInterval is the poll interval used when none is configured.
const DefaultInterval = 100 * time.Millisecond

// State is the state of one wait.
type State string

const (
	StatePending   State = "Pending"
	StateSatisfied State = "Satisfied"
	StateTimedOut  State = "TimedOut"
)

// Condition is a named, pollable check. Check returning a TargetNotFound
// error means "not yet"; any other error ends the wait.
type Condition struct {
	Check func(ctx context.Context) (bool, error)
	Name  string
}

// Outcome describes how a wait ended.
type Outcome struct {
	State    State         `json:"state"`
	Attempts int           `json:"attempts"`
	Elapsed  time.Duration `json:"elapsedNs"`
}

// Engine runs waits at a shared poll interval, which may be changed while
// the server runs.
type Engine struct {
	logger   *zap.Logger
	interval atomic.Int64
}

// NewEngine creates an engine. A non-positive interval uses DefaultInterval.
func NewEngine(interval time.Duration, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{logger: logger}
	e.SetInterval(interval)
	return e
}

// SetInterval changes the poll interval for waits started afterwards.
func (e *Engine) SetInterval(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	e.interval.Store(int64(interval))
}

// Interval returns the current poll interval.
func (e *Engine) Interval() time.Duration {
	return time.Duration(e.interval.Load())
}

// Wait polls cond until it holds or timeout elapses. The condition is always
// checked at least once. Reaching the timeout yields StateTimedOut together
// with a Timeout error; cancellation of ctx and errors from the condition are
// returned as they are, with StatePending.
func (e *Engine) Wait(ctx context.Context, cond Condition, timeout time.Duration) (Outcome, error) {
	start := time.Now()
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var attempts int
	err := PollUntilContext(wctx, e.Interval(), func(ctx context.Context) (bool, error) {
		attempts++
		ok, err := cond.Check(ctx)
		switch {
		case err == nil:
			return ok, nil
		case desktop.IsNotFound(err):
			return false, nil
		case wctx.Err() != nil:
			// the check was cut short by the deadline itself
			return false, nil
		}
		return false, err
	})
	out := Outcome{State: StatePending, Attempts: attempts, Elapsed: time.Since(start)}

	switch {
	case err == nil:
		out.State = StateSatisfied
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		out.State = StateTimedOut
		err = desktop.Timeoutf("%s not satisfied within %v", cond.Name, timeout)
	}
	e.logger.Debug("wait finished",
		zap.String("condition", cond.Name),
		zap.String("state", string(out.State)),
		zap.Int("attempts", attempts),
		zap.Duration("elapsed", out.Elapsed),
		zap.Error(err))
	return out, err
}
