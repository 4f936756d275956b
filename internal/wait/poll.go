// Copyright 2025 Joseph Cumines
//
// Package wait implements bounded readiness polling.
//
// Key utilities:
//   - PollUntilContext: Polls a condition function until success or the context ends
//   - Engine.Wait: Evaluates a named Condition against a timeout, reporting an Outcome
//   - WindowExists, WindowVisible, WindowReady, WindowInState, ProcessExited:
//     the conditions exposed through window_management wait_for and wait_for_state

package wait

import (
	"context"
	"time"
)

// PollUntilContext evaluates condition immediately and then once per
// interval until it returns true, returns an error, or ctx ends.
func PollUntilContext(ctx context.Context, interval time.Duration, condition func(ctx context.Context) (bool, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done, err := condition(ctx)
	if err != nil || done {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			done, err := condition(ctx)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}
	}
}
