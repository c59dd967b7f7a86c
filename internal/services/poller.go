package services

import (
	"context"
	"fmt"
	"time"

	"doc-chat/internal/clock"
)

// PollSpec configures one bounded wait on asynchronous remote processing
type PollSpec struct {
	// Interval is the pause between two status fetches
	Interval time.Duration

	// Timeout is the total wait budget, measured from the start of polling
	// and including the latency of the fetch calls themselves
	Timeout time.Duration

	// Clock defaults to the real clock when nil
	Clock clock.Clock
}

// Default budgets. File processing is quick; store indexing is heavier.
var (
	DefaultFilePollSpec  = PollSpec{Interval: 2 * time.Second, Timeout: 60 * time.Second}
	DefaultIndexPollSpec = PollSpec{Interval: 5 * time.Second, Timeout: 120 * time.Second}
)

// PollUntil re-fetches a status value until isDone reports true.
//
// isFailed is checked before isDone and short-circuits with
// ErrProcessingFailed; pass nil when the remote side has no failure state.
// Once the elapsed time exceeds spec.Timeout the poll stops with ErrTimeout.
// The wait between fetches is aborted as soon as ctx is cancelled.
func PollUntil[T any](
	ctx context.Context,
	spec PollSpec,
	initial T,
	fetch func(ctx context.Context, current T) (T, error),
	isDone func(T) bool,
	isFailed func(T) bool,
) (T, error) {
	clk := spec.Clock
	if clk == nil {
		clk = clock.Real()
	}

	start := clk.Now()
	current := initial

	for {
		if isFailed != nil && isFailed(current) {
			return current, ErrProcessingFailed
		}
		if isDone(current) {
			return current, nil
		}
		if elapsed := clk.Now().Sub(start); elapsed > spec.Timeout {
			return current, fmt.Errorf("%w: still pending after %s", ErrTimeout, spec.Timeout)
		}

		if err := ctx.Err(); err != nil {
			return current, err
		}
		select {
		case <-ctx.Done():
			return current, ctx.Err()
		case <-clk.After(spec.Interval):
		}

		next, err := fetch(ctx, current)
		if err != nil {
			return current, fmt.Errorf("failed to refresh status: %w", err)
		}
		current = next
	}
}
