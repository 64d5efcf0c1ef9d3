package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// EvalTimeout is the default hard limit for a single program run.
const EvalTimeout = 10 * time.Second

// Errors reported when a run does not deliver a usable result.
var (
	ErrTimeout    = errors.New("evaluation timed out")
	ErrSuperseded = errors.New("evaluation superseded by newer request")
)

// runResult passes a program run's outcome through a channel.
type runResult struct {
	out *runOutput
	err error
}

// waitWithTimeout waits for a result from ch, giving up after timeout or
// when ctx ends. The generation counter discards results of runs that a
// newer LoadGraph or Evaluate has superseded.
//
// On timeout the goroutine may still be running; the generation check
// ensures its result is discarded when it eventually completes.
func waitWithTimeout[T any](
	ctx context.Context,
	ch <-chan T,
	timeout time.Duration,
	gen uint64,
	mu *sync.Mutex,
	currentGen *uint64,
) (T, error) {
	var zero T
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		mu.Lock()
		current := *currentGen
		mu.Unlock()
		if gen != current {
			return zero, ErrSuperseded
		}
		return res, nil

	case <-timer.C:
		return zero, fmt.Errorf("%w after %s", ErrTimeout, timeout)

	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
