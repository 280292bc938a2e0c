package recipe

import (
	"fmt"
	"sync"
	"time"
)

type evalResult struct {
	recipe *Recipe
	errors []EvalError
	err    error
}

// waitWithTimeout waits for a result from ch for at most timeout. A result
// whose generation is no longer current is discarded.
//
// On timeout the evaluating goroutine may still be running; its result is
// dropped into the buffered channel and never read.
func waitWithTimeout(
	ch <-chan evalResult,
	gen uint64,
	timeout time.Duration,
	mu *sync.Mutex,
	currentGen *uint64,
) (*Recipe, []EvalError, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		mu.Lock()
		current := *currentGen
		mu.Unlock()
		if gen != current {
			return nil, nil, fmt.Errorf("recipe: evaluation superseded by newer request")
		}
		return res.recipe, res.errors, res.err

	case <-timer.C:
		return nil, nil, fmt.Errorf("recipe: evaluation timed out after %s", timeout)
	}
}
