package maintenance

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
)

// Outcome is the per-item result of a fan-out batch.
type Outcome struct {
	ID    int64
	Err   error
	Stack string // non-empty when the unit panicked
}

// forEach runs fn once per item with at most workers units in flight,
// collecting one Outcome per item. A failing or panicking unit never cancels
// its siblings; the batch always runs to completion and returns outcomes in
// item order.
func forEach[T any](ctx context.Context, workers int, items []T, id func(T) int64, fn func(context.Context, T) error) []Outcome {
	if workers <= 0 {
		workers = 8
	}
	outcomes := make([]Outcome, len(items))

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i := range items {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			item := items[i]
			outcomes[i].ID = id(item)
			defer func() {
				if r := recover(); r != nil {
					outcomes[i].Err = fmt.Errorf("panic: %v", r)
					outcomes[i].Stack = string(debug.Stack())
				}
			}()
			outcomes[i].Err = fn(ctx, item)
		}(i)
	}
	wg.Wait()
	return outcomes
}

func failureCount(outcomes []Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}
