package service

import (
	"context"
	"errors"
	"sync"
)

// outcome is the per-item result of a batch operation.
type outcome int

const (
	outcomeDone outcome = iota
	outcomeSkipped
	outcomeFailed
	// outcomeUnindexed is a record added without tags after extraction failed.
	outcomeUnindexed
	// outcomeCancelled is an item interrupted by cancellation. It is not reported.
	outcomeCancelled
)

type itemResult struct {
	item    string
	outcome outcome
	err     error
}

// runPool feeds items to a fixed number of workers and delivers every result to
// collect on a single goroutine. Dispatch stops when ctx is cancelled; items
// already handed to a worker finish, and those cut short by the cancellation
// are dropped rather than reported as failures.
func runPool(ctx context.Context, workers int, items []string, work func(ctx context.Context, item string) (outcome, error), collect func(itemResult)) {
	if workers < 1 {
		workers = 1
	}
	itemsChan := make(chan string, workers*2)
	resultsChan := make(chan itemResult, workers*2)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range itemsChan {
				o, err := work(ctx, item)
				if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
					o = outcomeCancelled
				}
				resultsChan <- itemResult{item: item, outcome: o, err: err}
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		for result := range resultsChan {
			if result.outcome == outcomeCancelled {
				continue
			}
			collect(result)
		}
		close(done)
	}()

dispatch:
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		select {
		case itemsChan <- item:
		case <-ctx.Done():
			break dispatch
		}
	}

	close(itemsChan)
	wg.Wait()
	close(resultsChan)
	<-done
}
