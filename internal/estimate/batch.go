package estimate

import (
	"context"
	"sync"

	"github.com/Emmet-Finance/Bridge-Data/internal/model"
)

// DefaultWorkers bounds the concurrency of EstimateBatch
const DefaultWorkers = 4

// Result is the outcome of one route in a batch
type Result struct {
	Route model.StrategyKey
	Quote *Quote
	Err   error
}

// EstimateBatch quotes every route concurrently. Results keep the order of routes
// and each carries its own error.
func (e *Estimator) EstimateBatch(ctx context.Context, routes []model.StrategyKey, workers int) []Result {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	results := make([]Result, len(routes))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				route := routes[i]
				q, err := e.Quote(ctx, route.ChainID, route.FromToken, route.ToToken)
				results[i] = Result{Route: route, Quote: q, Err: err}
			}
		}()
	}

	for i := range routes {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}
