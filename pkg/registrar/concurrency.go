package registrar

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// bulkConcurrency caps how many per-domain availability lookups run at once.
const bulkConcurrency = 5

// CheckEach runs check(domain) for every domain in domains with at most
// bulkConcurrency in flight, collecting results in input order. A failure on
// one domain does not cancel the others; the first error encountered is
// returned after all lookups complete.
func CheckEach(ctx context.Context, domains []string, check func(ctx context.Context, domain string) (AvailabilityResult, error)) ([]AvailabilityResult, error) {
	sem := semaphore.NewWeighted(bulkConcurrency)
	results := make([]AvailabilityResult, len(domains))

	var mu sync.Mutex
	var firstErr error
	var wg sync.WaitGroup

	for i, domain := range domains {
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
			break
		}

		wg.Add(1)
		go func(i int, domain string) {
			defer wg.Done()
			defer sem.Release(1)

			res, err := check(ctx, domain)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}

			results[i] = res
		}(i, domain)
	}

	wg.Wait()
	return results, firstErr
}
