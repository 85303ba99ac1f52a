package dispatch

import (
	"context"
	"sync"
)

// InProcessPool is a bounded-concurrency dispatcher: a fixed set of worker
// goroutines drains the ids channel until it closes or ctx is cancelled.
type InProcessPool struct {
	Concurrency int
}

func NewInProcessPool(concurrency int) *InProcessPool {
	if concurrency <= 0 {
		concurrency = 5
	}
	return &InProcessPool{Concurrency: concurrency}
}

func (p *InProcessPool) Run(ctx context.Context, ids <-chan int64, exec func(ctx context.Context, id int64)) error {
	var wg sync.WaitGroup

	for i := 0; i < p.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case id, ok := <-ids:
					if !ok {
						return
					}
					exec(ctx, id)
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	wg.Wait()
	return nil
}
