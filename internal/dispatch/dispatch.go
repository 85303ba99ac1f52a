// Package dispatch hands claimed monitor ids from the scheduler to
// executors, either in-process or over an external broker. Delivery is
// at-least-once; the claim lease in the store makes duplicates safe.
package dispatch

import "context"

// Dispatcher receives monitor ids on a channel and runs exec for each,
// bounded however the implementation chooses.
type Dispatcher interface {
	Run(ctx context.Context, ids <-chan int64, exec func(ctx context.Context, id int64)) error
}
