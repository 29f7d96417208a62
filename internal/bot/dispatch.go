package bot

import (
	"context"
	"sync"

	"github.com/zulandar/mailslot/internal/telegraph"
)

// HandlerFunc handles one update.
type HandlerFunc func(ctx context.Context, u telegraph.Update)

// Dispatcher fans updates out to a fixed set of workers. All updates for one
// user go to the same worker, so they are handled in arrival order while
// different users proceed in parallel.
type Dispatcher struct {
	queues []chan telegraph.Update
	handle HandlerFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher with workers partitions, each with a
// queue of depth updates.
func NewDispatcher(workers, depth int, handle HandlerFunc) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if depth <= 0 {
		depth = 64
	}
	queues := make([]chan telegraph.Update, workers)
	for i := range queues {
		queues[i] = make(chan telegraph.Update, depth)
	}
	return &Dispatcher{queues: queues, handle: handle}
}

// Start launches the workers. Each worker drains its queue until Stop.
func (d *Dispatcher) Start(ctx context.Context) {
	for _, q := range d.queues {
		d.wg.Add(1)
		go func(q <-chan telegraph.Update) {
			defer d.wg.Done()
			for u := range q {
				d.handle(ctx, u)
			}
		}(q)
	}
}

// Dispatch queues u on its user's worker. It blocks while that queue is
// full and reports false if ctx ends first.
func (d *Dispatcher) Dispatch(ctx context.Context, u telegraph.Update) bool {
	select {
	case d.queues[d.partition(u.UserID())] <- u:
		return true
	case <-ctx.Done():
		return false
	}
}

// Stop closes the queues and waits for queued updates to be handled.
// Dispatch must not be called after Stop.
func (d *Dispatcher) Stop() {
	for _, q := range d.queues {
		close(q)
	}
	d.wg.Wait()
}

func (d *Dispatcher) partition(userID int64) int {
	return int(uint64(userID) % uint64(len(d.queues)))
}
