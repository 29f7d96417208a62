package relay

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/zulandar/mailslot/internal/telegraph"
)

// UserLister lists registered users.
type UserLister interface {
	Users() ([]int64, error)
}

// Broadcaster sends one message to every registered user.
type Broadcaster struct {
	adapter telegraph.Adapter
	users   UserLister
	out     io.Writer
}

// BroadcasterOpts holds parameters for creating a Broadcaster.
type BroadcasterOpts struct {
	Adapter telegraph.Adapter
	Users   UserLister
	Out     io.Writer // defaults to os.Stdout
}

// NewBroadcaster creates a Broadcaster.
func NewBroadcaster(opts BroadcasterOpts) (*Broadcaster, error) {
	if opts.Adapter == nil {
		return nil, fmt.Errorf("relay: broadcaster: adapter is required")
	}
	if opts.Users == nil {
		return nil, fmt.Errorf("relay: broadcaster: users is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Broadcaster{adapter: opts.Adapter, users: opts.Users, out: out}, nil
}

// Broadcast makes one delivery attempt per registered user. Individual
// failures only count towards Failed; the error is non-nil only when the
// user set could not be read.
func (b *Broadcaster) Broadcast(ctx context.Context, text string) (Tally, error) {
	ids, err := b.users.Users()
	if err != nil {
		return Tally{}, fmt.Errorf("relay: broadcast: %w", err)
	}
	t := Count(FanOut(ctx, nil, "broadcast", ids, TextSender(b.adapter, text, nil)))
	fmt.Fprintf(b.out, "relay: broadcast: %d sent, %d failed\n", t.Sent, t.Failed)
	return t, nil
}
