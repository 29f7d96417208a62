// Package relay moves submissions between users, administrators and the
// public channel: the submission pipeline, the publish-and-credit
// coordinator, and broadcast fan-out.
package relay

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/zulandar/mailslot/internal/telegraph"
)

// Delivery is the outcome of one fan-out attempt: delivered when Err is nil,
// failed(Err) otherwise.
type Delivery struct {
	Recipient int64
	Ref       telegraph.MessageRef
	Err       error
}

// Delivered reports whether the attempt succeeded.
func (d Delivery) Delivered() bool { return d.Err == nil }

// Tally counts the outcomes of a fan-out.
type Tally struct {
	Sent   int
	Failed int
}

// Count tallies deliveries.
func Count(ds []Delivery) Tally {
	var t Tally
	for _, d := range ds {
		if d.Delivered() {
			t.Sent++
		} else {
			t.Failed++
		}
	}
	return t
}

// SendFunc delivers one message to one recipient.
type SendFunc func(ctx context.Context, recipient int64) (telegraph.MessageRef, error)

// FanOut calls send once per recipient, in order. A failure is recorded and
// iteration continues; there is no retry.
func FanOut(ctx context.Context, out io.Writer, label string, recipients []int64, send SendFunc) []Delivery {
	ds := make([]Delivery, 0, len(recipients))
	for _, r := range recipients {
		ref, err := send(ctx, r)
		if err != nil {
			log.Printf("relay: %s: deliver to %d: %v", label, r, err)
		} else if out != nil {
			fmt.Fprintf(out, "relay: %s: delivered to %d\n", label, r)
		}
		ds = append(ds, Delivery{Recipient: r, Ref: ref, Err: err})
	}
	return ds
}

// TextSender returns a SendFunc that sends text through a.
func TextSender(a telegraph.Adapter, text string, kb telegraph.Keyboard) SendFunc {
	return func(ctx context.Context, recipient int64) (telegraph.MessageRef, error) {
		return a.SendText(ctx, recipient, text, kb)
	}
}
