package bot

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/zulandar/mailslot/internal/alert"
	"github.com/zulandar/mailslot/internal/ledger"
	"github.com/zulandar/mailslot/internal/telegraph"
)

// Reconciler rebuilds the relational mirror from the flat logs.
type Reconciler interface {
	Reconcile() (ledger.Counts, error)
}

// Daemon is the main bot process. It connects the adapter, pumps inbound
// updates through per-user ordered workers to a handler, and runs the
// scheduled reconcile.
type Daemon struct {
	adapter       telegraph.Adapter
	handle        HandlerFunc
	workers       int
	reconciler    Reconciler
	reconcileCron string
	alerts        alert.Sink
	out           io.Writer
}

// DaemonOpts holds parameters for creating a new Daemon.
type DaemonOpts struct {
	Adapter telegraph.Adapter
	Handler HandlerFunc // usually Router.Handle
	Workers int         // defaults to 8
	// Reconciler and ReconcileCron enable the scheduled reconcile; both are
	// optional.
	Reconciler    Reconciler
	ReconcileCron string
	Alerts        alert.Sink // defaults to alert.Nop
	Out           io.Writer  // defaults to os.Stdout
}

// NewDaemon creates a Daemon with the given options.
func NewDaemon(opts DaemonOpts) (*Daemon, error) {
	if opts.Adapter == nil {
		return nil, fmt.Errorf("bot: adapter is required")
	}
	if opts.Handler == nil {
		return nil, fmt.Errorf("bot: handler is required")
	}
	if opts.ReconcileCron != "" {
		if opts.Reconciler == nil {
			return nil, fmt.Errorf("bot: reconciler is required for a reconcile schedule")
		}
		if err := ValidateCron(opts.ReconcileCron); err != nil {
			return nil, err
		}
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 8
	}
	sink := opts.Alerts
	if sink == nil {
		sink = alert.Nop{}
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Daemon{
		adapter:       opts.Adapter,
		handle:        opts.Handler,
		workers:       workers,
		reconciler:    opts.Reconciler,
		reconcileCron: opts.ReconcileCron,
		alerts:        sink,
		out:           out,
	}, nil
}

// Run connects the adapter and blocks until ctx is cancelled or the adapter
// stops delivering updates. Updates already queued are handled before Run
// returns.
func (d *Daemon) Run(ctx context.Context) error {
	fmt.Fprintf(d.out, "Bot connecting...\n")
	if err := d.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("bot: connect: %w", err)
	}

	inbound, err := d.adapter.Listen(ctx)
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("bot: listen: %w", err)
	}

	dispatcher := NewDispatcher(d.workers, 0, d.handle)
	dispatcher.Start(ctx)

	schedCtx, stopSched := context.WithCancel(ctx)
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		d.runReconcileScheduler(schedCtx)
	}()

	fmt.Fprintf(d.out, "Bot online (%d workers)\n", d.workers)

	defer func() {
		stopSched()
		<-schedDone
		dispatcher.Stop()
		if err := d.adapter.Close(); err != nil {
			log.Printf("bot: close adapter: %v", err)
		}
		fmt.Fprintf(d.out, "Bot stopped\n")
	}()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(d.out, "Bot shutting down...\n")
			return nil
		case u, ok := <-inbound:
			if !ok {
				fmt.Fprintf(d.out, "Bot inbound channel closed\n")
				return nil
			}
			if u.UserID() == 0 {
				continue
			}
			if !dispatcher.Dispatch(ctx, u) {
				return nil
			}
		}
	}
}

// runReconcileScheduler reconciles the ledger on the configured schedule.
// It returns immediately when no schedule is set.
func (d *Daemon) runReconcileScheduler(ctx context.Context) {
	if d.reconcileCron == "" || d.reconciler == nil {
		return
	}
	wait := nextCronDuration(d.reconcileCron, time.Now())
	if wait <= 0 {
		return
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			d.reconcile(ctx)
			if wait := nextCronDuration(d.reconcileCron, time.Now()); wait > 0 {
				timer.Reset(wait)
			} else {
				return
			}
		}
	}
}

func (d *Daemon) reconcile(ctx context.Context) {
	counts, err := d.reconciler.Reconcile()
	if err != nil {
		log.Printf("bot: scheduled reconcile: %v", err)
		if aerr := d.alerts.Notify(ctx, alert.Alert{
			Title:    "Scheduled ledger reconcile failed",
			Body:     err.Error(),
			Severity: alert.SeverityError,
		}); aerr != nil {
			log.Printf("bot: scheduled reconcile: alert: %v", aerr)
		}
		return
	}
	fmt.Fprintf(d.out, "bot: scheduled reconcile: users=%d balances=%d history=%d\n",
		counts.Users, counts.Balances, counts.History)
}
