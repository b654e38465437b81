package cli

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/iudanet/offsync/internal/client/connectivity"
	syncengine "github.com/iudanet/offsync/internal/client/sync"
)

// ErrServerUnreachable is returned by sync when the probe fails.
var ErrServerUnreachable = errors.New("server is unreachable")

type syncReport struct {
	Applied     int
	Failed      int
	Rescheduled int
	Remaining   int
	NextRetry   time.Duration
	mu          sync.Mutex
}

func (r *syncReport) record(o syncengine.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch o.Kind {
	case syncengine.OutcomeApplied:
		r.Applied++
	case syncengine.OutcomeFailed:
		r.Failed++
	case syncengine.OutcomeRescheduled:
		r.Rescheduled++
		r.NextRetry = o.Delay
	}
}

func (c *Cli) newSyncCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Deliver queued mutations now and report the result",
		Long: `Probe the server and, if it is reachable, run one drain of the
mutation log. The command stops at the first transient failure; the
mutation stays queued for the next sync or run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			return c.withApp(ctx, func(a *App) error {
				return c.syncOnce(ctx, a)
			})
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "give up after this long")
	return cmd
}

func (c *Cli) syncOnce(ctx context.Context, a *App) error {
	if a.monitor.ProbeOnce(ctx) != connectivity.StateOnline {
		stats, err := a.log.Stats(ctx)
		if err == nil {
			c.io.Printf("Server %s is unreachable, %d mutation(s) stay queued\n", c.cfg.ServerURL, stats.Outstanding())
		}
		return ErrServerUnreachable
	}

	report := &syncReport{}
	outcomes := a.engine.OnOutcome(report.record)
	defer outcomes.Unregister()

	// Первый переход из draining означает конец прохода
	settled := make(chan struct{})
	var once sync.Once
	states := a.engine.OnStateChange(func(s syncengine.SessionState) {
		if s != syncengine.StateDraining {
			once.Do(func() { close(settled) })
		}
	})
	defer states.Unregister()

	if err := a.Start(ctx, false); err != nil {
		return err
	}

	select {
	case <-settled:
	case <-ctx.Done():
		return fmt.Errorf("sync did not finish: %w", ctx.Err())
	}

	stats, err := a.log.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read queue stats: %w", err)
	}

	report.mu.Lock()
	defer report.mu.Unlock()
	report.Remaining = stats.Outstanding()
	if report.Remaining == 0 {
		report.NextRetry = 0
	}
	if err := syncReportTmpl.Execute(c.io, report); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}
