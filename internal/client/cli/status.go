package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/iudanet/offsync/internal/client/status"
	"github.com/iudanet/offsync/internal/client/storage"
)

func (c *Cli) newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Probe the server once and show the sync status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withApp(ctx, func(a *App) error {
				a.monitor.ProbeOnce(ctx)

				if err := a.status.Init(ctx); err != nil {
					return err
				}
				defer a.status.Dispose()

				meta, err := a.meta.Get(ctx)
				if err != nil {
					return fmt.Errorf("failed to read sync metadata: %w", err)
				}

				return c.printStatus(a.status.Snapshot(), meta)
			})
		},
	}
}

type statusView struct {
	Snapshot status.Snapshot
	Icon     string
	Server   string
	LastSync string
}

func (c *Cli) printStatus(snap status.Snapshot, meta storage.SyncMetadata) error {
	view := statusView{Snapshot: snap, Server: c.cfg.ServerURL, LastSync: "never"}
	if last := meta.LastSync(); !last.IsZero() {
		view.LastSync = fmt.Sprintf("%s (%d applied)", last.Format(time.RFC3339), meta.TotalApplied)
	}
	if c.io.IsTerminal() {
		view.Icon = statusIcons[snap.Status] + " "
	}
	if err := statusTmpl.Execute(c.io, view); err != nil {
		return fmt.Errorf("failed to render status: %w", err)
	}
	return nil
}

// statusLine однострочный статус для долгоживущей команды run
func (c *Cli) statusLine(snap status.Snapshot) string {
	icon := ""
	if c.io.IsTerminal() {
		icon = statusIcons[snap.Status] + " "
	}
	line := fmt.Sprintf("%s%s pending=%d in_flight=%d failed=%d",
		icon, snap.Status, snap.Stats.Pending, snap.Stats.InFlight, snap.Stats.Failed)
	if snap.Anomaly != nil {
		line += fmt.Sprintf(" storage_error=%q", snap.Anomaly.Err.Error())
	}
	return line
}
