package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCommand builds the offsync command tree.
func (c *Cli) NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "offsync",
		Short: "Offline-first mutation queue client",
		Long: `offsync records write operations locally and delivers them to the
server when it is reachable, in order, with retries.`,
		Version:       c.version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.opts.configPath, "config", "", "config file (default ~/.offsync/config.yaml)")
	pf.StringVar(&c.opts.dbPath, "db", "", "path to the local database")
	pf.StringVar(&c.opts.serverURL, "server", "", "server URL")
	pf.StringVar(&c.opts.token, "token", "", "bearer token for the server")
	pf.StringVar(&c.opts.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.SetOut(c.io)
	root.SetErr(c.logOutput)

	root.AddCommand(
		c.newEnqueueCommand(),
		c.newStatusCommand(),
		c.newSyncCommand(),
		c.newFailedCommand(),
		c.newRetryCommand(),
		c.newDiscardCommand(),
		c.newRunCommand(),
	)

	return root
}
