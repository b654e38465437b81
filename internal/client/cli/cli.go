// Package cli implements the offsync command line client.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/iudanet/offsync/internal/client/iocli"
	"github.com/iudanet/offsync/internal/config"
	"github.com/iudanet/offsync/internal/logging"
)

// globalOptions флаги, общие для всех команд
type globalOptions struct {
	configPath string
	dbPath     string
	serverURL  string
	token      string
	logLevel   string
}

// Cli holds the state shared by commands of one invocation.
type Cli struct {
	io        iocli.IO
	logOutput io.Writer
	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
	version   string
	opts      globalOptions
}

// New creates the CLI writing command output to out and logs to stderr.
func New(out iocli.IO, version string) *Cli {
	return &Cli{
		io:        out,
		logOutput: os.Stderr,
		version:   version,
	}
}

// Execute runs the command tree with args.
func (c *Cli) Execute(ctx context.Context, args []string) error {
	defer c.teardown()

	root := c.NewRootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// setup загружает конфиг, применяет флаги и создает логгер
func (c *Cli) setup(cmd *cobra.Command) error {
	path := c.opts.configPath
	required := cmd.Flags().Changed("config")
	if path == "" {
		path = config.DefaultPath()
	}

	cfg, err := config.Load(path, required)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.DBPath = c.opts.dbPath
	}
	if flags.Changed("server") {
		cfg.ServerURL = c.opts.serverURL
	}
	if flags.Changed("token") {
		cfg.Token = c.opts.token
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = c.opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closer, err := logging.New(logging.Options{
		Output:     c.logOutput,
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	c.cfg = cfg
	c.logger = logger
	c.logCloser = closer
	return nil
}

func (c *Cli) teardown() {
	if c.logCloser != nil {
		_ = c.logCloser.Close()
		c.logCloser = nil
	}
}

// withApp открывает App на время выполнения fn
func (c *Cli) withApp(ctx context.Context, fn func(a *App) error) error {
	a, err := NewApp(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			c.logger.Error("Failed to close app", "error", err)
		}
	}()
	return fn(a)
}
