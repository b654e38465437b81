package main

import (
	"context"
	"fmt"
	"os"

	"github.com/iudanet/offsync/internal/client/cli"
	"github.com/iudanet/offsync/internal/client/iocli"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	version := fmt.Sprintf("%s (built %s, commit %s)", Version, BuildDate, GitCommit)

	if err := cli.New(iocli.NewStdio(), version).Execute(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
