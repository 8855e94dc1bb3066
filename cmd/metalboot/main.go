// Package main is the entry point for the metalboot CLI.
//
// metalboot turns a rack of physical machines into a running Talos
// Kubernetes cluster: it powers nodes into network boot, streams the OS
// image with Tinkerbell workflows, applies machine configuration,
// bootstraps etcd and verifies that every node joined.
//
// Commands: provision, status, version, completion.
//
// For detailed usage information, run:
//
//	metalboot --help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/imamik/metalboot/cmd/metalboot/commands"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	// Interrupting a run cancels every phase; nodes keep whatever state they reached.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := commands.Root().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
