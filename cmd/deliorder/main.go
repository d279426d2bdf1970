// Package main provides the deliorder CLI entrypoint.
//
// Usage:
//
//	deliorder [--config file] [--registry backend] <command> [options]
//
// Exit codes for receive:
//   - 0: every order succeeded
//   - 1: at least one order failed or was rejected
//   - 2: package expired, not found, or auth failed
//   - 3: invalid arguments, orders, or config
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/deliorder/cli/cmd"
	"github.com/pithecene-io/deliorder/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		// ExitErrHandler already handled the exit for cli.ExitCoder errors.
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:           "deliorder",
		Usage:          "Compose, deliver and execute file order packages",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		Flags:          cmd.GlobalFlags(),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.ComposeCommand(),
			cmd.ReceiveCommand(),
			cmd.HistoryCommand(),
			cmd.ExecutionsCommand(),
			cmd.CheckCommand(),
			cmd.ValidateCommand(),
			cmd.ServeCommand(),
			cmd.PruneCommand(),
			cmd.VersionCommand(commit),
		},
	}
}

// exitErrHandler handles errors from the CLI, preserving exit codes from cli.Exit().
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N).Error() returns "exit status N", so skip those
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
