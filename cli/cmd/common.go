package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/deliorder/runtime"
)

// isStderrTTY reports whether stderr is a terminal.
func isStderrTTY() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

// exitWith maps err onto the run exit codes.
func exitWith(err error) error {
	return cli.Exit(err.Error(), runtime.ExitCodeFor(nil, err))
}

// invalidInput wraps err with ExitCodeInvalidInput.
func invalidInput(format string, args ...any) error {
	return cli.Exit(fmt.Sprintf(format, args...), runtime.ExitCodeInvalidInput)
}

// requireArg returns the first positional argument or an invalid-input exit.
func requireArg(c *cli.Context, what string) (string, error) {
	arg := strings.TrimSpace(c.Args().First())
	if arg == "" {
		return "", invalidInput("%s is required", what)
	}
	return arg, nil
}

// rejectTUI refuses --tui for commands without a TUI view.
func rejectTUI(c *cli.Context) error {
	if c.Bool("tui") {
		return cli.Exit(fmt.Sprintf("--tui is not supported for %s command", c.Command.Name), 1)
	}
	return nil
}

// confirm asks a yes/no question on out and reads the answer from in.
// Anything but y or yes, including end of input, is a no.
func confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N] ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
