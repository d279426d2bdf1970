package cmd

import (
	"context"
	"errors"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/deliorder/ipc"
	"github.com/pithecene-io/deliorder/types"
)

// ServeCommand returns the serve command. It answers ipc requests framed
// on stdin and writes responses to stdout until stdin closes. Every order
// request runs through the same guard as receive.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Serve single-order requests over stdin/stdout",
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) error {
	d, err := loadDeps(c)
	if err != nil {
		return err
	}
	defer d.Close()

	engine, err := d.engine(nil)
	if err != nil {
		return invalidInput("%v", err)
	}
	srv := ipc.NewServer(engine, ipc.WithServerLogger(d.logger))

	ctx, cancel := signalContext(c.Context)
	defer cancel()

	d.logger.Info("ipc server started", map[string]any{
		"protocol": types.IPCProtocolVersion,
		"platform": d.platform,
	})

	// Serve blocks in Read; a signal must not wait for the next frame.
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, c.App.Reader, c.App.Writer) }()
	select {
	case err = <-done:
	case <-ctx.Done():
		err = nil
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return cli.Exit(err.Error(), 1)
	}
	d.logger.Info("ipc server stopped", nil)
	return nil
}
