package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/deliorder/adapter"
	"github.com/pithecene-io/deliorder/cli/reader"
	"github.com/pithecene-io/deliorder/cli/render"
	"github.com/pithecene-io/deliorder/cli/tui"
	"github.com/pithecene-io/deliorder/log"
	"github.com/pithecene-io/deliorder/registry"
	"github.com/pithecene-io/deliorder/runtime"
	"github.com/pithecene-io/deliorder/storage"
	"github.com/pithecene-io/deliorder/types"
)

// ReceiveCommand returns the receive command.
//
// Receive retrieves a live package by serial number or deep link, shows
// its overview, asks for confirmation and runs it. The package is
// retrieved again right before the run, so a package that expires while
// the prompt is open is rejected.
//
// Exit codes:
//   - 0: every order succeeded
//   - 1: at least one order failed or was rejected
//   - 2: package expired, not found, or auth failed
//   - 3: invalid arguments or config
func ReceiveCommand() *cli.Command {
	return &cli.Command{
		Name:      "receive",
		Usage:     "Retrieve a package and execute its orders",
		ArgsUsage: "<serial-number | deliorder://open?packageId=...>",
		Flags: withReadOnly(
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "Execute without asking for confirmation",
			},
			&cli.StringFlag{
				Name:  "report",
				Usage: "Write a JSON run report to this path (- for stderr)",
			},
		),
		Action: receiveAction,
	}
}

func receiveAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	arg, err := requireArg(c, "serial number")
	if err != nil {
		return err
	}
	serial, err := registry.ParseDeepLink(arg)
	if err != nil {
		return invalidInput("%v", err)
	}

	d, err := loadDeps(c)
	if err != nil {
		return err
	}
	defer d.Close()

	reg, err := d.registry()
	if err != nil {
		return invalidInput("%v", err)
	}
	ledger, err := d.ledger(c.Context)
	if err != nil {
		return invalidInput("%v", err)
	}
	notifier, err := d.adapter()
	if err != nil {
		return invalidInput("%v", err)
	}

	useTUI := c.Bool("tui")
	errOut := c.App.ErrWriter
	var onOutcome func(types.ExecutionOutcome)
	if !useTUI && isStderrTTY() {
		onOutcome = progressPrinter(errOut)
	}
	engine, err := d.engine(onOutcome)
	if err != nil {
		return invalidInput("%v", err)
	}

	pkg, err := engine.Retrieve(c.Context, reg, serial)
	if err != nil {
		return exitWith(err)
	}

	if !c.Bool("yes") {
		ok, err := confirmPackage(c, pkg, useTUI)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintf(errOut, "package %s not executed\n", serial)
			return nil
		}
	}

	ctx, cancel := signalContext(c.Context)
	defer cancel()

	result, err := engine.RetrieveAndRun(ctx, reg, serial)
	if err != nil {
		return exitWith(err)
	}
	logger := d.logger.With(log.Context{SerialNumber: serial, ExecutionID: result.ExecutionID})

	// Recording and notifying never change the exit code.
	recordRun(ctx, ledger, result, logger)
	adapter.Notify(ctx, notifier, adapter.NewPackageExecutedEvent(result, d.platform), logger, d.collector)

	code := runtime.ExitCodeFor(result, nil)
	if path := c.String("report"); path != "" {
		report := runtime.BuildRunReport(result, d.collector.Snapshot(), code)
		if err := runtime.WriteRunReport(report, path); err != nil {
			fmt.Fprintf(errOut, "warning: %v\n", err)
		}
	}

	view := reader.NewRunView(result)
	if useTUI {
		err = r.RenderTUI(tui.ViewRun, view)
	} else {
		err = r.Render(view)
	}
	if err != nil {
		return err
	}
	return cli.Exit("", code)
}

// confirmPackage shows pkg's overview and asks whether to run it.
func confirmPackage(c *cli.Context, pkg *types.Package, useTUI bool) (bool, error) {
	view := reader.NewOverviewView(runtime.BuildOverview(pkg), time.Now())
	if useTUI {
		if err := tui.Run(tui.ViewOverview, view); err != nil {
			return false, err
		}
	} else {
		overview := render.NewRendererWithWriter(render.FormatTable, c.Bool("no-color"), c.App.ErrWriter)
		if err := overview.Render(view); err != nil {
			return false, err
		}
	}
	question := fmt.Sprintf("Execute %d order(s) from package %s?", len(pkg.Orders), pkg.SerialNumber)
	return confirm(c.App.Reader, c.App.ErrWriter, question)
}

// progressPrinter writes one line per finished order.
func progressPrinter(w io.Writer) func(types.ExecutionOutcome) {
	return func(o types.ExecutionOutcome) {
		mark := "✓"
		if !o.Succeeded {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %d. %s\n", mark, o.OrderIndex+1, o.Message)
	}
}

// recordRun appends result to the ledger when one is configured.
func recordRun(ctx context.Context, ledger *storage.Ledger, result *runtime.RunResult, logger *log.Logger) {
	if ledger == nil {
		return
	}
	if err := ledger.Append(ctx, result); err != nil {
		logger.Warn("ledger append failed", map[string]any{"error": err.Error()})
	}
}
