package cmd

import (
	"errors"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/deliorder/cli/config"
	"github.com/pithecene-io/deliorder/cli/reader"
	"github.com/pithecene-io/deliorder/cli/render"
	"github.com/pithecene-io/deliorder/cli/tui"
)

// HistoryCommand returns the history command. It lists an author's
// packages, live and expired.
func HistoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List submitted packages",
		Flags: withReadOnly(
			&cli.StringFlag{
				Name:  "author",
				Usage: "Package author (default: config, then DELIORDER_USER_ID)",
			},
			&cli.BoolFlag{
				Name:  "oldest",
				Usage: "List oldest packages first",
			},
		),
		Action: historyAction,
	}
}

func historyAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	d, err := loadDeps(c)
	if err != nil {
		return err
	}
	defer d.Close()

	author := d.author(c.String("author"))
	if author == "" {
		return invalidInput("author is required (--author, config author, or DELIORDER_USER_ID)")
	}
	reg, err := d.registry()
	if err != nil {
		return invalidInput("%v", err)
	}

	items, err := reader.New(reg, nil, time.Now).History(c.Context, author, c.Bool("oldest"))
	if err != nil {
		return exitWith(err)
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewHistory, items)
	}
	return r.Render(items)
}

// ExecutionsCommand returns the executions command. It reads the outcome
// ledger for one package.
func ExecutionsCommand() *cli.Command {
	return &cli.Command{
		Name:      "executions",
		Usage:     "Show recorded outcomes of a package's runs",
		ArgsUsage: "<serial-number>",
		Flags:     ReadOnlyFlags(),
		Action:    executionsAction,
	}
}

func executionsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if err := rejectTUI(c); err != nil {
		return err
	}
	serial, err := requireArg(c, "serial number")
	if err != nil {
		return err
	}

	d, err := loadDeps(c)
	if err != nil {
		return err
	}
	defer d.Close()

	ledger, err := d.ledger(c.Context)
	if err != nil {
		return invalidInput("%v", err)
	}
	items, err := reader.New(nil, ledger, time.Now).Executions(c.Context, serial)
	if errors.Is(err, reader.ErrNoLedger) {
		return invalidInput("%v (set ledger.backend in %s)", err, config.DefaultFile)
	}
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return r.Render(items)
}
