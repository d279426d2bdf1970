package cmd

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/deliorder/cli/reader"
	"github.com/pithecene-io/deliorder/cli/render"
	"github.com/pithecene-io/deliorder/compose"
	"github.com/pithecene-io/deliorder/guard"
	"github.com/pithecene-io/deliorder/runtime"
)

// CheckCommand returns the check command. It runs paths through the
// critical-path guard without touching them. Exits 1 when any path is
// protected.
func CheckCommand() *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "Report whether paths are protected by the critical-path guard",
		ArgsUsage: "<path> [path...]",
		Flags:     ReadOnlyFlags(),
		Action:    checkAction,
	}
}

func checkAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if err := rejectTUI(c); err != nil {
		return err
	}
	if c.NArg() == 0 {
		return invalidInput("at least one path is required")
	}

	d, err := loadDeps(c)
	if err != nil {
		return err
	}
	defer d.Close()

	g, err := d.guard()
	if err != nil {
		return invalidInput("%v", err)
	}

	items := make([]reader.PathCheckItem, 0, c.NArg())
	protected := false
	for _, path := range c.Args().Slice() {
		item := reader.NewPathCheckItem(g, path)
		protected = protected || item.Protected
		items = append(items, item)
	}
	if err := r.Render(items); err != nil {
		return err
	}
	if protected {
		return cli.Exit("", runtime.ExitCodeOrderFailed)
	}
	return nil
}

// ValidateCommand returns the validate command. It checks an orders file
// the way compose would, and runs every order through this machine's
// guard. Nothing is submitted.
func ValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Validate an orders file without submitting it",
		ArgsUsage: "<orders.yaml>",
		Flags: withReadOnly(
			&cli.BoolFlag{
				Name:  "no-guard",
				Usage: "Skip the critical-path check",
			},
		),
		Action: validateAction,
	}
}

func validateAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if err := rejectTUI(c); err != nil {
		return err
	}
	path, err := requireArg(c, "orders file")
	if err != nil {
		return err
	}

	d, err := loadDeps(c)
	if err != nil {
		return err
	}
	defer d.Close()

	home, _ := os.UserHomeDir()
	file, err := compose.LoadOrdersFile(path, home)
	if err != nil {
		return invalidInput("%v", err)
	}
	if len(file.Orders) == 0 {
		return invalidInput("%v", compose.ErrEmptyPackage)
	}

	var g *guard.Guard
	if !c.Bool("no-guard") {
		if g, err = d.guard(); err != nil {
			return invalidInput("%v", err)
		}
	}
	items := reader.NewOrderCheckItems(file.Orders, g)
	if err := r.Render(items); err != nil {
		return err
	}
	for _, item := range items {
		if !item.Valid {
			return cli.Exit("", runtime.ExitCodeInvalidInput)
		}
	}
	return nil
}
