package cmd

import (
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/deliorder/cli/reader"
	"github.com/pithecene-io/deliorder/cli/render"
	"github.com/pithecene-io/deliorder/compose"
	"github.com/pithecene-io/deliorder/log"
	"github.com/pithecene-io/deliorder/types"
)

// ComposeCommand returns the compose command. It reads an orders file,
// seals the orders into a package and submits it to the registry.
//
// Create payloads are off-loaded to S3 first when storage is configured,
// so the registry only carries presigned links.
func ComposeCommand() *cli.Command {
	return &cli.Command{
		Name:      "compose",
		Usage:     "Submit a package built from an orders file",
		ArgsUsage: "<orders.yaml>",
		Flags: withReadOnly(
			&cli.StringFlag{
				Name:  "author",
				Usage: "Package author (default: orders file, config, then DELIORDER_USER_ID)",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Validate and show the package without submitting it",
			},
		),
		Action: composeAction,
	}
}

func composeAction(c *cli.Context) error {
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
	authorFlag := c.String("author")
	if authorFlag == "" {
		authorFlag = file.Author
	}
	author := d.author(authorFlag)
	logger := d.logger.With(log.Context{Author: author})

	// Validate everything before any payload leaves the machine.
	if _, err := composeRecords(file.Orders); err != nil {
		return invalidInput("%v", err)
	}

	ctx, cancel := signalContext(c.Context)
	defer cancel()

	if c.Bool("dry-run") {
		pkg, err := sealRecords(file.Orders, author)
		if err != nil {
			return invalidInput("%v", err)
		}
		return r.Render(reader.NewSubmitView(pkg, ""))
	}

	reg, err := d.registry()
	if err != nil {
		return invalidInput("%v", err)
	}

	recs := file.Orders
	store, err := d.payloads(ctx)
	if err != nil {
		return invalidInput("%v", err)
	}
	if store != nil {
		if recs, err = store.Offload(ctx, recs); err != nil {
			return cli.Exit(err.Error(), 1)
		}
	}

	pkg, err := sealRecords(recs, author)
	if err != nil {
		return invalidInput("%v", err)
	}
	serial, err := reg.Submit(ctx, pkg)
	if err != nil {
		return exitWith(err)
	}
	logger.Info("package submitted", map[string]any{
		"serial_number": serial,
		"orders":        len(pkg.Orders),
	})

	return r.Render(reader.NewSubmitView(pkg, serial))
}

// composeRecords appends recs to a fresh composer, reporting the first
// failing record by position.
func composeRecords(recs []types.OrderRecord) (*compose.Composer, error) {
	comp := compose.NewComposer()
	for i, rec := range recs {
		if err := comp.Append(rec); err != nil {
			return nil, &compose.OrderError{Index: i, Err: err}
		}
	}
	return comp, nil
}

func sealRecords(recs []types.OrderRecord, author string) (*types.Package, error) {
	comp, err := composeRecords(recs)
	if err != nil {
		return nil, err
	}
	return comp.Seal(author, time.Now())
}
