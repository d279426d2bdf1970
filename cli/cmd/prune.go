package cmd

import (
	"context"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/deliorder/cli/render"
)

// PruneResponse is the response for the prune command.
type PruneResponse struct {
	Removed int64     `json:"removed" yaml:"removed"`
	Cutoff  time.Time `json:"cutoff" yaml:"cutoff"`
}

// pruner is implemented by registries that keep expired packages until
// told otherwise.
type pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// PruneCommand returns the prune command. It deletes packages that expired
// before now minus --older-than. Only the sqlite registry needs it; redis
// expires keys on its own.
func PruneCommand() *cli.Command {
	return &cli.Command{
		Name:  "prune",
		Usage: "Delete expired packages from the local registry",
		Flags: withReadOnly(
			&cli.DurationFlag{
				Name:  "older-than",
				Usage: "Keep packages that expired within this duration",
			},
		),
		Action: pruneAction,
	}
}

func pruneAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if err := rejectTUI(c); err != nil {
		return err
	}
	if c.Duration("older-than") < 0 {
		return invalidInput("--older-than must not be negative")
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
	p, ok := reg.(pruner)
	if !ok {
		return invalidInput("the %s registry does not support prune", d.backend)
	}

	cutoff := time.Now().Add(-c.Duration("older-than")).UTC()
	removed, err := p.Prune(c.Context, cutoff)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return r.Render(PruneResponse{Removed: removed, Cutoff: cutoff})
}
