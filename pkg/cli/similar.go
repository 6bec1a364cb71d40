package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/sightline/pkg/recall"
	"github.com/urfave/cli/v3"
)

func similarCommand() *cli.Command {
	var (
		cfg config
		id  int64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "id",
			Usage:       "Observation ID to find similar observations for",
			Required:    true,
			Destination: &id,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, tuningFlags(&cfg)...)

	return &cli.Command{
		Name:  "similar",
		Usage: "Find past observations similar to a given one",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setup(ctx)
			if err != nil {
				return err
			}

			journal, err := cfg.newJournal(ctx)
			if err != nil {
				return err
			}

			obs, ok := journal.Get(id)
			if !ok {
				return goerr.New("observation not found", goerr.V("id", id))
			}

			matches, err := recall.FindSimilar(obs, journal, cfg.recallOptions())
			if err != nil {
				return err
			}

			w := c.Root().Writer
			if len(matches) == 0 {
				fmt.Fprintf(w, "No similar observations for #%d\n", id)
				return nil
			}
			for _, m := range matches {
				fmt.Fprintf(w, "#%d\tscore %.2f\t%s/%s\t%s\n",
					m.Observation.ID, m.Score,
					m.Observation.App, m.Observation.Activity,
					m.Rationale,
				)
			}
			return nil
		},
	}
}
