package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

func listCommand() *cli.Command {
	var (
		cfg   config
		limit int64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"n"},
			Usage:       "Maximum number of observations to list",
			Value:       20,
			Sources:     cli.EnvVars("SIGHTLINE_LIST_LIMIT"),
			Destination: &limit,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "list",
		Usage: "List recent observations, newest first",
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

			recent := journal.Recent(int(limit))
			w := c.Root().Writer
			for i := len(recent) - 1; i >= 0; i-- {
				obs := recent[i]
				fmt.Fprintf(w, "#%d\t%s\t%s\t%s\t%.2f\t%s\n",
					obs.ID,
					obs.Timestamp.Format("2006-01-02 15:04:05"),
					obs.App,
					obs.Activity,
					obs.Confidence,
					obs.SourceMode,
				)
			}
			return nil
		},
	}
}
