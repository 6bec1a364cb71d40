package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/urfave/cli/v3"
)

func statsCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "stats",
		Usage: "Show journal statistics",
		Flags: globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setup(ctx)
			if err != nil {
				return err
			}

			journal, err := cfg.newJournal(ctx)
			if err != nil {
				return err
			}

			stats := journal.Stats()
			w := c.Root().Writer
			fmt.Fprintf(w, "Observations: %d\n", stats.Total)
			if !stats.LastUpdated.IsZero() {
				fmt.Fprintf(w, "Last updated: %s\n", stats.LastUpdated.Format("2006-01-02 15:04:05"))
			}

			apps := make([]string, 0, len(stats.ByApp))
			for app := range stats.ByApp {
				apps = append(apps, app)
			}
			sort.Slice(apps, func(i, j int) bool {
				if stats.ByApp[apps[i]] != stats.ByApp[apps[j]] {
					return stats.ByApp[apps[i]] > stats.ByApp[apps[j]]
				}
				return apps[i] < apps[j]
			})
			for _, app := range apps {
				fmt.Fprintf(w, "  %s: %d\n", app, stats.ByApp[app])
			}

			events, err := cfg.newEventLog(ctx)
			if err != nil {
				return err
			}
			if events != nil {
				if patterns := events.Patterns(10); len(patterns) > 0 {
					fmt.Fprintf(w, "Recent patterns:\n")
					for _, p := range patterns {
						fmt.Fprintf(w, "  %s\n", p)
					}
				}
			}

			return nil
		},
	}
}
