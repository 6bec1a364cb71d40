package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/m-mizutani/sightline/pkg/adapter"
	"github.com/m-mizutani/sightline/pkg/model"
	"github.com/m-mizutani/sightline/pkg/suggest"
	"github.com/m-mizutani/sightline/pkg/usecase/observe"
	"github.com/urfave/cli/v3"
)

func runCommand() *cli.Command {
	var (
		cfg       config
		imagePath string
		title     string
		appHint   string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "image",
			Aliases:     []string{"i"},
			Usage:       "Path to a screenshot to analyze",
			Sources:     cli.EnvVars("SIGHTLINE_IMAGE"),
			Destination: &imagePath,
		},
		&cli.StringFlag{
			Name:        "title",
			Usage:       "Active window title",
			Sources:     cli.EnvVars("SIGHTLINE_TITLE"),
			Destination: &title,
		},
		&cli.StringFlag{
			Name:        "app-hint",
			Usage:       "Hint for the active application name",
			Sources:     cli.EnvVars("SIGHTLINE_APP_HINT"),
			Destination: &appHint,
		},
	}
	flags = append(flags, commonFlags(&cfg)...)

	return &cli.Command{
		Name:  "run",
		Usage: "Run one observation cycle",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setup(ctx)
			if err != nil {
				return err
			}

			window := model.WindowContext{AppHint: appHint, Title: title}
			var source adapter.Source
			if imagePath != "" {
				source = adapter.NewFileSource(imagePath, window)
			} else {
				// No screenshot: the fallback analyzer works from the
				// window context alone.
				source = &adapter.StaticSource{Capt: &model.Capture{Window: window}}
			}

			uc, _, err := cfg.newUseCase(ctx, source)
			if err != nil {
				return err
			}

			sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
			sp.Suffix = " analyzing screen..."
			sp.Start()
			result, err := uc.RunCycle(ctx)
			sp.Stop()
			if err != nil {
				return err
			}

			printResult(c, result)
			return nil
		},
	}
}

func printResult(c *cli.Command, result *observe.CycleResult) {
	w := c.Root().Writer
	obs := result.Observation

	fmt.Fprintf(w, "Observation #%d\n", obs.ID)
	fmt.Fprintf(w, "  App:        %s\n", obs.App)
	fmt.Fprintf(w, "  Activity:   %s\n", obs.Activity)
	fmt.Fprintf(w, "  Confidence: %.2f (%s)\n", obs.Confidence, obs.SourceMode)
	for _, e := range obs.Errors {
		fmt.Fprintf(w, "  Error:      %s\n", e)
	}

	if len(result.Matches) > 0 {
		fmt.Fprintf(w, "Similar observations:\n")
		for _, m := range result.Matches {
			fmt.Fprintf(w, "  #%d\tscore %.2f\t%s\n", m.Observation.ID, m.Score, m.Rationale)
		}
	}

	if result.Suggestion != nil && result.Suggestion.Rule != suggest.RuleNone {
		fmt.Fprintf(w, "Suggestion (%s): %s\n", result.Suggestion.Rule, result.Suggestion.Text)
	} else {
		fmt.Fprintf(w, "Suggestion: none\n")
	}
}
