package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/sightline/pkg/adapter"
	"github.com/m-mizutani/sightline/pkg/model"
	"github.com/m-mizutani/sightline/pkg/usecase/observe"
	"github.com/urfave/cli/v3"
)

func watchCommand() *cli.Command {
	var (
		cfg       config
		imagePath string
		title     string
		appHint   string
		interval  time.Duration
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "image",
			Aliases:     []string{"i"},
			Usage:       "Path to a screenshot, re-read every cycle",
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
		&cli.DurationFlag{
			Name:        "interval",
			Usage:       "Time between observation cycles",
			Value:       observe.DefaultInterval,
			Sources:     cli.EnvVars("SIGHTLINE_INTERVAL"),
			Destination: &interval,
		},
	}
	flags = append(flags, commonFlags(&cfg)...)

	return &cli.Command{
		Name:  "watch",
		Usage: "Run observation cycles on an interval until interrupted",
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
				source = &adapter.StaticSource{Capt: &model.Capture{Window: window}}
			}

			uc, _, err := cfg.newUseCase(ctx, source)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			return uc.Watch(ctx, interval)
		},
	}
}
