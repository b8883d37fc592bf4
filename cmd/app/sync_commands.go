package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/healthsync/cmd/app/commands"
	"github.com/allisson/healthsync/internal/app"
	"github.com/allisson/healthsync/internal/config"
)

func getSyncCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "sync-metric",
			Usage: "Pull recent device samples for a metric unless it was captured recently",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "user-id",
					Aliases:  []string{"u"},
					Required: true,
					Usage:    "User ID (UUID)",
				},
				&cli.StringFlag{
					Name:     "type",
					Aliases:  []string{"t"},
					Required: true,
					Usage:    "Record type (progress_entry, meal_log, physical_attribute, mood_entry, sleep_session)",
				},
				&cli.StringFlag{
					Name:    "metric",
					Aliases: []string{"m"},
					Usage:   "Metric name within the record type (e.g., weight)",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				syncer, err := container.Syncer()
				if err != nil {
					return err
				}

				return commands.RunSyncMetric(
					ctx,
					syncer,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("user-id"),
					cmd.String("type"),
					cmd.String("metric"),
					cmd.String("format"),
				)
			},
		},
	}
}
