package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/healthsync/cmd/app/commands"
	"github.com/allisson/healthsync/internal/app"
	"github.com/allisson/healthsync/internal/config"
)

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Value:   "text",
		Usage:   "Output format: 'text' or 'json'",
	}
}

func getOutboxCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "process-outbox",
			Usage: "Deliver one batch of pending outbox events to the backend",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "user-id",
					Aliases: []string{"u"},
					Usage:   "User to log in before processing (defaults to SESSION_USER_ID)",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				sess, err := container.Session()
				if err != nil {
					return err
				}
				processor, err := container.Processor()
				if err != nil {
					return err
				}

				return commands.RunProcessOutbox(
					ctx,
					processor,
					sess,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("user-id"),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "purge-outbox",
			Usage: "Delete completed outbox events older than the given number of hours",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:    "hours",
					Aliases: []string{"H"},
					Value:   24,
					Usage:   "Delete completed events older than this many hours",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				queue, err := container.Queue()
				if err != nil {
					return err
				}

				return commands.RunPurgeOutbox(
					ctx,
					queue,
					container.Logger(),
					commands.DefaultIO().Writer,
					int(cmd.Int("hours")),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "outbox-stats",
			Usage: "Show the number of outbox events per status for a user",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "user-id",
					Aliases:  []string{"u"},
					Required: true,
					Usage:    "User ID (UUID)",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				queue, err := container.Queue()
				if err != nil {
					return err
				}

				return commands.RunOutboxStats(
					ctx,
					queue,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("user-id"),
					cmd.String("format"),
				)
			},
		},
	}
}
