package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/MikeSquared-Agency/historico/internal/api"
	"github.com/MikeSquared-Agency/historico/internal/backfill"
	"github.com/MikeSquared-Agency/historico/internal/chatlog"
	"github.com/MikeSquared-Agency/historico/internal/hermes"
	"github.com/MikeSquared-Agency/historico/internal/metrics"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP API",
		Action: func(c *cli.Context) error {
			rt, err := setup(c)
			if err != nil {
				return err
			}
			defer rt.close()

			cfg := rt.cfg
			slog.Info("historico starting", "port", cfg.Port, "store", cfg.StoreDriver)

			srv := api.NewServer(cfg.Port, rt.service, int64(cfg.MaxUploadMB)<<20, slog.Default())
			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			if rt.hermes != nil {
				if err := rt.hermes.OnImportCompleted(func(evt hermes.ImportCompleted) {
					metrics.RecordObservedImport(evt.Source)
					slog.Info("import committed by another process",
						"import_id", evt.ImportID,
						"user_id", evt.UserID,
						"source", evt.Source,
						"conversations", evt.Conversations,
						"messages", evt.Messages,
					)
				}); err != nil {
					slog.Warn("failed to subscribe to import events", "error", err)
				}
				if err := rt.hermes.Publish(hermes.SubjectRegistered, map[string]any{
					"timestamp": time.Now().UTC().Format(time.RFC3339),
					"port":      cfg.Port,
					"version":   version,
				}); err != nil {
					slog.Warn("failed to publish registration", "error", err)
				}
			}

			slog.Info("historico ready", "port", cfg.Port)

			// Graceful shutdown
			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("HTTP server error: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			slog.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Warn("HTTP shutdown incomplete", "error", err)
			}
			slog.Info("historico stopped")
			return nil
		},
	}
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import one CSV export for a user",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:     "user",
				Aliases:  []string{"u"},
				Usage:    "Owner user `ID`",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("import takes exactly one FILE argument", 2)
			}
			rt, err := setup(c)
			if err != nil {
				return err
			}
			defer rt.close()

			path := c.Args().First()
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			res, err := rt.service.Import(c.Context, c.Int64("user"), f, "cli")
			if err != nil {
				return err
			}
			fmt.Printf("Imported %d conversations with %d messages from %s (import %s, %d rows skipped)\n",
				res.Conversations, res.Messages, path, res.ImportID, res.SkippedRows)
			return nil
		},
	}
}

func backfillCommand() *cli.Command {
	return &cli.Command{
		Name:  "backfill",
		Usage: "Import every CSV export under a directory, resuming where a previous run stopped",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:     "user",
				Aliases:  []string{"u"},
				Usage:    "Owner user `ID`",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "dir",
				Aliases:  []string{"d"},
				Usage:    "Directory of CSV exports",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Parse and count without writing",
			},
			&cli.StringFlag{
				Name:  "state",
				Usage: "State file `PATH` (default ~/.historico/backfill-state.json)",
			},
		},
		Action: func(c *cli.Context) error {
			rt, err := setup(c)
			if err != nil {
				return err
			}
			defer rt.close()

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runner := backfill.NewRunner(backfill.Config{
				Dir:          c.String("dir"),
				UserID:       c.Int64("user"),
				DryRun:       c.Bool("dry-run"),
				StatePath:    c.String("state"),
				SlackToken:   rt.cfg.SlackBotToken,
				SlackChannel: rt.cfg.SlackChannel,
			}, rt.service, slog.Default())

			report, err := runner.Run(ctx)
			if report != nil {
				fmt.Print("\n" + backfill.FormatSummary(report))
			}
			if errors.Is(err, context.Canceled) {
				fmt.Println("Interrupted; rerun the same command to resume.")
				return nil
			}
			return err
		},
	}
}

func userCommand() *cli.Command {
	return &cli.Command{
		Name:  "user",
		Usage: "Manage accounts for local runs",
		Subcommands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Create a user and print its id",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "username",
						Usage:    "Unique `NAME`",
						Required: true,
					},
				},
				Action: func(c *cli.Context) error {
					rt, err := setup(c)
					if err != nil {
						return err
					}
					defer rt.close()

					u := &chatlog.User{Username: c.String("username")}
					if err := rt.store.CreateUser(c.Context, u); err != nil {
						return err
					}
					fmt.Printf("Created user %q with id %d\n", u.Username, u.ID)
					return nil
				},
			},
		},
	}
}
