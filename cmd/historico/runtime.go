package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v2"

	"github.com/MikeSquared-Agency/historico/internal/chatlog"
	"github.com/MikeSquared-Agency/historico/internal/config"
	"github.com/MikeSquared-Agency/historico/internal/hermes"
	"github.com/MikeSquared-Agency/historico/internal/history"
	"github.com/MikeSquared-Agency/historico/internal/store"
	"github.com/MikeSquared-Agency/historico/internal/store/sqlite"
)

// backend is what every command needs from a store.
type backend interface {
	history.Store
	CreateUser(ctx context.Context, u *chatlog.User) error
}

// runtime holds the resources shared by the commands.
type runtime struct {
	cfg     config.Config
	store   backend
	hermes  *hermes.Client
	service *history.Service
	closers []func()
}

func setup(c *cli.Context) (*runtime, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.LogLevel)

	rt := &runtime{cfg: cfg}
	ctx := c.Context

	switch cfg.StoreDriver {
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		rt.store = db
		rt.closers = append(rt.closers, func() { db.Close() })
		slog.Info("sqlite store ready", "path", cfg.SQLitePath)
	case "postgres", "":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
		db, err := store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		rt.closers = append(rt.closers, db.Close)
		if err := db.EnsureSchema(ctx); err != nil {
			rt.close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		rt.store = db
		slog.Info("database connected")
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	// NATS is optional; without it events are simply not published.
	var events history.Publisher
	if cfg.NatsURL != "" {
		client, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("connect to NATS: %w", err)
		}
		rt.hermes = client
		rt.closers = append(rt.closers, func() {
			if err := client.Drain(); err != nil {
				slog.Warn("nats drain failed", "error", err)
			}
			client.Close()
		})
		events = client
		slog.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		slog.Warn("NATS not configured, events will not be published")
	}

	rt.service = history.NewService(rt.store, events, slog.Default())
	return rt, nil
}

// close releases resources in reverse order of acquisition.
func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}
