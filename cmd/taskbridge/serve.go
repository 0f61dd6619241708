package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"

	"github.com/fleetline/taskbridge/internal/config"
	"github.com/fleetline/taskbridge/internal/directory"
	"github.com/fleetline/taskbridge/internal/format"
	"github.com/fleetline/taskbridge/internal/handlers"
	"github.com/fleetline/taskbridge/internal/logger"
	"github.com/fleetline/taskbridge/internal/media"
	"github.com/fleetline/taskbridge/internal/server"
	"github.com/fleetline/taskbridge/internal/storage"
	"github.com/fleetline/taskbridge/internal/sync"
	"github.com/fleetline/taskbridge/internal/tasks"
	"github.com/fleetline/taskbridge/internal/telegram"
)

func runServe(configPath string) {
	app := fx.New(
		fx.Supply(configPathValue(configPath)),
		fx.Provide(
			provideConfig,
			provideLogger,
			providePool,
			provideTaskStore,
			provideDirectory,
			provideStorageResolver,
			provideMediaResolver,
			provideTelegramClient,
			provideFormatter,
			provideEngine,
			handlers.NewPingHandler,
			handlers.NewTasksHandler,
			provideServer,
		),
		fx.Invoke(registerServer),
		fx.NopLogger,
	)
	app.Run()
}

type configPathValue string

func provideConfig(path configPathValue) (config.Config, error) {
	return config.Load(string(path))
}

func provideLogger(cfg config.Config) *slog.Logger {
	return logger.New(cfg.Log.Level, cfg.Log.Format)
}

func providePool(lc fx.Lifecycle, cfg config.Config, log *slog.Logger) (*pgxpool.Pool, error) {
	dsn := cfg.Postgres.DSN()
	if err := tasks.Migrate(strings.Replace(dsn, "postgres://", "pgx5://", 1)); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})
	log.Info("database ready", slog.String("host", cfg.Postgres.Host))
	return pool, nil
}

func provideTaskStore(pool *pgxpool.Pool, log *slog.Logger) tasks.Store {
	return tasks.NewPGStore(pool, log)
}

func provideDirectory(pool *pgxpool.Pool, log *slog.Logger) directory.Directory {
	return directory.NewPGDirectory(pool, log)
}

func provideStorageResolver(cfg config.Config) storage.Resolver {
	return storage.NewFSResolver(cfg.Storage.Root)
}

func provideMediaResolver(store storage.Resolver, cfg config.Config, log *slog.Logger) *media.Resolver {
	return media.NewResolver(store, cfg.Storage.Scratch, telegram.MaxPhotoBytes, log)
}

func provideTelegramClient(cfg config.Config, log *slog.Logger) (telegram.Client, error) {
	return telegram.NewBot(cfg.Telegram.BotToken, log)
}

func provideFormatter() sync.Formatter {
	return format.NewHTMLFormatter()
}

func provideEngine(log *slog.Logger, client telegram.Client, store tasks.Store, dir directory.Directory, resolver *media.Resolver, formatter sync.Formatter, cfg config.Config) *sync.Engine {
	routing := make(map[string]sync.PhotosRoute, len(cfg.Telegram.PhotosRouting))
	for kind, route := range cfg.Telegram.PhotosRouting {
		routing[kind] = sync.PhotosRoute{ChatID: route.ChatID, TopicID: route.TopicID}
	}
	return sync.NewEngine(log, client, store, dir, resolver, formatter, sync.Config{
		GroupChatID:   cfg.Telegram.GroupChatID,
		GroupTopicID:  cfg.Telegram.GroupTopicID,
		PhotosRouting: routing,
		PublicBaseURL: cfg.Storage.PublicBaseURL,
	})
}

func provideServer(cfg config.Config, pingHandler *handlers.PingHandler, tasksHandler *handlers.TasksHandler) *server.Server {
	return server.NewServer(cfg.Server.Addr, pingHandler, tasksHandler)
}

func registerServer(lc fx.Lifecycle, srv *server.Server, log *slog.Logger, cfg config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					os.Exit(1)
				}
			}()
			log.Info("server started", slog.String("addr", cfg.Server.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
