package main

import (
	"context"
	"copin/internal/client"
	"copin/internal/config"
	"copin/internal/engine"
	"copin/internal/logger"
	"copin/internal/repository"
	"copin/internal/server"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"
)

const usage = `usage:
  backtester [serve] [-config path]
  backtester run -q '<shared link query>' [-protocol GMX] [-csv out.csv] [-config path]`

func main() {
	cmd, args := "serve", os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd {
	case "serve":
		err = serve(ctx, args)
	case "run":
		err = run(ctx, args)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}

// app is what both commands share: config, logger, API client and engine.
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	client *client.Client
	engine *engine.Engine
}

func newApp(configPath string) (*app, error) {
	var paths []string
	if configPath != "" {
		paths = append(paths, configPath)
	}
	cfg, err := config.Load(paths...)
	if err != nil {
		return nil, err
	}
	zl, err := logger.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	if err != nil {
		return nil, err
	}
	if cfg.Source != "" {
		zl.Info("config loaded", zap.String("path", cfg.Source))
	}

	cli := client.NewClient(cfg.API.BaseURL, cfg.API.Timeout,
		client.WithAPIKey(cfg.API.APIKey),
		client.WithLogger(zl.Named("api")),
	)
	eng := engine.NewEngine(cli, cli, engine.NewEngineConfig(cfg.Backtest.PageSize), zl.Named("engine"))
	eng.UseTraderSource(cli)
	return &app{cfg: cfg, log: zl, client: cli, engine: eng}, nil
}

func serve(ctx context.Context, args []string) error {
	fs := newFlagSet("serve")
	configPath := fs.String("config", "", "YAML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a, err := newApp(*configPath)
	if err != nil {
		return err
	}
	defer a.log.Sync()

	opts := server.Options{Debounce: a.cfg.Backtest.Debounce, AllowedOrigins: a.cfg.Server.AllowedOrigins}
	if a.cfg.Database.URL != "" {
		db, err := repository.NewDatabase(ctx, a.cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer db.Close()
		if a.cfg.Database.Migrate {
			if err := db.Migrate(ctx); err != nil {
				return err
			}
		}
		a.engine.UseSettingsStore(db)
		opts.Repository = db
	} else {
		a.log.Info("no database configured, settings and shares are not persisted")
	}

	srv := server.New(a.engine, opts, a.log.Named("server"))
	return srv.Run(ctx, a.cfg.Server.Addr, a.cfg.Server.ReadTimeout)
}
