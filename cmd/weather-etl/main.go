// Command weather-etl ingests daily weather observations into Postgres.
//
// Subcommands:
//
//	run      execute the full Extract -> Transform -> Load batch
//	extract  read the raw files only and report the row count
//	status   print row count, last load time and distinct city count
//	serve    start the JSON status API, optionally with scheduled runs
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"weather-etl/internal/config"
	"weather-etl/internal/etl"
	"weather-etl/internal/logging"
	"weather-etl/internal/scheduler"
	"weather-etl/internal/store"
	"weather-etl/internal/web"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd := os.Args[1]

	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	switch cmd {
	case "run":
		os.Exit(runCmd(cfg))
	case "extract":
		os.Exit(extractCmd(cfg))
	case "status":
		os.Exit(statusCmd(cfg))
	case "serve":
		os.Exit(serveCmd(cfg))
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: weather-etl <run|extract|status|serve>")
}

// connect opens and verifies the database pool using the configured sizes.
func connect(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// buildPipeline assembles the transformer and pipeline from configuration.
func buildPipeline(cfg *config.Config, loader etl.RecordLoader) (*etl.Pipeline, error) {
	cities, err := cfg.Cities()
	if err != nil {
		return nil, err
	}

	strategy, err := etl.ParseMissingStrategy(cfg.Pipeline.MissingStrategy)
	if err != nil {
		return nil, err
	}

	transformer := etl.NewTransformer(cities, strategy)
	return etl.NewPipeline(cfg.Pipeline.RawDataDir, transformer, loader), nil
}

func runCmd(cfg *config.Config) int {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.RunTimeout)
	defer cancel()

	pool, err := connect(ctx, cfg)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		return 1
	}
	defer pool.Close()

	loader := store.New(pool)
	if err := loader.EnsureSchema(ctx); err != nil {
		slog.Error("schema setup failed", "error", err)
		return 1
	}

	pipeline, err := buildPipeline(cfg, loader)
	if err != nil {
		slog.Error("pipeline setup failed", "error", err)
		return 1
	}

	summary, err := pipeline.Run(ctx)
	if err != nil {
		slog.Error("pipeline run failed", "error", err)
		return 1
	}

	fmt.Printf("Done. extracted=%d rejected=%d inserted=%d updated=%d failed=%d total_rows=%d\n",
		summary.Extracted, summary.Rejected,
		summary.Load.Inserted, summary.Load.Updated, summary.Load.Failed,
		summary.TotalRows)
	return 0
}

func extractCmd(cfg *config.Config) int {
	ctx := context.Background()

	rows, err := etl.ExtractAll(ctx, cfg.Pipeline.RawDataDir)
	if err != nil {
		slog.Error("extraction failed", "error", err)
		return 1
	}

	fmt.Printf("Extracted %d rows\n", len(rows))
	return 0
}

func statusCmd(cfg *config.Config) int {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.RunTimeout)
	defer cancel()

	pool, err := connect(ctx, cfg)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		return 1
	}
	defer pool.Close()

	status, err := store.New(pool).Status(ctx)
	if err != nil {
		slog.Error("status query failed", "error", err)
		return 1
	}

	last := "never"
	if status.LastLoadedAt != nil {
		last = status.LastLoadedAt.Format("2006-01-02 15:04:05")
	}
	fmt.Printf("rows=%d last_loaded_at=%s distinct_cities=%d\n",
		status.RowCount, last, status.DistinctCities)
	return 0
}

func serveCmd(cfg *config.Config) int {
	ctx := context.Background()

	pool, err := connect(ctx, cfg)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		return 1
	}
	defer pool.Close()

	loader := store.New(pool)
	if err := loader.EnsureSchema(ctx); err != nil {
		slog.Error("schema setup failed", "error", err)
		return 1
	}

	var sched *scheduler.Scheduler
	var lastRun web.LastRunner
	if cfg.Schedule.Enabled {
		pipeline, err := buildPipeline(cfg, loader)
		if err != nil {
			slog.Error("pipeline setup failed", "error", err)
			return 1
		}
		sched = scheduler.New(pipeline, cfg.Pipeline.RunTimeout)
		if err := sched.Start(cfg.Schedule.Cron); err != nil {
			slog.Error("invalid schedule", "cron", cfg.Schedule.Cron, "error", err)
			return 1
		}
		lastRun = sched
	}

	server := web.NewServer(loader, lastRun, cfg)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		if sched != nil {
			sched.Stop()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
	return 0
}
