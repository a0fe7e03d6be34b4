package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glimmerbot/glimmer/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	cli "github.com/urfave/cli/v2"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "glimmerd",
		Usage:   "config/cache daemon for the glimmer platform",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "database connection string (sqlite:// or postgresql://)",
			Value:   "sqlite://data/glimmerd/glimmer.sqlite",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "broker connection string for cache invalidation",
			Value:   "redis://localhost:6379/0",
			EnvVars: []string{"REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for the admin API",
			Value:   ":8200",
			EnvVars: []string{"GLIMMERD_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics",
			Value:   ":8201",
			EnvVars: []string{"GLIMMERD_METRICS_LISTEN"},
		},
		&cli.DurationFlag{
			Name:    "config-cache-ttl",
			Usage:   "how long resolved configs stay cached",
			Value:   5 * time.Minute,
			EnvVars: []string{"GLIMMERD_CONFIG_CACHE_TTL"},
		},
		&cli.DurationFlag{
			Name:    "persona-cache-ttl",
			Usage:   "how long persona lookups stay cached",
			Value:   30 * time.Minute,
			EnvVars: []string{"GLIMMERD_PERSONA_CACHE_TTL"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			Value:   40,
			EnvVars: []string{"MAX_DB_CONNECTIONS"},
		},
	}

	app.Action = func(cctx *cli.Context) error {
		logger, err := cliutil.SetupSlog()
		if err != nil {
			return err
		}

		srv, err := NewServer(cctx, logger)
		if err != nil {
			return err
		}
		defer srv.Shutdown()

		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cctx.String("metrics-listen"), mux); err != nil {
				logger.Error("metrics listener failed", "err", err)
			}
		}()

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.RunAPI(cctx.String("bind"))
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case err := <-errCh:
			return err
		case sig := <-quit:
			logger.Info("shutting down", "signal", sig.String())
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.ShutdownAPI(ctx)
		}
	}

	return app.Run(args)
}
