// glimworker is a skeleton for the worker side of the platform: it owns the
// read path (resolve configs, look up personas, check API keys and channel
// activation) and keeps its caches coherent by consuming the invalidation
// topics that glimmerd publishes on.
package main

import (
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glimmerbot/glimmer/activation"
	"github.com/glimmerbot/glimmer/apikey"
	"github.com/glimmerbot/glimmer/configcascade"
	"github.com/glimmerbot/glimmer/invalidation"
	"github.com/glimmerbot/glimmer/llmconfig"
	"github.com/glimmerbot/glimmer/persona"
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
		Name:    "glimworker",
		Usage:   "cache-coherent worker daemon for the glimmer platform",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "database connection string (sqlite:// or postgresql://)",
			Value:   "sqlite://data/glimworker/glimmer.sqlite",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "broker connection string for cache invalidation",
			Value:   "redis://localhost:6379/0",
			EnvVars: []string{"REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics and health",
			Value:   ":8211",
			EnvVars: []string{"GLIMWORKER_METRICS_LISTEN"},
		},
		&cli.DurationFlag{
			Name:    "config-cache-ttl",
			Value:   5 * time.Minute,
			EnvVars: []string{"GLIMWORKER_CONFIG_CACHE_TTL"},
		},
		&cli.DurationFlag{
			Name:    "persona-cache-ttl",
			Value:   30 * time.Minute,
			EnvVars: []string{"GLIMWORKER_PERSONA_CACHE_TTL"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			Value:   40,
			EnvVars: []string{"MAX_DB_CONNECTIONS"},
		},
	}

	app.Action = runWorker
	return app.Run(args)
}

func runWorker(cctx *cli.Context) error {
	ctx := cctx.Context

	logger, err := cliutil.SetupSlog()
	if err != nil {
		return err
	}

	db, err := cliutil.SetupDatabase(cctx.String("database-url"), cctx.Int("max-db-connections"))
	if err != nil {
		return err
	}
	rdb, err := cliutil.SetupRedis(ctx, cctx.String("redis-url"))
	if err != nil {
		return err
	}

	configTTL := cctx.Duration("config-cache-ttl")
	personaTTL := cctx.Duration("persona-cache-ttl")

	cascadeStore, err := configcascade.NewGormStore(db)
	if err != nil {
		return err
	}
	resolver := configcascade.NewResolver(cascadeStore, logger, configTTL)
	defer resolver.StopCleanup()

	llmStore, err := llmconfig.NewGormStore(db)
	if err != nil {
		return err
	}
	llmResolver := llmconfig.NewResolver(llmStore, logger, configTTL)
	defer llmResolver.StopCleanup()

	personaStore, err := persona.NewStoreDirectory(db)
	if err != nil {
		return err
	}
	personaDir := persona.NewCachedDirectory(personaStore, rdb, logger, personaTTL, personaTTL/6, 10_000)

	checker, err := apikey.NewChecker(db, 10_000, configTTL)
	if err != nil {
		return err
	}
	channels, err := activation.NewCache(db, 10_000, configTTL)
	if err != nil {
		return err
	}

	cascadeSvc := invalidation.NewCascadeService(rdb, logger)
	personaSvc := invalidation.NewPersonaService(rdb, logger)
	apikeySvc := invalidation.NewAPIKeyService(rdb, logger)
	activationSvc := invalidation.NewActivationService(rdb, logger)
	llmSvc := invalidation.NewLLMConfigService(rdb, logger)

	if err := configcascade.Bind(ctx, cascadeSvc, resolver); err != nil {
		return err
	}
	if err := persona.Bind(ctx, personaSvc, personaDir); err != nil {
		return err
	}
	if err := apikey.Bind(ctx, apikeySvc, checker); err != nil {
		return err
	}
	if err := activation.Bind(ctx, activationSvc, channels); err != nil {
		return err
	}
	if err := llmconfig.Bind(ctx, llmSvc, llmResolver); err != nil {
		return err
	}
	defer func() {
		for _, svc := range []interface{ Unsubscribe() error }{cascadeSvc, personaSvc, apikeySvc, activationSvc, llmSvc} {
			if err := svc.Unsubscribe(); err != nil {
				logger.Warn("unsubscribe failed", "err", err)
			}
		}
	}()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/_health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"ok"}`))
		})
		if err := http.ListenAndServe(cctx.String("metrics-listen"), mux); err != nil {
			logger.Error("metrics listener failed", "err", err)
		}
	}()

	logger.Info("glimworker running", "version", versioninfo.Short())
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("shutting down", "signal", sig.String())
	return nil
}
