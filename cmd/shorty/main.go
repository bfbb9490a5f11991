package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/roniherschmann/shorty-redirect/internal/cache"
	"github.com/roniherschmann/shorty-redirect/internal/config"
	"github.com/roniherschmann/shorty-redirect/internal/core"
	httpapi "github.com/roniherschmann/shorty-redirect/internal/http"
	"github.com/roniherschmann/shorty-redirect/internal/store"
)

// linkStore is everything the server needs from a store driver.
type linkStore interface {
	core.LinkStore
	core.ClickLog
	core.StatsStore
	Ping(ctx context.Context) error
	Close() error
}

type statsCache interface {
	core.StatsCache
	Ping(ctx context.Context) error
}

func main() {
	// Fast JSON logs by default; pretty if running in a TTY/dev
	if isatty() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		zerolog.TimeFieldFormat = time.RFC3339
	}

	var (
		configPath string
		dsnFlag    string
		portFlag   int
	)
	flag.StringVar(&configPath, "config", "", "YAML config file")
	flag.StringVar(&dsnFlag, "dsn", "", "database DSN (overrides env DB_DSN)")
	flag.IntVar(&portFlag, "port", 0, "listen port (overrides env PORT)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if dsnFlag != "" {
		cfg.DBDSN = dsnFlag
	}
	if portFlag != 0 {
		cfg.Port = portFlag
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	} else {
		log.Warn().Str("level", cfg.LogLevel).Msg("unknown log level, using info")
	}

	ctx := context.Background()
	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("open store")
	}
	defer st.Close()

	sc, closeCache, err := openCache(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.CacheDriver).Msg("open stats cache")
	}
	defer closeCache()

	agg := core.NewAggregator(st, sc, cfg.StatsCacheTTL)
	queue := core.NewClickQueue(core.NewRecorder(st, agg), core.QueueOptions{
		Size:        cfg.ClickQueueSize,
		Workers:     cfg.ClickWorkers,
		Timeout:     cfg.TelemetryTimeout,
		MaxAttempts: cfg.TelemetryMaxAttempts,
		Backoff:     cfg.TelemetryBackoff,
	})
	queue.Start()
	svc := core.NewService(st, agg, queue, core.BcryptVerifier{})

	// HTTP server
	srv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Port),
		Handler: httpapi.NewRouter(cfg, svc,
			httpapi.Check{Name: "store", Ping: st.Ping},
			httpapi.Check{Name: "cache", Ping: sc.Ping},
		),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info().Int("port", cfg.Port).Str("store", cfg.StoreDriver).Str("cache", cfg.CacheDriver).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutdown signal")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	// no new redirects can enqueue now; flush what is buffered
	if err := queue.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Int("pending", queue.Len()).Msg("click queue drain")
	}
	log.Info().Msg("bye")
}

func openStore(ctx context.Context, cfg config.Config) (linkStore, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pg, err := store.OpenPostgres(ctx, cfg.DBDSN, int32(cfg.DBMaxConns))
		if err != nil {
			return nil, err
		}
		return pg, nil
	case config.DriverMemory:
		log.Warn().Msg("memory store: links and clicks are lost on exit")
		return store.NewMemory(), nil
	default:
		lite, err := store.OpenSQLite(cfg.DBDSN, cfg.DBMaxConns)
		if err != nil {
			return nil, err
		}
		return lite, nil
	}
}

func openCache(ctx context.Context, cfg config.Config) (statsCache, func(), error) {
	if cfg.CacheDriver == config.DriverRedis {
		client, err := cache.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return cache.NewRedis(client), func() { client.Close() }, nil
	}
	return cache.NewMemory(time.Minute), func() {}, nil
}

func isatty() bool {
	fi, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
