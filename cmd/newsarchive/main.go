// Command newsarchive runs the news archive: the viewer API server, the feed
// collector, and maintenance tasks over the document store.
//
// @title       News Archive API
// @version     1.0
// @description Viewer API over the news archive: learning materials, topic snapshots, and raw news.
// @BasePath    /api/v1
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/tbourn/news-archive/internal/collector"
	"github.com/tbourn/news-archive/internal/config"
	httpapi "github.com/tbourn/news-archive/internal/http"
	"github.com/tbourn/news-archive/internal/observability"
	"github.com/tbourn/news-archive/internal/repo"
	"github.com/tbourn/news-archive/internal/services"
	"github.com/tbourn/news-archive/internal/sysutil"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// shutdownTimeout bounds graceful HTTP shutdown and span flushing.
const shutdownTimeout = 15 * time.Second

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		log.Error().Err(err).Msg("newsarchive failed")
		os.Exit(1)
	}
}

// env is the per-invocation state prepared by the Before hook.
type env struct {
	cfg config.Config
	out io.Writer
}

func newApp(out io.Writer) *cli.App {
	app, _ := newAppEnv(out)
	return app
}

func newAppEnv(out io.Writer) (*cli.App, *env) {
	e := &env{out: out}
	return &cli.App{
		Name:    "newsarchive",
		Usage:   "Retention-bounded archive of news, topic snapshots, and learning materials",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error); overrides LOG_LEVEL",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Dotenv file loaded before reading the environment",
				Value: ".env",
			},
		},
		Before: e.setup,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the viewer HTTP API",
				Action: e.serve,
			},
			{
				Name:   "collect",
				Usage:  "Fetch the configured feeds into the raw news collection",
				Action: e.collect,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "once",
						Usage: "Run a single pass and print its summary",
					},
					&cli.StringFlag{
						Name:  "feeds",
						Usage: "Feeds file; overrides FEEDS_FILE",
					},
				},
			},
			{
				Name:   "prune",
				Usage:  "Apply the retention windows once and print the deleted counts",
				Action: e.prune,
			},
			{
				Name:   "migrate",
				Usage:  "Create or update the archive schema",
				Action: e.migrate,
			},
		},
	}, e
}

func (e *env) setup(c *cli.Context) error {
	if err := config.LoadDotenv(c.String("env-file")); err != nil {
		return err
	}
	if lvl := c.String("log-level"); lvl != "" {
		if err := os.Setenv("LOG_LEVEL", lvl); err != nil {
			return err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	e.cfg = cfg
	sysutil.ConfigureLogger(os.Stderr, cfg.LogLevel, cfg.LogPretty, sysutil.FirstNonEmpty(c.Args().First(), "newsarchive"))
	return nil
}

// open returns a manager with the schema applied; callers must Close it.
func (e *env) open(ctx context.Context) (*repo.Manager, *gorm.DB, error) {
	mgr := repo.NewManager(e.cfg.Database, nil)
	db, err := mgr.Client(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return mgr, db, nil
}

func (e *env) serve(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.Setup(ctx, e.cfg.OTEL, "serve", version)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer flush(shutdownOTel)

	mgr, db, err := e.open(ctx)
	if err != nil {
		return err
	}
	defer mgr.Close()

	if e.cfg.Retention.Interval > 0 {
		ret := newRetention(db, e.cfg.Retention)
		go ret.Run(ctx, e.cfg.Retention.Interval)
	}

	gin.SetMode(e.cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, e.cfg)
	srv := newServer(e.cfg, r)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("base_path", e.cfg.APIBasePath).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down http server")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func newServer(cfg config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
}

func (e *env) collect(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	path := sysutil.FirstNonEmpty(c.String("feeds"), e.cfg.Collector.FeedsFile)
	feeds, err := collector.LoadFeeds(path)
	if err != nil {
		return err
	}

	shutdownOTel, err := observability.Setup(ctx, e.cfg.OTEL, "collect", version)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer flush(shutdownOTel)

	mgr, db, err := e.open(ctx)
	if err != nil {
		return err
	}
	defer mgr.Close()

	col := collector.New(services.NewNewsStore(db), feeds, e.cfg.Retention.NewsKeepCount, e.cfg.Collector.Timeout)
	if !c.Bool("once") {
		log.Info().Int("feeds", len(feeds)).Dur("interval", e.cfg.Collector.Interval).Msg("collector started")
		col.Run(ctx, e.cfg.Collector.Interval)
		return nil
	}

	res, err := col.CollectOnce(ctx)
	if err != nil {
		return err
	}
	return e.print(res)
}

func (e *env) prune(c *cli.Context) error {
	mgr, db, err := e.open(c.Context)
	if err != nil {
		return err
	}
	defer mgr.Close()

	res, err := newRetention(db, e.cfg.Retention).RunOnce(c.Context)
	if err != nil {
		return err
	}
	return e.print(res)
}

func (e *env) migrate(c *cli.Context) error {
	mgr, _, err := e.open(c.Context)
	if err != nil {
		return err
	}
	defer mgr.Close()
	log.Info().Msg("schema up to date")
	return nil
}

func newRetention(db *gorm.DB, cfg config.RetentionConfig) *services.Retention {
	return &services.Retention{
		News:      services.NewNewsStore(db),
		Topics:    services.NewTopicStore(db),
		NewsKeep:  cfg.NewsKeepCount,
		TopicKeep: cfg.TopicKeepCount,
	}
}

func (e *env) print(v any) error {
	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func flush(shutdown observability.ShutdownFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("tracing shutdown")
	}
}
