package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"chatledger/internal/retention"
	"chatledger/pkg/config"
	"chatledger/pkg/logger"
	"chatledger/pkg/simulator"
	"chatledger/pkg/store"
	"chatledger/pkg/validation"
)

// App encapsulates the server components and lifecycle.
type App struct {
	cfg       *config.Config
	addr      string
	dbPath    string
	sources   string
	version   string
	commit    string
	buildDate string

	store *store.Store
	sim   *simulator.Simulator

	retentionStop context.CancelFunc
	srv           *http.Server
}

// Options carries the merged flag/env/config startup values.
type Options struct {
	Config    *config.Config
	Addr      string
	DBPath    string
	Sources   string
	Version   string
	Commit    string
	BuildDate string
}

// New initializes resources that do not require a running context: the
// logger, validation rules, the store and the simulator. Call Run to
// start the HTTP server and block until shutdown.
func New(opts Options) (*App, error) {
	_ = godotenv.Load(".env")

	cfg := opts.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	if err := validateConfig(cfg, opts.Addr, opts.DBPath); err != nil {
		return nil, err
	}

	logger.InitWith(cfg.Logging.Level, cfg.Logging.Format)

	validation.SetRules(validation.Rules{
		MaxBodyLen:     cfg.Validation.MaxBodyLen,
		MaxAttachments: cfg.Validation.MaxAttachments,
	})

	st, err := store.Open(opts.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", opts.DBPath, err)
	}

	sim := simulator.New(st, simulator.Config{
		MinReplyDelay: cfg.MinReplyDelay(),
		MaxReplyDelay: cfg.MaxReplyDelay(),
		Greeting:      cfg.Simulator.Greeting,
	})

	return &App{
		cfg:       cfg,
		addr:      opts.Addr,
		dbPath:    opts.DBPath,
		sources:   opts.Sources,
		version:   opts.Version,
		commit:    opts.Commit,
		buildDate: opts.BuildDate,
		store:     st,
		sim:       sim,
	}, nil
}

// Run starts the retention scheduler and the HTTP server, blocking until
// ctx is canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	stop, err := retention.Start(ctx, a.store, a.cfg)
	if err != nil {
		return err
	}
	a.retentionStop = stop

	a.printBanner()

	errCh := a.startHTTP()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown stops background work, drains the HTTP server and closes the
// store.
func (a *App) Shutdown() {
	if a.retentionStop != nil {
		a.retentionStop()
	}
	a.sim.Close()
	if a.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.srv.Shutdown(ctx)
	}
	if err := a.store.Close(); err != nil {
		logger.Error("store_close_failed", "error", err)
	}
}
