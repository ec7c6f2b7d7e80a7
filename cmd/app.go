// app.go wires configuration into the running application: stores,
// embedding provider, coordinator, analytics.
//
// Construction is lazy - commands call getApp() in their RunE, so parse
// errors and help output never require a reachable database.

package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/knostack/knosync/internal/analytics"
	"github.com/knostack/knosync/internal/chunk"
	"github.com/knostack/knosync/internal/config"
	"github.com/knostack/knosync/internal/coordinator"
	"github.com/knostack/knosync/internal/embed"
	"github.com/knostack/knosync/internal/graph"
	"github.com/knostack/knosync/internal/ledger"
	"github.com/knostack/knosync/internal/store"
)

// app holds the wired components for one CLI invocation.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	store    store.Store
	graph    graph.Store
	ledger   *ledger.Ledger
	provider embed.Provider
	coord    *coordinator.Coordinator
	sched    *coordinator.Scheduler
	analyzer *analytics.Analyzer
}

var current *app

// getApp builds (once) and returns the wired application.
func getApp(ctx context.Context) (*app, error) {
	if current != nil {
		return current, nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log, err := newLogger(verbose)
	if err != nil {
		return nil, fmt.Errorf("initialise logger: %w", err)
	}

	rel, err := openRelational(ctx, cfg)
	if err != nil {
		return nil, err
	}

	g, err := openGraph(ctx, cfg)
	if err != nil {
		rel.Close()
		return nil, err
	}

	provider := embed.NewLimited(
		embed.NewOllama(cfg.OllamaURL(), cfg.Model()),
		embedRate(cfg), embedBurst(cfg), embedAttempts(cfg), 0,
	)

	led := ledger.New(rel, ledger.Limits{
		MaxTitle:   cfg.MaxTitle(),
		MaxContent: cfg.MaxContent(),
	})
	indexer := chunk.NewIndexer(rel, provider, nil)
	topo := graph.NewSynchronizer(g, nil)

	coord := coordinator.New(rel, led, indexer, topo, log, coordinator.Options{
		StageTimeout: cfg.Sync.StageTimeout,
		RetryDelay:   cfg.Sync.BaseBackoff,
	})
	sched := coordinator.NewScheduler(rel, coord, log, coordinator.SchedulerOptions{
		Interval:    cfg.Sync.SweepInterval,
		MaxAttempts: cfg.Sync.MaxAttempts,
		BaseBackoff: cfg.Sync.BaseBackoff,
		MaxBackoff:  cfg.Sync.MaxBackoff,
	})

	current = &app{
		cfg:      cfg,
		log:      log,
		store:    rel,
		graph:    g,
		ledger:   led,
		provider: provider,
		coord:    coord,
		sched:    sched,
		analyzer: analytics.NewAnalyzer(g),
	}
	return current, nil
}

func openRelational(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Driver() {
	case "postgres":
		return store.OpenPostgres(ctx, cfg.Relational.DSN)
	default:
		s, err := store.OpenSQLite(cfg.SQLitePath())
		if err != nil {
			return nil, err
		}
		if err := s.Init(); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	}
}

func openGraph(ctx context.Context, cfg *config.Config) (graph.Store, error) {
	if cfg.Graph.URI == "" {
		return graph.NewMemory(), nil
	}
	return graph.OpenNeo4j(ctx, cfg.Graph.URI, cfg.Graph.User, cfg.Graph.Password, cfg.Graph.Database)
}

func newLogger(verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}

func embedRate(cfg *config.Config) float64 {
	if cfg.Embeddings.RatePerSec > 0 {
		return cfg.Embeddings.RatePerSec
	}
	return 4
}

func embedBurst(cfg *config.Config) int {
	if cfg.Embeddings.Burst > 0 {
		return cfg.Embeddings.Burst
	}
	return 8
}

func embedAttempts(cfg *config.Config) int {
	if cfg.Embeddings.MaxAttempts > 0 {
		return cfg.Embeddings.MaxAttempts
	}
	return 3
}

// closeApp releases store connections at the end of a CLI run.
func closeApp(ctx context.Context) {
	if current == nil {
		return
	}
	if err := current.store.Close(); err != nil {
		current.log.Warn("close relational store", zap.Error(err))
	}
	if err := current.graph.Close(ctx); err != nil {
		current.log.Warn("close graph store", zap.Error(err))
	}
	_ = current.log.Sync()
	current = nil
}
