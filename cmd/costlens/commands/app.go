package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/moolen/costlens/internal/analysis"
	"github.com/moolen/costlens/internal/config"
	"github.com/moolen/costlens/internal/graph"
	"github.com/moolen/costlens/internal/graph/sync"
	"github.com/moolen/costlens/internal/lifecycle"
	"github.com/moolen/costlens/internal/logging"
	"github.com/moolen/costlens/internal/models"
	"github.com/moolen/costlens/internal/pipeline"
	"github.com/moolen/costlens/internal/snapshot"
	"github.com/moolen/costlens/internal/tracing"
	"github.com/moolen/costlens/internal/variance"
)

// needs selects the backends a command connects to
type needs struct {
	database bool
	graph    bool
}

// app holds the started backends of one command invocation
type app struct {
	cfg     *config.Config
	manager *lifecycle.Manager
	store   *snapshot.Store
	client  graph.Client
	logger  *logging.Logger
}

// loadConfig reads the config file and applies the global flag overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if databaseURL != "" {
		cfg.Database.URL = databaseURL
	}
	if graphHost != "" {
		cfg.Graph.Host = graphHost
	}
	if graphPort != 0 {
		cfg.Graph.Port = graphPort
	}
	if graphName != "" {
		cfg.Graph.GraphName = graphName
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// startApp loads configuration and starts the tracing provider and the
// requested backends through the lifecycle manager
func startApp(ctx context.Context, n needs) (*app, error) {
	logger := logging.GetLogger("costlens")

	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	manager := lifecycle.NewManager()
	a := &app{cfg: cfg, manager: manager, logger: logger}

	tracingProvider, err := tracing.NewProvider(cfg.Tracing, Version)
	if err != nil {
		logger.Warn("Failed to initialize tracing (continuing without tracing): %v", err)
	} else if err := manager.Register(tracingProvider); err != nil {
		return nil, err
	}

	var pool *pgxpool.Pool
	if n.database {
		pool, err = snapshot.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to create database pool: %w", err)
		}
		if err := manager.Register(snapshot.NewComponent(pool)); err != nil {
			return nil, err
		}
	}

	if n.graph {
		a.client = graph.NewClient(graph.ClientConfigFrom(cfg.Graph))
		if err := manager.Register(graph.NewComponent(a.client)); err != nil {
			return nil, err
		}
	}

	if err := manager.Start(ctx); err != nil {
		return nil, err
	}

	if pool != nil {
		store, err := snapshot.New(ctx, pool)
		if err != nil {
			_ = manager.Stop(context.Background())
			return nil, err
		}
		a.store = store
	}
	return a, nil
}

// stop shuts every started component down
func (a *app) stop() {
	if err := a.manager.Stop(context.Background()); err != nil {
		a.logger.Warn("Shutdown incomplete: %v", err)
	}
}

// pipeline wires the stage runners to the started backends
func (a *app) pipeline(metrics *pipeline.Metrics) *pipeline.Pipeline {
	concurrency := a.cfg.Graph.WriteConcurrency
	return pipeline.New(
		variance.NewEngine(a.store, a.cfg.Variance),
		sync.NewStructureBuilder(a.client, a.store, a.cfg),
		sync.NewProjector(a.client, a.store, concurrency),
		sync.NewRuleEngine(a.client, a.cfg.Rules, concurrency),
		a.client,
		metrics,
	)
}

// analyzer returns the read-side query service. The store is optional.
func (a *app) analyzer() *analysis.Analyzer {
	var series analysis.SeriesSource
	if a.store != nil {
		series = a.store
	}
	return analysis.NewAnalyzer(a.client, series, a.cfg.Evidence)
}

// signalContext cancels on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// parseMonthArg parses a YYYYMM flag value
func parseMonthArg(value string) (models.Month, error) {
	if value == "" {
		return models.Month{}, fmt.Errorf("--month is required")
	}
	return models.ParseMonth(value)
}
