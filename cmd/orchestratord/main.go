// Command orchestratord serves the BI orchestration pipeline: it plans
// incoming queries, executes agent plans, scores the responses, and
// persists evaluation records. With -worker it runs the Temporal worker
// instead of the HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/insightgrid-ai/orchestrator/internal/activities"
	"github.com/insightgrid-ai/orchestrator/internal/agents"
	"github.com/insightgrid-ai/orchestrator/internal/config"
	"github.com/insightgrid-ai/orchestrator/internal/datasource"
	"github.com/insightgrid-ai/orchestrator/internal/db"
	"github.com/insightgrid-ai/orchestrator/internal/evalcache"
	"github.com/insightgrid-ai/orchestrator/internal/evalstore"
	"github.com/insightgrid-ai/orchestrator/internal/evaluator"
	"github.com/insightgrid-ai/orchestrator/internal/executor"
	"github.com/insightgrid-ai/orchestrator/internal/health"
	"github.com/insightgrid-ai/orchestrator/internal/httpapi"
	"github.com/insightgrid-ai/orchestrator/internal/planner"
	"github.com/insightgrid-ai/orchestrator/internal/worker"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config file (or INSIGHTGRID_CONFIG)")
		workerMode = flag.Bool("worker", false, "run the Temporal worker instead of the HTTP API")
	)
	flag.Parse()

	settings, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := buildLogger(settings.Service.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	if err := run(settings, logger, *workerMode); err != nil {
		logger.Fatal("Service failed", zap.Error(err))
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func run(settings *config.Settings, logger *zap.Logger, workerMode bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalog, err := datasource.Load(settings.Data.Dir, logger)
	if err != nil {
		return fmt.Errorf("load datasets: %w", err)
	}

	store, err := evalstore.New(settings.Data.EvaluationsDir, logger)
	if err != nil {
		return fmt.Errorf("open evaluation store: %w", err)
	}

	p := planner.New(logger, planner.WithArchiver(store))
	if settings.Data.RulesFile != "" {
		watcher, err := config.NewRulesWatcher(settings.Data.RulesFile, func(path string) error {
			rules, err := planner.LoadRules(path)
			if err != nil {
				return err
			}
			p.ReplaceRules(rules)
			return nil
		}, logger)
		if err != nil {
			return fmt.Errorf("init rules watcher: %w", err)
		}
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("start rules watcher: %w", err)
		}
		defer watcher.Stop()
	}

	var invoker agents.Invoker
	if settings.Agents.BaseURL != "" {
		invoker = agents.NewHTTPInvoker(agents.HTTPInvokerConfig{
			BaseURL:           settings.Agents.BaseURL,
			Timeout:           settings.Agents.Timeout,
			RequestsPerSecond: settings.Agents.RequestsPerSecond,
			Burst:             settings.Agents.Burst,
		}, logger)
	} else {
		logger.Warn("No agent service configured, using the stub invoker")
		invoker = &agents.StubInvoker{}
	}

	evalOpts := []evaluator.Option{}
	if settings.Redis.Addr != "" {
		cache, err := evalcache.New(evalcache.Options{
			Addr:     settings.Redis.Addr,
			Password: settings.Redis.Password,
			DB:       settings.Redis.DB,
			TTL:      settings.Evaluator.CacheTTL,
		}, logger)
		if err != nil {
			return fmt.Errorf("connect evaluation cache: %w", err)
		}
		defer cache.Close()
		evalOpts = append(evalOpts, evaluator.WithCache(cache))
	}
	ev := evaluator.New(evaluator.HeuristicRater{}, logger, evalOpts...)

	var history *db.History
	if settings.Database.Driver != "" {
		history, err = db.Open(settings.Database.Driver, settings.Database.DSN, logger)
		if err != nil {
			return fmt.Errorf("open run history: %w", err)
		}
		defer history.Close()
		if err := history.EnsureSchema(ctx); err != nil {
			return err
		}
	}

	execOpts := []executor.Option{
		executor.WithCatalog(catalog),
		executor.WithConfig(executor.Config{
			AgentTimeout: settings.Executor.AgentTimeout,
			Parallelism:  settings.Executor.Parallelism,
		}),
	}
	if history != nil {
		execOpts = append(execOpts, executor.WithHistory(history))
	}
	exec := executor.New(invoker, logger, execOpts...)

	if workerMode {
		return runWorker(settings, logger, p, invoker, ev, store, catalog, history)
	}

	checks := health.NewManager(logger)
	checks.Register(health.CheckFunc{
		ComponentName: "datasource",
		Critical:      true,
		Probe: func(context.Context) error {
			for _, name := range datasource.Names() {
				if _, err := catalog.Table(name); err != nil {
					return err
				}
			}
			return nil
		},
	})
	checks.Register(health.CheckFunc{
		ComponentName: "evaluation_store",
		Critical:      true,
		Probe: func(context.Context) error {
			_, err := store.List(1)
			return err
		},
	})
	if history != nil {
		checks.Register(health.CheckFunc{
			ComponentName: "run_history",
			Probe:         history.Ping,
		})
	}

	return runAPI(ctx, settings, logger, p, exec, ev, store, checks)
}

func runWorker(settings *config.Settings, logger *zap.Logger, p *planner.Planner,
	invoker agents.Invoker, ev *evaluator.Evaluator, store *evalstore.Store,
	catalog *datasource.Catalog, history *db.History) error {
	if settings.Temporal.HostPort == "" {
		return fmt.Errorf("worker mode requires temporal.host_port")
	}
	deps := activities.Deps{
		Planner:   p,
		Invoker:   invoker,
		Evaluator: ev,
		Store:     store,
		Catalog:   catalog,
		Logger:    logger,
	}
	if history != nil {
		deps.History = history
	}
	w, err := worker.New(worker.Options{
		HostPort:  settings.Temporal.HostPort,
		Namespace: settings.Temporal.Namespace,
		TaskQueue: settings.Temporal.TaskQueue,
	}, activities.New(deps), logger)
	if err != nil {
		return err
	}
	defer w.Stop()
	return w.Run()
}

func runAPI(ctx context.Context, settings *config.Settings, logger *zap.Logger,
	p *planner.Planner, exec *executor.Executor, ev *evaluator.Evaluator,
	store *evalstore.Store, checks *health.Manager) error {
	mux := http.NewServeMux()
	httpapi.NewQueryHandler(p, exec, ev, store, logger).RegisterRoutes(mux)
	httpapi.NewEvaluationsHandler(store, logger).RegisterRoutes(mux)
	mux.HandleFunc("/healthz", checks.Handler())

	apiServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", settings.Service.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", settings.Service.MetricsPort),
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("API listening", zap.Int("port", settings.Service.HTTPPort))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	go func() {
		logger.Info("Metrics listening", zap.Int("port", settings.Service.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("API shutdown incomplete", zap.Error(err))
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Metrics shutdown incomplete", zap.Error(err))
	}
	return nil
}
