// dagflow — сервер выполнения workflow по графу зависимостей.
//
// Сервер:
//   - Загружает определения workflow (встроенные шаблоны, каталог, PostgreSQL)
//   - Выполняет executions через orchestrator.Controller и worker.Registry
//   - Отдаёт HTTP API и Prometheus метрики
//   - Запускает workflows по событиям из RabbitMQ и по cron-расписанию
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/dagflow/internal/api"
	"github.com/shaiso/dagflow/internal/config"
	"github.com/shaiso/dagflow/internal/engine"
	"github.com/shaiso/dagflow/internal/mq"
	"github.com/shaiso/dagflow/internal/orchestrator"
	"github.com/shaiso/dagflow/internal/repo"
	"github.com/shaiso/dagflow/internal/store"
	"github.com/shaiso/dagflow/internal/telemetry"
	"github.com/shaiso/dagflow/internal/templates"
	"github.com/shaiso/dagflow/internal/trigger"
	"github.com/shaiso/dagflow/internal/worker"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Инициализируем structured logging
	logger := telemetry.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting dagflow", "version", version, "addr", cfg.HTTPAddr)

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Prometheus
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(registry)

	// PostgreSQL (опционально)
	var (
		source    store.Source
		persister api.WorkflowPersister
	)
	if cfg.DBURL != "" {
		pool, err := repo.NewPool(ctx, cfg.DBURL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()
		logger.Info("database connected")

		workflowRepo := repo.NewWorkflowRepo(pool)
		if err := workflowRepo.EnsureSchema(ctx); err != nil {
			return err
		}
		source = workflowRepo
		persister = workflowRepo
	}

	// Определения workflow
	workflows := store.New(store.Config{Source: source, Logger: logger})
	if err := loadDefinitions(ctx, cfg, workflows, source, logger); err != nil {
		return err
	}

	// RabbitMQ (опционально)
	var (
		mqConn    *mq.Connection
		publisher orchestrator.EventPublisher
	)
	if cfg.RabbitMQURL != "" {
		mqConn, err = mq.NewConnection(cfg.RabbitMQURL, logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, event triggers disabled", "error", err)
		} else {
			defer mqConn.Close()
			logger.Info("RabbitMQ connected")

			if err := mq.SetupTopology(ctx, mqConn); err != nil {
				return fmt.Errorf("setup topology: %w", err)
			}
			publisher = mq.NewPublisher(mqConn, logger)
		}
	}

	// Executor и controller
	executor := worker.DefaultRegistry(worker.Config{
		DefaultHandler: cfg.DefaultHandler,
		Logger:         logger,
	})
	defer executor.Close()

	if !executor.Has(cfg.DefaultHandler) {
		return fmt.Errorf("default handler %q is not registered (available: %v)", cfg.DefaultHandler, executor.Names())
	}
	logger.Info("step handlers registered", "handlers", executor.Names(), "default", cfg.DefaultHandler)

	controller := orchestrator.New(orchestrator.Config{
		Workflows: workflows,
		Executor:  executor,
		Publisher: publisher,
		Metrics:   metrics,
		Retention: cfg.ExecutionRetention,
		Logger:    logger,
	})

	// HTTP API
	handler := api.NewHandler(api.Config{
		Workflows:      workflows,
		Executions:     controller,
		Persister:      persister,
		Metrics:        metrics,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		Logger:         logger,
	})

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler.Routes(),
	}

	// Cron-триггеры
	var cron *trigger.CronScheduler
	if cfg.CronTriggers {
		cron = trigger.NewCronScheduler(trigger.CronConfig{
			Starter:   controller,
			Workflows: workflows,
			Logger:    logger,
		})
		logger.Info("cron triggers scheduled", "entries", cron.Sync())
		cron.Start()

		// Регистрации через API и подгрузка из PostgreSQL пересобирают расписание
		workflows.Subscribe(cron.OnRegister)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// Event-триггеры
	if mqConn != nil {
		router := trigger.NewRouter(trigger.RouterConfig{
			Starter:   controller,
			Workflows: workflows,
			Logger:    logger,
		})
		consumer := mq.NewConsumer(mqConn, logger, mq.ConsumerConfig{
			Queue:   mq.QueueTriggers,
			Handler: router.HandleDelivery,
		})

		g.Go(func() error {
			if err := consumer.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("trigger consumer: %w", err)
			}
			return nil
		})
	}

	// Ожидаем сигнал завершения или ошибку компонента
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", "active_executions", controller.ActiveCount())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()

		var errs []error
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if cron != nil {
			if err := cron.Stop(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("cron stop: %w", err))
			}
		}
		if err := controller.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("controller shutdown: %w", err))
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		logger.Error("stopped with error", "error", err)
		return err
	}

	logger.Info("stopped")
	return nil
}

// loadDefinitions регистрирует встроенные шаблоны, определения из
// каталога и из PostgreSQL. Более поздний источник перезаписывает
// определение с тем же ID.
func loadDefinitions(ctx context.Context, cfg *config.Config, workflows *store.DefinitionStore, source store.Source, logger *slog.Logger) error {
	builtin, err := templates.Load()
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}
	if err := workflows.RegisterAll(builtin); err != nil {
		return fmt.Errorf("register templates: %w", err)
	}
	logger.Info("templates loaded", "count", len(builtin))

	if cfg.WorkflowsDir != "" {
		defs, err := engine.LoadDefinitionDir(cfg.WorkflowsDir)
		if err != nil {
			return fmt.Errorf("load workflows from %s: %w", cfg.WorkflowsDir, err)
		}
		if err := workflows.RegisterAll(defs); err != nil {
			return fmt.Errorf("register workflows from %s: %w", cfg.WorkflowsDir, err)
		}
		logger.Info("workflows loaded", "dir", cfg.WorkflowsDir, "count", len(defs))
	}

	if source != nil {
		n, err := workflows.LoadFrom(ctx, source)
		if err != nil {
			return fmt.Errorf("load workflows from database: %w", err)
		}
		logger.Info("workflows loaded from database", "count", n)
	}

	return nil
}
