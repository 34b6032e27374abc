package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/ahrav/reviewhound/internal/api"
	appReview "github.com/ahrav/reviewhound/internal/app/review"
	"github.com/ahrav/reviewhound/internal/config"
	"github.com/ahrav/reviewhound/internal/infra/eventbus/kafka"
	taskStore "github.com/ahrav/reviewhound/internal/infra/storage/review/postgres"
	"github.com/ahrav/reviewhound/pkg/common/logger"
	"github.com/ahrav/reviewhound/pkg/common/otel"
)

const serviceType = "api"

func main() {
	_, _ = maxprocs.Set()

	hostname, err := os.Hostname()
	if err != nil {
		log.Fatalf("failed to get hostname: %v", err)
	}

	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
			}
			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}
			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n", r.Message, errorAttrsJSON)
		},
	}

	traceIDFn := func(ctx context.Context) string { return otel.GetTraceID(ctx) }

	svcName := fmt.Sprintf("REVIEW-API-%s", hostname)
	metadata := map[string]string{
		"service":  svcName,
		"hostname": hostname,
		"app":      serviceType,
	}

	logg := logger.NewWithMetadata(os.Stdout, logger.LevelInfo, svcName, traceIDFn, logEvents, metadata)

	ctx := context.Background()

	if err := run(ctx, logg, hostname); err != nil {
		logg.Error(ctx, "startup", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, log *logger.Logger, hostname string) error {
	log.Info(ctx, "startup", "GOMAXPROCS", runtime.GOMAXPROCS(0))

	// -------------------------------------------------------------------------
	// Configuration

	cfg, err := config.Load(os.Getenv("REVIEWHOUND_CONFIG"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// -------------------------------------------------------------------------
	// Database

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("parsing db config: %w", err)
	}
	poolCfg.MinConns = cfg.Database.MinConns
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("creating db pool: %w", err)
	}
	defer pool.Close()

	// -------------------------------------------------------------------------
	// Tracing

	log.Info(ctx, "startup", "status", "initializing tracing support")

	serviceName := cfg.Telemetry.ServiceName + "-api"
	traceProvider, teardown, err := otel.InitTelemetry(log, otel.Config{
		ServiceName:      serviceName,
		ExporterEndpoint: cfg.Telemetry.ExporterEndpoint,
		ExcludedRoutes:   map[string]struct{}{"/": {}},
		Probability:      cfg.Telemetry.SamplingRatio,
		ResourceAttributes: map[string]string{
			"library.language": "go",
			"hostname":         hostname,
		},
		InsecureExporter: cfg.Telemetry.Insecure,
	})
	if err != nil {
		return fmt.Errorf("starting tracing: %w", err)
	}
	defer teardown(ctx)

	tracer := traceProvider.Tracer(serviceName)

	// -------------------------------------------------------------------------
	// Event Bus

	log.Info(ctx, "startup", "status", "initializing event bus", "brokers", cfg.Kafka.Brokers)

	busMetrics, err := kafka.NewEventBusMetrics(otel.GetMeterProvider(), "review_api")
	if err != nil {
		return fmt.Errorf("creating event bus metrics: %w", err)
	}

	bus, err := kafka.ConnectWithRetry(&kafka.Config{
		Brokers:       cfg.Kafka.Brokers,
		TasksTopic:    cfg.Kafka.TasksTopic,
		ProgressTopic: cfg.Kafka.ProgressTopic,
		GroupID:       cfg.Kafka.GroupID + "-api",
		ClientID:      hostname,
		ServiceType:   serviceType,
	}, log, busMetrics, tracer)
	if err != nil {
		return fmt.Errorf("connecting event bus: %w", err)
	}
	defer bus.Close()

	publisher := kafka.NewDomainEventPublisher(bus)

	// -------------------------------------------------------------------------
	// Application Services

	store := taskStore.NewTaskStore(pool, tracer)

	tracker := appReview.NewProgressTracker(log)
	if err := tracker.Subscribe(ctx, bus); err != nil {
		return fmt.Errorf("subscribing progress tracker: %w", err)
	}

	dispatcher := appReview.NewDispatcher(store, publisher, log, tracer)
	statusSvc := appReview.NewStatusService(store, tracker, dispatcher, log, tracer)

	// -------------------------------------------------------------------------
	// HTTP Server

	server := api.NewServer(serviceName, dispatcher, statusSvc, log)

	httpServer := http.Server{
		Addr:         cfg.API.Addr(),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		IdleTimeout:  cfg.API.IdleTimeout,
		ErrorLog:     logger.NewStdLogger(log, logger.LevelError),
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		log.Info(ctx, "startup", "status", "api router started", "host", httpServer.Addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	// -------------------------------------------------------------------------
	// Shutdown

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Info(ctx, "shutdown", "status", "shutdown started", "signal", sig)
		defer log.Info(ctx, "shutdown", "status", "shutdown complete", "signal", sig)

		ctx, cancel := context.WithTimeout(ctx, cfg.API.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
	}

	return nil
}
