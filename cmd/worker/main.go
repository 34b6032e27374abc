package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/automaxprocs/maxprocs"

	appReview "github.com/ahrav/reviewhound/internal/app/review"
	"github.com/ahrav/reviewhound/internal/config"
	"github.com/ahrav/reviewhound/internal/domain/events"
	"github.com/ahrav/reviewhound/internal/domain/review"
	"github.com/ahrav/reviewhound/internal/infra/eventbus/kafka"
	"github.com/ahrav/reviewhound/internal/infra/fetcher/github"
	progressreporter "github.com/ahrav/reviewhound/internal/infra/progress_reporter"
	"github.com/ahrav/reviewhound/internal/infra/reviewer/openai"
	taskStore "github.com/ahrav/reviewhound/internal/infra/storage/review/postgres"
	"github.com/ahrav/reviewhound/pkg/common/logger"
	"github.com/ahrav/reviewhound/pkg/common/otel"
)

const serviceType = "worker"

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

	svcName := fmt.Sprintf("REVIEW-WORKER-%s", hostname)
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
	if cfg.OpenAI.APIKey == "" {
		return fmt.Errorf("openai api key is required for the worker")
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

	serviceName := cfg.Telemetry.ServiceName + "-worker"
	traceProvider, teardown, err := otel.InitTelemetry(log, otel.Config{
		ServiceName:      serviceName,
		ExporterEndpoint: cfg.Telemetry.ExporterEndpoint,
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

	busMetrics, err := kafka.NewEventBusMetrics(otel.GetMeterProvider(), "review_worker")
	if err != nil {
		return fmt.Errorf("creating event bus metrics: %w", err)
	}

	bus, err := kafka.ConnectWithRetry(&kafka.Config{
		Brokers:       cfg.Kafka.Brokers,
		TasksTopic:    cfg.Kafka.TasksTopic,
		ProgressTopic: cfg.Kafka.ProgressTopic,
		GroupID:       cfg.Kafka.GroupID + "-worker",
		ClientID:      hostname,
		ServiceType:   serviceType,
	}, log, busMetrics, tracer)
	if err != nil {
		return fmt.Errorf("connecting event bus: %w", err)
	}
	defer bus.Close()

	publisher := kafka.NewDomainEventPublisher(bus)

	// -------------------------------------------------------------------------
	// Pipeline

	store := taskStore.NewTaskStore(pool, tracer)

	factoryOpts := []github.FactoryOption{github.WithDefaultToken(cfg.GitHub.Token)}
	if cfg.GitHub.BaseURL != "" {
		factoryOpts = append(factoryOpts, github.WithBaseURL(cfg.GitHub.BaseURL))
	}
	fetchers := github.NewClientFactory(tracer, factoryOpts...)

	var reviewerOpts []openai.Option
	if cfg.OpenAI.Model != "" {
		reviewerOpts = append(reviewerOpts, openai.WithModel(cfg.OpenAI.Model))
	}
	reviewer := openai.NewReviewer(cfg.OpenAI.APIKey, tracer, reviewerOpts...)

	reporter := progressreporter.New(hostname, publisher, tracer)
	executor := appReview.NewExecutor(store, fetchers, reviewer, reporter, log, tracer)

	handler := func(ctx context.Context, envelope events.EventEnvelope, ack events.AckFunc) error {
		evt, ok := envelope.Payload.(review.TaskSubmittedEvent)
		if !ok {
			// Nothing else is published on the tasks topic.
			log.Warn(ctx, "unexpected payload on tasks topic", "event_type", envelope.Type)
			ack(nil)
			return nil
		}

		err := executor.Execute(ctx, evt)
		ack(err)
		return err
	}

	if err := bus.Subscribe(ctx, []events.EventType{review.EventTypeTaskSubmitted}, handler); err != nil {
		return fmt.Errorf("subscribing to task submissions: %w", err)
	}

	log.Info(ctx, "startup", "status", "worker consuming task submissions",
		"topic", cfg.Kafka.TasksTopic)

	// -------------------------------------------------------------------------
	// Shutdown

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	sig := <-shutdown
	log.Info(ctx, "shutdown", "status", "shutdown started", "signal", sig)
	defer log.Info(ctx, "shutdown", "status", "shutdown complete", "signal", sig)

	return nil
}
