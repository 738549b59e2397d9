package main

import (
	"context"
	"log"
	"log/slog"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/samirrijal/hsltrips/internal/adapters/digitransit"
	natsadapter "github.com/samirrijal/hsltrips/internal/adapters/nats"
	"github.com/samirrijal/hsltrips/internal/adapters/store"
	"github.com/samirrijal/hsltrips/internal/core/usecases"
	"github.com/samirrijal/hsltrips/internal/pkg/config"
	"github.com/samirrijal/hsltrips/internal/pkg/logging"
	"github.com/samirrijal/hsltrips/internal/workflows"
)

func main() {
	cfg, err := config.Load("hsltrips-worker")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	ctx := context.Background()

	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer st.Close()

	remote := digitransit.New(digitransit.Config{
		URL:                      cfg.Gateway.URL,
		SubscriptionKey:          cfg.Gateway.SubscriptionKey,
		Timeout:                  cfg.Gateway.Timeout,
		RatePerSecond:            cfg.Gateway.RatePerSecond,
		Burst:                    cfg.Gateway.Burst,
		LowPriorityRatePerSecond: cfg.Gateway.LowPriorityRatePerSecond,
	})

	activities := &workflows.IngestActivities{
		Trips: usecases.NewTripService(st.Trips, remote),
	}
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, ingestion events will only be logged", "error", err)
	} else {
		defer pub.Close()
		activities.Events = pub
	}

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    slog.Default(),
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})

	w.RegisterWorkflow(workflows.IngestTripWorkflow)
	w.RegisterActivity(activities)

	slog.Info("ingestion worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
