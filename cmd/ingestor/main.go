package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"go.temporal.io/sdk/client"

	"github.com/samirrijal/hsltrips/internal/adapters/digitransit"
	natsadapter "github.com/samirrijal/hsltrips/internal/adapters/nats"
	"github.com/samirrijal/hsltrips/internal/adapters/store"
	"github.com/samirrijal/hsltrips/internal/core/ports"
	"github.com/samirrijal/hsltrips/internal/core/usecases"
	"github.com/samirrijal/hsltrips/internal/pkg/config"
	"github.com/samirrijal/hsltrips/internal/pkg/logging"
	"github.com/samirrijal/hsltrips/internal/pkg/metrics"
	"github.com/samirrijal/hsltrips/internal/workflows"
)

const usage = `usage:
  ingestor run <trip-id>... | -f <file>   backfill trips at low priority
  ingestor listen                         consume ingest requests from NATS
  ingestor schedule <trip-id>...          start Temporal ingestion workflows`

// maxConcurrent bounds in-flight routing API queries during a backfill.
const maxConcurrent = 4

func main() {
	if len(os.Args) < 2 {
		log.Fatal(usage)
	}

	cfg, err := config.Load("hsltrips-ingestor")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "run":
		ids, err := tripIDs(os.Args[2:])
		if err != nil {
			log.Fatalf("read trip ids: %v", err)
		}
		if len(ids) == 0 {
			log.Fatal(usage)
		}
		svc, closeFn := tripService(ctx, cfg, ports.PriorityLow)
		defer closeFn()
		if failed := backfill(ctx, svc, ids); failed > 0 {
			closeFn()
			log.Fatalf("%d of %d trips failed", failed, len(ids))
		}
	case "listen":
		svc, closeFn := tripService(ctx, cfg, ports.PriorityHigh)
		defer closeFn()
		if err := listen(ctx, cfg, svc); err != nil {
			closeFn()
			log.Fatalf("listen: %v", err)
		}
	case "schedule":
		if len(os.Args) < 3 {
			log.Fatal(usage)
		}
		if err := schedule(ctx, cfg, os.Args[2:]); err != nil {
			log.Fatalf("schedule: %v", err)
		}
	default:
		log.Fatalf("unknown command: %s\n%s", os.Args[1], usage)
	}
}

func tripService(ctx context.Context, cfg *config.Config, priority ports.Priority) (*usecases.TripService, func()) {
	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	remote := digitransit.New(digitransit.Config{
		URL:                      cfg.Gateway.URL,
		SubscriptionKey:          cfg.Gateway.SubscriptionKey,
		Timeout:                  cfg.Gateway.Timeout,
		RatePerSecond:            cfg.Gateway.RatePerSecond,
		Burst:                    cfg.Gateway.Burst,
		LowPriorityRatePerSecond: cfg.Gateway.LowPriorityRatePerSecond,
	})
	var once sync.Once
	return usecases.NewTripService(st.Trips, remote, usecases.WithRemotePriority(priority)),
		func() { once.Do(st.Close) }
}

// tripIDs reads ids from arguments, or from a file (one per line) with -f.
func tripIDs(args []string) ([]string, error) {
	if len(args) == 2 && args[0] == "-f" {
		f, err := os.Open(args[1])
		if err != nil {
			return nil, err
		}
		defer f.Close()

		var ids []string
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			ids = append(ids, line)
		}
		return ids, sc.Err()
	}
	return args, nil
}

// backfill ingests ids with bounded concurrency and returns the failure count.
func backfill(ctx context.Context, svc *usecases.TripService, ids []string) int {
	slog.Info("backfill starting", "trips", len(ids), "concurrency", maxConcurrent)

	var (
		wg     sync.WaitGroup
		failed atomic.Int32
		sem    = make(chan struct{}, maxConcurrent)
	)

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			trip, err := svc.GetOrCreate(ctx, id)
			if err != nil {
				failed.Add(1)
				slog.Error("trip ingestion failed", "trip_id", id, "error", err)
				return
			}
			slog.Debug("trip stored", "trip_id", trip.ID, "route_pattern_id", trip.RoutePatternID)
		}(id)
	}

	wg.Wait()
	slog.Info("backfill complete", "trips", len(ids), "failed", failed.Load())
	return int(failed.Load())
}

// listen consumes ingest requests until ctx is cancelled.
func listen(ctx context.Context, cfg *config.Config, svc *usecases.TripService) error {
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		return err
	}
	defer pub.Close()

	// The subscriber reports ingestions it gives up on through pub.
	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL, pub)
	if err != nil {
		return err
	}
	defer sub.Close()

	err = sub.SubscribeIngestRequests(ctx, func(ctx context.Context, tripID string) error {
		trip, err := svc.CreateByID(ctx, tripID)
		metrics.ObserveIngestion(err)
		if err != nil {
			slog.Warn("trip ingestion failed", "trip_id", tripID, "error", err)
			return err
		}
		if perr := pub.PublishTripIngested(ctx, trip); perr != nil {
			slog.Warn("publish ingested event", "trip_id", tripID, "error", perr)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	slog.Info("listening for ingest requests", "subject", natsadapter.SubjectIngestRequested)
	<-ctx.Done()
	return nil
}

// schedule starts one ingestion workflow per trip id.
func schedule(ctx context.Context, cfg *config.Config, ids []string) error {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    slog.Default(),
	})
	if err != nil {
		return fmt.Errorf("temporal client: %w", err)
	}
	defer c.Close()

	for _, id := range ids {
		run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
			ID:        workflows.WorkflowID(id),
			TaskQueue: cfg.Temporal.TaskQueue,
		}, workflows.IngestTripWorkflow, workflows.IngestTripInput{TripID: id})
		if err != nil {
			return fmt.Errorf("start workflow for %s: %w", id, err)
		}
		slog.Info("workflow started", "trip_id", id, "workflow_id", run.GetID(), "run_id", run.GetRunID())
	}
	return nil
}
