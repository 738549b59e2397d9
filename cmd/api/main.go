package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/samirrijal/hsltrips/internal/adapters/digitransit"
	"github.com/samirrijal/hsltrips/internal/adapters/http"
	natsadapter "github.com/samirrijal/hsltrips/internal/adapters/nats"
	"github.com/samirrijal/hsltrips/internal/adapters/store"
	"github.com/samirrijal/hsltrips/internal/core/usecases"
	"github.com/samirrijal/hsltrips/internal/pkg/config"
	"github.com/samirrijal/hsltrips/internal/pkg/logging"
	"github.com/samirrijal/hsltrips/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("hsltrips-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Database
	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer st.Close()

	// Routing API
	remote := digitransit.New(digitransit.Config{
		URL:                      cfg.Gateway.URL,
		SubscriptionKey:          cfg.Gateway.SubscriptionKey,
		Timeout:                  cfg.Gateway.Timeout,
		RatePerSecond:            cfg.Gateway.RatePerSecond,
		Burst:                    cfg.Gateway.Burst,
		LowPriorityRatePerSecond: cfg.Gateway.LowPriorityRatePerSecond,
	})

	deps := &http.Dependencies{
		Trips:  usecases.NewTripService(st.Trips, remote),
		PingDB: st.Ping,
	}

	// NATS is optional: without it async ingestion and /ws are unavailable.
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable", "error", err)
	} else {
		defer pub.Close()
		deps.Events = pub
		deps.NATS = pub.Conn()
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    64 * 1024,
		AppName:      "HSL Trips API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
		MaxAge:       3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "driver", cfg.Database.Driver)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
