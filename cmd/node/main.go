package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ordersync/node/internal/config"
	"github.com/ordersync/node/internal/handlers"
	custommw "github.com/ordersync/node/internal/middleware"
	"github.com/ordersync/node/internal/observability"
	"github.com/ordersync/node/internal/repository"
	"github.com/ordersync/node/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize telemetry
	ctx := context.Background()
	telemetry, err := observability.Initialize(ctx, observability.NewConfig("ordersync-node", "1.0.0"))
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			log.Printf("Telemetry shutdown error: %v", err)
		}
	}()

	// Initialize database
	var db repository.DB
	if cfg.UsePostgres() {
		log.Println("Using PostgreSQL database")
		sqlDB, err := repository.NewPostgresDB(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to initialize PostgreSQL database: %v", err)
		}
		db, err = observability.NewTraceDB(sqlDB, "postgresql")
		if err != nil {
			log.Fatalf("Failed to initialize database tracing: %v", err)
		}
	} else {
		log.Println("Using SQLite database")
		sqlDB, err := repository.NewSQLiteDB(cfg.DatabasePath)
		if err != nil {
			log.Fatalf("Failed to initialize SQLite database: %v", err)
		}
		db, err = observability.NewTraceDB(sqlDB, "sqlite")
		if err != nil {
			log.Fatalf("Failed to initialize database tracing: %v", err)
		}
	}
	defer db.Close()

	// Initialize repositories
	store := repository.NewDocumentStore(db)
	metadataRepo := repository.NewSyncMetadataRepository(db)
	conflictRepo := repository.NewSyncConflictRepository(db)

	// Initialize services
	locks := services.NewKeyedLocks()
	sequencer := services.NewDaySequencer(store, locks)

	transport := services.NewHTTPTransport(
		cfg.Remote.BaseURL,
		cfg.Remote.APIKey,
		cfg.NodeID,
		time.Duration(cfg.Remote.TimeoutSeconds)*time.Second,
		cfg.Remote.MaxRetries,
	)

	syncService := services.NewSyncService(store, metadataRepo, conflictRepo, transport, sequencer, locks, services.SyncServiceOptions{
		Tables:    cfg.Sync.Tables,
		BatchSize: cfg.Sync.BatchSize,
	})

	orderService := services.NewOrderService(store, sequencer)
	recordService := services.NewRecordService(store)
	scheduler := services.NewSyncScheduler(syncService, time.Duration(cfg.Sync.IntervalMinutes)*time.Minute)

	// Event hub for the in-store UI
	hub := services.NewEventHub()
	go hub.Run()
	syncService.SetEventHub(hub)
	sequencer.SetEventHub(hub)
	orderService.SetEventHub(hub)

	// Sync metrics
	syncMetrics, err := observability.NewSyncMetrics()
	if err != nil {
		log.Printf("Sync metrics unavailable: %v", err)
	} else {
		syncService.SetMetrics(syncMetrics)
		sequencer.SetMetrics(syncMetrics)
	}

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler()
	syncHandler := handlers.NewSyncHandler(syncService, scheduler)
	conflictHandler := handlers.NewConflictHandler(conflictRepo, syncService.Resolver())
	orderHandler := handlers.NewOrderHandler(orderService, sequencer)
	recordHandler := handlers.NewRecordHandler(recordService)
	wsHandler := handlers.NewWebSocketHandler(hub)

	// HTTP metrics
	httpMetrics, err := observability.NewHTTPMetrics()
	if err != nil {
		log.Fatalf("Failed to initialize HTTP metrics: %v", err)
	}

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.TracingMiddleware("ordersync-node"))
	r.Use(observability.MetricsMiddleware(httpMetrics))
	r.Use(custommw.APIKeyAuth(cfg.Security.APIKey, cfg.Security.APIKeyHeader))

	// Routes
	r.Get("/health", healthHandler.HealthCheck)
	r.Get("/api/health", healthHandler.HealthCheck)

	r.Route("/api/sync", func(r chi.Router) {
		r.Post("/run", syncHandler.RunAll)
		r.Post("/{table}/run", syncHandler.RunTable)
		r.Get("/status", syncHandler.GetStatus)
		r.Get("/scheduler", syncHandler.GetScheduler)
		r.Post("/scheduler/run", syncHandler.RunSchedulerPass)
		r.Get("/conflicts", conflictHandler.ListConflicts)
		r.With(custommw.OperatorAuth(cfg.Security.OperatorKeyHash, "X-Operator-Key")).
			Post("/conflicts/{id}/resolve", conflictHandler.ResolveConflict)
	})

	r.Route("/api/orders", func(r chi.Router) {
		r.Post("/", orderHandler.CreateOrder)
		r.Get("/{id}", orderHandler.GetOrder)
		r.Put("/{id}", orderHandler.UpdateOrder)
		r.Delete("/{id}", orderHandler.DeleteOrder)
		r.Get("/day/{day}", orderHandler.ListDayOrders)
		r.Post("/sequence/{day}", orderHandler.RepairSequence)
	})

	r.Route("/api/records/{table}", func(r chi.Router) {
		r.Post("/", recordHandler.UpsertRecord)
		r.Get("/", recordHandler.ListRecords)
		r.Get("/{id}", recordHandler.GetRecord)
		r.Delete("/{id}", recordHandler.DeleteRecord)
	})

	r.Get("/ws", wsHandler.HandleConnection)

	// Background sync scheduler
	if cfg.Sync.AutoStart && cfg.Remote.BaseURL != "" {
		scheduler.Start(ctx)
		defer scheduler.Stop()
	}

	// Create server
	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("OrderSync node starting on %s", cfg.ServerAddress)
		log.Printf("Node ID: %s", cfg.NodeID)
		if cfg.Remote.BaseURL != "" {
			log.Printf("Remote authority: %s", cfg.Remote.BaseURL)
		} else {
			log.Println("No remote authority configured, running offline")
		}

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down node...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Node stopped")
}
