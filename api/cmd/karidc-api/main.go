package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/irgordon/karidc/api/internal/adapters/contentstore"
	"github.com/irgordon/karidc/api/internal/adapters/document"
	"github.com/irgordon/karidc/api/internal/adapters/watch"
	"github.com/irgordon/karidc/api/internal/api/handlers"
	"github.com/irgordon/karidc/api/internal/api/middleware"
	"github.com/irgordon/karidc/api/internal/api/router"
	"github.com/irgordon/karidc/api/internal/config"
	"github.com/irgordon/karidc/api/internal/core/domain"
	"github.com/irgordon/karidc/api/internal/core/services"
	"github.com/irgordon/karidc/api/internal/db/postgres"
	deliveryhttp "github.com/irgordon/karidc/api/internal/delivery/http"
	"github.com/irgordon/karidc/api/internal/infrastructure/codec"
	"github.com/irgordon/karidc/api/internal/infrastructure/crypto"
	"github.com/irgordon/karidc/api/internal/runtime"
	"github.com/irgordon/karidc/api/internal/telemetry"
	"github.com/irgordon/karidc/api/internal/worker"
	"github.com/irgordon/karidc/api/internal/workers"
)

func main() {
	// --- 1. Core Telemetry & Configuration ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	logger.Info("🚀 Booting Karı domain controller...")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("FATAL: configuration rejected", "error", err)
		os.Exit(1)
	}
	if err := run(cfg, logger); err != nil {
		logger.Error("FATAL: controller stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- 2. Declared model ---
	builder := document.Builder{Registry: extensionRegistry(cfg.Extensions)}
	d, hosts, err := loadModel(builder, cfg)
	if err != nil {
		return err
	}

	// --- 3. Outbound Infrastructure ---
	var (
		snapshots *services.SnapshotService
		journal   domain.BatchJournal
		dbPing    deliveryhttp.Pinger
	)
	if cfg.Persistent() {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := postgres.Migrate(ctx, pool); err != nil {
			return err
		}

		// 🛡️ Zero-Trust: snapshots are sealed at rest
		cryptoService, err := crypto.NewAESCryptoService(cfg.MasterKeyHex, cfg.RetiredKeyHex...)
		if err != nil {
			return err
		}
		snapshots = services.NewSnapshotService(postgres.NewSnapshotRepository(pool), codec.CBOR{Builder: builder}, cryptoService, logger)

		sqlDB := sqlx.NewDb(stdlib.OpenDBFromPool(pool), "pgx")
		defer sqlDB.Close()
		journal = postgres.NewBatchJournal(sqlDB)
		dbPing = pool
	} else {
		logger.Warn("DATABASE_URL not set: model changes are not persisted")
	}

	content, err := contentstore.New(cfg.ContentRoot, logger)
	if err != nil {
		return err
	}

	// --- 4. Hardened Dependency Injection ---
	hub := telemetry.NewHub()
	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)
	batchWorker := worker.NewBatchWorker(64, cfg.RuntimeTimeout, logger)

	controller := services.NewController(d, hosts, services.ControllerDeps{
		Graph:       runtime.NewGraph(nil, logger),
		Content:     content,
		Coordinator: services.NewCoordinator(cfg.RuntimeTimeout, logger),
		Snapshots:   snapshots,
		Journal:     journal,
		Dispatcher:  batchWorker,
		Hub:         hub,
		Metrics:     metrics,
		Logger:      logger,
	})
	if err := controller.Restore(ctx); err != nil {
		return err
	}

	// --- 5. Background Workers ---
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	go batchWorker.Start(workerCtx)
	go workers.NewServerMonitor(controller, hub, logger, cfg.MonitorInterval).Start(workerCtx)

	limiter := middleware.NewRateLimiter(10, 30)
	go limiter.Cleanup(workerCtx, 3*time.Minute)

	if cfg.WatchDomainFile {
		go func() {
			if err := watch.NewDocumentWatcher(0, logger, watchTargets(builder, cfg, controller)...).Run(workerCtx); err != nil {
				logger.Error("document watcher stopped", "error", err)
			}
		}()
	}

	bootAutoStart(ctx, controller, cfg.HostName, logger)

	// --- 6. gRPC health ---
	grpcHealth := health.NewServer()
	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, grpcHealth)
	lis, err := net.Listen("tcp", cfg.GRPCHealthAddr)
	if err != nil {
		return err
	}
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC health server stopped", "error", err)
		}
	}()
	defer grpcServer.GracefulStop()

	// --- 7. HTTP Gateway ---
	mux := router.NewRouter(router.RouterConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		ModelHandler:   handlers.NewModelHandler(controller, builder),
		ServerHandler:  handlers.NewServerHandler(controller),
		BatchHandler:   handlers.NewBatchHandler(journal, controller),
		WSHandler:      handlers.NewWebSocketHandler(hub, cfg.AllowedOrigins, logger),
		HealthHandler: deliveryhttp.NewHealthHandler(dbPing, grpcHealth, func() int {
			return len(controller.BootedServers())
		}),
		RateLimiter: limiter,
		Logger:      logger,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("🌐 Karı domain controller API active", "port", cfg.Port, "grpc_health", cfg.GRPCHealthAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// --- 8. Graceful Exit ---
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	logger.Info("🛑 Shutting down...")
	grpcHealth.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("ERROR: Forced shutdown", "error", err)
	}
	cancelWorkers() // no new batches once the API is closed

	for _, ref := range controller.BootedServers() {
		if err := controller.StopServer(shutdownCtx, ref); err != nil {
			logger.Warn("server did not stop cleanly", "server", ref.String(), "error", err)
		}
	}
	logger.Info("✅ Karı domain controller shutdown.")
	return nil
}

// extensionRegistry serves the configured modules. Each module contributes
// attribute-bag subsystems for its namespaces.
func extensionRegistry(modules map[string][]string) *domain.ExtensionRegistry {
	if len(modules) == 0 {
		return nil
	}
	loader := make(domain.StaticLoader, len(modules))
	for module, namespaces := range modules {
		loader[module] = []domain.Capability{domain.NamespaceCapability(namespaces)}
	}
	return domain.NewExtensionRegistry(loader)
}

// loadModel reads the declared trees. Without a domain file the controller
// starts empty and is configured through the API.
func loadModel(b document.Builder, cfg *config.Config) (*domain.Domain, []*domain.Host, error) {
	d := domain.NewDomain()
	if cfg.DomainFile != "" {
		var err error
		if d, err = b.ReadDomainFile(cfg.DomainFile); err != nil {
			return nil, nil, err
		}
	}
	var hosts []*domain.Host
	seen := map[string]bool{}
	for _, path := range cfg.HostFiles {
		h, err := b.ReadHostFile(path)
		if err != nil {
			return nil, nil, err
		}
		if seen[h.Name()] {
			return nil, nil, domain.UpdateFailed("host %q is declared twice", h.Name())
		}
		seen[h.Name()] = true
		hosts = append(hosts, h)
	}
	if cfg.HostName != "" && !seen[cfg.HostName] {
		hosts = append(hosts, domain.NewHost(cfg.HostName))
	}
	return d, hosts, nil
}

func watchTargets(b document.Builder, cfg *config.Config, c *services.Controller) []watch.Target {
	targets := []watch.Target{{
		Path: cfg.DomainFile,
		Load: func(ctx context.Context, path string) error {
			d, err := b.ReadDomainFile(path)
			if err != nil {
				return err
			}
			_, err = c.Reconcile(ctx, d, "watch")
			return err
		},
	}}
	for _, p := range cfg.HostFiles {
		targets = append(targets, watch.Target{
			Path: p,
			Load: func(ctx context.Context, path string) error {
				h, err := b.ReadHostFile(path)
				if err != nil {
					return err
				}
				_, err = c.ReconcileHost(ctx, h, "watch")
				return err
			},
		})
	}
	return targets
}

// bootAutoStart starts the auto-start servers of the host this process controls.
func bootAutoStart(ctx context.Context, c *services.Controller, host string, logger *slog.Logger) {
	if host == "" {
		return
	}
	status, err := c.Status(host)
	if err != nil {
		logger.Error("cannot list servers", "host", host, "error", err)
		return
	}
	for _, st := range status {
		if !st.AutoStart || st.Booted {
			continue
		}
		if _, err := c.BootServer(ctx, st.ServerRef); err != nil {
			logger.Error("auto-start failed", "server", st.ServerRef.String(), "error", err)
		}
	}
}
