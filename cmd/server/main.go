package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	grpcadapter "github.com/simaogato/topvoter-backend/internal/adapter/grpc"
	httpadapter "github.com/simaogato/topvoter-backend/internal/adapter/http"
	redisadapter "github.com/simaogato/topvoter-backend/internal/adapter/redis"
	"github.com/simaogato/topvoter-backend/internal/adapter/repository/memory"
	"github.com/simaogato/topvoter-backend/internal/adapter/repository/postgres"
	"github.com/simaogato/topvoter-backend/internal/adapter/scheduler"
	"github.com/simaogato/topvoter-backend/internal/config"
	"github.com/simaogato/topvoter-backend/internal/domain"
	"github.com/simaogato/topvoter-backend/internal/logging"
	"github.com/simaogato/topvoter-backend/internal/metrics"
	"github.com/simaogato/topvoter-backend/internal/usecase/dashboard"
	"github.com/simaogato/topvoter-backend/internal/usecase/finalize"
	"github.com/simaogato/topvoter-backend/internal/usecase/membership"
	"github.com/simaogato/topvoter-backend/internal/usecase/roundclock"
	"github.com/simaogato/topvoter-backend/internal/usecase/seeder"
	"github.com/simaogato/topvoter-backend/internal/usecase/views"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogEncoding)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server exited with error", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx := context.Background()
	logger.Info("Starting topvoter server", zap.Stringer("config", cfg))

	admin, err := cfg.Admin()
	if err != nil {
		return err
	}

	// 1. Setup Store
	var readiness []httpadapter.ReadinessCheck
	var store domain.Store
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		db, err := postgres.NewDB(ctx, cfg.DBConnStr)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			return err
		}
		store = postgres.NewStore(db)
		readiness = append(readiness, db.PingContext)
	default:
		store = memory.NewStore()
	}

	// 2. Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// 3. Optional result fan-out
	var publisher domain.ResultPublisher
	if cfg.RedisAddr != "" {
		redisPublisher, err := redisadapter.NewPublisher(ctx, redisadapter.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Stream:   cfg.RedisStream,
			MaxLen:   cfg.RedisStreamMaxLen,
		}, logger)
		if err != nil {
			return err
		}
		defer redisPublisher.Close()

		publisher = m.InstrumentPublisher(redisPublisher)
		readiness = append(readiness, redisPublisher.Health)
	}

	// 4. Initialize Services (Use Cases)
	clock := domain.SystemClock{}
	roundClock, err := roundclock.NewRoundClock(cfg.RoundDuration)
	if err != nil {
		return err
	}

	membershipService := membership.NewMembershipService(store, clock, cfg.MinimumDeposit)
	viewService := views.NewViewService(store, clock, roundClock)
	finalizationService := finalize.NewFinalizationService(
		store,
		clock,
		roundClock,
		domain.SingleAdmin{Admin: admin},
		cfg.DominantViewPolicy,
		publisher,
		logger.Named("finalize"),
	)
	dashboardService := dashboard.NewDashboardService(store, clock, roundClock)

	// Initialize the round clock on first start
	genesisSeeder := seeder.NewGenesisSeeder(store, clock)
	state, err := genesisSeeder.Seed(ctx)
	if err != nil {
		return fmt.Errorf("failed to seed round state: %w", err)
	}
	m.SetCurrentRound(state.CurrentRound)
	logger.Info("Round state ready",
		zap.Uint64("currentRound", state.CurrentRound),
		zap.Time("roundStartTime", state.RoundStartTime))

	// 5. Start gRPC Server
	accountTokens, err := grpcadapter.NewAccountTokens(cfg.AccountTokenSecret, cfg.AccountTokenTTL)
	if err != nil {
		return err
	}
	if cfg.AccountTokenSecret == config.DevAccountTokenSecret {
		logger.Warn("ACCOUNT_TOKEN_SECRET is the development default; anyone can mint account tokens")
	}

	grpcServer := grpclib.NewServer(
		grpclib.ChainUnaryInterceptor(
			grpcadapter.LoggingInterceptor(logger.Named("grpc")),
			grpcadapter.MetricsInterceptor(m),
			grpcadapter.AuthInterceptor(cfg.APIToken),
			grpcadapter.CallerInterceptor(accountTokens),
		),
	)

	grpcAdapter := grpcadapter.NewServer(membershipService, viewService, finalizationService, dashboardService, m)
	grpcadapter.RegisterDAOServiceServer(grpcServer, grpcAdapter)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(grpcadapter.ServiceName, healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.GRPCAddr, err)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("failed to serve gRPC server: %w", err)
		}
	}()

	// 6. Start HTTP Server (probes + metrics)
	httpServer := httpadapter.NewServer(cfg.HTTPAddr, registry, logger.Named("http"), readiness...)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil {
			errCh <- fmt.Errorf("failed to serve HTTP server: %w", err)
		}
	}()
	httpServer.SetReady(true)

	// 7. Optional auto-finalization
	var autoFinalizer *scheduler.AutoFinalizer
	if cfg.AutoFinalizeSpec != "" {
		autoFinalizer, err = scheduler.NewAutoFinalizer(cfg.AutoFinalizeSpec, finalizationService, admin, logger.Named("scheduler"), m)
		if err != nil {
			return err
		}
		autoFinalizer.Start()
	}

	// Graceful shutdown
	runErr := waitForShutdown(logger, errCh)

	healthServer.Shutdown()
	if autoFinalizer != nil {
		autoFinalizer.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown failed", zap.Error(err))
	}

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	return runErr
}

// waitForShutdown waits for SIGTERM or SIGINT, or for a server to fail
func waitForShutdown(logger *zap.Logger, errCh <-chan error) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info("Received signal, shutting down gracefully", zap.String("signal", sig.String()))
		return nil
	case err := <-errCh:
		return err
	}
}
