// Command access-sync runs the access-governance sync service: HTTP API,
// gRPC health, cron scheduler and the orchestrator worker.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/access-sync/internal/config"
	"github.com/and161185/access-sync/internal/migrate"
	"github.com/and161185/access-sync/internal/orchestrator"
	"github.com/and161185/access-sync/internal/platform"
	"github.com/and161185/access-sync/internal/repository/postgres"
	grpcserver "github.com/and161185/access-sync/internal/server/grpc"
	httpapi "github.com/and161185/access-sync/internal/server/http"
	"github.com/and161185/access-sync/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		os.Exit(issueToken(os.Args[2:], os.Stdout, os.Stderr))
	}

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(2)
	}

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("http", cfg.HTTPAddr),
		zap.String("grpc", cfg.GRPCAddr),
		zap.Strings("platforms", cfg.ConfiguredPlatforms()),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.DatabaseDSN, logger); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}

	db, err := postgres.New(ctx, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres", zap.Error(err))
	}
	defer db.Close()

	// Repositories
	employees := postgres.NewEmployeeRepo(db)
	mirrors := postgres.NewMirrorRepo(db)
	accounts := postgres.NewAccountRepo(db)
	jobsRepo := postgres.NewJobRepo(db)
	auditRepo := postgres.NewAuditRepo(db)

	adapters, err := buildAdapters(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("adapters", zap.Error(err))
	}
	registry := platform.NewRegistry(adapters...)

	// Services
	tracker := service.NewJobTracker(jobsRepo, logger)
	auditSvc := service.NewAuditService(auditRepo, accounts, logger)
	accessSvc := service.NewAccessService(registry, accounts, auditSvc, logger)

	jobs := orchestrator.BuildJobs(orchestrator.Deps{
		Adapters:    registry,
		Employees:   employees,
		Mirrors:     mirrors,
		Tx:          db,
		Audit:       auditSvc,
		BatchSize:   cfg.BatchSize,
		BatchDelay:  cfg.BatchDelay,
		UpsertBatch: cfg.UpsertBatch,
		Strict:      cfg.Strict,
		Logger:      logger,
	})

	health := grpcserver.NewHealth(logger)
	orch := orchestrator.New(tracker, logger, jobs,
		orchestrator.WithObserver(health.Observe),
		orchestrator.WithRecorder(auditSvc),
	)
	if err := tracker.Register(ctx, orch.JobNames()); err != nil {
		logger.Fatal("register jobs", zap.Error(err))
	}
	orch.Start(ctx)

	var sched *orchestrator.Scheduler
	if cfg.Schedule != "" {
		sched, err = orchestrator.NewScheduler(ctx, cfg.Schedule, orch, logger)
		if err != nil {
			logger.Fatal("scheduler", zap.Error(err))
		}
		sched.Start()
		logger.Info("schedule armed", zap.String("spec", cfg.Schedule), zap.String("next", sched.Next()))
	}

	// HTTP API
	router := httpapi.NewRouter(&httpapi.Handler{
		Sync:           orch,
		Jobs:           tracker,
		Access:         accessSvc,
		StreamInterval: cfg.StreamInterval,
		Log:            logger,
	}, []byte(cfg.JWTKey))
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// gRPC health
	var gopts []grpc.ServerOption
	if cfg.GRPCTLSCert != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.GRPCTLSCert, cfg.GRPCTLSKey)
		if err != nil {
			logger.Fatal("failed to load TLS cert/key", zap.Error(err))
		}
		gopts = append(gopts, grpc.Creds(creds))
	}
	grpcSrv := grpcserver.New(health, gopts...)
	if cfg.GRPCReflection {
		reflection.Register(grpcSrv)
	}
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		logger.Info("grpc listening", zap.String("addr", cfg.GRPCAddr), zap.Bool("tls", cfg.GRPCTLSCert != ""))
		errCh <- grpcSrv.Serve(lis)
	}()

	// Wait for stop
	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		stop()
	}

	if sched != nil {
		<-sched.Stop().Done()
	}
	health.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	done := make(chan struct{})
	go func() {
		grpcSrv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		grpcSrv.Stop()
	}

	logger.Info("shutdown complete")
}
