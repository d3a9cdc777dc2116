package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"jobmate/watch-service/internal/api"
	"jobmate/watch-service/internal/grpcserver"
	"jobmate/watch-service/internal/scheduler"
)

func newServeCmd(rt *runtime) *cobra.Command {
	var runOnStart bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP and gRPC APIs and run the scheduled jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), rt, runOnStart)
		},
	}
	cmd.Flags().BoolVar(&runOnStart, "run-on-start", false, "run every watch once at startup")
	return cmd
}

func serve(parent context.Context, rt *runtime, runOnStart bool) error {
	cfg, log := rt.cfg, rt.log
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("close resources", zap.Error(err))
		}
	}()

	// ── Scheduler ───────────────────────────────────────────────────────────
	sched := scheduler.New(a.runner, scheduler.Config{
		RunAll:     cfg.Schedule.RunAll,
		Sweep:      cfg.Schedule.Sweep,
		Retention:  cfg.Schedule.Retention,
		RunOnStart: runOnStart,
	}, log.Named("scheduler"))
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	// ── HTTP server ─────────────────────────────────────────────────────────
	gin.SetMode(gin.ReleaseMode)
	handler := api.NewHandler(a.runner, sched, cfg.Server.TriggerSecret, log.Named("api"))
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      api.NewRouter(handler, a.registry, log.Named("http")),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute, // POST /runs scans the whole catalog
	}

	// ── gRPC server ─────────────────────────────────────────────────────────
	grpcSrv := grpc.NewServer()
	grpcserver.RegisterWatchServiceServer(grpcSrv, grpcserver.NewServer(a.runner, sched, cfg.Server.TriggerSecret))
	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("http listening", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		log.Info("grpc listening", zap.String("addr", lis.Addr().String()))
		if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	// ── Graceful shutdown ───────────────────────────────────────────────────
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err = <-errCh:
		log.Error("server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	grpcSrv.GracefulStop()
	log.Info("stopped")
	return err
}
