package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joseph-ayodele/control-mapper/internal/app"
	"github.com/joseph-ayodele/control-mapper/internal/common"
	"github.com/joseph-ayodele/control-mapper/internal/server"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := common.LoadConfig()
	logger := common.NewLogger(cfg.Log)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	a.WatchCatalog(ctx)

	srv := server.New(server.Deps{
		Uploads:   a.Uploads,
		Configure: a.Configure,
		Mapping:   a.Mapping,
		Catalog:   a.Catalog,
		Tool:      a.Invoker,

		MaxUploadSize: cfg.Storage.MaxUploadSize,
	}, logger)

	go func() {
		if err := srv.Start(cfg.Server.HTTPAddr); err != nil {
			logger.Error("http serve error", "error", err)
			stop()
		}
	}()

	var grpcStop func()
	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
			os.Exit(1)
		}
		gs, hs := server.NewGRPCServer()
		go server.WatchToolHealth(ctx, hs, a.Invoker, cfg.Server.HealthInterval, logger)
		go func() {
			logger.Info("grpc health listening", "addr", cfg.Server.GRPCAddr)
			if err := gs.Serve(lis); err != nil {
				logger.Error("gRPC serve error", "error", err)
			}
		}()
		grpcStop = func() {
			hs.Shutdown()
			gs.GracefulStop()
		}
	}

	logger.Info("control-mapper started",
		"http_addr", cfg.Server.HTTPAddr,
		"providers_dir", cfg.Storage.ProvidersDir,
		"claude", cfg.Claude.Binary,
	)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	if grpcStop != nil {
		grpcStop()
	}
	a.Close(shutdownCtx)
}
