package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/roomsync/roomsync/server/internal/api"
	"github.com/roomsync/roomsync/server/internal/config"
	"github.com/roomsync/roomsync/server/internal/metrics"
	"github.com/roomsync/roomsync/server/internal/ratelimit"
	"github.com/roomsync/roomsync/server/internal/receiver"
	"github.com/roomsync/roomsync/server/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to config file; built-in defaults are used when empty")
	flag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("roomsync-server starting", "config", *configPath)

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			slog.Error("failed to load config", "err", err)
			os.Exit(1)
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		slog.Error("invalid environment override", "err", err)
		os.Exit(1)
	}
	level.Set(cfg.Server.Level())

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"grpc_port", cfg.Server.GRPCPort,
		"state_ttl", cfg.Server.State.TTL,
		"sweep_interval", cfg.Server.State.SweepInterval,
		"max_rooms", cfg.Server.State.MaxRooms,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Room state store with background TTL eviction.
	st := store.New(store.Config{
		TTL:           cfg.Server.State.TTL,
		SweepInterval: cfg.Server.State.SweepInterval,
		MaxRooms:      cfg.Server.State.MaxRooms,
		LazyExpiry:    cfg.Server.State.LazyExpiry,
	})
	go st.Run(ctx)

	limiter := ratelimit.New(cfg.Server.HTTP.RateLimitPerIP)
	go limiter.Run(ctx)

	// Already validated by config; the list is fixed until restart.
	proxies, err := ratelimit.ParseTrustedProxies(cfg.Server.HTTP.TrustedProxies)
	if err != nil {
		slog.Error("invalid trusted proxies", "err", err)
		os.Exit(1)
	}

	// Live-apply retention, cap, rate limit and log level on config change.
	// Ports, the sweep interval and trusted proxies need a restart.
	if *configPath != "" {
		go func() {
			if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
				s := updated.Server
				st.SetLimits(s.State.TTL, s.State.MaxRooms, s.State.LazyExpiry)
				limiter.SetRate(s.HTTP.RateLimitPerIP)
				level.Set(s.Level())
				slog.Info("config hot-reloaded",
					"state_ttl", s.State.TTL,
					"max_rooms", s.State.MaxRooms,
					"rate_limit_per_ip", s.HTTP.RateLimitPerIP,
				)
			}); err != nil {
				slog.Error("config watcher stopped", "err", err)
			}
		}()
	}

	// Optional gRPC surface for the same two operations.
	var grpcSrv *grpc.Server
	if cfg.Server.GRPCPort != 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
		if err != nil {
			slog.Error("failed to listen on gRPC port",
				"port", cfg.Server.GRPCPort, "err", err)
			os.Exit(1)
		}
		grpcSrv = grpc.NewServer(receiver.ServerOptions()...)
		receiver.Register(grpcSrv, receiver.New(st))

		go func() {
			slog.Info("gRPC API listening", "port", cfg.Server.GRPCPort)
			if err := grpcSrv.Serve(lis); err != nil {
				slog.Error("gRPC server stopped", "err", err)
			}
		}()
	}

	httpSrv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: api.New(st, api.Options{
			Limiter:      limiter,
			Proxies:      proxies,
			MaxBodyBytes: cfg.Server.HTTP.MaxBodyBytes,
			CORSOrigins:  cfg.Server.HTTP.CORSOrigins,
			Metrics:      metrics.Handler(st),
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		slog.Info("HTTP API listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("roomsync-server shutting down", "rooms", st.Count())

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown", "err", err)
	}
}
