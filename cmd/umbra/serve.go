package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oriys/umbra/internal/audit"
	"github.com/oriys/umbra/internal/config"
	"github.com/oriys/umbra/internal/elevate"
	umbragrpc "github.com/oriys/umbra/internal/grpc"
	"github.com/oriys/umbra/internal/logging"
	"github.com/oriys/umbra/internal/metrics"
	"github.com/oriys/umbra/internal/observability"
	"github.com/oriys/umbra/internal/resolver"
	"github.com/oriys/umbra/internal/server"
	"github.com/oriys/umbra/internal/store"
)

func serveCmd() *cobra.Command {
	var (
		httpAddr string
		grpcAddr string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the enforcement daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if httpAddr != "" {
				cfg.Daemon.HTTPAddr = httpAddr
			}
			if grpcAddr != "" {
				cfg.Daemon.GRPCAddr = grpcAddr
			}
			if logLevel != "" {
				cfg.Daemon.LogLevel = logLevel
			}

			logging.InitStructured(cfg.Daemon.LogFormat, cfg.Daemon.LogLevel)
			metrics.InitPrometheus("umbra", nil)

			ctx := context.Background()
			if err := observability.Init(ctx, observability.Config{
				Enabled:     cfg.Telemetry.Enabled,
				Exporter:    cfg.Telemetry.Exporter,
				Endpoint:    cfg.Telemetry.Endpoint,
				ServiceName: "umbra",
				SampleRate:  cfg.Telemetry.SampleRate,
			}); err != nil {
				return err
			}

			pgStore, err := store.NewPostgresStore(ctx, cfg.Postgres.DSN)
			if err != nil {
				return err
			}
			defer pgStore.Close()

			sink := audit.MultiSink{
				store.NewAuditSink(pgStore),
				audit.NewLogSink(nil),
			}
			elevator := elevate.NewManager(sink)

			var lookup resolver.Lookup = store.NewStoreLookup(pgStore)
			if cfg.Redis.Enabled {
				client := redis.NewClient(&redis.Options{
					Addr:     cfg.Redis.Addr,
					Password: cfg.Redis.Password,
					DB:       cfg.Redis.DB,
				})
				lookup = resolver.NewRedisLookup(client, lookup, cfg.Resolver.CacheTTL)
			}
			cached := resolver.NewCachedLookup(lookup, cfg.Resolver.CacheTTL)

			srv := server.New(server.Config{
				Store:      pgStore,
				Resolver:   buildResolver(cfg),
				Lookup:     cached,
				Elevator:   elevator,
				Invalidate: cached.Invalidate,
			})

			httpServer := server.Start(cfg.Daemon.HTTPAddr, srv)
			logging.Op().Info("HTTP server started", "addr", cfg.Daemon.HTTPAddr)

			var grpcServer *gogrpc.Server
			if cfg.Daemon.GRPCAddr != "" {
				lis, err := net.Listen("tcp", cfg.Daemon.GRPCAddr)
				if err != nil {
					return err
				}
				grpcServer = gogrpc.NewServer(
					gogrpc.ChainUnaryInterceptor(
						umbragrpc.UnaryTenantInterceptor(cached),
						umbragrpc.UnaryLoggingInterceptor(),
					),
					gogrpc.StreamInterceptor(umbragrpc.StreamTenantInterceptor(cached)),
				)
				healthpb.RegisterHealthServer(grpcServer, health.NewServer())
				go func() {
					if err := grpcServer.Serve(lis); err != nil {
						logging.Op().Error("gRPC server error", "error", err)
					}
				}()
				logging.Op().Info("gRPC server started", "addr", cfg.Daemon.GRPCAddr)
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if grpcServer != nil {
				grpcServer.GracefulStop()
			}
			server.Shutdown(shutdownCtx, httpServer)
			observability.Shutdown(shutdownCtx)
			return nil
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http", "", "HTTP address")
	cmd.Flags().StringVar(&grpcAddr, "grpc", "", "gRPC address")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level")

	return cmd
}

func buildResolver(cfg *config.Config) resolver.Resolver {
	var strategies resolver.Composite
	for _, name := range cfg.Resolver.Strategies {
		switch name {
		case "header":
			strategies = append(strategies, resolver.HeaderResolver{Header: cfg.Resolver.Header})
		case "subdomain":
			strategies = append(strategies, resolver.SubdomainResolver{BaseDomain: cfg.Resolver.BaseDomain})
		case "path":
			strategies = append(strategies, resolver.PathResolver{Prefix: cfg.Resolver.PathPrefix})
		}
	}
	if len(strategies) == 0 {
		strategies = append(strategies, resolver.HeaderResolver{Header: cfg.Resolver.Header})
	}
	return strategies
}
