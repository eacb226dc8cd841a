package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/bus"
	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/config"
	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/db"
	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/grpcapi"
	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/httpapi"
	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/logging"
	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/envelope"
	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/gateway"
	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/replay"
	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "portunus-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// DB
	conn, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env}, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	writer := db.NewWorker(conn)
	defer writer.Close()

	if cfg.SeedFile != "" {
		fixtures, err := db.LoadFixtures(cfg.SeedFile)
		if err != nil {
			return err
		}
		if err := db.Seed(ctx, writer, fixtures); err != nil {
			return err
		}
		logger.Info("seeded fixtures", zap.String("file", cfg.SeedFile))
	}

	// Stores
	st := sqlite.NewStore(conn, writer)
	controllerStore := sqlite.NewControllerStore(conn, writer)
	heartbeatStore := sqlite.NewHeartbeatStore(conn, writer)

	// Services
	recorder := service.NewAuditRecorder(st, service.AuditConfig{
		AvgWindow:       cfg.AuditAvgWindow,
		OpenMatchWindow: cfg.AuditOpenMatchWindow,
	}, service.WithLogger(logger.Named("audit")))
	accessSvc := service.NewAccessService(st, recorder, service.WithLogger(logger.Named("access")))
	registry := service.NewControllerRegistry(controllerStore)
	heartbeatSvc := service.NewHeartbeatService(heartbeatStore, registry, service.WithLogger(logger.Named("heartbeat")))

	svc := gateway.Services{
		Access:     accessSvc,
		Recorder:   recorder,
		Sync:       service.NewSyncService(st, service.WithLogger(logger.Named("sync"))),
		Reconciler: service.NewReconciler(st, accessSvc, recorder, service.WithLogger(logger.Named("reconcile"))),
		Heartbeats: heartbeatSvc,
	}

	// Envelope + replay guard
	key, err := cfg.Key()
	if err != nil {
		return err
	}
	env, err := envelope.New(key)
	if err != nil {
		return err
	}

	guard, closeGuard, err := replayGuard(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeGuard()

	gw := gateway.New(env, guard, svc, logger.Named("gateway"))

	pruner := service.NewHeartbeatPruner(heartbeatStore, service.PrunerConfig{
		RetentionDays: cfg.HeartbeatRetentionDays,
		IntervalHours: cfg.PruneIntervalHours,
	}, service.WithLogger(logger.Named("pruner")))
	pruner.Start(ctx)
	defer pruner.Stop()

	g, gctx := errgroup.WithContext(ctx)

	// HTTP
	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:           logger.Named("http"),
		Addr:             cfg.HTTPAddr,
		Gateway:          gw,
		HeartbeatService: heartbeatSvc,
	})
	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		return srv.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// gRPC
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		grpcSrv := grpcapi.NewServer(gw, logger.Named("grpc"))
		g.Go(func() error {
			logger.Info("grpc listening", zap.String("addr", cfg.GRPCAddr))
			return grpcSrv.Serve(lis)
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			grpcSrv.Stop(shutdownCtx)
			return nil
		})
	}

	// Kafka
	if len(cfg.KafkaBrokers) > 0 {
		consumer, err := bus.NewConsumer(bus.Config{
			Brokers:    cfg.KafkaBrokers,
			Topic:      cfg.KafkaTopic,
			GroupID:    cfg.KafkaGroupID,
			ReplyTopic: cfg.KafkaReplyTopic,
		}, gw, logger.Named("bus"))
		if err != nil {
			return err
		}
		defer consumer.Close()
		g.Go(func() error {
			logger.Info("kafka consuming",
				zap.Strings("brokers", cfg.KafkaBrokers),
				zap.String("topic", cfg.KafkaTopic),
			)
			return consumer.Run(gctx)
		})
	}

	err = g.Wait()
	logger.Info("shutting down")
	return err
}

// replayGuard picks the Redis guard when an address is configured and the
// in-process guard otherwise.
func replayGuard(ctx context.Context, cfg config.Config, logger *zap.Logger) (replay.Guard, func(), error) {
	if cfg.RedisAddr == "" {
		logger.Info("replay guard: memory", zap.Duration("ttl", cfg.ReplayTTL))
		return replay.NewMemoryGuard(cfg.ReplayTTL), func() {}, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.RedisAddr},
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}

	logger.Info("replay guard: redis", zap.String("addr", cfg.RedisAddr), zap.Duration("ttl", cfg.ReplayTTL))
	return replay.NewRedisGuard(client, cfg.ReplayTTL), func() { _ = client.Close() }, nil
}
