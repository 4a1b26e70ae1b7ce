package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"chat-realtime/internal/accounts"
	"chat-realtime/internal/auth"
	"chat-realtime/internal/cache"
	"chat-realtime/internal/config"
	"chat-realtime/internal/db"
	"chat-realtime/internal/handlers"
	"chat-realtime/internal/health"
	"chat-realtime/internal/logging"
	"chat-realtime/internal/middleware"
	"chat-realtime/internal/notify"
	"chat-realtime/internal/observability"
	"chat-realtime/internal/rabbitmq"
	"chat-realtime/internal/repositories"
	"chat-realtime/internal/service"
	"chat-realtime/internal/telemetry"
	"chat-realtime/internal/ws"
)

func main() {
	cfg, err := config.Load()
	fs := pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	config.BindFlags(fs, &cfg)
	_ = fs.Parse(os.Args[1:])
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.IsDevelopment())
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	database, err := db.Connect(ctx, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer database.Close()

	if err := db.Migrate(ctx, database, logger); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if cfg.MigrateOnly {
		logger.Info("migrations applied, exiting")
		return nil
	}

	shutdownTracing, err := observability.InitTracing(ctx, cfg.ServiceName, cfg.AppEnv, cfg.OTLPEndpoint, logger)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	pool, err := accounts.Connect(ctx, cfg.AccountsDSN)
	if err != nil {
		return err
	}
	defer pool.Close()
	directory := accounts.NewPostgresDirectory(pool)

	rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer rdb.Close()
	store := cache.NewStore(rdb)

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	audit := telemetry.NewAuditEmitter(publisher, "audit.chat", cfg.ServiceName, cfg.AppEnv, logger)
	logger.Info("event publisher ready",
		zap.String("mode", rabbitmq.PublisherMode(publisher)),
		zap.String("reason", rabbitmq.PublisherNoopReason(publisher)),
	)

	codec := auth.NewCodec(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL, cfg.ServiceName)
	revocation := auth.NewRevocation(store, directory, logger)
	gate := auth.NewAuthenticator(codec, revocation, directory)

	hub := ws.NewHub(logger)
	var sink notify.Sink = notify.NewLocalSink(hub)
	if cfg.NotifyRelay == "redis" {
		relay := notify.NewRedisRelay(rdb, notify.DefaultRelayChannel, sink, logger)
		go func() {
			if err := relay.Run(ctx, nil); err != nil {
				logger.Error("notify relay stopped", zap.Error(err))
			}
		}()
		sink = relay
	}
	dispatcher := notify.NewDispatcher(sink, cfg.DispatchWorkers, cfg.DispatchQueueSize, logger)
	dispatcher.Start(context.WithoutCancel(ctx))

	tx := db.NewTransactor(database)
	friends := service.NewFriendService(tx, repositories.NewFriendshipRepo(database), directory, store, dispatcher, logger)
	messages := service.NewMessageService(tx, repositories.NewMessageRepo(database), directory, friends, store, dispatcher, logger)
	presence := service.NewPresenceService(directory, store, logger)
	sessions := service.NewSessionService(gate, codec, revocation, directory, logger)

	if cfg.PresenceResetOnStart {
		if err := presence.Reset(ctx); err != nil {
			logger.Warn("presence reset failed", zap.Error(err))
		}
	}

	checks := map[string]func(context.Context) error{
		"db":       database.PingContext,
		"accounts": pool.Ping,
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}
	httpChecks := map[string]handlers.Check{}
	grpcChecks := map[string]health.Check{}
	for name, check := range checks {
		httpChecks[name] = check
		grpcChecks[name] = check
	}

	gateway := ws.NewGateway(hub, gate, messages, friends, presence, ws.Options{
		HandshakeTimeout: cfg.WSHandshakeTimeout,
		WriteTimeout:     cfg.WSWriteTimeout,
		FrameRate:        cfg.WSFrameRate,
		FrameBurst:       cfg.WSFrameBurst,
		PongWait:         cfg.WSPongWait,
		MaxFrameBytes:    cfg.WSMaxFrameBytes,
	}, logger)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.RequestID(),
		otelgin.Middleware(cfg.ServiceName),
		middleware.RequestLogger(logger),
		middleware.Recovery(logger),
		observability.HTTPMetricsMiddleware(),
	)
	router.GET("/metrics", observability.MetricsHandler())
	router.GET("/healthz", handlers.NewHealthHandler(httpChecks, logger).Healthz)
	router.GET("/ws", gateway.Handle)

	authHandler := handlers.NewAuthHandler(sessions, audit, logger)
	authHandler.RegisterPublic(router.Group("/api"))

	api := router.Group("/api", middleware.AuthMiddleware(gate))
	authHandler.Register(api)
	handlers.NewMessageHandler(messages, logger).Register(api)
	handlers.NewFriendHandler(friends, logger).Register(api)
	handlers.NewUserHandler(presence, logger).Register(api)
	handlers.RegisterDebugRoutes(api, audit, cfg.DebugRoutes)

	healthSrv := health.NewServer(cfg.ServiceName, grpcChecks, logger)
	go healthSrv.Watch(ctx, 15*time.Second)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 2)
	go func() {
		logger.Info("grpc health listening", zap.String("addr", cfg.GRPCAddr))
		errCh <- healthSrv.Serve(lis)
	}()
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	healthSrv.Stop(5 * time.Second)
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	dispatcher.Stop()
	return serveErr
}
