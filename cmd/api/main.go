package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shinyyama/musclecat-chat/internal/ai"
	"github.com/shinyyama/musclecat-chat/internal/blob"
	"github.com/shinyyama/musclecat-chat/internal/config"
	"github.com/shinyyama/musclecat-chat/internal/db"
	"github.com/shinyyama/musclecat-chat/internal/events"
	"github.com/shinyyama/musclecat-chat/internal/observability"
	"github.com/shinyyama/musclecat-chat/internal/platform"
	"github.com/shinyyama/musclecat-chat/internal/realtime"
	"github.com/shinyyama/musclecat-chat/internal/repository"
	"github.com/shinyyama/musclecat-chat/internal/server"
)

var (
	gitSHA    = "dev"
	buildTime = ""
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clients, err := platform.NewClients(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = clients.Close() }()

	notifier := realtime.NewMemoryNotifier()
	typing := repository.NewMemoryTypingRepository(nil)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() { _ = rdb.Close() }()
		notifier = realtime.NewRedisNotifier(rdb, logger.Named("notifier"))
		typing = repository.NewRedisTypingRepository(rdb)
	}
	defer func() { _ = notifier.Close() }()

	var stores server.Stores
	switch cfg.Backend {
	case config.BackendFirestore:
		stores = server.NewFirestoreStores(clients.Firestore, typing, logger.Named("store"))
	default:
		stores = server.NewMySQLStores(nil, notifier, typing, logger.Named("store"))
	}

	dispatcher := events.NewInMemoryDispatcher(logger.Named("events"))
	if cfg.AMQPURL != "" {
		fwd, err := connectForwarder(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() { _ = fwd.Close() }()
		dispatcher.SubscribeAll(fwd.Handle)
	}

	deps := server.Deps{
		Config:    cfg,
		Logger:    logger,
		Metrics:   observability.NewMetrics(),
		Stores:    stores,
		Verifier:  clients.Auth,
		Sender:    clients.Messaging,
		Events:    dispatcher,
		SHA:       gitSHA,
		BuildTime: buildTime,
	}
	if clients.Storage != nil {
		deps.Blobs = blob.NewGCSStore(clients.Storage, cfg.StorageBucket)
	}
	if cfg.GeminiAPIKey != "" {
		responder, err := ai.NewGeminiResponder(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.BotName, logger.Named("gemini"))
		if err != nil {
			return err
		}
		deps.Responder = responder
	} else {
		logger.Warn("GEMINI_API_KEY not set; bot replies disabled")
	}
	srv := server.New(deps)

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", addr), zap.String("backend", cfg.Backend))
		errCh <- srv.Start(addr)
	}()
	go srv.RunBackground(ctx)

	if cfg.Backend == config.BackendMySQL {
		go func() {
			conn, err := db.Connect(cfg)
			if err != nil {
				logger.Error("db connect error", zap.Error(err))
				return
			}
			if err := db.Migrate(conn); err != nil {
				logger.Error("auto migrate error", zap.Error(err))
			}
			srv.SetDB(conn)
			logger.Info("database ready")
		}()
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func connectForwarder(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*events.AMQPForwarder, error) {
	conn, err := events.DialWithRetry(ctx, events.ConnectionOptions{
		URL:           cfg.AMQPURL,
		RetryAttempts: 5,
		Delay:         2 * time.Second,
		Logger:        logger.Named("amqp"),
	})
	if err != nil {
		return nil, err
	}
	fwd, err := events.NewAMQPForwarder(conn, cfg.AMQPExchange, "musclecat-chat", logger.Named("amqp"))
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return fwd, nil
}
