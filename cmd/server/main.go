package main

import (
	"chat-relay/auth"
	"chat-relay/cache"
	"chat-relay/envelope"
	"chat-relay/event"
	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/receipts"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/server"
	"chat-relay/services"
	"chat-relay/signaling"
	"chat-relay/storage"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Exit codes to provide meaningful status to the service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run owns every resource so deferred cleanups execute before the exit code
// is returned.
func run() (int, error) {
	// 1. Configuration & Logger
	config, err := internal.LoadConfig(".env")
	if err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}
	algorithm, err := auth.ParseAlgorithm(config.SignatureAlgorithm)
	if err != nil {
		return exitConfig, err
	}
	directory, err := auth.ParseStaticDirectory(config.ClientSecrets)
	if err != nil {
		return exitConfig, err
	}
	codec, err := envelope.NewCodec(config.EncryptionKey)
	if err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(config.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Databases
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	if logger.Enabled(ctx, slog.LevelDebug) {
		endpoint := "/inspect"
		logger.Info("Debug Badger inspector available", "url", fmt.Sprintf("http://localhost:%d%s", config.DebugPort, endpoint))
		database.StartDebugServer(db, config.DebugPort, endpoint, internal.InspectMapper)
	}

	sqlDB, err := receipts.OpenSQLite(config.SQLitePath)
	if err != nil {
		return exitRuntime, fmt.Errorf("sqlite opening failed: %w", err)
	}
	defer func() { _ = sqlDB.Close() }()
	receiptStore, err := receipts.NewSQLStore(ctx, sqlDB)
	if err != nil {
		return exitRuntime, fmt.Errorf("receipt store migration failed: %w", err)
	}

	// 3. Cache, nonce ledger & authentication
	nonceStore, secretStore, err := buildCacheStores(config, db, logger)
	if err != nil {
		return exitConfig, err
	}
	authn := auth.NewAuthenticator(logger,
		auth.NewNonceLedger(cache.New(nonceStore, logger), config.NonceTTL),
		auth.NewSecretResolver(logger, cache.New(secretStore, logger), directory, config.SecretTTL),
		auth.AuthenticatorConfig{Window: config.AuthWindow, Algorithm: algorithm})
	tokens := auth.NewJWTProvider(config.JWTSecret, config.JWTIssuer)

	pipeline, err := event.NewPipeline(logger, codec)
	if err != nil {
		return exitRuntime, err
	}

	// 4. Moderation
	if err := moderation.SeedBlacklist(db, config.Words()); err != nil {
		return exitRuntime, fmt.Errorf("blacklist seeding failed: %w", err)
	}
	words, err := moderation.LoadBlacklist(db)
	if err != nil {
		return exitRuntime, fmt.Errorf("blacklist loading failed: %w", err)
	}
	var moderator *moderation.Moderator
	if len(words) > 0 {
		if moderator, err = moderation.NewModerator(words, charReplacement, logger); err != nil {
			return exitRuntime, err
		}
	}

	// 5. Domain wiring
	rooms := runtime.NewRegistry(logger)
	media := signaling.NewRegistry(logger, rooms, signaling.Config{NegotiationTimeout: config.NegotiationTimeout})
	defer media.Close()

	queue := storage.NewJobQueue(db, logger, storage.QueueConfig{
		MaxAttempts: config.MaxAttempts,
		BaseBackoff: config.BaseBackoff,
	})
	// Jobs claimed by a previous process that never acked them
	recovered, err := queue.Recover(ctx)
	if err != nil {
		return exitRuntime, fmt.Errorf("queue recovery failed: %w", err)
	}
	if recovered > 0 {
		logger.Info("Requeued interrupted jobs", "count", recovered)
	}

	messages := storage.NewMessageStore(db, codec, logger, config.LimitMessages)
	conversations := storage.NewConversationStore(db, logger)
	disk, err := storage.NewDiskMediaStore(logger, storage.MediaConfig{
		Root:     config.MediaRoot,
		BaseURL:  config.MediaBaseURL,
		MaxBytes: config.MediaMaxBytes,
	})
	if err != nil {
		return exitRuntime, fmt.Errorf("media store failed: %w", err)
	}
	chat := services.NewChatService(logger, messages, conversations, rooms, queue, moderator)

	// 6. Background workers
	healthServer := health.NewServer()
	monitor := workers.NewHealthMonitoringWorker(logger, healthServer, "", config.HealthInterval,
		workers.Probe{Name: "badger", Check: func(ctx context.Context) error {
			_, err := queue.Pending(ctx)
			return err
		}},
		workers.Probe{Name: "sqlite", Check: sqlDB.PingContext},
	).WithStats(func(ctx context.Context) []any {
		pending, _ := queue.Pending(ctx)
		dead, _ := queue.Dead(ctx)
		return []any{"media_rooms", media.ActiveRooms(), "pending_jobs", pending, "dead_jobs", len(dead)}
	})

	sup := workers.NewSupervisor(logger)
	sup.Add(workers.NewPool(config.NumberOfWorkers, queue, receipts.NewProcessor(logger, receiptStore), config.WorkerIdle, logger)...)
	sup.Add(signaling.NewSweeper(logger, media, config.SweepInterval), monitor)
	supervisorDone := make(chan struct{})
	go func() {
		defer close(supervisorDone)
		sup.Run(ctx)
	}()

	// 7. Servers
	errChan := make(chan error, 2)

	hub := server.NewHub(logger, pipeline, tokens, rooms, chat, media, server.HubConfig{
		SendBuffer:     config.SendBuffer,
		RateLimit:      config.RateLimit,
		RateBurst:      config.RateBurst,
		HandlerTimeout: config.HandlerTimeout,
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", config.HTTPPort),
		Handler:           server.NewRouter(logger, authn, hub, chat, disk),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	address := fmt.Sprintf("0.0.0.0:%d", config.GRPCPort)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	grpcServer := server.NewGRPCServer(logger, authn, healthServer, healthpb.Health_Watch_FullMethodName)
	go func() {
		logger.Info("Starting gRPC server", "address", address)
		for serviceName := range grpcServer.GetServiceInfo() {
			logger.Debug("gRPC exposed service", "name", serviceName)
		}
		if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	// 8. Wait for stop or error
	code := exitOK
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err = <-errChan:
		logger.Error("Server failed", "error", err)
		code = exitRuntime
	}

	// 9. Graceful shutdown
	logger.Info("Shutting down gracefully...")
	healthServer.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Warn("HTTP shutdown incomplete", "error", shutdownErr)
	}
	grpcServer.GracefulStop()
	sup.Stop()
	<-supervisorDone
	logger.Info("Program stopped cleanly")

	return code, err
}

// buildCacheStores returns the nonce ledger store and the secret cache store.
// The ledger never sits on the evicting LRU.
func buildCacheStores(config internal.Config, db *badger.DB, logger *slog.Logger) (cache.Store, cache.Store, error) {
	backend, err := config.Backend()
	if err != nil {
		return nil, nil, err
	}
	switch backend {
	case internal.CacheBadger:
		store := cache.NewBadgerStore(db, logger)
		return store, store, nil
	case internal.CacheRedis:
		client := cache.NewRedisClient(config.RedisAddr, config.RedisPassword, config.RedisDB)
		store := cache.NewRedisStore(client, "chat-relay:")
		return store, store, nil
	default:
		secrets, err := cache.NewMemoryStore(config.CacheSize)
		if err != nil {
			return nil, nil, err
		}
		return cache.NewExpiryStore(config.CacheSize), secrets, nil
	}
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG)
	} else {
		options = options.WithLoggingLevel(badger.WARNING)
	}
	return options
}
