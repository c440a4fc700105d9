package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"provchain/internal/config"
	"provchain/internal/database"
	"provchain/internal/logger"
	"provchain/internal/notify"
	"provchain/internal/server"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *server.Server, logger *zap.Logger, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	logger.Info("Shutting down gracefully, press Ctrl+C again to force")
	stop() // Allow Ctrl+C to force shutdown

	// The context is used to inform the server it has 30 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// Close server resources
	if err := apiServer.Close(); err != nil {
		logger.Error("Error closing server resources", zap.Error(err))
	}

	logger.Info("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

// buildSink selects the notification sink from configuration.
func buildSink(cfg *config.Config, redisClient *redis.Client, log *zap.Logger) (notify.Sink, func(), error) {
	switch cfg.Notify.Sink {
	case "kafka":
		sink, err := notify.NewKafkaSink(cfg.Notify.KafkaBrokers, cfg.Notify.KafkaTopic)
		if err != nil {
			return nil, nil, err
		}
		return sink, sink.Close, nil
	case "redis":
		return notify.NewRedisSink(redisClient, cfg.Notify.RedisChannel), func() {}, nil
	default:
		return notify.NewLogSink(log), func() {}, nil
	}
}

func main() {
	// Load environment and configuration
	_ = godotenv.Load()
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.Server.Env)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	log.Info("Starting provenance registry API",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
	)

	// Initialize database
	dbService, err := database.New(cfg.Database)
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err))
	}
	db := dbService.DB()

	// Check database health
	health := dbService.Health()
	log.Info("Database health check", zap.Any("health", health))

	// Run migrations
	if err := dbService.Migrate("migrations", log); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Initialize redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Select the notification sink
	sink, closeSink, err := buildSink(cfg, redisClient, log)
	if err != nil {
		log.Fatal("Failed to initialize notification sink", zap.Error(err))
	}
	defer closeSink()
	log.Info("Notification sink ready", zap.String("sink", cfg.Notify.Sink))

	// Create server
	srv := server.NewServer(cfg, log, db, redisClient, sink)

	// Seed the administrator identity
	if err := srv.Bootstrap(context.Background()); err != nil {
		log.Fatal("Failed to bootstrap administrator", zap.Error(err))
	}
	log.Info("Administrator initialized", zap.String("identity", cfg.Registry.AdminIdentity))

	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(srv, log, done)

	log.Info("Server listening", zap.String("addr", srv.Addr))

	err = srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		log.Fatal("HTTP server error", zap.Error(err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Info("Graceful shutdown complete")
}
