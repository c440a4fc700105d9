package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"provchain/internal/config"
	"provchain/internal/domain"
	"provchain/internal/metrics"
	custommiddleware "provchain/internal/middleware"
	"provchain/internal/notify"
	"provchain/internal/repository"
	"provchain/internal/service"
	"provchain/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	*http.Server
	config *config.Config
	logger *zap.Logger
	db     *sql.DB
	redis  *redis.Client
	access service.AccessService
}

func NewServer(cfg *config.Config, logger *zap.Logger, db *sql.DB, redisClient *redis.Client, sink notify.Sink) *Server {
	// Create router
	router := chi.NewRouter()

	// Add basic middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Compress(5))
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(custommiddleware.CORSMiddleware(nil, cfg.Server.Env != "production"))
	router.Use(custommiddleware.RateLimitMiddleware(redisClient, custommiddleware.RateLimitConfig{
		RequestsPerWindow: 100,
		Window:            time.Minute,
		KeyPrefix:         "provchain_rate_limit",
	}, logger))

	// Health check endpoint
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Metrics endpoint
	registerer := prometheus.NewRegistry()
	router.Handle("/metrics", promhttp.HandlerFor(registerer, promhttp.HandlerOpts{}))

	// Initialize repositories
	productRepo := repository.NewProductRepository(db)
	roleRepo := repository.NewRoleRepository(db)

	// Initialize services
	accessService := service.NewAccessService(roleRepo)
	registryService := service.NewRegistryService(productRepo, accessService, sink, metrics.New(registerer), logger)

	// Initialize handlers
	productHandler := transport.NewProductHandler(registryService, logger)
	roleHandler := transport.NewRoleHandler(accessService, logger)

	// Create auth middleware
	authMiddleware := custommiddleware.AuthMiddleware(cfg.JWT.Secret, logger)

	// Register routes
	productHandler.RegisterRoutes(router, authMiddleware)
	roleHandler.RegisterRoutes(router, authMiddleware)

	server := &Server{
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
			Handler:      router,
			IdleTimeout:  time.Minute,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		config: cfg,
		logger: logger,
		db:     db,
		redis:  redisClient,
		access: accessService,
	}

	return server
}

// Bootstrap initializes the administrator identity. It runs once per process
// start and is idempotent against an already-initialized registry.
func (s *Server) Bootstrap(ctx context.Context) error {
	return s.access.Initialize(ctx, domain.Identity(s.config.Registry.AdminIdentity))
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("Failed to close redis connection", zap.Error(err))
		}
	}

	s.logger.Sync()
	return nil
}
