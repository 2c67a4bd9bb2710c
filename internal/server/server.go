package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/openledger/apiserver/config"
	"github.com/openledger/apiserver/internal/auth"
	"github.com/openledger/apiserver/internal/cache"
	"github.com/openledger/apiserver/internal/db"
	"github.com/openledger/apiserver/internal/handlers"
	"github.com/openledger/apiserver/internal/logging"
	"github.com/openledger/apiserver/internal/metrics"
	"github.com/openledger/apiserver/internal/middleware"
	"github.com/openledger/apiserver/internal/mq"
	"github.com/openledger/apiserver/internal/services"
	"github.com/openledger/apiserver/internal/store"
)

const (
	requestTimeout  = 60 * time.Second
	limiterIdle     = 10 * time.Minute
	limiterInterval = time.Minute
)

// Server wraps the HTTP server, router and the backing connections.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	queue      *mq.MQ
	redis      *cache.Redis
	logger     logging.Logger
	cancel     context.CancelFunc
}

// New connects to the database and optional cache and broker, then builds
// the router with every ledger route.
func New(ctx context.Context, cfg config.Config, logger logging.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(db.BuildPostgresURL(cfg), db.Up); err != nil {
			return nil, err
		}
		logger.Info(ctx, "database migrated")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s := &Server{db: dbConn, logger: logger}

	listCache, err := s.openCache(ctx, cfg.Cache)
	if err != nil {
		_ = s.close()
		return nil, err
	}

	backend, err := openBroker(cfg.RabbitMQ)
	if err != nil {
		_ = s.close()
		return nil, err
	}
	s.queue = mq.New(backend)

	hasher := auth.NewHasher(auth.DefaultParams)
	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	accountRepo := store.NewAccountRepository(dbConn)
	accountService := services.NewAccountService(accountRepo, hasher, listCache, s.queue, logger)
	authService := services.NewAuthService(accountRepo, hasher, tokens, logger)
	transferService := services.NewTransferService(dbConn, services.TransferOptions{
		Cooldown: cfg.Transfer.Cooldown,
	}, accountService, s.queue, logger)

	bgCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	signinLimiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, nil, logger)
	transferLimiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, handlers.AccountKey, logger)
	signinLimiter.StartCleanup(bgCtx, limiterInterval, limiterIdle)
	transferLimiter.StartCleanup(bgCtx, limiterInterval, limiterIdle)

	router := chi.NewRouter()
	router.Use(
		chimw.RequestID,
		chimw.RealIP,
		middleware.AccessLog(logger),
		chimw.Recoverer,
		metrics.InstrumentHandler,
		chimw.Timeout(requestTimeout),
	)
	router.Get("/healthz", handlers.Healthz(dbConn))
	router.Method(http.MethodGet, "/metrics", metrics.Handler())
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, accountService, authService, signinLimiter.Handler, logger)
	})
	router.Route("/transfer", func(r chi.Router) {
		handlers.TransferRouter(r, transferService, authService, transferLimiter.Handler, logger)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	s.router = router
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// openCache builds the in-process tier and, when configured, puts Redis
// behind it.
func (s *Server) openCache(ctx context.Context, cfg config.CacheConfig) (cache.Cache, error) {
	memory := cache.NewMemory(cfg.Size, cfg.TTL)
	if cfg.RedisURL == "" {
		return memory, nil
	}
	r, err := cache.NewRedis(ctx, cfg.RedisURL, cfg.TTL)
	if err != nil {
		return nil, err
	}
	s.redis = r
	return cache.NewTiered(memory, r), nil
}

func openBroker(cfg config.RabbitMQConfig) (mq.Backend, error) {
	if cfg.URL == "" {
		return mq.Nop{}, nil
	}
	return mq.NewRabbitMQClient(cfg)
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones until ctx
// expires and then closes the backing connections.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if err := s.close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Server) close() error {
	if s.cancel != nil {
		s.cancel()
	}
	var errs []error
	if s.queue != nil {
		if err := s.queue.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close broker: %w", err))
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}
