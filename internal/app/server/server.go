package server

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/sifan077/quotalink/internal/app/service"
	inthttp "github.com/sifan077/quotalink/internal/http/handler"
	"github.com/sifan077/quotalink/internal/http/middleware"
	"github.com/sifan077/quotalink/internal/http/util"
	"go.uber.org/zap"
)

// Dependencies bundles everything the HTTP server needs. Postgres, Redis and
// NATS are optional and only feed the readiness probe.
type Dependencies struct {
	Logger      *zap.Logger
	Postgres    *pgxpool.Pool
	Redis       *redis.Client
	NATS        *nats.Conn
	Shortener   service.ShorteningService
	Resolver    service.ResolutionService
	Mappings    service.MappingService
	Verifier    *util.TokenVerifier
	BaseURL     string
	CORSOrigins []string
}

// Server wraps the Fiber application and its dependencies.
type Server struct {
	app  *fiber.App
	deps Dependencies
}

// New creates a new HTTP server instance with all routes registered.
func New(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		AppName:               "quotalink",
		DisableStartupMessage: true,
	})

	s := &Server{
		app:  app,
		deps: deps,
	}

	s.registerMiddleware()
	s.registerRoutes()
	return s
}

// App exposes the underlying Fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the Fiber server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the Fiber server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerMiddleware() {
	s.app.Use(middleware.Recovery(s.deps.Logger))
	s.app.Use(middleware.RequestID())
	s.app.Use(middleware.Logger(s.deps.Logger))
	s.app.Use(middleware.CORS(s.deps.CORSOrigins...))
}

func (s *Server) registerRoutes() {
	apiHandler := inthttp.NewAPIHandler(inthttp.APIDeps{
		Logger:    s.deps.Logger,
		Shortener: s.deps.Shortener,
		Mappings:  s.deps.Mappings,
		BaseURL:   s.deps.BaseURL,
	})
	apiHandler.Register(s.app, middleware.Auth(s.deps.Verifier))

	redirectHandler := inthttp.NewRedirectHandler(inthttp.RedirectDeps{
		Logger:   s.deps.Logger,
		Resolver: s.deps.Resolver,
		Checks:   s.readinessChecks(),
	})
	redirectHandler.Register(s.app)
}

func (s *Server) readinessChecks() map[string]inthttp.ReadinessCheck {
	checks := make(map[string]inthttp.ReadinessCheck)
	if pool := s.deps.Postgres; pool != nil {
		checks["postgres"] = pool.Ping
	}
	if rdb := s.deps.Redis; rdb != nil {
		checks["redis"] = func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}
	}
	if nc := s.deps.NATS; nc != nil {
		checks["nats"] = func(ctx context.Context) error {
			if !nc.IsConnected() {
				return errors.New("nats: not connected")
			}
			return nc.FlushWithContext(ctx)
		}
	}
	return checks
}
