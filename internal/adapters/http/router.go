package http

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/quotevault/internal/adapters/http/handlers"
	"github.com/jsamuelsen/quotevault/internal/adapters/http/middleware"
	"github.com/jsamuelsen/quotevault/internal/app"
	"github.com/jsamuelsen/quotevault/internal/platform/config"
	"github.com/jsamuelsen/quotevault/internal/platform/telemetry"
)

// DefaultRequestTimeout is the default deadline for API requests.
const DefaultRequestTimeout = 30 * time.Second

// RouterConfig contains configuration for setting up the router.
type RouterConfig struct {
	Logger     *slog.Logger
	AuthConfig *config.AuthConfig
	AppConfig  *config.AppConfig

	// HealthHandler serves /-/ endpoints. Nil skips them.
	HealthHandler *handlers.HealthHandler

	// Services backs the /api/v1 routes.
	Services *app.Services

	// Timeout is the per-request deadline on /api/v1. Zero disables it.
	Timeout time.Duration
}

// SetupRouter configures all routes and middleware on the Gin engine.
// Middleware is applied in the following order (first to last):
//  1. Recovery - catch panics first
//  2. Request ID and correlation ID
//  3. OpenTelemetry - tracing, then HTTP metrics and the trace header
//  4. Logging - request logging (skips /-/ endpoints)
//  5. Caller identity - resolves the domain caller from gateway headers
//  6. Deadline - /api/v1 only
func SetupRouter(engine *gin.Engine, cfg RouterConfig) {
	engine.Use(
		middleware.Recovery(cfg.Logger),
		middleware.RequestID(),
		middleware.CorrelationID(),
		telemetry.TracingMiddleware(cfg.AppConfig.Name),
		telemetry.Middleware(),
		middleware.Logging(cfg.Logger),
		middleware.CallerIdentity(cfg.AuthConfig),
	)

	if cfg.HealthHandler != nil {
		cfg.HealthHandler.RegisterHealthRoutesOnEngine(engine)
	}

	apiV1 := engine.Group("/api/v1")
	if cfg.Timeout > 0 {
		apiV1.Use(middleware.Deadline(cfg.Timeout))
	}

	if cfg.Services != nil {
		handlers.NewQuoteHandler(cfg.Services.Quotes).RegisterRoutes(apiV1)
		handlers.NewTagHandler(cfg.Services.Tags).RegisterRoutes(apiV1)
	}
}

// NewDefaultRouterConfig creates a RouterConfig from loaded configuration.
func NewDefaultRouterConfig(
	logger *slog.Logger,
	cfg *config.Config,
	healthHandler *handlers.HealthHandler,
	services *app.Services,
) RouterConfig {
	timeout := cfg.Server.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return RouterConfig{
		Logger:        logger,
		AuthConfig:    &cfg.Auth,
		AppConfig:     &cfg.App,
		HealthHandler: healthHandler,
		Services:      services,
		Timeout:       timeout,
	}
}
