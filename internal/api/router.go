package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/weewoocad/accounts/internal/api/handler"
	"github.com/weewoocad/accounts/internal/api/middleware"
	"github.com/weewoocad/accounts/internal/core/ports"
	"github.com/weewoocad/accounts/internal/infrastructure/http/handlers"
)

// RouterDeps collects everything NewRouter wires into the Echo instance.
type RouterDeps struct {
	Accounts        ports.AccountService
	Readiness       map[string]handlers.Pinger
	ConfirmRedirect string
	// StaticDir is served at / after the API routes. Empty disables it.
	StaticDir string
	Log       zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps RouterDeps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)
	e.Validator = handler.NewValidator()

	// HTTP metrics go to a private registry so building several routers in
	// one process never registers the same collector twice.
	reg := prometheus.NewRegistry()

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(deps.Log))
	e.Use(middleware.CORS())
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:  "accounts",
		Subsystem:  "http",
		Registerer: reg,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
	}))

	// --- Dependencies ---
	accountHandler := handler.NewAccountHandler(deps.Accounts, deps.ConfirmRedirect)

	// --- Account routes ---
	accounts := e.Group("", middleware.NoStore())
	accounts.POST("/register", accountHandler.Register)
	accounts.POST("/login", accountHandler.Login)
	accounts.GET("/confirm", accountHandler.Confirm)
	accounts.POST("/resend", accountHandler.Resend)

	// --- Health probes ---
	healthHandler := handlers.NewHealthHandler()
	readinessHandler := handlers.NewReadinessHandler(deps.Readiness)

	e.GET("/health", healthHandler.Liveness)           // liveness  – is the process alive?
	e.GET("/health/ready", readinessHandler.Readiness) // readiness – are dependencies up?

	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{
		Gatherer: prometheus.Gatherers{prometheus.DefaultGatherer, reg},
	}))

	// --- Static site (after API routes) ---
	if deps.StaticDir != "" {
		e.Static("/", deps.StaticDir)
	}

	return e
}

func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		// Query strings carry verification tokens; only the path is logged.
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil {
				ev = log.Warn().Err(v.Error)
			}
			ev.
				Str("request_id", v.RequestID).
				Str("method", v.Method).
				Str("path", v.URIPath).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	})
}
