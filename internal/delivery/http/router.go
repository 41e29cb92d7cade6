package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/FilipeAphrody/sentinel-accounts/internal/usecase"
)

// RouterConfig carries everything the HTTP boundary needs.
type RouterConfig struct {
	Store        *usecase.AccountStore
	Login        *usecase.LoginHandshake
	Audit        *usecase.AuditLog
	JWTSecret    string
	HandshakeTTL time.Duration

	// LoginPerMinute caps login and verify-2fa requests per client IP.
	// Zero disables the gate.
	LoginPerMinute int
	Version        string
	Logger         *slog.Logger
}

// NewRouter builds the echo instance with global middleware and all routes.
func NewRouter(cfg RouterConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.IPExtractor = echo.ExtractIPDirect()
	e.HTTPErrorHandler = httpErrorHandler(cfg.Logger)

	e.Use(RequestLogger(cfg.Logger))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.Secure())
	e.Use(middleware.BodyLimit("64K"))

	var gate echo.MiddlewareFunc
	if cfg.LoginPerMinute > 0 {
		gate = RateLimitMiddleware(cfg.LoginPerMinute)
	}
	auth := JWTMiddleware(cfg.JWTSecret, cfg.Login, cfg.Logger)
	fresh := FreshPasswordMiddleware(cfg.Store)
	admin := RoleMiddleware("admin")

	v1 := e.Group("/v1")
	NewAuthHandler(v1, cfg.Login, cfg.HandshakeTTL, gate, cfg.Logger)
	NewAccountHandler(v1, cfg.Store, cfg.Login, auth, fresh, cfg.Logger)
	NewMFAHandler(v1, cfg.Store, cfg.Logger, auth, fresh)
	NewAdminHandler(v1, cfg.Store, cfg.Audit, cfg.Logger, auth, fresh, admin)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{
			"status":  "healthy",
			"version": cfg.Version,
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	return e
}
