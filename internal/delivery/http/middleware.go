package http

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/FilipeAphrody/sentinel-accounts/internal/domain"
	"github.com/FilipeAphrody/sentinel-accounts/internal/usecase"
	"github.com/FilipeAphrody/sentinel-accounts/pkg/security"
)

const (
	ctxSession = "session"
	ctxAccount = "account"
)

// JWTMiddleware validates the bearer token and resolves the server-side
// session it names. A valid signature alone is not enough: logged-out or
// expired sessions are rejected.
func JWTMiddleware(secret string, login *usecase.LoginHandshake, logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return c.JSON(http.StatusUnauthorized, errorResponse{Status: statusError, Message: "missing authorization header"})
			}

			// Expected format: "Bearer <token>"
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				return c.JSON(http.StatusUnauthorized, errorResponse{Status: statusError, Message: "invalid authorization format"})
			}

			claims, err := security.ValidateToken(parts[1], secret)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, errorResponse{Status: statusError, Message: "invalid or expired token"})
			}

			session, account, err := login.ResolveSession(c.Request().Context(), claims.ID, claims.AccountID)
			if err != nil {
				return respondError(c, logger, err)
			}

			c.Set(ctxSession, session)
			c.Set(ctxAccount, account)
			return next(c)
		}
	}
}

// RoleMiddleware ensures only accounts with the given role (or admins) get through.
func RoleMiddleware(requiredRole string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			account := currentAccount(c)
			if account == nil || (account.Role != requiredRole && account.Role != "admin") {
				return c.JSON(http.StatusForbidden, errorResponse{Status: statusError, Message: domain.ErrForbidden.Error()})
			}
			return next(c)
		}
	}
}

// FreshPasswordMiddleware blocks accounts whose password has expired. The
// change-password and logout routes are registered without it.
func FreshPasswordMiddleware(store *usecase.AccountStore) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if account := currentAccount(c); account != nil && store.PasswordExpired(account) {
				return c.JSON(http.StatusPreconditionRequired, errorResponse{
					Status:  statusChangeRequired,
					Message: domain.ErrPasswordExpired.Error(),
				})
			}
			return next(c)
		}
	}
}

// RateLimitMiddleware admits perMinute requests per client IP, with bursts
// of the same size.
func RateLimitMiddleware(perMinute int) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Every(time.Minute / time.Duration(perMinute)),
		Burst:     perMinute,
		ExpiresIn: 3 * time.Minute,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return c.JSON(http.StatusTooManyRequests, errorResponse{Status: statusError, Message: "too many requests, try again later"})
		},
		ErrorHandler: func(c echo.Context, _ error) error {
			return c.JSON(http.StatusForbidden, errorResponse{Status: statusError, Message: "unable to identify client"})
		},
	})
}

// RequestLogger writes one structured line per request.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogMethod:   true,
		LogURI:      true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote_ip", v.RemoteIP),
			}
			level := slog.LevelInfo
			if v.Error != nil {
				level = slog.LevelError
				attrs = append(attrs, slog.String("err", v.Error.Error()))
			}
			logger.LogAttrs(c.Request().Context(), level, "request", attrs...)
			return nil
		},
	})
}

func currentAccount(c echo.Context) *domain.Account {
	a, _ := c.Get(ctxAccount).(*domain.Account)
	return a
}

func currentSession(c echo.Context) *domain.Session {
	s, _ := c.Get(ctxSession).(*domain.Session)
	return s
}
