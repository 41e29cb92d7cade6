package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/FilipeAphrody/sentinel-accounts/internal/domain"
	"github.com/FilipeAphrody/sentinel-accounts/internal/usecase"
)

// HandshakeCookie carries the opaque handshake id between the two login phases.
const HandshakeCookie = "sentinel_handshake"

// AuthHandler represents the HTTP delivery layer for the two-phase login.
type AuthHandler struct {
	login        *usecase.LoginHandshake
	handshakeTTL time.Duration
	logger       *slog.Logger
}

// NewAuthHandler registers the login routes on the provided echo group.
// gate, when non-nil, wraps the credential-checking routes.
func NewAuthHandler(g *echo.Group, login *usecase.LoginHandshake, handshakeTTL time.Duration, gate echo.MiddlewareFunc, logger *slog.Logger) {
	handler := &AuthHandler{login: login, handshakeTTL: handshakeTTL, logger: logger}

	var mw []echo.MiddlewareFunc
	if gate != nil {
		mw = append(mw, gate)
	}
	g.POST("/login", handler.Login, mw...)
	g.POST("/verify-2fa", handler.VerifyTwoFactor, mw...)
	g.POST("/login/abandon", handler.Abandon)
}

type loginRequest struct {
	Handle   string `json:"handle"`
	Password string `json:"password"`
}

type verifyRequest struct {
	Code           string `json:"code"`
	HandshakeToken string `json:"handshake_token"`
}

type sessionResponse struct {
	Status  string               `json:"status"`
	Message string               `json:"message"`
	Session *domain.AuthResponse `json:"session"`
}

type pendingResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Token   string `json:"token"`
}

// Login handles phase one: the password check.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Handle == "" || req.Password == "" {
		return badRequest(c, "handle and password are required")
	}

	result, err := h.login.Begin(c.Request().Context(), req.Handle, req.Password, c.RealIP())
	if err != nil {
		return respondError(c, h.logger, err)
	}

	if result.Status == usecase.LoginPending {
		c.SetCookie(h.handshakeCookie(c, result.HandshakeID, int(h.handshakeTTL.Seconds())))
		return c.JSON(http.StatusAccepted, pendingResponse{
			Status:  statusPending,
			Message: "two-factor code required",
			Token:   result.HandshakeToken,
		})
	}

	return c.JSON(http.StatusOK, sessionResponse{
		Status:  statusSuccess,
		Message: "login successful",
		Session: result.Auth,
	})
}

// VerifyTwoFactor handles phase two. The account is whatever the server
// stored for this handshake; nothing in the request names it.
func (h *AuthHandler) VerifyTwoFactor(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	var handshakeID string
	if cookie, err := c.Cookie(HandshakeCookie); err == nil {
		handshakeID = cookie.Value
	}

	result, err := h.login.Complete(c.Request().Context(), handshakeID, req.HandshakeToken, req.Code, c.RealIP())
	if err != nil {
		return respondError(c, h.logger, err)
	}

	c.SetCookie(h.handshakeCookie(c, "", -1))
	return c.JSON(http.StatusOK, sessionResponse{
		Status:  statusSuccess,
		Message: "login successful",
		Session: result.Auth,
	})
}

// Abandon drops a pending handshake, e.g. when the user backs out of the
// code prompt.
func (h *AuthHandler) Abandon(c echo.Context) error {
	if cookie, err := c.Cookie(HandshakeCookie); err == nil {
		if err := h.login.Abandon(c.Request().Context(), cookie.Value); err != nil {
			return respondError(c, h.logger, err)
		}
	}
	c.SetCookie(h.handshakeCookie(c, "", -1))
	return c.JSON(http.StatusOK, echo.Map{"status": statusSuccess, "message": "login abandoned"})
}

func (h *AuthHandler) handshakeCookie(c echo.Context, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     HandshakeCookie,
		Value:    value,
		Path:     "/v1",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Scheme() == "https",
		SameSite: http.SameSiteStrictMode,
	}
}
