package http

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/FilipeAphrody/sentinel-accounts/internal/usecase"
)

// AccountHandler serves the signed-in account's own routes.
type AccountHandler struct {
	store  *usecase.AccountStore
	login  *usecase.LoginHandshake
	logger *slog.Logger
}

// NewAccountHandler registers the self-service routes. auth must
// authenticate the caller; fresh additionally rejects expired passwords
// and is left off the routes that must stay reachable in that state.
func NewAccountHandler(g *echo.Group, store *usecase.AccountStore, login *usecase.LoginHandshake, auth, fresh echo.MiddlewareFunc, logger *slog.Logger) {
	handler := &AccountHandler{store: store, login: login, logger: logger}

	g.POST("/change-password", handler.ChangePassword, auth)
	g.POST("/logout", handler.Logout, auth)
	g.GET("/me", handler.Me, auth, fresh)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *AccountHandler) ChangePassword(c echo.Context) error {
	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	err := h.store.ChangePassword(c.Request().Context(), currentAccount(c).ID, req.CurrentPassword, req.NewPassword, c.RealIP())
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": statusSuccess, "message": "password changed"})
}

func (h *AccountHandler) Logout(c echo.Context) error {
	if err := h.login.Logout(c.Request().Context(), currentSession(c), c.RealIP()); err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": statusSuccess, "message": "logged out"})
}

// Me returns the caller's profile.
func (h *AccountHandler) Me(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": statusSuccess, "account": currentAccount(c)})
}
