package http

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/FilipeAphrody/sentinel-accounts/internal/usecase"
)

// MFAHandler handles 2FA enrolment and management for the signed-in account.
type MFAHandler struct {
	store  *usecase.AccountStore
	logger *slog.Logger
}

// NewMFAHandler registers the 2FA management routes. mw must authenticate
// the caller.
func NewMFAHandler(g *echo.Group, store *usecase.AccountStore, logger *slog.Logger, mw ...echo.MiddlewareFunc) {
	handler := &MFAHandler{store: store, logger: logger}

	g.POST("/configure-2fa", handler.Configure, mw...)
	g.POST("/mfa/enable", handler.Enable, mw...)
	g.POST("/mfa/backup-codes", handler.RegenerateBackupCodes, mw...)
}

type configureResponse struct {
	Status          string   `json:"status"`
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioning_uri"`
	BackupCodes     []string `json:"backup_codes"`
}

type codeRequest struct {
	Code string `json:"code"`
}

// Configure issues a fresh secret and backup codes. They only take effect
// once Enable confirms a first code.
func (h *MFAHandler) Configure(c echo.Context) error {
	account := currentAccount(c)
	enrollment, err := h.store.ConfigureTwoFactor(c.Request().Context(), account.ID, c.RealIP())
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, configureResponse{
		Status:          statusSuccess,
		Secret:          enrollment.Secret,
		ProvisioningURI: enrollment.ProvisioningURI,
		BackupCodes:     enrollment.BackupCodes,
	})
}

// Enable verifies the first code from the authenticator app and turns 2FA on.
func (h *MFAHandler) Enable(c echo.Context) error {
	var req codeRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := h.store.EnableTwoFactor(c.Request().Context(), currentAccount(c).ID, req.Code, c.RealIP()); err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": statusSuccess, "message": "two-factor authentication enabled"})
}

func (h *MFAHandler) RegenerateBackupCodes(c echo.Context) error {
	var req codeRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	codes, err := h.store.RegenerateBackupCodes(c.Request().Context(), currentAccount(c).ID, req.Code, c.RealIP())
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": statusSuccess, "backup_codes": codes})
}
