package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/FilipeAphrody/sentinel-accounts/internal/domain"
	"github.com/FilipeAphrody/sentinel-accounts/internal/usecase"
)

// AdminHandler exposes account provisioning and the audit trail to administrators.
type AdminHandler struct {
	store  *usecase.AccountStore
	audit  *usecase.AuditLog
	logger *slog.Logger
}

// NewAdminHandler registers the admin routes. mw must authenticate the
// caller and check the admin role.
func NewAdminHandler(g *echo.Group, store *usecase.AccountStore, audit *usecase.AuditLog, logger *slog.Logger, mw ...echo.MiddlewareFunc) {
	handler := &AdminHandler{store: store, audit: audit, logger: logger}

	g.GET("/admin/audit", handler.ListAudit, mw...)
	g.POST("/admin/accounts", handler.CreateAccount, mw...)
	g.POST("/admin/accounts/:id/disable", handler.Disable, mw...)
	g.POST("/admin/accounts/:id/enable", handler.Enable, mw...)
}

type createAccountRequest struct {
	Handle      string `json:"handle"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Contact     string `json:"contact"`
	Role        string `json:"role"`
}

// ListAudit accepts account_id, action, from, to (RFC 3339) and limit.
func (h *AdminHandler) ListAudit(c echo.Context) error {
	filter := domain.AuditFilter{
		AccountID: c.QueryParam("account_id"),
		Action:    domain.AuditAction(c.QueryParam("action")),
	}

	var err error
	if filter.From, err = parseTimeParam(c, "from"); err != nil {
		return badRequest(c, "from must be an RFC 3339 timestamp")
	}
	if filter.To, err = parseTimeParam(c, "to"); err != nil {
		return badRequest(c, "to must be an RFC 3339 timestamp")
	}
	if raw := c.QueryParam("limit"); raw != "" {
		if filter.Limit, err = strconv.Atoi(raw); err != nil || filter.Limit < 0 {
			return badRequest(c, "limit must be a non-negative integer")
		}
	}

	records, err := h.audit.List(c.Request().Context(), filter)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": statusSuccess, "entries": records})
}

func (h *AdminHandler) CreateAccount(c echo.Context) error {
	var req createAccountRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	account, err := h.store.Provision(c.Request().Context(), usecase.NewAccount{
		Handle:      req.Handle,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Contact:     req.Contact,
		Role:        req.Role,
	}, currentAccount(c).ID, c.RealIP())
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"status": statusSuccess, "account": account})
}

func (h *AdminHandler) Disable(c echo.Context) error {
	return h.setEnabled(c, false)
}

func (h *AdminHandler) Enable(c echo.Context) error {
	return h.setEnabled(c, true)
}

func (h *AdminHandler) setEnabled(c echo.Context, enabled bool) error {
	id := c.Param("id")
	if !enabled && id == currentAccount(c).ID {
		return badRequest(c, "administrators cannot disable their own account")
	}
	account, err := h.store.SetEnabled(c.Request().Context(), id, enabled, currentAccount(c).ID, c.RealIP())
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": statusSuccess, "account": account})
}

func parseTimeParam(c echo.Context, name string) (time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}
