package handlers

import (
	"errors"
	"log/slog"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	config "github.com/maheshrc27/tweetflow/configs"
	"github.com/maheshrc27/tweetflow/internal/models"
	"github.com/maheshrc27/tweetflow/internal/service"
)

type AccountHandler struct {
	hs    service.HandshakeService
	store *session.Store
	cfg   config.Config
}

func NewAccountHandler(hs service.HandshakeService, store *session.Store, cfg config.Config) *AccountHandler {
	return &AccountHandler{
		hs:    hs,
		store: store,
		cfg:   cfg,
	}
}

func (h *AccountHandler) Connect(c *fiber.Ctx) error {
	if h.cfg.X.ClientID == "" {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "X API keys not configured",
		})
	}

	authURL, err := h.hs.Begin(c.Context(), GetOwnerID(c), newFiberSession(h.store, c))
	if err != nil {
		return respondError(c, err, "Unable to start X authorization")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"auth_url": authURL,
	})
}

// Callback is hit by the browser coming back from X. It never renders an
// error page; the outcome travels to the dashboard in the x query param.
func (h *AccountHandler) Callback(c *fiber.Ctx) error {
	if reason := c.Query("error"); reason != "" {
		slog.Info("X authorization denied", "reason", reason)
		return h.redirectDashboard(c, "denied", "")
	}

	code := c.Query("code")
	if code == "" {
		return h.redirectDashboard(c, "no_code", "")
	}

	acc, err := h.hs.Complete(c.Context(), code, c.Query("state"), newFiberSession(h.store, c))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrHandshakeExpired),
			errors.Is(err, models.ErrHandshakeStateMismatch),
			errors.Is(err, models.ErrValidation):
			return h.redirectDashboard(c, "session_expired", "")
		}
		slog.Error("X callback failed", "error", err)
		return h.redirectDashboard(c, "error", callbackErrorCode(err))
	}

	slog.Info("X account linked", "owner_id", acc.OwnerID)
	return h.redirectDashboard(c, "connected", "")
}

// callbackErrorCode keeps provider and storage detail out of the redirect URL.
func callbackErrorCode(err error) string {
	if errors.Is(err, models.ErrProviderExchange) {
		return "provider_exchange"
	}
	return "internal"
}

func (h *AccountHandler) redirectDashboard(c *fiber.Ctx, outcome, msg string) error {
	q := url.Values{}
	q.Set("x", outcome)
	if msg != "" {
		q.Set("msg", msg)
	}
	return c.Redirect(h.cfg.FrontendURL+"/dashboard?"+q.Encode(), fiber.StatusTemporaryRedirect)
}

func (h *AccountHandler) Status(c *fiber.Ctx) error {
	status, err := h.hs.Status(c.Context(), GetOwnerID(c))
	if err != nil {
		return respondError(c, err, "Unable to load account status")
	}

	return c.Status(fiber.StatusOK).JSON(status)
}

func (h *AccountHandler) Disconnect(c *fiber.Ctx) error {
	err := h.hs.Disconnect(c.Context(), GetOwnerID(c))
	if err != nil {
		return respondError(c, err, "Unable to disconnect account")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Account disconnected",
	})
}
