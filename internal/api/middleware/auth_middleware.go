package middleware

import (
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/tweetflow/configs"
	"github.com/maheshrc27/tweetflow/pkg/utils"
)

const (
	tokenLifetime = 24 * time.Hour
	refreshWithin = time.Hour
)

type AuthMiddleware struct {
	cfg config.Config
}

func NewAuthMiddleware(cfg config.Config) *AuthMiddleware {
	return &AuthMiddleware{cfg: cfg}
}

// AuthMiddleware accepts the owner token from the auth cookie or a bearer
// header and stores the owner id in c.Locals("owner_id"). Cookies close to
// expiry are reissued.
func (m *AuthMiddleware) AuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := c.Cookies(m.cfg.CookieName)
		fromCookie := tokenString != ""

		if !fromCookie {
			header := c.Get(fiber.HeaderAuthorization)
			if strings.HasPrefix(header, "Bearer ") {
				tokenString = strings.TrimPrefix(header, "Bearer ")
			}
		}

		if tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing token or cookie",
			})
		}

		claims, err := utils.ValidateToken(m.cfg.SecretKey, tokenString)
		if err != nil {
			if fromCookie {
				c.Cookie(&fiber.Cookie{
					Name:   m.cfg.CookieName,
					Value:  "",
					Path:   "/",
					MaxAge: -1, // Delete cookie
				})
			}

			log.Printf("Token validation failed: %v", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		if fromCookie && claims.ExpiresAt != nil && time.Until(claims.ExpiresAt.Time) < refreshWithin {
			m.refreshCookie(c, claims.OwnerID)
		}

		c.Locals("owner_id", claims.OwnerID)
		return c.Next()
	}
}

func (m *AuthMiddleware) refreshCookie(c *fiber.Ctx, ownerID string) {
	token, err := utils.GenerateToken(m.cfg.SecretKey, ownerID, tokenLifetime)
	if err != nil {
		return
	}

	c.Cookie(&fiber.Cookie{
		Name:     m.cfg.CookieName,
		Value:    token,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
		Path:     "/",
		Expires:  time.Now().Add(tokenLifetime),
	})
}
