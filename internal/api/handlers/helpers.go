package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/tweetflow/internal/models"
)

func GetOwnerID(c *fiber.Ctx) string {
	ownerID, _ := c.Locals("owner_id").(string)
	return ownerID
}

// respondError maps service errors onto status codes. Anything that is not a
// caller mistake is logged and reported as fallback.
func respondError(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case errors.Is(err, models.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.Is(err, models.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Not found",
		})
	}

	slog.Error(err.Error())
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": fallback,
	})
}
