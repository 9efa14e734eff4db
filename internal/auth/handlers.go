package auth

import (
	"backend-fleettrack/internal/apperr"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service) {
	r.Post("/login", func(c *fiber.Ctx) error {
		var req struct {
			DriverID string `json:"driver_id"`
			Password string `json:"password"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		tokens, err := svc.Login(c.Context(), req.DriverID, req.Password)
		if err != nil {
			if err.Error() == "invalid credentials" {
				return fiber.NewError(fiber.StatusUnauthorized, err.Error())
			}
			return apperr.ToFiber(err)
		}
		return c.JSON(tokens)
	})
}
