package location

import (
	"time"

	"backend-fleettrack/internal/apperr"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		var req PingInput
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		ping, err := svc.Ingest(c.Context(), req)
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.Status(fiber.StatusCreated).JSON(ping)
	})

	r.Get("/trip/:tripID", func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit")
		pings, err := svc.History(c.Context(), c.Params("tripID"), limit)
		if err != nil {
			return apperr.ToFiber(err)
		}
		if pings == nil {
			pings = []Ping{}
		}
		return c.JSON(pings)
	})

	r.Get("/trip/:tripID/since", func(c *fiber.Ctx) error {
		after, err := time.Parse(time.RFC3339, c.Query("after"))
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "after must be an RFC3339 timestamp")
		}
		pings, err := svc.LatestSince(c.Context(), c.Params("tripID"), after)
		if err != nil {
			return apperr.ToFiber(err)
		}
		if pings == nil {
			pings = []Ping{}
		}
		return c.JSON(pings)
	})

	r.Get("/latest/:tripID", func(c *fiber.Ctx) error {
		ping, err := svc.Latest(c.Context(), c.Params("tripID"))
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.JSON(ping)
	})

	r.Get("/latest-by-bus/:busNumber", func(c *fiber.Ctx) error {
		ping, err := svc.LatestByBus(c.Context(), c.Params("busNumber"))
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.JSON(ping)
	})

	r.Get("/active", func(c *fiber.Ctx) error {
		positions, err := svc.ActivePositions(c.Context())
		if err != nil {
			return apperr.ToFiber(err)
		}
		if positions == nil {
			positions = []ActivePosition{}
		}
		return c.JSON(positions)
	})

	r.Get("/bus/:busNumber", func(c *fiber.Ctx) error {
		var since *time.Time
		if raw := c.Query("since"); raw != "" {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "since must be an RFC3339 timestamp")
			}
			since = &parsed
		}
		pings, err := svc.BusPositionsSince(c.Context(), c.Params("busNumber"), since)
		if err != nil {
			return apperr.ToFiber(err)
		}
		if pings == nil {
			pings = []Ping{}
		}
		return c.JSON(pings)
	})
}
