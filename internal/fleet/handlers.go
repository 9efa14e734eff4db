package fleet

import (
	"backend-fleettrack/internal/apperr"

	"github.com/gofiber/fiber/v2"
)

type pairRequest struct {
	DriverID  string `json:"driver_id"`
	BusNumber string `json:"bus_number"`
}

// RegisterTripRoutes mounts the driver-facing trip lifecycle.
func RegisterTripRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/start", authMiddleware, func(c *fiber.Ctx) error {
		var req pairRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.DriverID == "" || req.BusNumber == "" {
			return fiber.NewError(fiber.StatusBadRequest, "driver_id and bus_number required")
		}
		trip, err := svc.StartTrip(c.Context(), req.DriverID, req.BusNumber)
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.Status(fiber.StatusCreated).JSON(trip)
	})

	r.Post("/end", authMiddleware, func(c *fiber.Ctx) error {
		var req struct {
			TripID string `json:"trip_id"`
		}
		if err := c.BodyParser(&req); err != nil || req.TripID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "trip_id required")
		}
		trip, err := svc.EndTrip(c.Context(), req.TripID)
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.JSON(trip)
	})

	r.Get("/active/:driverID", func(c *fiber.Ctx) error {
		trip, err := svc.ActiveTripForDriver(c.Context(), c.Params("driverID"))
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.JSON(trip)
	})
}

// RegisterFleetRoutes mounts driver session handling plus the admin-only
// entity management.
func RegisterFleetRoutes(r fiber.Router, svc *Service, authMiddleware, adminOnly fiber.Handler) {
	r.Post("/authenticate", authMiddleware, func(c *fiber.Ctx) error {
		var req pairRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.DriverID == "" || req.BusNumber == "" {
			return fiber.NewError(fiber.StatusBadRequest, "driver_id and bus_number required")
		}
		result, err := svc.AuthenticateDriver(c.Context(), req.DriverID, req.BusNumber)
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.JSON(result)
	})

	r.Post("/logout", authMiddleware, func(c *fiber.Ctx) error {
		var req pairRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.DriverID == "" || req.BusNumber == "" {
			return fiber.NewError(fiber.StatusBadRequest, "driver_id and bus_number required")
		}
		result, err := svc.Logout(c.Context(), req.DriverID, req.BusNumber)
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.JSON(result)
	})

	r.Post("/drivers", authMiddleware, adminOnly, func(c *fiber.Ctx) error {
		var req struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			Password string `json:"password"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		driver, err := svc.CreateDriver(c.Context(), req.ID, req.Name, req.Password)
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.Status(fiber.StatusCreated).JSON(driver)
	})

	r.Post("/buses", authMiddleware, adminOnly, func(c *fiber.Ctx) error {
		var req struct {
			Number string `json:"number"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		bus, err := svc.CreateBus(c.Context(), req.Number)
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.Status(fiber.StatusCreated).JSON(bus)
	})

	r.Post("/routes", authMiddleware, adminOnly, func(c *fiber.Ctx) error {
		var req struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		id, err := svc.CreateRoute(c.Context(), req.ID, req.Name)
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id, "name": req.Name})
	})

	r.Delete("/buses/:busNumber", authMiddleware, adminOnly, func(c *fiber.Ctx) error {
		if err := svc.DeleteBus(c.Context(), c.Params("busNumber")); err != nil {
			return apperr.ToFiber(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Post("/buses/:busNumber/route", authMiddleware, adminOnly, func(c *fiber.Ctx) error {
		var req struct {
			RouteID string `json:"route_id"`
		}
		if err := c.BodyParser(&req); err != nil || req.RouteID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "route_id required")
		}
		if err := svc.AssignBusToRoute(c.Context(), c.Params("busNumber"), req.RouteID); err != nil {
			return apperr.ToFiber(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Patch("/buses/:busNumber/status", authMiddleware, adminOnly, func(c *fiber.Ctx) error {
		var req struct {
			Status string `json:"status"`
		}
		if err := c.BodyParser(&req); err != nil || req.Status == "" {
			return fiber.NewError(fiber.StatusBadRequest, "status required")
		}
		if err := svc.UpdateBusStatus(c.Context(), c.Params("busNumber"), req.Status); err != nil {
			return apperr.ToFiber(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}
