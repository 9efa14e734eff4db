// Package apperr defines the error taxonomy shared by the fleet coordinator
// and the location endpoints. Handlers translate these sentinels to HTTP
// statuses; anything unrecognized is a transient storage failure and maps to
// 500.
package apperr

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
)

func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return fiber.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrConflict):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// ToFiber wraps err into a fiber error carrying the mapped status and the
// human-readable reason, so conflict responses keep enough detail for the
// caller to explain the failure.
func ToFiber(err error) error {
	return fiber.NewError(HTTPStatus(err), err.Error())
}
