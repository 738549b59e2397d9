package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/hsltrips/internal/core/domain"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // Error code: bad_request, not_found, internal_error, etc.
	Message   string `json:"message"` // Human-readable message
	Retryable bool   `json:"retryable,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

// errBadRequest returns a 400 error.
func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusBadRequest, "bad_request", msg)
}

// errNotFound returns a 404 error.
func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusNotFound, "not_found", msg)
}

// errInternal returns a 500 error.
func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusInternalServerError, "internal_error", msg)
}

// errUnavailable returns a 503 error.
func errUnavailable(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusServiceUnavailable, "unavailable", msg)
}

// errIngestion maps an ingestion failure to a status by its kind.
func errIngestion(c *fiber.Ctx, err error) error {
	var ie *domain.IngestionError
	if !errors.As(err, &ie) {
		return errInternal(c, err.Error())
	}

	status, code := fiber.StatusInternalServerError, "persistence_failure"
	switch ie.Kind {
	case domain.KindRemoteUnavailable:
		status, code = fiber.StatusBadGateway, "remote_unavailable"
	case domain.KindMalformedPayload:
		status, code = fiber.StatusUnprocessableEntity, "malformed_payload"
	}

	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   ie.Error(),
		Retryable: ie.Retryable(),
		RequestID: reqID,
	})
}
