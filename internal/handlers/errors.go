package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/example/kommyut/internal/apperr"
)

// ErrorHandler renders every error returned by a handler as the JSON failure envelope.
func ErrorHandler(log *zap.SugaredLogger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status, kind, message := classify(err)

		if status >= fiber.StatusInternalServerError {
			log.Errorw("request failed", "method", c.Method(), "path", c.Path(), "status", status, "error", err)
		}

		return c.Status(status).JSON(fiber.Map{
			"success": false,
			"error":   kind,
			"message": message,
		})
	}
}

func classify(err error) (int, string, string) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr.Kind.HTTPStatus(), appErr.Kind.String(), apperr.Message(err)
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code, kindForStatus(fiberErr.Code), fiberErr.Message
	}

	return fiber.StatusInternalServerError, apperr.KindInternal.String(), "internal server error"
}

func kindForStatus(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return apperr.KindInvalidArgument.String()
	case fiber.StatusUnauthorized:
		return apperr.KindUnauthenticated.String()
	case fiber.StatusForbidden:
		return apperr.KindForbidden.String()
	case fiber.StatusNotFound:
		return apperr.KindNotFound.String()
	case fiber.StatusConflict:
		return apperr.KindConflict.String()
	case fiber.StatusTooManyRequests:
		return "rate_limited"
	case fiber.StatusServiceUnavailable:
		return apperr.KindUnavailable.String()
	}
	if status >= fiber.StatusInternalServerError {
		return apperr.KindInternal.String()
	}
	return apperr.KindInvalidArgument.String()
}
