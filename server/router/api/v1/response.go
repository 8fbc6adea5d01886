package v1

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	apperrors "github.com/hrygo/soulmap/server/internal/errors"
	"github.com/hrygo/soulmap/server/internal/observability"
)

// envelope is the body of every response that reports success explicitly.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func ok(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, envelope{Success: true, Data: data})
}

// fail renders err as {success:false, message} with the status of its code.
// Errors without a code are reported as internal and their cause is not exposed.
func fail(c echo.Context, err error) error {
	code := apperrors.GetCodeFromError(err, apperrors.ErrCodeInternal)
	status := apperrors.HTTPStatus(code)

	message := "internal server error"
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && code != apperrors.ErrCodeInternal {
		message = appErr.Message
	}

	logger := observability.Logger(c.Request().Context())
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", slog.String(observability.LogFieldErrorCode, string(code)), slog.String("error", err.Error()))
	} else {
		logger.Debug("request rejected", slog.String(observability.LogFieldErrorCode, string(code)), slog.String("error", err.Error()))
	}
	return c.JSON(status, envelope{Success: false, Message: message})
}

// queryInt parses an optional integer query parameter. Absent means 0.
func queryInt(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.InvalidArgument(name + " must be an integer")
	}
	return n, nil
}

func pageParams(c echo.Context) (limit, offset int, err error) {
	if limit, err = queryInt(c, "limit"); err != nil {
		return 0, 0, err
	}
	if offset, err = queryInt(c, "offset"); err != nil {
		return 0, 0, err
	}
	if offset < 0 {
		return 0, 0, apperrors.InvalidArgument("offset must not be negative")
	}
	return limit, offset, nil
}
