package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// envelope writes data wrapped in an APIResponse whose status mirrors the
// HTTP status.
func envelope(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, APIResponse{
		Status:  status,
		Message: http.StatusText(status),
		Data:    data,
	})
}

// ListResponse writes a list with its total row count.
func ListResponse(c echo.Context, rows interface{}, total int64) error {
	return envelope(c, http.StatusOK, &ListDataResponse{Rows: rows, Total: total})
}

// SuccessResponse writes a 200 envelope.
func SuccessResponse(c echo.Context, data interface{}) error {
	return envelope(c, http.StatusOK, data)
}

// BadRequestResponse writes validation failures as a 400 envelope.
func BadRequestResponse(c echo.Context, data interface{}) error {
	return envelope(c, http.StatusBadRequest, data)
}

// AppErrorResponse writes err with its own status when it is an *AppError,
// and as an opaque 500 otherwise.
func AppErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return envelope(c, appErr.Status, []*AppError{appErr})
	}
	return envelope(c, http.StatusInternalServerError, "Something went wrong")
}
