package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/joseph-ayodele/control-mapper/internal/common"
)

// statusFor maps an error's sentinel to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrInvalidInput), errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// handleError renders every error as {"detail": "..."}.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := statusFor(err)
	detail := common.Message(err)

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		detail = fmt.Sprint(he.Message)
		if he.Internal != nil {
			detail = fmt.Sprintf("%v: %v", he.Message, he.Internal)
		}
	}
	if code >= http.StatusInternalServerError {
		common.LoggerFromContext(c.Request().Context(), s.logger).
			Error("http.error", "path", c.Path(), "status", code, "err", err)
		if he == nil {
			detail = "Internal server error"
		}
	}

	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(code)
	} else {
		werr = c.JSON(code, map[string]string{"detail": detail})
	}
	if werr != nil {
		s.logger.Error("http.error.write_failed", "err", werr)
	}
}
