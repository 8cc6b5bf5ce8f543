package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/lueurxax/insights-engine/internal/core/errors"
)

const internalErrorMessage = "internal error"

var strictStatuses = map[string]int{
	apperrors.KindNotFound:     http.StatusNotFound,
	apperrors.KindValidation:   http.StatusBadRequest,
	apperrors.KindPrecondition: http.StatusPreconditionFailed,
	apperrors.KindDataNotFresh: http.StatusPreconditionFailed,
	apperrors.KindConflict:     http.StatusConflict,
	apperrors.KindUpstream:     http.StatusBadGateway,
	apperrors.KindCircuitOpen:  http.StatusServiceUnavailable,
}

// statusFor returns the HTTP status of an error kind. Without strict mode every failure is a 500.
func statusFor(kind string, strict bool) int {
	if !strict {
		return http.StatusInternalServerError
	}

	if status, ok := strictStatuses[kind]; ok {
		return status
	}

	return http.StatusInternalServerError
}

func (h *Handler) writeError(c *gin.Context, err error) {
	kind := apperrors.Kind(err)
	status := statusFor(kind, h.strict)

	message := err.Error()

	event := h.logger.Warn()
	if kind == apperrors.KindInternal {
		event = h.logger.Error()
		message = internalErrorMessage
	}

	event.Err(err).
		Str("route", c.FullPath()).
		Str("code", kind).
		Int("status", status).
		Msg("request failed")

	c.AbortWithStatusJSON(status, ErrorResponse{Success: false, Message: message, Code: kind})
}
