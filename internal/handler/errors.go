package handler

import (
	"errors"
	"net/http"

	"stockledger/internal/middleware"
	"stockledger/internal/model"
	"stockledger/internal/service"
	"stockledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// statusFor maps service errors onto an HTTP status and a stable error code
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrInsufficientStock):
		return http.StatusConflict, "insufficient_stock"
	case errors.Is(err, service.ErrInvalidStateTransition):
		return http.StatusConflict, "invalid_state_transition"
	case errors.Is(err, service.ErrNotClaimable):
		return http.StatusConflict, "not_claimable"
	case errors.Is(err, service.ErrPartialWrite):
		return http.StatusInternalServerError, "partial_write"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func respondError(c *gin.Context, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, response.Failure(status, code, err.Error()))
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, msg))
}

// actorOf returns the authenticated actor, aborting with 401 when there is none
func actorOf(c *gin.Context) (model.Actor, bool) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
	}
	return actor, ok
}
