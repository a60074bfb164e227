package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"frameworks/herald/internal/access"
	"frameworks/herald/internal/apperr"
	"frameworks/herald/internal/controls"
	"frameworks/herald/pkg/logging"
)

type ControlHandler struct {
	service ModeService
	logger  logging.Logger
}

func NewControlHandler(service ModeService, logger logging.Logger) *ControlHandler {
	return &ControlHandler{service: service, logger: logger}
}

type controlRequest struct {
	Notes string `json:"notes"`
}

type controlFunc func(ctx context.Context, actor access.Actor, notes string) (controls.Result, error)

func (h *ControlHandler) Status(c *gin.Context) {
	actor, err := actorFrom(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	st, err := h.service.Status(actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// Apply adapts one mode operation to a POST handler. A crisis switch that
// could not cancel every scheduled item answers 207 with both the result and
// the error.
func (h *ControlHandler) Apply(op controlFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := actorFrom(c)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		var req controlRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
				badRequest(c, "body", "invalid request format")
				return
			}
		}

		res, err := op(c.Request.Context(), actor, req.Notes)
		if apperr.IsCode(err, apperr.CodeCancelIncomplete) {
			body := errorBody(err)
			body["result"] = res
			h.logger.WithError(err).WithField("actor_id", actor.ID).Warn("Mode changed with incomplete cancellation")
			c.JSON(http.StatusMultiStatus, body)
			return
		}
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}
