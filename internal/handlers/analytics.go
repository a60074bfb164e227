package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"frameworks/herald/pkg/logging"
)

type AnalyticsHandler struct {
	service AnalyticsService
	logger  logging.Logger
}

func NewAnalyticsHandler(service AnalyticsService, logger logging.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{service: service, logger: logger}
}

// Workflow reports lifecycle and review counts over the last ?days days.
func (h *AnalyticsHandler) Workflow(c *gin.Context) {
	actor, err := actorFrom(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	days := 0
	if raw := c.Query("days"); raw != "" {
		days, err = strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "days", "must be an integer")
			return
		}
	}

	w, err := h.service.Workflow(c.Request.Context(), actor, days)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, w)
}
