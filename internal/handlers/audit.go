package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"frameworks/herald/internal/audit"
	"frameworks/herald/pkg/logging"
)

type AuditHandler struct {
	reader AuditReader
	logger logging.Logger
}

func NewAuditHandler(reader AuditReader, logger logging.Logger) *AuditHandler {
	return &AuditHandler{reader: reader, logger: logger}
}

func (h *AuditHandler) Query(c *gin.Context) {
	actor, err := actorFrom(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	q := audit.Query{
		TargetType: c.Query("target_type"),
		TargetID:   c.Query("target_id"),
		ActorID:    c.Query("actor_id"),
		Action:     c.Query("action"),
	}
	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			badRequest(c, "since", "must be an RFC3339 timestamp")
			return
		}
		q.Since = since
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "limit", "must be an integer")
			return
		}
		q.Limit = n
	}

	recs, err := h.reader.Query(c.Request.Context(), actor, q)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": recs, "count": len(recs)})
}
