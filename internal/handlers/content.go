package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"frameworks/herald/internal/access"
	"frameworks/herald/internal/approval"
	"frameworks/herald/internal/content"
	"frameworks/herald/pkg/logging"
)

type ContentHandler struct {
	service ContentService
	logger  logging.Logger
}

func NewContentHandler(service ContentService, logger logging.Logger) *ContentHandler {
	return &ContentHandler{service: service, logger: logger}
}

type createRequest struct {
	Platform string   `json:"platform"`
	Text     string   `json:"content_text"`
	Hashtags []string `json:"hashtags"`
}

type editRequest struct {
	Text            *string  `json:"content_text"`
	Hashtags        []string `json:"hashtags"`
	ExpectedVersion int64    `json:"expected_version"`
}

type transitionRequest struct {
	ExpectedVersion int64      `json:"expected_version"`
	Comments        string     `json:"comments"`
	Reason          string     `json:"reason"`
	ScheduledFor    *time.Time `json:"scheduled_for"`
}

type listResponse struct {
	Items []content.Item `json:"items"`
	Count int            `json:"count"`
}

func (h *ContentHandler) Create(c *gin.Context) {
	actor, err := actorFrom(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", "invalid request format")
		return
	}
	platform, err := content.ParsePlatform(req.Platform)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	item, err := h.service.Create(c.Request.Context(), actor, approval.CreateRequest{
		Platform: platform,
		Text:     req.Text,
		Hashtags: req.Hashtags,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *ContentHandler) List(c *gin.Context) {
	actor, err := actorFrom(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	var f content.Filter
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			st, err := content.ParseStatus(strings.TrimSpace(s))
			if err != nil {
				respondError(c, h.logger, err)
				return
			}
			f.Statuses = append(f.Statuses, st)
		}
	}
	if raw := c.Query("platform"); raw != "" {
		p, err := content.ParsePlatform(raw)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		f.Platform = p
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, "limit", "must be a non-negative integer")
			return
		}
		f.Limit = n
	}

	items, err := h.service.List(c.Request.Context(), actor, f)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, listResponse{Items: items, Count: len(items)})
}

func (h *ContentHandler) Get(c *gin.Context) {
	actor, err := actorFrom(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	item, err := h.service.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *ContentHandler) Edit(c *gin.Context) {
	actor, err := actorFrom(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	var req editRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", "invalid request format")
		return
	}
	if req.ExpectedVersion <= 0 {
		badRequest(c, "expected_version", "is required")
		return
	}

	item, err := h.service.Edit(c.Request.Context(), actor, c.Param("id"), approval.EditRequest{
		Text:            req.Text,
		Hashtags:        req.Hashtags,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *ContentHandler) History(c *gin.Context) {
	actor, err := actorFrom(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			badRequest(c, "limit", "must be an integer")
			return
		}
	}
	recs, err := h.service.History(c.Request.Context(), actor, c.Param("id"), limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": recs, "count": len(recs)})
}

type transitionFunc func(ctx context.Context, actor access.Actor, id string, req transitionRequest) (content.Item, error)

// Transition adapts one lifecycle operation to a POST handler. Every
// transition body carries expected_version.
func (h *ContentHandler) Transition(op transitionFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := actorFrom(c)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		var req transitionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "body", "invalid request format")
			return
		}
		if req.ExpectedVersion <= 0 {
			badRequest(c, "expected_version", "is required")
			return
		}

		item, err := op(c.Request.Context(), actor, c.Param("id"), req)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, item)
	}
}

func (h *ContentHandler) submit(ctx context.Context, a access.Actor, id string, r transitionRequest) (content.Item, error) {
	return h.service.Submit(ctx, a, id, r.ExpectedVersion)
}

func (h *ContentHandler) resubmit(ctx context.Context, a access.Actor, id string, r transitionRequest) (content.Item, error) {
	return h.service.Resubmit(ctx, a, id, r.ExpectedVersion)
}

func (h *ContentHandler) approve(ctx context.Context, a access.Actor, id string, r transitionRequest) (content.Item, error) {
	return h.service.Approve(ctx, a, id, r.ExpectedVersion, r.Comments)
}

func (h *ContentHandler) reject(ctx context.Context, a access.Actor, id string, r transitionRequest) (content.Item, error) {
	return h.service.Reject(ctx, a, id, r.ExpectedVersion, r.Comments)
}

func (h *ContentHandler) requestChanges(ctx context.Context, a access.Actor, id string, r transitionRequest) (content.Item, error) {
	return h.service.RequestChanges(ctx, a, id, r.ExpectedVersion, r.Comments)
}

func (h *ContentHandler) schedule(ctx context.Context, a access.Actor, id string, r transitionRequest) (content.Item, error) {
	var at time.Time
	if r.ScheduledFor != nil {
		at = *r.ScheduledFor
	}
	return h.service.Schedule(ctx, a, id, r.ExpectedVersion, at)
}

func (h *ContentHandler) publish(ctx context.Context, a access.Actor, id string, r transitionRequest) (content.Item, error) {
	return h.service.Publish(ctx, a, id, r.ExpectedVersion)
}

func (h *ContentHandler) archive(ctx context.Context, a access.Actor, id string, r transitionRequest) (content.Item, error) {
	reason := r.Reason
	if reason == "" {
		reason = r.Comments
	}
	return h.service.Archive(ctx, a, id, r.ExpectedVersion, reason)
}
