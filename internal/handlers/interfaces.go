package handlers

import (
	"context"
	"time"

	"frameworks/herald/internal/access"
	"frameworks/herald/internal/analytics"
	"frameworks/herald/internal/approval"
	"frameworks/herald/internal/audit"
	"frameworks/herald/internal/content"
	"frameworks/herald/internal/controls"
)

// ContentService is implemented by *approval.Engine.
type ContentService interface {
	Create(ctx context.Context, actor access.Actor, req approval.CreateRequest) (content.Item, error)
	Edit(ctx context.Context, actor access.Actor, id string, req approval.EditRequest) (content.Item, error)
	Get(ctx context.Context, actor access.Actor, id string) (content.Item, error)
	List(ctx context.Context, actor access.Actor, f content.Filter) ([]content.Item, error)
	History(ctx context.Context, actor access.Actor, id string, limit int) ([]audit.Record, error)
	Submit(ctx context.Context, actor access.Actor, id string, expectedVersion int64) (content.Item, error)
	Resubmit(ctx context.Context, actor access.Actor, id string, expectedVersion int64) (content.Item, error)
	Approve(ctx context.Context, actor access.Actor, id string, expectedVersion int64, comments string) (content.Item, error)
	Reject(ctx context.Context, actor access.Actor, id string, expectedVersion int64, comments string) (content.Item, error)
	RequestChanges(ctx context.Context, actor access.Actor, id string, expectedVersion int64, comments string) (content.Item, error)
	Schedule(ctx context.Context, actor access.Actor, id string, expectedVersion int64, at time.Time) (content.Item, error)
	Publish(ctx context.Context, actor access.Actor, id string, expectedVersion int64) (content.Item, error)
	Archive(ctx context.Context, actor access.Actor, id string, expectedVersion int64, reason string) (content.Item, error)
}

// ModeService is implemented by *controls.Controller.
type ModeService interface {
	Status(actor access.Actor) (controls.Status, error)
	Pause(ctx context.Context, actor access.Actor, notes string) (controls.Result, error)
	Resume(ctx context.Context, actor access.Actor, notes string) (controls.Result, error)
	SetManual(ctx context.Context, actor access.Actor, notes string) (controls.Result, error)
	SetNormal(ctx context.Context, actor access.Actor, notes string) (controls.Result, error)
	SetCrisis(ctx context.Context, actor access.Actor, notes string) (controls.Result, error)
}

// AuditReader is implemented by *audit.Log.
type AuditReader interface {
	Query(ctx context.Context, actor access.Actor, q audit.Query) ([]audit.Record, error)
}

// AnalyticsService is implemented by *analytics.Service.
type AnalyticsService interface {
	Workflow(ctx context.Context, actor access.Actor, days int) (analytics.Workflow, error)
}
