// Package approval applies content lifecycle transitions, enforcing role
// permissions, ownership, optimistic concurrency and the system-mode gate.
package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"frameworks/herald/internal/access"
	"frameworks/herald/internal/apperr"
	"frameworks/herald/internal/audit"
	"frameworks/herald/internal/content"
	"frameworks/herald/internal/controls"
	"frameworks/herald/internal/store"
	"frameworks/herald/pkg/logging"
)

// Store persists content items. CreateItem and UpdateItem write the item and
// its audit record atomically; UpdateItem only succeeds when the stored
// version equals expectedVersion and returns store.ErrVersionConflict
// otherwise.
type Store interface {
	CreateItem(ctx context.Context, item content.Item, rec audit.Record) error
	GetItem(ctx context.Context, id string) (content.Item, error)
	ListItems(ctx context.Context, f content.Filter) ([]content.Item, error)
	UpdateItem(ctx context.Context, item content.Item, expectedVersion int64, rec audit.Record) error
	// UpdateItemGated also checks allow against the persisted mode inside
	// the same unit as the swap and returns a *store.ModeBlockedError when it
	// refuses.
	UpdateItemGated(ctx context.Context, item content.Item, expectedVersion int64, rec audit.Record, allow func(controls.State) bool) error
}

// Gate exposes the current system mode under a read guard.
// *controls.Controller satisfies it.
type Gate interface {
	Guard() (controls.State, func())
}

// reloader is implemented by gates that can refresh from the store.
type reloader interface {
	Reload(ctx context.Context) error
}

// AuditLog forwards committed records and reads item history.
// *audit.Log satisfies it.
type AuditLog interface {
	Forward(ctx context.Context, recs ...audit.Record)
	ForTarget(ctx context.Context, targetType, targetID string, limit int) ([]audit.Record, error)
}

const crisisRetries = 3

// Engine applies content operations.
type Engine struct {
	store   Store
	gate    Gate
	audit   AuditLog
	metrics *Metrics
	logger  logging.Logger
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l logging.Logger) Option    { return func(e *Engine) { e.logger = l } }
func WithMetrics(m *Metrics) Option         { return func(e *Engine) { e.metrics = m } }
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// NewEngine creates an Engine.
func NewEngine(s Store, gate Gate, log AuditLog, opts ...Option) *Engine {
	e := &Engine{
		store:  s,
		gate:   gate,
		audit:  log,
		logger: logging.NewDiscardLogger(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// CreateRequest is the input to Create. When Hashtags is empty they are
// extracted from Text.
type CreateRequest struct {
	Platform content.Platform
	Text     string
	Hashtags []string
}

// Create stores a new draft owned by actor.
func (e *Engine) Create(ctx context.Context, actor access.Actor, req CreateRequest) (item content.Item, err error) {
	defer func() { e.metrics.Observe(string(access.ActionCreate), err) }()

	if _, err := access.Authorize(actor, access.ActionCreate); err != nil {
		return content.Item{}, err
	}

	tags := content.NormalizeHashtags(req.Hashtags)
	if len(tags) == 0 {
		tags = content.ExtractHashtags(req.Text)
	}
	if err := content.Validate(req.Platform, req.Text, tags); err != nil {
		return content.Item{}, err
	}

	now := e.now().UTC()
	item = content.Item{
		ID:        uuid.NewString(),
		Platform:  req.Platform,
		Text:      req.Text,
		Hashtags:  tags,
		Status:    content.StatusDraft,
		OwnerID:   actor.ID,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
	if item.Hashtags == nil {
		item.Hashtags = []string{}
	}
	rec := audit.NewRecord(actor, "content.create", audit.TargetContent, item.ID, map[string]any{
		"platform":   string(item.Platform),
		"new_status": string(item.Status),
		"version":    item.Version,
	})

	state, release := e.gate.Guard()
	defer release()
	if !state.CanCreate() {
		return content.Item{}, apperr.ModeBlocked(string(access.ActionCreate), string(state.Mode), state.Paused)
	}
	if err := e.store.CreateItem(ctx, item, rec); err != nil {
		return content.Item{}, fmt.Errorf("create item: %w", err)
	}

	e.committed(ctx, actor, rec, item)
	return item, nil
}

// EditRequest changes text and/or hashtags. Nil fields are left unchanged.
type EditRequest struct {
	Text            *string
	Hashtags        []string
	ExpectedVersion int64
}

// Edit updates a draft or changes_requested item's text and hashtags.
func (e *Engine) Edit(ctx context.Context, actor access.Actor, id string, req EditRequest) (item content.Item, err error) {
	defer func() { e.metrics.Observe(string(access.ActionEdit), err) }()

	grant, err := access.Authorize(actor, access.ActionEdit)
	if err != nil {
		return content.Item{}, err
	}
	cur, err := e.load(ctx, id)
	if err != nil {
		return content.Item{}, err
	}
	if err := access.CheckOwner(actor, grant, access.ActionEdit, cur.OwnerID); err != nil {
		return content.Item{}, err
	}
	if req.ExpectedVersion != cur.Version {
		return content.Item{}, apperr.StaleVersion(req.ExpectedVersion, cur.Version)
	}
	if !statusIn(cur.Status, editable) {
		return content.Item{}, apperr.Newf(apperr.CodeInvalidTransition, "cannot edit item in status %s", cur.Status).
			With("current_status", string(cur.Status)).
			With("action", string(access.ActionEdit))
	}

	next := cur.Clone()
	if req.Text != nil {
		next.Text = *req.Text
	}
	if req.Hashtags != nil {
		next.Hashtags = content.NormalizeHashtags(req.Hashtags)
	}
	if err := content.Validate(next.Platform, next.Text, next.Hashtags); err != nil {
		return content.Item{}, err
	}
	next.Version = cur.Version + 1
	next.UpdatedAt = e.now().UTC()

	rec := audit.NewRecord(actor, "content.edit", audit.TargetContent, id, map[string]any{
		"status":           string(cur.Status),
		"previous_version": cur.Version,
		"version":          next.Version,
		"text_changed":     next.Text != cur.Text,
	})
	if err := e.commit(ctx, next, cur.Version, rec, nil); err != nil {
		return content.Item{}, err
	}
	e.committed(ctx, actor, rec, next)
	return next, nil
}

// Get returns one item if actor may view it.
func (e *Engine) Get(ctx context.Context, actor access.Actor, id string) (content.Item, error) {
	grant, err := access.Authorize(actor, access.ActionView)
	if err != nil {
		return content.Item{}, err
	}
	item, err := e.load(ctx, id)
	if err != nil {
		return content.Item{}, err
	}
	if err := access.CheckOwner(actor, grant, access.ActionView, item.OwnerID); err != nil {
		return content.Item{}, err
	}
	return item, nil
}

// List returns items matching f. Clients only ever see their own items.
func (e *Engine) List(ctx context.Context, actor access.Actor, f content.Filter) ([]content.Item, error) {
	grant, err := access.Authorize(actor, access.ActionView)
	if err != nil {
		return nil, err
	}
	if grant == access.AllowOwner {
		f.OwnerID = actor.ID
	}
	items, err := e.store.ListItems(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

// History returns the audit records for one item, newest first.
func (e *Engine) History(ctx context.Context, actor access.Actor, id string, limit int) ([]audit.Record, error) {
	if _, err := e.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	recs, err := e.audit.ForTarget(ctx, audit.TargetContent, id, limit)
	if err != nil {
		return nil, fmt.Errorf("item history: %w", err)
	}
	return recs, nil
}

// Submit sends a draft to review.
func (e *Engine) Submit(ctx context.Context, actor access.Actor, id string, expectedVersion int64) (content.Item, error) {
	return e.transition(ctx, actor, id, expectedVersion, rules[access.ActionSubmit], nil, nil)
}

// Resubmit sends a changes_requested item back to review.
func (e *Engine) Resubmit(ctx context.Context, actor access.Actor, id string, expectedVersion int64) (content.Item, error) {
	return e.transition(ctx, actor, id, expectedVersion, rules[access.ActionResubmit], nil, nil)
}

// Approve accepts an item under review.
func (e *Engine) Approve(ctx context.Context, actor access.Actor, id string, expectedVersion int64, comments string) (content.Item, error) {
	return e.transition(ctx, actor, id, expectedVersion, rules[access.ActionApprove], commentDetails(comments), nil)
}

// Reject declines an item under review.
func (e *Engine) Reject(ctx context.Context, actor access.Actor, id string, expectedVersion int64, comments string) (content.Item, error) {
	return e.transition(ctx, actor, id, expectedVersion, rules[access.ActionReject], commentDetails(comments), nil)
}

// RequestChanges returns an item under review to its owner.
func (e *Engine) RequestChanges(ctx context.Context, actor access.Actor, id string, expectedVersion int64, comments string) (content.Item, error) {
	return e.transition(ctx, actor, id, expectedVersion, rules[access.ActionRequestChanges], commentDetails(comments), nil)
}

// Schedule sets an approved item to publish at a future time. It needs
// mode=normal and not paused.
func (e *Engine) Schedule(ctx context.Context, actor access.Actor, id string, expectedVersion int64, at time.Time) (content.Item, error) {
	when := at.UTC()
	return e.transition(ctx, actor, id, expectedVersion, rules[access.ActionSchedule],
		map[string]any{"scheduled_for": when.Format(time.RFC3339)},
		func(next *content.Item) error {
			if at.IsZero() {
				return apperr.Validation("scheduled_for", "is required")
			}
			if !at.After(e.now()) {
				return apperr.Validation("scheduled_for", "must be in the future")
			}
			next.ScheduledFor = &when
			return nil
		})
}

// Publish marks a scheduled item as posted. It needs mode=normal and not
// paused.
func (e *Engine) Publish(ctx context.Context, actor access.Actor, id string, expectedVersion int64) (content.Item, error) {
	return e.transition(ctx, actor, id, expectedVersion, rules[access.ActionPublish], nil,
		func(next *content.Item) error {
			now := e.now().UTC()
			next.PublishedAt = &now
			return nil
		})
}

// Archive retires any non-archived item. Admin only.
func (e *Engine) Archive(ctx context.Context, actor access.Actor, id string, expectedVersion int64, reason string) (content.Item, error) {
	var details map[string]any
	if reason != "" {
		details = map[string]any{"reason": reason}
	}
	return e.transition(ctx, actor, id, expectedVersion, rules[access.ActionArchive], details, nil)
}

// CancelScheduled archives every scheduled item with the given reason. It
// retries items that change underneath it and reports the ones it could not
// archive instead of stopping at the first failure.
func (e *Engine) CancelScheduled(ctx context.Context, actor access.Actor, reason string) (controls.CancelReport, error) {
	report := controls.CancelReport{Cancelled: []string{}, Failed: []controls.CancelFailure{}}
	if _, err := access.Authorize(actor, access.ActionArchive); err != nil {
		return report, err
	}

	items, err := e.store.ListItems(ctx, content.Filter{Statuses: []content.Status{content.StatusScheduled}})
	if err != nil {
		return report, fmt.Errorf("list scheduled items: %w", err)
	}

	details := map[string]any{"reason": reason, "cancelled": true}
	for _, it := range items {
		err := e.cancelOne(ctx, actor, it, details)
		switch {
		case err == nil:
			report.Cancelled = append(report.Cancelled, it.ID)
		case errors.Is(err, errNoLongerScheduled):
		default:
			e.logger.WithError(err).WithField("item_id", it.ID).Warn("Failed to cancel scheduled item")
			report.Failed = append(report.Failed, controls.CancelFailure{ItemID: it.ID, Error: err.Error()})
		}
	}
	return report, nil
}

var errNoLongerScheduled = errors.New("item is no longer scheduled")

func (e *Engine) cancelOne(ctx context.Context, actor access.Actor, it content.Item, details map[string]any) error {
	var lastErr error
	for attempt := 0; attempt < crisisRetries; attempt++ {
		if attempt > 0 {
			cur, err := e.load(ctx, it.ID)
			if err != nil {
				return err
			}
			it = cur
		}
		if it.Status != content.StatusScheduled {
			return errNoLongerScheduled
		}
		_, err := e.transition(ctx, actor, it.ID, it.Version, rules[access.ActionArchive], details, nil)
		if err == nil {
			return nil
		}
		if !apperr.IsCode(err, apperr.CodeStaleVersion) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// transition runs the checks in order: permission, ownership, expected
// version, legality, mode gate, then the compare-and-swap commit with its
// audit record. Gated commits are checked again against the persisted mode,
// since a peer replica may have changed it without this one noticing yet.
func (e *Engine) transition(ctx context.Context, actor access.Actor, id string, expectedVersion int64, r rule, details map[string]any, mutate func(*content.Item) error) (item content.Item, err error) {
	defer func() { e.metrics.Observe(string(r.action), err) }()
	resync := false
	defer func() {
		if resync {
			e.resync(ctx)
		}
	}()

	grant, err := access.Authorize(actor, r.action)
	if err != nil {
		return content.Item{}, err
	}
	cur, err := e.load(ctx, id)
	if err != nil {
		return content.Item{}, err
	}
	if err := access.CheckOwner(actor, grant, r.action, cur.OwnerID); err != nil {
		return content.Item{}, err
	}
	if expectedVersion != cur.Version {
		return content.Item{}, apperr.StaleVersion(expectedVersion, cur.Version)
	}
	if !r.allows(cur.Status) || !CanTransition(cur.Status, r.to) {
		return content.Item{}, apperr.InvalidTransition(string(cur.Status), string(r.to), string(r.action))
	}

	var allow func(controls.State) bool
	if r.gate != gateNone {
		state, release := e.gate.Guard()
		defer release()
		if !r.permits(state) {
			return content.Item{}, apperr.ModeBlocked(string(r.action), string(state.Mode), state.Paused)
		}
		allow = r.permits
	}

	next := cur.Clone()
	if mutate != nil {
		if err := mutate(&next); err != nil {
			return content.Item{}, err
		}
	}
	next.Status = r.to
	next.Version = cur.Version + 1
	next.UpdatedAt = e.now().UTC()

	d := map[string]any{
		"from":    string(cur.Status),
		"to":      string(r.to),
		"version": next.Version,
	}
	for k, v := range details {
		d[k] = v
	}
	rec := audit.NewRecord(actor, "content."+string(r.action), audit.TargetContent, id, d)

	if err := e.commit(ctx, next, cur.Version, rec, allow); err != nil {
		var blocked *store.ModeBlockedError
		if errors.As(err, &blocked) {
			resync = true
			return content.Item{}, apperr.ModeBlocked(string(r.action), blocked.Mode, blocked.Paused)
		}
		return content.Item{}, err
	}
	e.committed(ctx, actor, rec, next)
	return next, nil
}

func (e *Engine) load(ctx context.Context, id string) (content.Item, error) {
	item, err := e.store.GetItem(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return content.Item{}, apperr.NotFound("content item", id)
	}
	if err != nil {
		return content.Item{}, fmt.Errorf("load item %s: %w", id, err)
	}
	return item, nil
}

func (e *Engine) commit(ctx context.Context, next content.Item, expectedVersion int64, rec audit.Record, allow func(controls.State) bool) error {
	var err error
	if allow != nil {
		err = e.store.UpdateItemGated(ctx, next, expectedVersion, rec, allow)
	} else {
		err = e.store.UpdateItem(ctx, next, expectedVersion, rec)
	}
	if errors.Is(err, store.ErrVersionConflict) {
		actual := expectedVersion
		if cur, loadErr := e.store.GetItem(ctx, next.ID); loadErr == nil {
			actual = cur.Version
		}
		return apperr.StaleVersion(expectedVersion, actual)
	}
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("content item", next.ID)
	}
	if err != nil {
		return fmt.Errorf("update item %s: %w", next.ID, err)
	}
	return nil
}

// resync refreshes a gate whose cached mode let through a commit that the
// persisted mode refused.
func (e *Engine) resync(ctx context.Context) {
	r, ok := e.gate.(reloader)
	if !ok {
		return
	}
	if err := r.Reload(ctx); err != nil {
		e.logger.WithError(err).Warn("Failed to reload system mode after gated commit was refused")
	}
}

func (e *Engine) committed(ctx context.Context, actor access.Actor, rec audit.Record, item content.Item) {
	e.audit.Forward(ctx, rec)
	e.logger.WithFields(logging.Fields{
		"actor_id": actor.ID,
		"role":     actor.Role,
		"action":   rec.Action,
		"item_id":  item.ID,
		"status":   item.Status,
		"version":  item.Version,
	}).Info("Content item updated")
}

func commentDetails(comments string) map[string]any {
	if comments == "" {
		return nil
	}
	return map[string]any{"comments": comments}
}

func statusIn(s content.Status, set []content.Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
