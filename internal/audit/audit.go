// Package audit is the append-only record of every content transition and
// control action.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"frameworks/herald/internal/access"
	"frameworks/herald/pkg/logging"
)

const (
	TargetContent = "content_item"
	TargetSystem  = "system"

	// SystemModeID is the target id used for every control action.
	SystemModeID = "system_mode"

	DefaultLimit = 50
	MaxLimit     = 500
)

// Record is one audit entry. Records are never updated or deleted.
type Record struct {
	ID         string         `json:"id"`
	ActorID    string         `json:"actor_id"`
	Action     string         `json:"action"`
	TargetType string         `json:"target_type"`
	TargetID   string         `json:"target_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Details    map[string]any `json:"details"`
}

// NewRecord stamps a record with a fresh id and the current time. The
// actor's role is kept in details.
func NewRecord(actor access.Actor, action, targetType, targetID string, details map[string]any) Record {
	d := make(map[string]any, len(details)+1)
	for k, v := range details {
		d[k] = v
	}
	d["actor_role"] = string(actor.Role)
	return Record{
		ID:         uuid.NewString(),
		ActorID:    actor.ID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Timestamp:  time.Now().UTC(),
		Details:    d,
	}
}

// Query filters audit records. Zero-valued fields match everything.
type Query struct {
	TargetType string
	TargetID   string
	ActorID    string
	Action     string
	Since      time.Time
	Limit      int
}

// Normalized clamps Limit into [1, MaxLimit], defaulting to DefaultLimit.
func (q Query) Normalized() Query {
	switch {
	case q.Limit <= 0:
		q.Limit = DefaultLimit
	case q.Limit > MaxLimit:
		q.Limit = MaxLimit
	}
	return q
}

// Matches reports whether r satisfies the filter fields of q.
func (q Query) Matches(r Record) bool {
	if q.TargetType != "" && r.TargetType != q.TargetType {
		return false
	}
	if q.TargetID != "" && r.TargetID != q.TargetID {
		return false
	}
	if q.ActorID != "" && r.ActorID != q.ActorID {
		return false
	}
	if q.Action != "" && r.Action != q.Action {
		return false
	}
	if !q.Since.IsZero() && r.Timestamp.Before(q.Since) {
		return false
	}
	return true
}

// Store persists audit records. Query results are newest first.
type Store interface {
	AppendAudit(ctx context.Context, recs ...Record) error
	QueryAudit(ctx context.Context, q Query) ([]Record, error)
}

// Sink receives committed records, e.g. for publishing to Kafka.
type Sink interface {
	Publish(ctx context.Context, recs []Record) error
}

// Log is the audit facade used by the engine, controller and handlers.
type Log struct {
	store  Store
	sinks  []Sink
	logger logging.Logger
}

// NewLog creates a Log over store. Sinks are optional.
func NewLog(store Store, logger logging.Logger, sinks ...Sink) *Log {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Log{store: store, sinks: sinks, logger: logger}
}

// Append stores standalone records and forwards them to sinks. Records that
// accompany a state change are written by the owning store transaction and
// only forwarded.
func (l *Log) Append(ctx context.Context, recs ...Record) error {
	if len(recs) == 0 {
		return nil
	}
	if err := l.store.AppendAudit(ctx, recs...); err != nil {
		return err
	}
	l.Forward(ctx, recs...)
	return nil
}

// Forward hands committed records to every sink. Sink failures are logged
// and never returned since the records are already durable.
func (l *Log) Forward(ctx context.Context, recs ...Record) {
	if len(recs) == 0 {
		return
	}
	for _, s := range l.sinks {
		if err := s.Publish(ctx, recs); err != nil {
			l.logger.WithError(err).WithFields(logging.Fields{
				"records": len(recs),
				"action":  recs[0].Action,
			}).Warn("Failed to forward audit records")
		}
	}
}

// Query returns records visible to actor matching q, newest first.
func (l *Log) Query(ctx context.Context, actor access.Actor, q Query) ([]Record, error) {
	if _, err := access.Authorize(actor, access.ActionReadAudit); err != nil {
		return nil, err
	}
	return l.store.QueryAudit(ctx, q.Normalized())
}

// ForTarget returns the records for one target, newest first. Callers are
// responsible for authorization.
func (l *Log) ForTarget(ctx context.Context, targetType, targetID string, limit int) ([]Record, error) {
	return l.store.QueryAudit(ctx, Query{TargetType: targetType, TargetID: targetID, Limit: limit}.Normalized())
}
