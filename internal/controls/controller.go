// Package controls owns the global system mode (normal, manual, crisis plus
// a pause flag) and gates which content transitions are permitted.
package controls

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"frameworks/herald/internal/access"
	"frameworks/herald/internal/apperr"
	"frameworks/herald/internal/audit"
	"frameworks/herald/pkg/logging"
)

// Store persists the mode singleton. SaveMode writes the state and its audit
// record atomically.
type Store interface {
	LoadMode(ctx context.Context) (State, bool, error)
	SaveMode(ctx context.Context, s State, rec audit.Record) error
}

// Forwarder publishes committed audit records. *audit.Log satisfies it.
type Forwarder interface {
	Forward(ctx context.Context, recs ...audit.Record)
}

// Canceller archives every scheduled item when crisis mode is entered.
type Canceller interface {
	CancelScheduled(ctx context.Context, actor access.Actor, reason string) (CancelReport, error)
}

// Notifier tells other replicas that the mode changed.
type Notifier interface {
	NotifyModeChange(ctx context.Context, s State) error
}

// Controller holds the in-memory copy of the mode and serialises changes to
// it. Mode-gated operations elsewhere hold Guard while they commit so that a
// mode change cannot interleave with them.
type Controller struct {
	mu    sync.RWMutex
	state State
	// gen counts local writes to state. Reload drops a read that a local
	// write overtook.
	gen uint64

	store     Store
	forwarder Forwarder
	canceller Canceller
	notifier  Notifier
	metrics   *Metrics
	logger    logging.Logger

	defaultMode Mode
	now         func() time.Time
	reloads     singleflight.Group
}

// Option configures a Controller.
type Option func(*Controller)

func WithLogger(l logging.Logger) Option    { return func(c *Controller) { c.logger = l } }
func WithForwarder(f Forwarder) Option      { return func(c *Controller) { c.forwarder = f } }
func WithNotifier(n Notifier) Option        { return func(c *Controller) { c.notifier = n } }
func WithMetrics(m *Metrics) Option         { return func(c *Controller) { c.metrics = m } }
func WithDefaultMode(m Mode) Option         { return func(c *Controller) { c.defaultMode = m } }
func WithClock(now func() time.Time) Option { return func(c *Controller) { c.now = now } }
func WithCanceller(cn Canceller) Option     { return func(c *Controller) { c.canceller = cn } }

// New creates a Controller. Call Init before serving requests.
func New(store Store, opts ...Option) *Controller {
	c := &Controller{
		store:       store,
		logger:      logging.NewDiscardLogger(),
		defaultMode: ModeNormal,
		now:         time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	c.state = State{Mode: c.defaultMode, Paused: c.defaultMode == ModeCrisis}
	return c
}

// SetCanceller wires the crisis sweep after construction, since the engine
// that implements it depends on the controller.
func (c *Controller) SetCanceller(cn Canceller) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.canceller = cn
}

// Init loads the persisted mode, persisting the default when none exists.
func (c *Controller) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, found, err := c.store.LoadMode(ctx)
	if err != nil {
		return fmt.Errorf("load system mode: %w", err)
	}
	if found {
		c.state = s
		c.gen++
		c.metrics.SetMode(s)
		c.logger.WithFields(logging.Fields{"mode": s.Mode, "paused": s.Paused}).Info("Loaded system mode")
		return nil
	}

	s = State{
		Mode:      c.defaultMode,
		Paused:    c.defaultMode == ModeCrisis,
		Notes:     "initial mode",
		UpdatedBy: access.System.ID,
		UpdatedAt: c.now().UTC(),
	}
	rec := audit.NewRecord(access.System, "control.init", audit.TargetSystem, audit.SystemModeID, map[string]any{
		"new_mode":   string(s.Mode),
		"new_paused": s.Paused,
	})
	if err := c.store.SaveMode(ctx, s, rec); err != nil {
		return fmt.Errorf("persist default system mode: %w", err)
	}
	c.state = s
	c.gen++
	c.metrics.SetMode(s)
	c.forward(ctx, rec)
	c.logger.WithField("mode", s.Mode).Info("Initialised system mode with default")
	return nil
}

// Reload refreshes the in-memory state from the store. Concurrent calls are
// coalesced. A read that a local mode change committed after is discarded,
// since the local change is the newer one.
func (c *Controller) Reload(ctx context.Context) error {
	_, err, _ := c.reloads.Do("reload", func() (interface{}, error) {
		c.mu.RLock()
		gen := c.gen
		c.mu.RUnlock()

		s, found, err := c.store.LoadMode(ctx)
		if err != nil {
			return nil, fmt.Errorf("reload system mode: %w", err)
		}
		if !found {
			return nil, nil
		}
		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			c.logger.Debug("Discarded system mode reload overtaken by a local change")
			return nil, nil
		}
		changed := s.Mode != c.state.Mode || s.Paused != c.state.Paused
		c.state = s
		c.mu.Unlock()
		c.metrics.SetMode(s)
		if changed {
			c.logger.WithFields(logging.Fields{"mode": s.Mode, "paused": s.Paused}).Info("System mode reloaded")
		}
		return nil, nil
	})
	return err
}

// State returns a snapshot of the current mode.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Status returns the mode and capability flags.
func (c *Controller) Status(actor access.Actor) (Status, error) {
	if _, err := access.Authorize(actor, access.ActionViewMode); err != nil {
		return Status{}, err
	}
	return StatusOf(c.State()), nil
}

// Guard read-locks the mode and returns it with the release func. Holders
// must not call back into mode-changing operations.
func (c *Controller) Guard() (State, func()) {
	c.mu.RLock()
	return c.state, c.mu.RUnlock
}

// Pause stops automated scheduling and publishing without changing mode.
func (c *Controller) Pause(ctx context.Context, actor access.Actor, notes string) (Result, error) {
	return c.apply(ctx, actor, "pause", notes, func(prev State) (State, error) {
		prev.Paused = true
		return prev, nil
	})
}

// Resume clears the pause flag. Crisis mode cannot be resumed; switch to
// normal or manual instead.
func (c *Controller) Resume(ctx context.Context, actor access.Actor, notes string) (Result, error) {
	return c.apply(ctx, actor, "resume", notes, func(prev State) (State, error) {
		if prev.Mode == ModeCrisis {
			return prev, apperr.ModeBlocked("resume", string(prev.Mode), prev.Paused).
				With("hint", "leave crisis with set_normal or set_manual")
		}
		prev.Paused = false
		return prev, nil
	})
}

// SetManual makes humans drive every step and clears the pause flag.
func (c *Controller) SetManual(ctx context.Context, actor access.Actor, notes string) (Result, error) {
	return c.apply(ctx, actor, "set_manual", notes, func(prev State) (State, error) {
		return State{Mode: ModeManual, Paused: false}, nil
	})
}

// SetNormal restores full automation and clears the pause flag.
func (c *Controller) SetNormal(ctx context.Context, actor access.Actor, notes string) (Result, error) {
	return c.apply(ctx, actor, "set_normal", notes, func(prev State) (State, error) {
		return State{Mode: ModeNormal, Paused: false}, nil
	})
}

// SetCrisis pauses everything and archives every scheduled item. The mode
// change commits before the sweep; a partial sweep returns the result with a
// CANCEL_INCOMPLETE error naming the failed items.
func (c *Controller) SetCrisis(ctx context.Context, actor access.Actor, notes string) (Result, error) {
	res, err := c.apply(ctx, actor, "set_crisis", notes, func(prev State) (State, error) {
		return State{Mode: ModeCrisis, Paused: true}, nil
	})
	if err != nil {
		return res, err
	}

	c.mu.RLock()
	cn := c.canceller
	c.mu.RUnlock()
	if cn == nil {
		return res, nil
	}

	report, sweepErr := cn.CancelScheduled(ctx, actor, "crisis")
	res.Cancellation = &report
	c.metrics.AddCancelled("cancelled", len(report.Cancelled))
	c.metrics.AddCancelled("failed", len(report.Failed))

	entry := c.logger.WithFields(logging.Fields{
		"actor_id":  actor.ID,
		"cancelled": len(report.Cancelled),
		"failed":    len(report.Failed),
	})
	if sweepErr != nil {
		entry.WithError(sweepErr).Error("Crisis sweep aborted")
		return res, apperr.Wrap(apperr.CodeCancelIncomplete, "crisis mode set but scheduled items could not be listed", sweepErr).
			With("failed_ids", report.FailedIDs()).
			With("cancelled", len(report.Cancelled))
	}
	if len(report.Failed) > 0 {
		entry.WithField("failed_ids", report.FailedIDs()).Error("Crisis sweep left scheduled items")
		return res, apperr.Newf(apperr.CodeCancelIncomplete, "crisis mode set but %d scheduled item(s) could not be cancelled", len(report.Failed)).
			With("failed_ids", report.FailedIDs()).
			With("cancelled", len(report.Cancelled))
	}
	entry.Info("Crisis sweep complete")
	return res, nil
}

func (c *Controller) apply(ctx context.Context, actor access.Actor, op, notes string, next func(State) (State, error)) (Result, error) {
	if _, err := access.Authorize(actor, access.ActionControlMode); err != nil {
		return Result{}, err
	}

	c.mu.Lock()
	prev := c.state
	s, err := next(prev)
	if err != nil {
		c.mu.Unlock()
		return Result{}, err
	}
	s.Notes = notes
	s.UpdatedBy = actor.ID
	s.UpdatedAt = c.now().UTC()

	rec := audit.NewRecord(actor, "control."+op, audit.TargetSystem, audit.SystemModeID, map[string]any{
		"previous_mode":   string(prev.Mode),
		"new_mode":        string(s.Mode),
		"previous_paused": prev.Paused,
		"new_paused":      s.Paused,
		"notes":           notes,
	})
	if err := c.store.SaveMode(ctx, s, rec); err != nil {
		c.mu.Unlock()
		return Result{}, fmt.Errorf("save system mode: %w", err)
	}
	c.state = s
	c.gen++
	c.mu.Unlock()

	c.metrics.IncModeChange(op)
	c.metrics.SetMode(s)
	c.forward(ctx, rec)
	c.notify(ctx, s)

	c.logger.WithFields(logging.Fields{
		"actor_id":        actor.ID,
		"action":          op,
		"previous_mode":   prev.Mode,
		"new_mode":        s.Mode,
		"previous_paused": prev.Paused,
		"new_paused":      s.Paused,
	}).Info("System mode changed")

	return Result{Previous: prev, Current: StatusOf(s)}, nil
}

func (c *Controller) forward(ctx context.Context, recs ...audit.Record) {
	if c.forwarder != nil {
		c.forwarder.Forward(ctx, recs...)
	}
}

func (c *Controller) notify(ctx context.Context, s State) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.NotifyModeChange(ctx, s); err != nil {
		c.logger.WithError(err).Warn("Failed to notify peers of mode change")
	}
}
