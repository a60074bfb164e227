// Package memory is an in-process implementation of herald's stores, used
// when DATABASE_URL is unset and in tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"frameworks/herald/internal/analytics"
	"frameworks/herald/internal/audit"
	"frameworks/herald/internal/content"
	"frameworks/herald/internal/controls"
	"frameworks/herald/internal/store"
)

// Store keeps items, the mode singleton and the audit log behind one mutex,
// so an item change and its audit record land together.
type Store struct {
	mu    sync.Mutex
	items map[string]content.Item
	mode  *controls.State
	log   []audit.Record
}

func New() *Store {
	return &Store{items: make(map[string]content.Item)}
}

func (s *Store) CreateItem(_ context.Context, item content.Item, rec audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[item.ID]; ok {
		return fmt.Errorf("item %s already exists", item.ID)
	}
	s.items[item.ID] = item.Clone()
	s.log = append(s.log, cloneRecord(rec))
	return nil
}

func (s *Store) GetItem(_ context.Context, id string) (content.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return content.Item{}, store.ErrNotFound
	}
	return item.Clone(), nil
}

// ListItems returns matching items, newest first.
func (s *Store) ListItems(_ context.Context, f content.Filter) ([]content.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]content.Item, 0)
	for _, item := range s.items {
		if f.OwnerID != "" && item.OwnerID != f.OwnerID {
			continue
		}
		if f.Platform != "" && item.Platform != f.Platform {
			continue
		}
		if len(f.Statuses) > 0 && !hasStatus(f.Statuses, item.Status) {
			continue
		}
		out = append(out, item.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) UpdateItem(_ context.Context, item content.Item, expectedVersion int64, rec audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.updateLocked(item, expectedVersion, rec)
}

// UpdateItemGated is UpdateItem that first checks allow against the stored
// mode under the same lock. With no stored mode the update is not gated.
func (s *Store) UpdateItemGated(_ context.Context, item content.Item, expectedVersion int64, rec audit.Record, allow func(controls.State) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode != nil && !allow(*s.mode) {
		return &store.ModeBlockedError{Mode: string(s.mode.Mode), Paused: s.mode.Paused}
	}
	return s.updateLocked(item, expectedVersion, rec)
}

func (s *Store) updateLocked(item content.Item, expectedVersion int64, rec audit.Record) error {
	cur, ok := s.items[item.ID]
	if !ok {
		return store.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return store.ErrVersionConflict
	}
	s.items[item.ID] = item.Clone()
	s.log = append(s.log, cloneRecord(rec))
	return nil
}

func (s *Store) LoadMode(context.Context) (controls.State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode == nil {
		return controls.State{}, false, nil
	}
	return *s.mode, true, nil
}

func (s *Store) SaveMode(_ context.Context, st controls.State, rec audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mode = &st
	s.log = append(s.log, cloneRecord(rec))
	return nil
}

func (s *Store) AppendAudit(_ context.Context, recs ...audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range recs {
		s.log = append(s.log, cloneRecord(r))
	}
	return nil
}

// QueryAudit scans newest first, in append order.
func (s *Store) QueryAudit(_ context.Context, q audit.Query) ([]audit.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]audit.Record, 0)
	for i := len(s.log) - 1; i >= 0; i-- {
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
		if q.Matches(s.log[i]) {
			out = append(out, cloneRecord(s.log[i]))
		}
	}
	return out, nil
}

func (s *Store) WorkflowCounts(_ context.Context, since time.Time, actions []string) (analytics.Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := analytics.Counts{
		Items:   make(map[content.Status]map[content.Platform]int),
		Actions: make(map[string]int),
	}
	for _, it := range s.items {
		if it.CreatedAt.Before(since) {
			continue
		}
		if counts.Items[it.Status] == nil {
			counts.Items[it.Status] = make(map[content.Platform]int)
		}
		counts.Items[it.Status][it.Platform]++
	}
	wanted := make(map[string]bool, len(actions))
	for _, a := range actions {
		wanted[a] = true
	}
	for _, r := range s.log {
		if wanted[r.Action] && !r.Timestamp.Before(since) {
			counts.Actions[r.Action]++
		}
	}
	return counts, nil
}

func hasStatus(set []content.Status, s content.Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func cloneRecord(r audit.Record) audit.Record {
	if r.Details != nil {
		d := make(map[string]any, len(r.Details))
		for k, v := range r.Details {
			d[k] = v
		}
		r.Details = d
	}
	return r
}
